package synthetic

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/ions"
	"github.com/banshee-data/tpcreco/internal/tpc/l1charge"
	"github.com/banshee-data/tpcreco/internal/tpc/l6pid"
)

// Generator defaults.
const (
	DefaultDiffusionMM  = 0.5
	DefaultNoiseSigma   = 2.0
	DefaultNoiseMargin  = 5
	DefaultStepMM       = 0.1
	DefaultChargePerMeV = 10000.0
	// spreadSigmas is the half-width of the diffusion footprint.
	spreadSigmas = 3.0
)

// Params configures deposition.
type Params struct {
	// DiffusionMM is the Gaussian smearing width applied on both the strip
	// and the drift axis.
	DiffusionMM float64
	// NoiseSigma is the width of the noise added to every bin in the
	// bounding box of the signal, widened by NoiseMargin bins. Zero
	// disables noise.
	NoiseSigma  float64
	NoiseMargin int
	StepMM      float64
	// ChargePerMeV converts deposited energy to charge units.
	ChargePerMeV float64
	Seed         uint64
}

// DefaultParams returns the default deposition parameters.
func DefaultParams() Params {
	return Params{
		DiffusionMM:  DefaultDiffusionMM,
		NoiseSigma:   DefaultNoiseSigma,
		NoiseMargin:  DefaultNoiseMargin,
		StepMM:       DefaultStepMM,
		ChargePerMeV: DefaultChargePerMeV,
		Seed:         1,
	}
}

// TrackSpec is one straight track starting at Vertex.
type TrackSpec struct {
	Ion       ions.Ion
	Vertex    r3.Vec
	Direction r3.Vec
	EnergyMeV float64
}

// End returns the stopping point of the track in the calculator's gas.
func (s TrackSpec) End(calc *l6pid.RangeCalculator) (r3.Vec, error) {
	r, err := calc.GetIonRangeMM(s.Ion, s.EnergyMeV)
	if err != nil {
		return r3.Vec{}, err
	}
	return r3.Add(s.Vertex, r3.Scale(r, r3.Unit(s.Direction))), nil
}

// Generator deposits tracks onto a UVW readout.
type Generator struct {
	geom   *geometry.UVW
	calc   *l6pid.RangeCalculator
	params Params
	noise  distuv.Normal
}

// NewGenerator creates a generator. Non-positive step and charge scale
// take their defaults.
func NewGenerator(geom *geometry.UVW, calc *l6pid.RangeCalculator, p Params) *Generator {
	if p.StepMM <= 0 {
		p.StepMM = DefaultStepMM
	}
	if p.ChargePerMeV <= 0 {
		p.ChargePerMeV = DefaultChargePerMeV
	}
	return &Generator{
		geom:   geom,
		calc:   calc,
		params: p,
		noise:  distuv.Normal{Mu: 0, Sigma: p.NoiseSigma, Src: rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15)},
	}
}

// Event renders tracks into a new charge map.
func (g *Generator) Event(tracks ...TrackSpec) (*l1charge.ChargeMap, error) {
	signal := l1charge.NewChargeMap()
	for i, s := range tracks {
		if err := g.deposit(signal, s); err != nil {
			return nil, fmt.Errorf("track %d (%s): %w", i, s.Ion, err)
		}
	}
	if g.params.NoiseSigma <= 0 {
		return signal, nil
	}
	return g.addNoise(signal), nil
}

func (g *Generator) deposit(m *l1charge.ChargeMap, s TrackSpec) error {
	if r3.Norm(s.Direction) == 0 {
		return fmt.Errorf("null direction")
	}
	curve, err := g.calc.Curve(s.Ion)
	if err != nil {
		return err
	}
	dir := r3.Unit(s.Direction)
	total := curve.Range(s.EnergyMeV)
	step := g.params.StepMM
	var deposited float64
	for depth := 0.0; depth < total; depth += step {
		next := math.Min(depth+step, total)
		dE := curve.Energy(total-depth) - curve.Energy(total-next)
		if dE <= 0 {
			continue
		}
		pos := r3.Add(s.Vertex, r3.Scale(0.5*(depth+next), dir))
		q := dE * g.params.ChargePerMeV
		deposited += dE
		for _, p := range geometry.Projections {
			g.spread(m, p, pos, q)
		}
	}
	monitoring.Logf("[synthetic] %s %.2f MeV: %.1f mm, %.3f MeV deposited", s.Ion, s.EnergyMeV, total, deposited)
	return nil
}

// spread adds charge q at pos to the bins of projection p, weighting each
// bin by the Gaussian probability mass it covers on both axes.
func (g *Generator) spread(m *l1charge.ChargeMap, p geometry.Projection, pos r3.Vec, q float64) {
	strip := g.geom.StripOf(p, pos.X, pos.Y)
	sample := g.geom.SampleOf(pos.Z)
	sigma := g.params.DiffusionMM
	if sigma <= 0 {
		m.Add(p, int(math.Round(strip)), int(math.Round(sample)), q)
		return
	}
	ws := binWeights(strip, sigma/g.geom.Pitch)
	wt := binWeights(sample, sigma/g.geom.TimeBin)
	for _, a := range ws {
		for _, b := range wt {
			if w := a.w * b.w; w > 1e-6 {
				m.Add(p, a.i, b.i, q*w)
			}
		}
	}
}

type binWeight struct {
	i int
	w float64
}

// binWeights integrates a unit Gaussian centred on the fractional index
// c over the bins [i-0.5, i+0.5].
func binWeights(c, sigma float64) []binWeight {
	gauss := distuv.Normal{Mu: c, Sigma: sigma}
	lo := int(math.Floor(c - spreadSigmas*sigma - 0.5))
	hi := int(math.Ceil(c + spreadSigmas*sigma + 0.5))
	out := make([]binWeight, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		w := gauss.CDF(float64(i)+0.5) - gauss.CDF(float64(i)-0.5)
		if w > 0 {
			out = append(out, binWeight{i, w})
		}
	}
	return out
}

// addNoise returns a copy of signal with noise on every bin of the padded
// bounding box of each projection. Bins that end up non-positive are
// dropped.
func (g *Generator) addNoise(signal *l1charge.ChargeMap) *l1charge.ChargeMap {
	out := l1charge.NewChargeMap()
	for _, p := range geometry.Projections {
		bins := signal.Bins(p)
		if len(bins) == 0 {
			continue
		}
		minS, maxS := bins[0].Strip, bins[0].Strip
		minT, maxT := bins[0].Sample, bins[0].Sample
		for _, b := range bins[1:] {
			minS, maxS = min(minS, b.Strip), max(maxS, b.Strip)
			minT, maxT = min(minT, b.Sample), max(maxT, b.Sample)
		}
		margin := g.params.NoiseMargin
		for s := minS - margin; s <= maxS+margin; s++ {
			for t := minT - margin; t <= maxT+margin; t++ {
				if s < 0 || t < 0 {
					continue
				}
				if v := signal.Charge(p, s, t) + g.noise.Rand(); v > 0 {
					out.Add(p, s, t, v)
				}
			}
		}
	}
	return out
}
