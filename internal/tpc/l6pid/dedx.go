package l6pid

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/ions"
	"github.com/banshee-data/tpcreco/internal/tpc/optimizer"
	"github.com/banshee-data/tpcreco/internal/tpc/profile"
)

// EventType labels the particle content of a track.
type EventType int

const (
	EventUnknown EventType = iota
	EventAlpha
	EventC12Alpha
)

func (t EventType) String() string {
	switch t {
	case EventAlpha:
		return "ALPHA"
	case EventC12Alpha:
		return "C12_ALPHA"
	}
	return "UNKNOWN"
}

// ParseEventType parses "ALPHA" or "C12_ALPHA" (case-insensitive).
func ParseEventType(s string) (EventType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALPHA":
		return EventAlpha, nil
	case "C12_ALPHA":
		return EventC12Alpha, nil
	}
	return EventUnknown, fmt.Errorf("unknown event type %q (valid: ALPHA, C12_ALPHA)", s)
}

// ErrNoHypotheses is returned by FitHisto when no hypothesis is registered.
var ErrNoHypotheses = errors.New("no dE/dx hypotheses registered")

// Hypothesis is a particle content to fit. The primary ion leaves the
// vertex towards increasing profile position; the optional secondary ion
// leaves it in the opposite direction.
type Hypothesis struct {
	Type      EventType
	Primary   ions.Ion
	Secondary ions.Ion
}

// TwoBody reports whether the hypothesis has a secondary ion.
func (h Hypothesis) TwoBody() bool { return h.Secondary != ions.Unknown }

// HypothesisFor returns the hypothesis of an event type.
func HypothesisFor(t EventType) (Hypothesis, error) {
	switch t {
	case EventAlpha:
		return Hypothesis{Type: EventAlpha, Primary: ions.Alpha}, nil
	case EventC12Alpha:
		return Hypothesis{Type: EventC12Alpha, Primary: ions.Alpha, Secondary: ions.C12}, nil
	}
	return Hypothesis{}, fmt.Errorf("no hypothesis for event type %s", t)
}

// Fitter defaults.
const (
	DefaultVertexWindowMM        = 3.0
	DefaultMinSecondaryRangeMM   = 5.0
	DefaultMaxSecondaryEnergyMeV = 10.0
	DefaultSigmaMinMM            = 0.5
	DefaultSigmaMaxMM            = 4.0
	DefaultMaxRefits             = 10
	DefaultChi2Threshold         = 5e-4
	DefaultEdgeFraction          = 0.05
	DefaultOversampling          = 2
	// kernelSigmas is the half-width of the response kernel.
	kernelSigmas = 4.0
	// maxScanPoints bounds the vertex grid scan.
	maxScanPoints = 200
)

// FitterParams configures the dE/dx fitter.
type FitterParams struct {
	Hypotheses []EventType
	// Reflection also fits every hypothesis to the mirrored profile.
	Reflection bool
	// VertexWindowMM widens the vertex bounds around the profile edges.
	VertexWindowMM        float64
	MinSecondaryRangeMM   float64
	MaxSecondaryEnergyMeV float64
	SigmaMinMM            float64
	SigmaMaxMM            float64
	// MaxRefits bounds the fits per hypothesis and orientation.
	MaxRefits int
	// Chi2Threshold is the chi2/(sum of data)^2 above which a fit is
	// repeated.
	Chi2Threshold float64
	// EdgeFraction of the profile maximum locates the track ends.
	EdgeFraction float64
	// Oversampling is the number of model points per profile bin.
	Oversampling int
	Optimizer    optimizer.Settings
}

// DefaultFitterParams fits ALPHA and C12_ALPHA in both orientations.
func DefaultFitterParams() FitterParams {
	return FitterParams{
		Hypotheses:            []EventType{EventAlpha, EventC12Alpha},
		Reflection:            true,
		VertexWindowMM:        DefaultVertexWindowMM,
		MinSecondaryRangeMM:   DefaultMinSecondaryRangeMM,
		MaxSecondaryEnergyMeV: DefaultMaxSecondaryEnergyMeV,
		SigmaMinMM:            DefaultSigmaMinMM,
		SigmaMaxMM:            DefaultSigmaMaxMM,
		MaxRefits:             DefaultMaxRefits,
		Chi2Threshold:         DefaultChi2Threshold,
		EdgeFraction:          DefaultEdgeFraction,
		Oversampling:          DefaultOversampling,
		Optimizer:             optimizer.Settings{MaxIterations: 1000, MaxEvaluations: 3000, Tolerance: 1e-10, Restarts: 1},
	}
}

// Validate checks parameter consistency.
func (p FitterParams) Validate() error {
	if p.SigmaMinMM <= 0 || p.SigmaMaxMM <= p.SigmaMinMM {
		return fmt.Errorf("diffusion bounds must satisfy 0 < min < max, got [%g, %g]", p.SigmaMinMM, p.SigmaMaxMM)
	}
	if p.VertexWindowMM < 0 {
		return fmt.Errorf("vertex window must be non-negative, got %g", p.VertexWindowMM)
	}
	if p.MinSecondaryRangeMM <= 0 {
		return fmt.Errorf("minimum secondary range must be positive, got %g", p.MinSecondaryRangeMM)
	}
	if p.MaxSecondaryEnergyMeV <= 0 {
		return fmt.Errorf("maximum secondary energy must be positive, got %g", p.MaxSecondaryEnergyMeV)
	}
	if p.MaxRefits < 1 {
		return fmt.Errorf("max refits must be at least 1, got %d", p.MaxRefits)
	}
	if p.EdgeFraction <= 0 || p.EdgeFraction >= 1 {
		return fmt.Errorf("edge fraction must be in (0, 1), got %g", p.EdgeFraction)
	}
	if p.Oversampling < 1 {
		return fmt.Errorf("oversampling must be at least 1, got %d", p.Oversampling)
	}
	return nil
}

// FitResult is the outcome of fitting one hypothesis in one orientation.
// Positions are along the axis of the profile passed to FitHisto.
type FitResult struct {
	Hypothesis Hypothesis
	Type       EventType
	// Reflected is set when the primary ion travels towards decreasing
	// profile position.
	Reflected      bool
	Chi2           float64
	NormalizedChi2 float64
	// Sigma is the fitted diffusion width in mm.
	Sigma        float64
	VertexOffset float64
	PrimaryRange float64
	// SecondaryRange is zero for single-ion hypotheses.
	SecondaryRange  float64
	PrimaryEnergy   float64
	SecondaryEnergy float64
	// Scale converts MeV/mm into profile charge per bin.
	Scale     float64
	Converged bool
	Fits      int
	// Model is the fitted curve binned like the profile.
	Model *profile.Profile
}

// TotalEnergy returns the summed kinetic energy of the fitted ions.
func (r FitResult) TotalEnergy() float64 { return r.PrimaryEnergy + r.SecondaryEnergy }

func (r FitResult) String() string {
	return fmt.Sprintf("%s reflected=%t chi2=%.4g vertex=%.2f mm sigma=%.2f mm ranges=(%.2f, %.2f) mm",
		r.Type, r.Reflected, r.Chi2, r.VertexOffset, r.Sigma, r.PrimaryRange, r.SecondaryRange)
}

// Fit holds the selected result and every candidate it was chosen from.
type Fit struct {
	Best    FitResult
	Results []FitResult
}

// DEdxFitter matches charge profiles against Bragg-curve hypotheses.
// It keeps no per-profile state.
type DEdxFitter struct {
	calc      *RangeCalculator
	params    FitterParams
	hyps      []Hypothesis
	minimizer optimizer.Minimizer
}

// NewDEdxFitter creates a fitter. A nil minimizer selects Nelder-Mead with
// p.Optimizer settings. Every ion of every hypothesis must have a curve in
// the calculator's active gas.
func NewDEdxFitter(calc *RangeCalculator, p FitterParams, minimizer optimizer.Minimizer) (*DEdxFitter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if calc == nil || !calc.IsOK() {
		return nil, ErrNotConfigured
	}
	f := &DEdxFitter{calc: calc, params: p, minimizer: minimizer}
	if f.minimizer == nil {
		f.minimizer = optimizer.NewNelderMead(p.Optimizer)
	}
	for _, t := range p.Hypotheses {
		h, err := HypothesisFor(t)
		if err != nil {
			return nil, err
		}
		for _, ion := range []ions.Ion{h.Primary, h.Secondary} {
			if ion == ions.Unknown {
				continue
			}
			if _, err := calc.Curve(ion); err != nil {
				return nil, fmt.Errorf("hypothesis %s: %w", t, err)
			}
		}
		f.hyps = append(f.hyps, h)
	}
	return f, nil
}

// Hypotheses returns the registered hypotheses.
func (f *DEdxFitter) Hypotheses() []Hypothesis { return append([]Hypothesis(nil), f.hyps...) }

// FitHisto fits every hypothesis to p and selects the lowest chi2. An empty
// profile yields an EventUnknown result without error.
func (f *DEdxFitter) FitHisto(p *profile.Profile) (*Fit, error) {
	if len(f.hyps) == 0 {
		return nil, ErrNoHypotheses
	}
	out := &Fit{Best: FitResult{Type: EventUnknown}}
	if p.Len() == 0 || p.Integral() <= 0 || p.BinWidth <= 0 {
		monitoring.Logf("[pid] empty charge profile: no fit")
		return out, nil
	}
	reflected := p.Reflect()
	mirror := p.Start + p.End()
	for _, h := range f.hyps {
		orientations := []bool{false}
		if f.params.Reflection {
			orientations = append(orientations, true)
		}
		for _, refl := range orientations {
			data := p
			if refl {
				data = reflected
			}
			r, ok := f.fitHypothesis(h, data)
			if !ok {
				continue
			}
			if refl {
				r.Reflected = true
				r.VertexOffset = mirror - r.VertexOffset
				r.Model = r.Model.Reflect()
			}
			out.Results = append(out.Results, r)
		}
	}
	if len(out.Results) == 0 {
		return out, nil
	}
	best := 0
	for i, r := range out.Results {
		if r.Chi2 < out.Results[best].Chi2 {
			best = i
		}
	}
	out.Best = out.Results[best]
	monitoring.Logf("[pid] best of %d fits: %s", len(out.Results), out.Best)
	return out, nil
}

// bounds of one fit, in the orientation of the data.
type bounds struct {
	sigmaLo, sigmaHi   float64
	vertexLo, vertexHi float64
	primaryHi          float64
	secondaryLo        float64
	secondaryHi        float64
}

func (f *DEdxFitter) fitHypothesis(h Hypothesis, data *profile.Profile) (FitResult, bool) {
	lo, hi, ok := data.Edges(f.params.EdgeFraction)
	if !ok {
		return FitResult{}, false
	}
	primary, err := f.calc.Curve(h.Primary)
	if err != nil {
		return FitResult{}, false
	}
	var secondary *RangeCurve
	if h.TwoBody() {
		if secondary, err = f.calc.Curve(h.Secondary); err != nil {
			return FitResult{}, false
		}
	}

	w := f.params.VertexWindowMM
	b := bounds{
		sigmaLo:   f.params.SigmaMinMM,
		sigmaHi:   f.params.SigmaMaxMM,
		vertexLo:  lo - w,
		vertexHi:  lo + w,
		primaryHi: math.Min(primary.MaxRange(), hi-lo+3*w+data.BinWidth),
	}
	if secondary != nil {
		b.secondaryLo = f.params.MinSecondaryRangeMM
		b.secondaryHi = math.Min(secondary.Range(f.params.MaxSecondaryEnergyMeV), secondary.MaxRange())
		b.vertexLo = lo + b.secondaryLo - w
		b.vertexHi = math.Min(lo+b.secondaryHi+w, hi)
		if b.secondaryHi <= b.secondaryLo {
			return FitResult{}, false
		}
	}
	if b.vertexHi <= b.vertexLo {
		b.vertexHi = b.vertexLo + data.BinWidth
	}
	if b.primaryHi <= 1 {
		return FitResult{}, false
	}

	m := newBraggModel(data, f.params.Oversampling, b.sigmaHi, primary, secondary)
	eval := optimizer.EvaluatorFunc(func(x []float64) float64 {
		chi2, _ := m.chi2(x)
		return chi2
	})

	start := m.scan(b, lo, hi)
	best := append([]float64(nil), start...)
	bestChi2, _ := m.chi2(best)
	sum := data.Integral()
	res := FitResult{Hypothesis: h, Type: h.Type}
	for res.Fits < f.params.MaxRefits {
		res.Fits++
		params := []optimizer.Param{
			optimizer.Bounded("sigma", best[0], 0.3, b.sigmaLo, b.sigmaHi),
			optimizer.Bounded("vertex", best[1], data.BinWidth, b.vertexLo, b.vertexHi),
			optimizer.Bounded("primaryRange", best[2], 2*data.BinWidth, 1, b.primaryHi),
		}
		if secondary != nil {
			params = append(params, optimizer.Bounded("secondaryRange", best[3], data.BinWidth, b.secondaryLo, b.secondaryHi))
		}
		r, err := f.minimizer.Minimize(eval, params)
		if err != nil {
			monitoring.Logf("[pid] %s fit %d failed: %v", h.Type, res.Fits, err)
			break
		}
		if r.Loss <= bestChi2 {
			bestChi2 = r.Loss
			copy(best, r.Params)
		}
		res.Converged = r.Converged
		if r.Converged && bestChi2/(sum*sum) <= f.params.Chi2Threshold {
			break
		}
	}

	chi2, scale := m.chi2(best)
	res.Chi2 = chi2
	res.NormalizedChi2 = chi2 / (sum * sum)
	res.Scale = scale
	res.Sigma = best[0]
	res.VertexOffset = best[1]
	res.PrimaryRange = best[2]
	res.PrimaryEnergy = primary.Energy(best[2])
	if secondary != nil {
		res.SecondaryRange = best[3]
		res.SecondaryEnergy = secondary.Energy(best[3])
	}
	model := profile.New(data.Start, data.BinWidth, m.out)
	floats.Scale(scale, model.Values)
	res.Model = model
	return res, true
}

// braggModel evaluates Bragg curves smeared by a Gaussian response on a
// grid oversampling the profile bins.
type braggModel struct {
	data      *profile.Profile
	os        int
	h         float64
	pad       int
	x         []float64
	raw       []float64
	kernel    []float64
	out       []float64
	primary   *RangeCurve
	secondary *RangeCurve
}

func newBraggModel(data *profile.Profile, os int, sigmaMax float64, primary, secondary *RangeCurve) *braggModel {
	h := data.BinWidth / float64(os)
	pad := int(math.Ceil(kernelSigmas*sigmaMax/h)) + 1
	n := data.Len()*os + 2*pad
	m := &braggModel{
		data:      data,
		os:        os,
		h:         h,
		pad:       pad,
		x:         make([]float64, n),
		raw:       make([]float64, n),
		out:       make([]float64, data.Len()),
		primary:   primary,
		secondary: secondary,
	}
	for j := range m.x {
		m.x[j] = data.Start + (float64(j-pad)+0.5)*h
	}
	return m
}

// evaluate fills out with the unscaled model for x = [sigma, vertex,
// primary range, secondary range].
func (m *braggModel) evaluate(x []float64) {
	sigma, vertex, rp := x[0], x[1], x[2]
	var rs float64
	if m.secondary != nil {
		rs = x[3]
	}
	for j, pos := range m.x {
		s := pos - vertex
		v := 0.0
		if s >= 0 && s <= rp {
			v += m.primary.StoppingPower(rp - s)
		}
		if m.secondary != nil && s <= 0 && -s <= rs {
			v += m.secondary.StoppingPower(rs + s)
		}
		m.raw[j] = v
	}

	half := min(int(math.Ceil(kernelSigmas*sigma/m.h)), m.pad)
	m.kernel = m.kernel[:0]
	for i := -half; i <= half; i++ {
		d := float64(i) * m.h / sigma
		m.kernel = append(m.kernel, math.Exp(-0.5*d*d))
	}
	floats.Scale(1/floats.Sum(m.kernel), m.kernel)

	for b := range m.out {
		acc := 0.0
		for k := 0; k < m.os; k++ {
			j := m.pad + b*m.os + k
			acc += floats.Dot(m.kernel, m.raw[j-half:j+half+1])
		}
		m.out[b] = acc / float64(m.os)
	}
}

// chi2 returns the squared residual with the scale solved in closed form.
func (m *braggModel) chi2(x []float64) (chi2, scale float64) {
	m.evaluate(x)
	d := m.data.Values
	mm := floats.Dot(m.out, m.out)
	if mm > 0 {
		scale = math.Max(0, floats.Dot(d, m.out)/mm)
	}
	for i, v := range d {
		r := v - scale*m.out[i]
		chi2 += r * r
	}
	return chi2, scale
}

// scan returns the best starting point on a grid of vertex positions.
// Ranges start at the distances from the vertex to the profile edges.
func (m *braggModel) scan(b bounds, lo, hi float64) []float64 {
	sigma := 0.5 * (b.sigmaLo + b.sigmaHi)
	step := math.Max(0.5*m.data.BinWidth, (b.vertexHi-b.vertexLo)/maxScanPoints)
	type cand struct {
		x    []float64
		chi2 float64
	}
	var cands []cand
	for v := b.vertexLo; v <= b.vertexHi+1e-9; v += step {
		x := []float64{sigma, v, clamp(hi-v, 1, b.primaryHi)}
		if m.secondary != nil {
			x = append(x, clamp(v-lo, b.secondaryLo, b.secondaryHi))
		}
		c, _ := m.chi2(x)
		cands = append(cands, cand{x, c})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].chi2 < cands[j].chi2 })
	return cands[0].x
}

func clamp(v, lo, hi float64) float64 { return math.Min(math.Max(v, lo), hi) }
