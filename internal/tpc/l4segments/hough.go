package l4segments

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/tpcreco/internal/tpc/l3hits"
)

// Hough accumulator defaults.
const (
	DefaultHoughThetaBins  = 180
	DefaultHoughRhoBinMM   = 1.0
	DefaultHoughPeakMargin = 5
	DefaultHoughMaxPeaks   = 2
	// DefaultHoughMinHits is the smallest number of unclaimed hits a
	// peak needs to become a segment candidate.
	DefaultHoughMinHits = 3
)

// HoughParams configures the line accumulator used to seed segments.
type HoughParams struct {
	ThetaBins int
	RhoBinMM  float64
	// PeakMargin is the half-width, in bins, of the window cleared around
	// each peak before the next one is searched.
	PeakMargin int
	MaxPeaks   int
	MinHits    int
}

// DefaultHoughParams returns the default accumulator settings.
func DefaultHoughParams() HoughParams {
	return HoughParams{
		ThetaBins:  DefaultHoughThetaBins,
		RhoBinMM:   DefaultHoughRhoBinMM,
		PeakMargin: DefaultHoughPeakMargin,
		MaxPeaks:   DefaultHoughMaxPeaks,
		MinHits:    DefaultHoughMinHits,
	}
}

// Validate checks parameter ranges.
func (p HoughParams) Validate() error {
	switch {
	case p.ThetaBins < 4:
		return fmt.Errorf("hough theta bins must be at least 4, got %d", p.ThetaBins)
	case !(p.RhoBinMM > 0):
		return fmt.Errorf("hough rho bin must be positive, got %g", p.RhoBinMM)
	case p.PeakMargin < 0:
		return fmt.Errorf("hough peak margin must be non-negative, got %d", p.PeakMargin)
	case p.MaxPeaks < 1:
		return fmt.Errorf("hough max peaks must be at least 1, got %d", p.MaxPeaks)
	case p.MinHits < 2:
		return fmt.Errorf("hough min hits must be at least 2, got %d", p.MinHits)
	}
	return nil
}

// HoughLine is an accumulator peak: the line of points x with
// x.Dot(Normal()) == Rho, measured from Origin.
type HoughLine struct {
	Theta  float64
	Rho    float64
	Votes  float64
	Origin r2.Vec
}

// Normal is the unit normal of the line.
func (l HoughLine) Normal() r2.Vec { return r2.Vec{X: math.Cos(l.Theta), Y: math.Sin(l.Theta)} }

// Tangent is the unit direction of the line.
func (l HoughLine) Tangent() r2.Vec { return r2.Vec{X: -math.Sin(l.Theta), Y: math.Cos(l.Theta)} }

// Bias is the point of the line closest to Origin.
func (l HoughLine) Bias() r2.Vec { return r2.Add(l.Origin, r2.Scale(l.Rho, l.Normal())) }

// Distance is the perpendicular distance from pt to the line.
func (l HoughLine) Distance(pt r2.Vec) float64 {
	return math.Abs(r2.Dot(r2.Sub(pt, l.Origin), l.Normal()) - l.Rho)
}

// Accumulator is a (theta, rho) vote histogram over a hit collection.
// Theta covers [0, pi) and rho is signed, so every line has one cell.
// Rho is measured from the hits' centroid, keeping the histogram compact
// wherever the event sits in the chamber.
type Accumulator struct {
	params HoughParams
	origin r2.Vec
	rhoMax float64
	nRho   int
	votes  []float64
}

// NewAccumulator fills an accumulator with one vote per hit. It returns
// nil for an empty collection or invalid parameters.
func NewAccumulator(hits l3hits.Hit2DCollection, p HoughParams) *Accumulator {
	if len(hits) == 0 || p.Validate() != nil {
		return nil
	}
	var origin r2.Vec
	for _, h := range hits {
		origin = r2.Add(origin, h.Point())
	}
	origin = r2.Scale(1/float64(len(hits)), origin)
	var rhoMax float64
	for _, h := range hits {
		rhoMax = math.Max(rhoMax, r2.Norm(r2.Sub(h.Point(), origin)))
	}
	nRho := 2*int(math.Ceil(rhoMax/p.RhoBinMM)) + 1
	a := &Accumulator{
		params: p,
		origin: origin,
		rhoMax: float64(nRho) * p.RhoBinMM / 2,
		nRho:   nRho,
		votes:  make([]float64, p.ThetaBins*nRho),
	}
	for _, h := range hits {
		a.fill(h.Point())
	}
	return a
}

func (a *Accumulator) fill(pt r2.Vec) {
	rel := r2.Sub(pt, a.origin)
	for i := 0; i < a.params.ThetaBins; i++ {
		theta := a.theta(i)
		rho := rel.X*math.Cos(theta) + rel.Y*math.Sin(theta)
		j := int(math.Floor((rho + a.rhoMax) / a.params.RhoBinMM))
		if j < 0 || j >= a.nRho {
			continue
		}
		a.votes[i*a.nRho+j]++
	}
}

func (a *Accumulator) theta(i int) float64 {
	return (float64(i) + 0.5) * math.Pi / float64(a.params.ThetaBins)
}

func (a *Accumulator) rho(j int) float64 {
	return (float64(j)+0.5)*a.params.RhoBinMM - a.rhoMax
}

// Votes returns the content of cell (theta bin i, rho bin j).
func (a *Accumulator) Votes(i, j int) float64 { return a.votes[i*a.nRho+j] }

// Peaks returns up to n lines in decreasing vote order. After each peak a
// window of PeakMargin bins is cleared around it; theta wraps with a sign
// flip of rho at the ends of [0, pi).
func (a *Accumulator) Peaks(n int) []HoughLine {
	work := append([]float64(nil), a.votes...)
	var lines []HoughLine
	for len(lines) < n {
		k := floats.MaxIdx(work)
		if work[k] <= 0 {
			break
		}
		i, j := k/a.nRho, k%a.nRho
		lines = append(lines, HoughLine{
			Theta:  a.theta(i),
			Rho:    a.rho(j),
			Votes:  work[k],
			Origin: a.origin,
		})
		m := min(a.params.PeakMargin, a.params.ThetaBins/2-1)
		for di := -m; di <= m; di++ {
			ii, jj := i+di, j
			if ii < 0 || ii >= a.params.ThetaBins {
				ii = (ii + a.params.ThetaBins) % a.params.ThetaBins
				jj = a.nRho - 1 - j
			}
			for dj := -m; dj <= m; dj++ {
				if c := jj + dj; c >= 0 && c < a.nRho {
					work[ii*a.nRho+c] = 0
				}
			}
		}
	}
	return lines
}
