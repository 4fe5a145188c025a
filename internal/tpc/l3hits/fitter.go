package l3hits

import (
	"fmt"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l2cluster"
	"github.com/banshee-data/tpcreco/internal/tpc/optimizer"
)

// Slice-fit defaults.
const (
	// DefaultSliceMaxThreshold is the minimum slice maximum worth fitting.
	DefaultSliceMaxThreshold = 20.0
	// DefaultSliceIntegralThreshold is the minimum window integral.
	DefaultSliceIntegralThreshold = 40.0
	// DefaultHalfWindow bounds the fit window around the maximum, in bins.
	DefaultHalfWindow = 10
	// DefaultEdgeFraction locates window edges and second maxima relative
	// to the slice maximum.
	DefaultEdgeFraction = 0.25
	// DefaultSignalMSERatio: signal wins when mseSignal < ratio*mseNoise.
	DefaultSignalMSERatio = 0.9
	// DefaultDoublePeakMSERatio: the double model wins when
	// mseDouble < ratio*mseSingle.
	DefaultDoublePeakMSERatio = 0.7
	// DefaultMinPeakSeparation is the minimum distance in bins between the
	// two maxima of a double-peak slice.
	DefaultMinPeakSeparation = 3
	// DefaultSigmaMin is the narrowest accepted peak width in bins.
	DefaultSigmaMin = 0.3
	// DefaultFallbackChargeFraction triggers strip-axis fitting when the
	// time-axis hits carry less than this fraction of the cluster charge.
	DefaultFallbackChargeFraction = 0.2
	// DefaultCleanFraction drops hits below this fraction of the largest hit
	// within DefaultCleanRadiusMM.
	DefaultCleanFraction = 0.1
	// DefaultCleanRadiusMM is the neighbourhood a hit is cleaned against.
	DefaultCleanRadiusMM = 5.0
	// DefaultMaxIterations caps each slice fit.
	DefaultMaxIterations = 600
)

// Params configures slice fitting.
type Params struct {
	SliceMaxThreshold      float64
	SliceIntegralThreshold float64
	HalfWindow             int
	EdgeFraction           float64
	SignalMSERatio         float64
	DoublePeakMSERatio     float64
	MinPeakSeparation      int
	SigmaMin               float64
	FallbackChargeFraction float64
	CleanFraction          float64
	CleanRadiusMM          float64
	MaxIterations          int
}

// DefaultParams returns the default slice-fit parameters.
func DefaultParams() Params {
	return Params{
		SliceMaxThreshold:      DefaultSliceMaxThreshold,
		SliceIntegralThreshold: DefaultSliceIntegralThreshold,
		HalfWindow:             DefaultHalfWindow,
		EdgeFraction:           DefaultEdgeFraction,
		SignalMSERatio:         DefaultSignalMSERatio,
		DoublePeakMSERatio:     DefaultDoublePeakMSERatio,
		MinPeakSeparation:      DefaultMinPeakSeparation,
		SigmaMin:               DefaultSigmaMin,
		FallbackChargeFraction: DefaultFallbackChargeFraction,
		CleanFraction:          DefaultCleanFraction,
		CleanRadiusMM:          DefaultCleanRadiusMM,
		MaxIterations:          DefaultMaxIterations,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.HalfWindow < 1 {
		return fmt.Errorf("half window must be at least 1, got %d", p.HalfWindow)
	}
	if p.EdgeFraction <= 0 || p.EdgeFraction >= 1 {
		return fmt.Errorf("edge fraction must be in (0, 1), got %g", p.EdgeFraction)
	}
	if p.SignalMSERatio <= 0 || p.DoublePeakMSERatio <= 0 {
		return fmt.Errorf("MSE ratios must be positive, got signal %g double %g", p.SignalMSERatio, p.DoublePeakMSERatio)
	}
	if p.SigmaMin <= 0 {
		return fmt.Errorf("sigma min must be positive, got %g", p.SigmaMin)
	}
	if p.CleanFraction < 0 || p.CleanFraction >= 1 {
		return fmt.Errorf("clean fraction must be in [0, 1), got %g", p.CleanFraction)
	}
	if p.CleanRadiusMM < 0 {
		return fmt.Errorf("clean radius must be non-negative, got %g", p.CleanRadiusMM)
	}
	return nil
}

// Fitter turns clusters into reconstructed hits. It is stateless between
// calls and safe for concurrent use.
type Fitter struct {
	params    Params
	geom      geometry.Provider
	minimizer optimizer.Minimizer
}

// NewFitter creates a hit fitter.
func NewFitter(p Params, geom geometry.Provider) *Fitter {
	return &Fitter{
		params:    p,
		geom:      geom,
		minimizer: optimizer.NewNelderMead(optimizer.Settings{MaxIterations: p.MaxIterations, Restarts: 1}),
	}
}

// Params returns the fitter configuration.
func (f *Fitter) Params() Params { return f.params }

// MakeRecHits fits the cluster along time and falls back to strip-axis
// fitting when the time fits recover too little of the cluster charge.
// Hits below the clean fraction of the largest hit in their neighbourhood
// are dropped. An empty cluster yields no hits.
func (f *Fitter) MakeRecHits(c *l2cluster.Cluster) Hit2DCollection {
	if c.Empty() {
		return nil
	}
	hits := f.FitAlongTime(c)
	clusterCharge := c.Sum()
	if hits.TotalCharge() < f.params.FallbackChargeFraction*clusterCharge {
		monitoring.Logf("[hits] projection %s: time fits recovered %.1f of %.1f, fitting along strips",
			c.Grid.Proj, hits.TotalCharge(), clusterCharge)
		hits = f.FitAlongStrip(c)
	}
	cleaned := hits.Clean(f.params.CleanFraction, f.params.CleanRadiusMM)
	monitoring.Logf("[hits] projection %s: %d hits (%d before cleaning)", c.Grid.Proj, len(cleaned), len(hits))
	return cleaned
}

// FitAlongTime fits the time slice of every strip cell.
func (f *Fitter) FitAlongTime(c *l2cluster.Cluster) Hit2DCollection {
	if c.Empty() {
		return nil
	}
	g := c.Grid
	var hits Hit2DCollection
	for i := 0; i < g.NStrips; i++ {
		fit := f.FitSlice(g.Row(i))
		for _, pk := range fit.Peaks {
			hits = append(hits, f.hit(c, g.StripIndex(float64(i)), g.SampleIndex(pk.Mean), pk.Charge()))
		}
	}
	return hits
}

// FitAlongStrip fits the strip slice of every time cell.
func (f *Fitter) FitAlongStrip(c *l2cluster.Cluster) Hit2DCollection {
	if c.Empty() {
		return nil
	}
	g := c.Grid
	var hits Hit2DCollection
	for j := 0; j < g.NSamples; j++ {
		fit := f.FitSlice(g.Column(j))
		for _, pk := range fit.Peaks {
			hits = append(hits, f.hit(c, g.StripIndex(pk.Mean), g.SampleIndex(float64(j)), pk.Charge()))
		}
	}
	return hits
}

func (f *Fitter) hit(c *l2cluster.Cluster, strip, sample, charge float64) Hit2D {
	s, t := f.geom.PhysicalPosition(c.Grid.Proj, strip, sample)
	return Hit2D{PosStrip: s, PosTime: t, Charge: charge}
}
