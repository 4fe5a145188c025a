package l6pid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tpcreco/internal/tpc/ions"
	"github.com/banshee-data/tpcreco/internal/tpc/profile"
)

const profileBins = 190

// syntheticProfile renders the fitter's own model for x on a 1 mm binning.
func syntheticProfile(t *testing.T, c *RangeCalculator, two bool, x []float64) *profile.Profile {
	t.Helper()
	alpha, err := c.Curve(ions.Alpha)
	require.NoError(t, err)
	var carbon *RangeCurve
	if two {
		carbon, err = c.Curve(ions.C12)
		require.NoError(t, err)
	}
	empty := profile.New(0, 1, make([]float64, profileBins))
	m := newBraggModel(empty, DefaultOversampling, DefaultSigmaMaxMM, alpha, carbon)
	m.evaluate(x)
	p := profile.New(0, 1, m.out)
	for i := range p.Values {
		p.Values[i] *= 1000
	}
	return p
}

func newFitter(t *testing.T, c *RangeCalculator) *DEdxFitter {
	t.Helper()
	f, err := NewDEdxFitter(c, DefaultFitterParams(), nil)
	require.NoError(t, err)
	return f
}

func TestEventType_Parse(t *testing.T) {
	for _, et := range []EventType{EventAlpha, EventC12Alpha} {
		got, err := ParseEventType(et.String())
		require.NoError(t, err)
		assert.Equal(t, et, got)
	}
	_, err := ParseEventType("C14_ALPHA")
	assert.Error(t, err)
	assert.Equal(t, "UNKNOWN", EventUnknown.String())

	_, err = HypothesisFor(EventUnknown)
	assert.Error(t, err)
	h, err := HypothesisFor(EventC12Alpha)
	require.NoError(t, err)
	assert.True(t, h.TwoBody())
}

func TestFitterParams_Validate(t *testing.T) {
	require.NoError(t, DefaultFitterParams().Validate())

	tests := map[string]func(*FitterParams){
		"sigma":      func(p *FitterParams) { p.SigmaMaxMM = p.SigmaMinMM },
		"window":     func(p *FitterParams) { p.VertexWindowMM = -1 },
		"secondary":  func(p *FitterParams) { p.MinSecondaryRangeMM = 0 },
		"refits":     func(p *FitterParams) { p.MaxRefits = 0 },
		"edge":       func(p *FitterParams) { p.EdgeFraction = 1 },
		"oversample": func(p *FitterParams) { p.Oversampling = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := DefaultFitterParams()
			mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestNewDEdxFitter_Configuration(t *testing.T) {
	empty, err := NewRangeCalculator(nil, GasCO2, 250, 293.15)
	require.NoError(t, err)
	_, err = NewDEdxFitter(empty, DefaultFitterParams(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	alphaOnly, err := NewRangeCalculator(nil, GasCO2, 250, 293.15)
	require.NoError(t, err)
	curves, err := BuiltinCurves(ions.DefaultTable())
	require.NoError(t, err)
	require.NoError(t, alphaOnly.AddCurve(CurveKey{GasCO2, ions.Alpha}, curves[CurveKey{GasCO2, ions.Alpha}]))
	_, err = NewDEdxFitter(alphaOnly, DefaultFitterParams(), nil)
	assert.ErrorIs(t, err, ErrCurveUnavailable)

	p := DefaultFitterParams()
	p.Hypotheses = []EventType{EventAlpha}
	f, err := NewDEdxFitter(alphaOnly, p, nil)
	require.NoError(t, err)
	assert.Len(t, f.Hypotheses(), 1)
}

func TestFitHisto_NoHypotheses(t *testing.T) {
	p := DefaultFitterParams()
	p.Hypotheses = nil
	f, err := NewDEdxFitter(defaultCalculator(t), p, nil)
	require.NoError(t, err)
	_, err = f.FitHisto(profile.New(0, 1, []float64{1, 2, 3}))
	assert.ErrorIs(t, err, ErrNoHypotheses)
}

func TestFitHisto_EmptyProfile(t *testing.T) {
	f := newFitter(t, defaultCalculator(t))
	fit, err := f.FitHisto(profile.New(0, 1, make([]float64, 20)))
	require.NoError(t, err)
	assert.Equal(t, EventUnknown, fit.Best.Type)
	assert.Empty(t, fit.Results)

	fit, err = f.FitHisto(nil)
	require.NoError(t, err)
	assert.Equal(t, EventUnknown, fit.Best.Type)
}

func TestFitHisto_Alpha(t *testing.T) {
	c := defaultCalculator(t)
	rAlpha, err := c.GetIonRangeMM(ions.Alpha, 6)
	require.NoError(t, err)
	data := syntheticProfile(t, c, false, []float64{1.5, 20, rAlpha})

	fit, err := newFitter(t, c).FitHisto(data)
	require.NoError(t, err)
	assert.Len(t, fit.Results, 4, "two hypotheses in two orientations")

	best := fit.Best
	assert.Equal(t, EventAlpha, best.Type)
	assert.False(t, best.Reflected)
	assert.InDelta(t, 20, best.VertexOffset, 1)
	assert.InDelta(t, rAlpha, best.PrimaryRange, 2)
	assert.InDelta(t, 6, best.PrimaryEnergy, 0.1)
	assert.Zero(t, best.SecondaryRange)
	assert.Less(t, best.NormalizedChi2, DefaultChi2Threshold)
	require.Equal(t, data.Len(), best.Model.Len())
	assert.InDelta(t, data.Integral(), best.Model.Integral(), 0.02*data.Integral())
}

func TestFitHisto_AlphaReflected(t *testing.T) {
	c := defaultCalculator(t)
	rAlpha, _ := c.GetIonRangeMM(ions.Alpha, 6)
	data := syntheticProfile(t, c, false, []float64{1.5, 20, rAlpha}).Reflect()

	fit, err := newFitter(t, c).FitHisto(data)
	require.NoError(t, err)
	assert.Equal(t, EventAlpha, fit.Best.Type)
	assert.True(t, fit.Best.Reflected)
	assert.InDelta(t, profileBins-20, fit.Best.VertexOffset, 1)
	_, peak := data.MaxBin()
	i, _ := fit.Best.Model.MaxBin()
	assert.InDelta(t, peak, fit.Best.Model.Values[i], 0.1*peak, "model follows the data orientation")
}

func TestFitHisto_CarbonAlpha(t *testing.T) {
	c := defaultCalculator(t)
	rAlpha, _ := c.GetIonRangeMM(ions.Alpha, 6)
	rCarbon, _ := c.GetIonRangeMM(ions.C12, 2)
	data := syntheticProfile(t, c, true, []float64{1.5, 20, rAlpha, rCarbon})

	fit, err := newFitter(t, c).FitHisto(data)
	require.NoError(t, err)
	best := fit.Best
	assert.Equal(t, EventC12Alpha, best.Type)
	assert.False(t, best.Reflected)
	assert.InDelta(t, 20, best.VertexOffset, 1)
	assert.InDelta(t, rAlpha, best.PrimaryRange, 2)
	assert.InDelta(t, rCarbon, best.SecondaryRange, 1)
	assert.InDelta(t, 8, best.TotalEnergy(), 0.3)

	for _, r := range fit.Results {
		assert.GreaterOrEqual(t, r.Chi2, best.Chi2)
		assert.GreaterOrEqual(t, r.Fits, 1)
	}
}

func TestFitHisto_NoReflection(t *testing.T) {
	c := defaultCalculator(t)
	p := DefaultFitterParams()
	p.Reflection = false
	f, err := NewDEdxFitter(c, p, nil)
	require.NoError(t, err)
	rAlpha, _ := c.GetIonRangeMM(ions.Alpha, 4)
	fit, err := f.FitHisto(syntheticProfile(t, c, false, []float64{2, 30, rAlpha}))
	require.NoError(t, err)
	assert.Len(t, fit.Results, 2)
	for _, r := range fit.Results {
		assert.False(t, r.Reflected)
	}
	assert.Equal(t, EventAlpha, fit.Best.Type)
}
