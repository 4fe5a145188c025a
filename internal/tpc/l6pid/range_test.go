package l6pid

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tpcreco/internal/fsutil"
	"github.com/banshee-data/tpcreco/internal/testutil"
	"github.com/banshee-data/tpcreco/internal/tpc/ions"
)

func defaultCalculator(t *testing.T) *RangeCalculator {
	t.Helper()
	c, err := NewDefaultRangeCalculator(ReferencePressureMbar, ReferenceTemperatureK)
	require.NoError(t, err)
	return c
}

func TestNewRangeCurve_Validation(t *testing.T) {
	_, err := NewRangeCurve([]float64{1, 2}, []float64{1}, 250, 293)
	assert.Error(t, err)
	_, err = NewRangeCurve([]float64{1, 2}, []float64{3, 2}, 250, 293)
	assert.Error(t, err, "range must increase with energy")
	_, err = NewRangeCurve([]float64{1, 2}, []float64{1, 2}, 0, 293)
	assert.True(t, errors.Is(err, ErrInvalidGasCondition))
	_, err = NewRangeCurve([]float64{1}, []float64{1}, 250, 293)
	assert.Error(t, err, "one point besides the origin is not a curve")

	c, err := NewRangeCurve([]float64{2, 1}, []float64{5, 2}, 250, 293)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
	e, r := c.Point(0)
	assert.Equal(t, 0.0, e)
	assert.Equal(t, 0.0, r)
	assert.Equal(t, 2.0, c.MaxEnergy())
	assert.Equal(t, 5.0, c.MaxRange())
}

func TestRangeCurve_RangeEnergyInverse(t *testing.T) {
	c := defaultCalculator(t)
	for _, ion := range []ions.Ion{ions.Alpha, ions.C12, ions.C13, ions.C14} {
		for _, e := range []float64{0.3, 1, 2.5, 5, 9.9, 17} {
			r, err := c.GetIonRangeMM(ion, e)
			require.NoError(t, err)
			back, err := c.GetIonEnergyMeV(ion, r)
			require.NoError(t, err)
			testutil.AssertRelative(t, ion.String(), back, e, 1e-9)
		}
	}
}

func TestRangeCurve_Rescale(t *testing.T) {
	c := defaultCalculator(t)
	alpha, err := c.Curve(ions.Alpha)
	require.NoError(t, err)

	same, err := alpha.Rescale(alpha.Pressure(), alpha.Temperature())
	require.NoError(t, err)
	for i := 0; i < alpha.Len(); i++ {
		e0, r0 := alpha.Point(i)
		e1, r1 := same.Point(i)
		assert.Equal(t, e0, e1)
		assert.Equal(t, r0, r1)
	}

	double, err := alpha.Rescale(2*alpha.Pressure(), alpha.Temperature())
	require.NoError(t, err)
	for i := 0; i < alpha.Len(); i++ {
		_, r0 := alpha.Point(i)
		_, r1 := double.Point(i)
		assert.InDelta(t, r0/2, r1, 1e-12)
	}
	assert.InDelta(t, alpha.Range(6)/2, double.Range(6), 1e-9)

	_, err = alpha.Rescale(-1, 300)
	assert.ErrorIs(t, err, ErrInvalidGasCondition)
}

func TestBuiltinCurves_Normalisation(t *testing.T) {
	c := defaultCalculator(t)
	r, err := c.GetIonRangeMM(ions.Alpha, 10)
	require.NoError(t, err)
	assert.InDelta(t, 297.23, r, 0.1)

	r, err = c.GetIonRangeMM(ions.C12, 5)
	require.NoError(t, err)
	assert.InDelta(t, 23.43, r, 0.05)

	r12, _ := c.GetIonRangeMM(ions.C12, 5)
	r14, _ := c.GetIonRangeMM(ions.C14, 5)
	assert.Greater(t, r14, r12, "heavier isotope at equal energy goes further")

	m12, _ := c.GetIonMassMeV(ions.C12)
	m14, _ := c.GetIonMassMeV(ions.C14)
	scaled, _ := c.GetIonRangeMM(ions.C12, 5*m12/m14)
	assert.InDelta(t, scaled*m14/m12, r14, 1e-3)
}

func TestRangeCalculator_GasConditions(t *testing.T) {
	c := defaultCalculator(t)
	r0, _ := c.GetIonRangeMM(ions.Alpha, 6)

	require.NoError(t, c.SetGasPressure(125))
	r1, _ := c.GetIonRangeMM(ions.Alpha, 6)
	assert.InDelta(t, 2*r0, r1, 1e-9)

	require.NoError(t, c.SetGasTemperature(2*ReferenceTemperatureK))
	r2, _ := c.GetIonRangeMM(ions.Alpha, 6)
	assert.InDelta(t, 4*r0, r2, 1e-9)

	assert.ErrorIs(t, c.SetGasPressure(0), ErrInvalidGasCondition)
	assert.ErrorIs(t, c.SetGasTemperature(-3), ErrInvalidGasCondition)
	assert.Equal(t, 125.0, c.GasPressure(), "failed setters keep the previous state")

	require.NoError(t, c.SetGasMixture("Ar"))
	assert.False(t, c.IsOK())
	_, err := c.GetIonRangeMM(ions.Alpha, 6)
	assert.ErrorIs(t, err, ErrNotConfigured)

	require.NoError(t, c.SetGasMixture(ParseGas("co2")))
	assert.True(t, c.IsOK())
	assert.Equal(t, GasCO2, c.Gas())
}

func TestRangeCalculator_Unavailable(t *testing.T) {
	empty, err := NewRangeCalculator(nil, GasCO2, 250, 293.15)
	require.NoError(t, err)
	assert.False(t, empty.IsOK())
	_, err = empty.GetIonEnergyMeV(ions.Alpha, 10)
	assert.ErrorIs(t, err, ErrNotConfigured)

	c := defaultCalculator(t)
	assert.True(t, c.IsIonOK(ions.Alpha))
	assert.False(t, c.IsIonOK(ions.O16))
	_, err = c.GetIonRangeMM(ions.O16, 1)
	assert.ErrorIs(t, err, ErrCurveUnavailable)
	assert.NotErrorIs(t, err, ErrNotConfigured)

	_, err = NewRangeCalculator(nil, GasCO2, 0, 293.15)
	assert.ErrorIs(t, err, ErrInvalidGasCondition)
}

func TestRangeCalculator_BraggCurve(t *testing.T) {
	c := defaultCalculator(t)
	b, err := c.GetIonBraggCurveMeVPerMM(ions.Alpha, 6, 500)
	require.NoError(t, err)
	require.Len(t, b.DepthMM, 500)
	r, _ := c.GetIonRangeMM(ions.Alpha, 6)
	assert.InDelta(t, r, b.DepthMM[len(b.DepthMM)-1], 1e-9)

	peak := 0
	for i, v := range b.DEdxMeVPerMM {
		assert.GreaterOrEqual(t, v, 0.0)
		if v > b.DEdxMeVPerMM[peak] {
			peak = i
		}
	}
	assert.Greater(t, peak, 400, "Bragg peak sits near the end of the track")
	assert.Less(t, b.DEdxMeVPerMM[0], b.DEdxMeVPerMM[peak])

	integral, err := c.GetIonBraggCurveIntegralMeV(ions.Alpha, 6, 2000)
	require.NoError(t, err)
	testutil.AssertRelative(t, "alpha energy", integral, 6, 0.01)

	sp, err := c.GetIonStoppingPowerMeVPerMM(ions.Alpha, 6)
	require.NoError(t, err)
	assert.InDelta(t, b.DEdxMeVPerMM[0], sp, 1e-9)

	maxR, err := c.GetIonMaxRangeMM(ions.Alpha)
	require.NoError(t, err)
	maxE, err := c.GetIonMaxEnergyMeV(ions.Alpha)
	require.NoError(t, err)
	assert.Equal(t, builtinMaxEnergyMeV, maxE)
	back, _ := c.GetIonRangeMM(ions.Alpha, maxE)
	assert.InDelta(t, maxR, back, 1e-9)
}

func TestRangeCalculator_Mass(t *testing.T) {
	c := defaultCalculator(t)
	m, err := c.GetIonMassMeV(ions.Alpha)
	require.NoError(t, err)
	assert.InDelta(t, 3727.379, m, 0.01)
	_, err = c.GetIonMassMeV(ions.Ion(99))
	assert.ErrorIs(t, err, ions.ErrUnknownIon)
}

func TestLoadRangeTable(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("tables/o16.dat", []byte("# E range\n1000 keV 10000 um\n\n2000 keV 25000 um\n4000 keV 60000 um\n"))
	fsys.AddFile("tables/short.dat", []byte("1.0\n"))

	c := defaultCalculator(t)
	src := TableSource{Ion: "O16", Path: "tables/o16.dat", EnergyUnit: "keV", RangeUnit: "um", PressureMbar: 500}
	require.NoError(t, c.LoadRangeTable(fsys, src))
	require.True(t, c.IsIonOK(ions.O16))

	r, err := c.GetIonRangeMM(ions.O16, 3)
	require.NoError(t, err)
	assert.InDelta(t, 85.0, r, 1e-9, "42.5 mm at 500 mbar doubles at 250 mbar")

	err = c.LoadRangeTable(fsys, TableSource{Ion: "O16", Path: "tables/short.dat"})
	assert.Error(t, err)
	err = c.LoadRangeTable(fsys, TableSource{Ion: "O16", Path: "missing.dat"})
	assert.Error(t, err)
	err = c.LoadRangeTable(fsys, TableSource{Ion: "Xe", Path: "tables/o16.dat"})
	assert.ErrorIs(t, err, ions.ErrUnknownIon)
}

func TestReadRangeTable_Columns(t *testing.T) {
	in := "0.5 9 1.0 7\n1.0 9 2.5 7\n2.0 9 6.0 7\n"
	curve, err := ReadRangeTable(strings.NewReader(in), TableSource{EnergyColumn: 0, RangeColumn: 2, RangeUnit: "cm"})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, curve.Range(1), 1e-12)

	_, err = ReadRangeTable(strings.NewReader(in), TableSource{EnergyUnit: "furlong"})
	assert.Error(t, err)
}
