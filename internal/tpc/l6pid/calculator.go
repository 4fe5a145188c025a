package l6pid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/ions"
)

// Gas names a drift-gas mixture.
type Gas string

// GasCO2 is pure carbon dioxide, the mixture with built-in curves.
const GasCO2 Gas = "CO2"

var (
	// ErrCurveUnavailable reports that no curve is loaded for an ion in the
	// active gas. Callers probing several ions treat it as data absence.
	ErrCurveUnavailable = errors.New("range curve unavailable")
	// ErrNotConfigured reports that the calculator has no curves for the
	// active gas or invalid gas conditions.
	ErrNotConfigured = errors.New("range calculator not configured")
)

// CurveKey selects a curve by gas mixture and ion.
type CurveKey struct {
	Gas Gas
	Ion ions.Ion
}

func (k CurveKey) String() string { return fmt.Sprintf("%s/%s", k.Gas, k.Ion) }

// RangeCalculator converts between ion energy and range in the current gas.
// Curves are stored at their reference conditions and rescaled whenever the
// gas conditions change. Getters never modify the calculator, so one
// instance may be shared by concurrent readers as long as the setters are
// not called at the same time.
type RangeCalculator struct {
	table       *ions.Table
	curves      map[CurveKey]*RangeCurve
	gas         Gas
	pressure    float64
	temperature float64
	active      map[ions.Ion]*RangeCurve
}

// NewRangeCalculator returns a calculator without curves. Use AddCurve or
// NewDefaultRangeCalculator.
func NewRangeCalculator(table *ions.Table, gas Gas, pressure, temperature float64) (*RangeCalculator, error) {
	if table == nil {
		table = ions.DefaultTable()
	}
	c := &RangeCalculator{
		table:  table,
		curves: make(map[CurveKey]*RangeCurve),
		active: make(map[ions.Ion]*RangeCurve),
	}
	if err := c.SetGasConditions(gas, pressure, temperature); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDefaultRangeCalculator returns a calculator holding the built-in CO2
// curves for alpha, C12, C13 and C14, set to the given conditions.
func NewDefaultRangeCalculator(pressure, temperature float64) (*RangeCalculator, error) {
	c, err := NewRangeCalculator(ions.DefaultTable(), GasCO2, pressure, temperature)
	if err != nil {
		return nil, err
	}
	curves, err := BuiltinCurves(c.table)
	if err != nil {
		return nil, err
	}
	for key, curve := range curves {
		if err := c.AddCurve(key, curve); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BuiltinCurves generates the built-in curves. Heavier carbon isotopes are
// mass-scaled from C12.
func BuiltinCurves(table *ions.Table) (map[CurveKey]*RangeCurve, error) {
	alpha, err := co2Alpha.curve(builtinMaxEnergyMeV, builtinPoints)
	if err != nil {
		return nil, fmt.Errorf("alpha curve: %w", err)
	}
	c12, err := co2C12.curve(builtinMaxEnergyMeV, builtinPoints)
	if err != nil {
		return nil, fmt.Errorf("C12 curve: %w", err)
	}
	out := map[CurveKey]*RangeCurve{
		{GasCO2, ions.Alpha}: alpha,
		{GasCO2, ions.C12}:   c12,
	}
	m12, err := table.MassMeV(ions.C12)
	if err != nil {
		return nil, err
	}
	for _, ion := range []ions.Ion{ions.C13, ions.C14} {
		m, err := table.MassMeV(ion)
		if err != nil {
			return nil, err
		}
		scaled, err := c12.ScaleMass(m12, m)
		if err != nil {
			return nil, fmt.Errorf("%s curve: %w", ion, err)
		}
		out[CurveKey{GasCO2, ion}] = scaled
	}
	return out, nil
}

// AddCurve registers a curve measured at its own reference conditions,
// replacing any previous curve for key.
func (c *RangeCalculator) AddCurve(key CurveKey, curve *RangeCurve) error {
	if curve == nil {
		return fmt.Errorf("nil curve for %s", key)
	}
	c.curves[key] = curve
	if key.Gas == c.gas {
		return c.activate(key.Ion, curve)
	}
	return nil
}

// SetGasConditions selects the gas mixture, pressure (mbar) and
// temperature (K) and rescales the curves of that gas.
func (c *RangeCalculator) SetGasConditions(gas Gas, pressure, temperature float64) error {
	if pressure <= 0 || temperature <= 0 {
		return fmt.Errorf("%w: p=%g mbar T=%g K", ErrInvalidGasCondition, pressure, temperature)
	}
	c.gas, c.pressure, c.temperature = gas, pressure, temperature
	c.active = make(map[ions.Ion]*RangeCurve)
	for key, curve := range c.curves {
		if key.Gas != gas {
			continue
		}
		if err := c.activate(key.Ion, curve); err != nil {
			return err
		}
	}
	monitoring.Logf("[pid] gas %s at %.1f mbar, %.2f K: %d curves", gas, pressure, temperature, len(c.active))
	return nil
}

// SetGasMixture selects the gas, keeping pressure and temperature.
func (c *RangeCalculator) SetGasMixture(gas Gas) error {
	return c.SetGasConditions(gas, c.pressure, c.temperature)
}

// SetGasPressure sets the pressure in mbar.
func (c *RangeCalculator) SetGasPressure(pressure float64) error {
	return c.SetGasConditions(c.gas, pressure, c.temperature)
}

// SetGasTemperature sets the temperature in K.
func (c *RangeCalculator) SetGasTemperature(temperature float64) error {
	return c.SetGasConditions(c.gas, c.pressure, temperature)
}

func (c *RangeCalculator) activate(ion ions.Ion, curve *RangeCurve) error {
	scaled, err := curve.Rescale(c.pressure, c.temperature)
	if err != nil {
		return err
	}
	c.active[ion] = scaled
	return nil
}

// Gas returns the active gas mixture.
func (c *RangeCalculator) Gas() Gas { return c.gas }

// GasPressure returns the active pressure in mbar.
func (c *RangeCalculator) GasPressure() float64 { return c.pressure }

// GasTemperature returns the active temperature in K.
func (c *RangeCalculator) GasTemperature() float64 { return c.temperature }

// Ions returns the table the calculator resolves masses with.
func (c *RangeCalculator) Ions() *ions.Table { return c.table }

// IsOK reports whether any curve is available for the active gas.
func (c *RangeCalculator) IsOK() bool { return len(c.active) > 0 }

// IsIonOK reports whether a curve is available for ion in the active gas.
func (c *RangeCalculator) IsIonOK(ion ions.Ion) bool {
	_, ok := c.active[ion]
	return ok
}

// Curve returns the curve of ion rescaled to the active conditions.
func (c *RangeCalculator) Curve(ion ions.Ion) (*RangeCurve, error) {
	if !c.IsOK() {
		return nil, fmt.Errorf("%w: no curves for gas %q", ErrNotConfigured, c.gas)
	}
	curve, ok := c.active[ion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCurveUnavailable, CurveKey{c.gas, ion})
	}
	return curve, nil
}

// GetIonRangeMM returns the range in mm of ion with kinetic energy e (MeV).
func (c *RangeCalculator) GetIonRangeMM(ion ions.Ion, e float64) (float64, error) {
	curve, err := c.Curve(ion)
	if err != nil {
		return 0, err
	}
	return curve.Range(e), nil
}

// GetIonEnergyMeV returns the kinetic energy in MeV of ion with range r (mm).
func (c *RangeCalculator) GetIonEnergyMeV(ion ions.Ion, r float64) (float64, error) {
	curve, err := c.Curve(ion)
	if err != nil {
		return 0, err
	}
	return curve.Energy(r), nil
}

// GetIonStoppingPowerMeVPerMM returns dE/dx of ion at kinetic energy e.
func (c *RangeCalculator) GetIonStoppingPowerMeVPerMM(ion ions.Ion, e float64) (float64, error) {
	curve, err := c.Curve(ion)
	if err != nil {
		return 0, err
	}
	return curve.StoppingPower(curve.Range(e)), nil
}

// GetIonBraggCurveMeVPerMM samples n points of dE/dx against depth for ion
// starting with energy e (MeV).
func (c *RangeCalculator) GetIonBraggCurveMeVPerMM(ion ions.Ion, e float64, n int) (BraggCurve, error) {
	curve, err := c.Curve(ion)
	if err != nil {
		return BraggCurve{}, err
	}
	return curve.Bragg(e, n), nil
}

// GetIonBraggCurveIntegralMeV integrates the n-point Bragg curve of ion with
// energy e. It approaches e as n grows.
func (c *RangeCalculator) GetIonBraggCurveIntegralMeV(ion ions.Ion, e float64, n int) (float64, error) {
	b, err := c.GetIonBraggCurveMeVPerMM(ion, e, n)
	if err != nil {
		return 0, err
	}
	return b.Integral(), nil
}

// GetIonMassMeV returns the nuclear rest energy of ion.
func (c *RangeCalculator) GetIonMassMeV(ion ions.Ion) (float64, error) {
	return c.table.MassMeV(ion)
}

// GetIonMaxRangeMM returns the largest tabulated range of ion.
func (c *RangeCalculator) GetIonMaxRangeMM(ion ions.Ion) (float64, error) {
	curve, err := c.Curve(ion)
	if err != nil {
		return 0, err
	}
	return curve.MaxRange(), nil
}

// GetIonMaxEnergyMeV returns the largest tabulated energy of ion.
func (c *RangeCalculator) GetIonMaxEnergyMeV(ion ions.Ion) (float64, error) {
	curve, err := c.Curve(ion)
	if err != nil {
		return 0, err
	}
	return curve.MaxEnergy(), nil
}

// ParseGas normalises a gas name. Only the case of known names is changed.
func ParseGas(s string) Gas {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, string(GasCO2)) {
		return GasCO2
	}
	return Gas(s)
}
