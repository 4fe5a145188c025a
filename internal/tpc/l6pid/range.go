package l6pid

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"
)

// Reference conditions of the built-in curves.
const (
	ReferencePressureMbar = 250.0
	ReferenceTemperatureK = 293.15
)

// ErrInvalidGasCondition is returned for non-positive pressure or temperature.
var ErrInvalidGasCondition = errors.New("invalid gas condition")

// RangeCurve tabulates the range of an ion against its kinetic energy at
// fixed gas conditions. Energies are in MeV and ranges in mm; both start at
// zero and increase strictly.
type RangeCurve struct {
	energy       []float64
	rng          []float64
	pressure     float64
	temperature  float64
	rangeOf      interp.PiecewiseLinear
	energyOf     interp.PiecewiseLinear
	energyOfSmth interp.FritschButland
}

// NewRangeCurve builds a curve measured at pressure (mbar) and temperature
// (K). The point (0, 0) is added when missing. Points must be strictly
// increasing in both energy and range after sorting by energy.
func NewRangeCurve(energyMeV, rangeMM []float64, pressure, temperature float64) (*RangeCurve, error) {
	if len(energyMeV) != len(rangeMM) {
		return nil, fmt.Errorf("range curve: %d energies but %d ranges", len(energyMeV), len(rangeMM))
	}
	if pressure <= 0 || temperature <= 0 {
		return nil, fmt.Errorf("%w: p=%g mbar T=%g K", ErrInvalidGasCondition, pressure, temperature)
	}
	type point struct{ e, r float64 }
	pts := make([]point, 0, len(energyMeV)+1)
	for i := range energyMeV {
		if energyMeV[i] < 0 || rangeMM[i] < 0 || math.IsNaN(energyMeV[i]) || math.IsNaN(rangeMM[i]) {
			return nil, fmt.Errorf("range curve: invalid point (%g MeV, %g mm)", energyMeV[i], rangeMM[i])
		}
		pts = append(pts, point{energyMeV[i], rangeMM[i]})
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].e < pts[j].e })
	if len(pts) == 0 || pts[0].e > 0 {
		pts = append([]point{{0, 0}}, pts...)
	}
	c := &RangeCurve{
		energy:      make([]float64, len(pts)),
		rng:         make([]float64, len(pts)),
		pressure:    pressure,
		temperature: temperature,
	}
	for i, p := range pts {
		c.energy[i], c.rng[i] = p.e, p.r
		if i > 0 && (p.e <= c.energy[i-1] || p.r <= c.rng[i-1]) {
			return nil, fmt.Errorf("range curve: not strictly increasing at (%g MeV, %g mm)", p.e, p.r)
		}
	}
	if len(pts) < 3 {
		return nil, fmt.Errorf("range curve: need at least 2 points besides the origin, got %d", len(pts)-1)
	}
	c.fit()
	return c, nil
}

func (c *RangeCurve) fit() {
	// Fit only panics on malformed input, which NewRangeCurve rejects.
	_ = c.rangeOf.Fit(c.energy, c.rng)
	_ = c.energyOf.Fit(c.rng, c.energy)
	_ = c.energyOfSmth.Fit(c.rng, c.energy)
}

// Pressure returns the pressure (mbar) the curve is valid at.
func (c *RangeCurve) Pressure() float64 { return c.pressure }

// Temperature returns the temperature (K) the curve is valid at.
func (c *RangeCurve) Temperature() float64 { return c.temperature }

// Len returns the number of tabulated points, the origin included.
func (c *RangeCurve) Len() int { return len(c.energy) }

// Point returns the i-th tabulated (energy, range) pair.
func (c *RangeCurve) Point(i int) (energyMeV, rangeMM float64) { return c.energy[i], c.rng[i] }

// MaxEnergy returns the largest tabulated energy in MeV.
func (c *RangeCurve) MaxEnergy() float64 { return c.energy[len(c.energy)-1] }

// MaxRange returns the largest tabulated range in mm.
func (c *RangeCurve) MaxRange() float64 { return c.rng[len(c.rng)-1] }

// Range returns the range in mm of an ion with kinetic energy e (MeV).
// Energies outside the table clamp to its ends.
func (c *RangeCurve) Range(e float64) float64 { return c.rangeOf.Predict(e) }

// Energy returns the kinetic energy in MeV of an ion with range r (mm).
func (c *RangeCurve) Energy(r float64) float64 { return c.energyOf.Predict(r) }

// StoppingPower returns dE/dx in MeV/mm at residual range r. It is zero
// outside the tabulated range.
func (c *RangeCurve) StoppingPower(r float64) float64 {
	if r <= 0 || r > c.MaxRange() {
		return 0
	}
	return math.Max(0, c.energyOfSmth.PredictDerivative(r))
}

// Rescale returns the curve at another pressure (mbar) and temperature (K).
// Ranges scale with the inverse gas number density, (p0*T)/(p*T0).
func (c *RangeCurve) Rescale(pressure, temperature float64) (*RangeCurve, error) {
	if pressure <= 0 || temperature <= 0 {
		return nil, fmt.Errorf("%w: p=%g mbar T=%g K", ErrInvalidGasCondition, pressure, temperature)
	}
	k := (c.pressure * temperature) / (pressure * c.temperature)
	out := &RangeCurve{
		energy:      append([]float64(nil), c.energy...),
		rng:         make([]float64, len(c.rng)),
		pressure:    pressure,
		temperature: temperature,
	}
	for i, r := range c.rng {
		out.rng[i] = r * k
	}
	out.fit()
	return out, nil
}

// ScaleMass derives the curve of an isotope of the same charge from this
// one: R_m(E) = (m/m0) * R_m0(E * m0/m).
func (c *RangeCurve) ScaleMass(m0, m float64) (*RangeCurve, error) {
	if m0 <= 0 || m <= 0 {
		return nil, fmt.Errorf("range curve: invalid masses %g, %g", m0, m)
	}
	k := m / m0
	e := make([]float64, len(c.energy))
	r := make([]float64, len(c.rng))
	for i := range c.energy {
		e[i] = c.energy[i] * k
		r[i] = c.rng[i] * k
	}
	return NewRangeCurve(e, r, c.pressure, c.temperature)
}

// BraggCurve samples the stopping power of one ion along its path, from
// the starting point (depth 0) to the stopping point.
type BraggCurve struct {
	DepthMM     []float64
	DEdxMeVPerMM []float64
}

// Bragg samples n points of dE/dx against depth for an ion starting with
// energy e (MeV). n is raised to 2 when smaller.
func (c *RangeCurve) Bragg(e float64, n int) BraggCurve {
	if n < 2 {
		n = 2
	}
	total := c.Range(e)
	b := BraggCurve{DepthMM: make([]float64, n), DEdxMeVPerMM: make([]float64, n)}
	for i := 0; i < n; i++ {
		depth := total * float64(i) / float64(n-1)
		b.DepthMM[i] = depth
		b.DEdxMeVPerMM[i] = c.StoppingPower(total - depth)
	}
	return b
}

// Integral returns the energy deposited along the sampled curve in MeV.
func (b BraggCurve) Integral() float64 {
	if len(b.DepthMM) < 2 {
		return 0
	}
	return integrate.Trapezoidal(b.DepthMM, b.DEdxMeVPerMM)
}
