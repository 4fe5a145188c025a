package optimizer

import "math"

// transform maps unconstrained simplex coordinates u to bounded parameters
// x = lo + (hi-lo)(sin u + 1)/2, leaving unbounded parameters untouched.
type transform struct {
	params []Param
	start  []float64
}

func newTransform(params []Param) *transform {
	t := &transform{params: params, start: make([]float64, len(params))}
	x := make([]float64, len(params))
	for i, p := range params {
		x[i] = p.Value
		if p.IsBounded() {
			x[i] = math.Min(math.Max(p.Value, p.Lower), p.Upper)
		}
	}
	t.start = t.internal(x)
	return t
}

func (t *transform) external(u []float64) []float64 {
	x := make([]float64, len(t.params))
	for i, p := range t.params {
		if !p.IsBounded() {
			x[i] = u[i]
			continue
		}
		x[i] = p.Lower + (p.Upper-p.Lower)*(math.Sin(u[i])+1)/2
	}
	return x
}

func (t *transform) internal(x []float64) []float64 {
	u := make([]float64, len(t.params))
	for i, p := range t.params {
		if !p.IsBounded() {
			u[i] = x[i]
			continue
		}
		r := 2*(x[i]-p.Lower)/(p.Upper-p.Lower) - 1
		u[i] = math.Asin(math.Min(math.Max(r, -1), 1))
	}
	return u
}

// internalStep converts the external step of parameter i at internal
// position u into an internal step.
func (t *transform) internalStep(i int, u float64) float64 {
	p := t.params[i]
	step := p.Step
	if step == 0 {
		step = 0.1 * math.Max(math.Abs(p.Value), 1)
	}
	if !p.IsBounded() {
		return step
	}
	half := (p.Upper - p.Lower) / 2
	slope := math.Max(half*math.Abs(math.Cos(u)), 0.05*half)
	du := math.Abs(step) / slope
	if du > 1 {
		du = 1
	}
	// Step away from the nearer bound.
	if u > 0 {
		return -du
	}
	return du
}
