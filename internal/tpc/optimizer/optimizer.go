package optimizer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Evaluator scores a parameter vector. Implementations may mutate internal
// state on every call; minimizers call Evaluate sequentially.
type Evaluator interface {
	Evaluate(params []float64) float64
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(params []float64) float64

// Evaluate calls f(params).
func (f EvaluatorFunc) Evaluate(params []float64) float64 { return f(params) }

// Param describes one free parameter: its starting value, initial step and
// optional box constraint. Infinite bounds mean unconstrained.
type Param struct {
	Name  string
	Value float64
	Step  float64
	Lower float64
	Upper float64
}

// Free returns an unconstrained parameter.
func Free(name string, value, step float64) Param {
	return Param{Name: name, Value: value, Step: step, Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// Bounded returns a parameter constrained to [lo, hi].
func Bounded(name string, value, step, lo, hi float64) Param {
	return Param{Name: name, Value: value, Step: step, Lower: lo, Upper: hi}
}

// IsBounded reports whether p carries a finite, non-empty box constraint.
func (p Param) IsBounded() bool {
	return !math.IsInf(p.Lower, 0) && !math.IsInf(p.Upper, 0) && p.Lower < p.Upper
}

// Result is the outcome of one minimization.
type Result struct {
	// Params holds the best parameters found, in external (bounded) space.
	Params []float64
	// Loss is the objective at Params.
	Loss float64
	// Converged is false when the run stopped on an iteration or evaluation
	// cap or failed; Params then hold the best point seen so far.
	Converged   bool
	Evaluations int
	Iterations  int
	Status      string
}

// Minimizer finds parameters minimizing an Evaluator.
type Minimizer interface {
	// Minimize searches from params and leaves eval evaluated at the
	// returned Result.Params.
	Minimize(eval Evaluator, params []Param) (Result, error)
}

// ErrNoFiniteEvaluation is returned when every evaluation was NaN or infinite.
var ErrNoFiniteEvaluation = errors.New("objective never returned a finite value")

// Settings caps a minimization run.
type Settings struct {
	// MaxIterations bounds simplex iterations per run.
	MaxIterations int
	// MaxEvaluations bounds objective evaluations per run.
	MaxEvaluations int
	// Tolerance is the absolute and relative function-change tolerance.
	Tolerance float64
	// Restarts re-seeds the simplex around the best point this many times.
	Restarts int
}

// DefaultSettings returns the caps used when none are configured.
func DefaultSettings() Settings {
	return Settings{MaxIterations: 2000, MaxEvaluations: 6000, Tolerance: 1e-8, Restarts: 1}
}

// NelderMead is a bounded simplex minimizer backed by gonum/optimize.
type NelderMead struct {
	Settings Settings
}

var _ Minimizer = (*NelderMead)(nil)

// NewNelderMead creates a simplex minimizer; zero fields of s take defaults.
func NewNelderMead(s Settings) *NelderMead {
	d := DefaultSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.MaxEvaluations <= 0 {
		s.MaxEvaluations = d.MaxEvaluations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = d.Tolerance
	}
	if s.Restarts < 0 {
		s.Restarts = 0
	}
	return &NelderMead{Settings: s}
}

// badValue replaces NaN and +Inf so the simplex ordering stays total.
const badValue = 1e300

// Minimize implements Minimizer.
func (nm *NelderMead) Minimize(eval Evaluator, params []Param) (Result, error) {
	tr := newTransform(params)
	dim := len(params)

	bestX := tr.external(tr.start)
	bestF := math.Inf(1)
	evals := 0
	fn := func(u []float64) float64 {
		x := tr.external(u)
		f := eval.Evaluate(x)
		evals++
		if math.IsNaN(f) || math.IsInf(f, 1) {
			return badValue
		}
		if f < bestF {
			bestF = f
			copy(bestX, x)
		}
		return f
	}

	if dim == 0 {
		f := fn(nil)
		if math.IsInf(bestF, 1) {
			return Result{Loss: f, Evaluations: evals}, ErrNoFiniteEvaluation
		}
		return Result{Params: []float64{}, Loss: bestF, Converged: true, Evaluations: evals, Status: "NoParameters"}, nil
	}

	res := Result{Status: optimize.NotTerminated.String()}
	u0 := tr.start
	for run := 0; run <= nm.Settings.Restarts; run++ {
		r, err := nm.run(fn, tr, u0)
		if r != nil {
			res.Iterations += r.Stats.MajorIterations
			res.Status = r.Status.String()
			res.Converged = converged(r.Status)
		}
		if err != nil && r == nil {
			res.Status = err.Error()
			res.Converged = false
			break
		}
		if math.IsInf(bestF, 1) {
			break
		}
		u0 = tr.internal(bestX)
	}

	res.Evaluations = evals
	if math.IsInf(bestF, 1) {
		res.Params = tr.external(tr.start)
		res.Loss = math.NaN()
		return res, ErrNoFiniteEvaluation
	}
	res.Params = bestX
	res.Loss = eval.Evaluate(bestX)
	return res, nil
}

func (nm *NelderMead) run(fn func([]float64) float64, tr *transform, u0 []float64) (*optimize.Result, error) {
	dim := len(u0)
	vertices := make([][]float64, dim+1)
	values := make([]float64, dim+1)
	vertices[0] = append([]float64(nil), u0...)
	values[0] = fn(vertices[0])
	for i := 0; i < dim; i++ {
		v := append([]float64(nil), u0...)
		v[i] += tr.internalStep(i, u0[i])
		vertices[i+1] = v
		values[i+1] = fn(v)
	}

	method := &optimize.NelderMead{InitialVertices: vertices, InitialValues: values}
	settings := &optimize.Settings{
		MajorIterations: nm.Settings.MaxIterations,
		FuncEvaluations: nm.Settings.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   nm.Settings.Tolerance,
			Relative:   nm.Settings.Tolerance,
			Iterations: 20 * dim,
		},
	}
	r, err := optimize.Minimize(optimize.Problem{Func: fn}, u0, settings, method)
	if err != nil && r == nil {
		return nil, fmt.Errorf("nelder-mead: %w", err)
	}
	return r, nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}
