// Package optimizer decouples loss evaluation from minimization.
//
// Anything that can score a parameter vector implements Evaluator; a
// Minimizer searches the parameter space through that interface alone.
// NelderMead adapts gonum's simplex method and adds box constraints through
// a sine transform, an iteration cap and an explicit convergence flag.
//
// Key types: Evaluator, Param, Minimizer, NelderMead, Result.
package optimizer
