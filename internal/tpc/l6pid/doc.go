// Package l6pid owns Layer 6 (Particle identification) of the TPC data
// model.
//
// Responsibilities: range-energy curves per (gas, ion) with ideal-gas
// rescaling to the current pressure and temperature, Bragg curves and
// stopping powers derived from them, and the dE/dx fitter that matches a
// track's charge profile against single- and two-ion hypotheses.
// Key types: RangeCurve, BraggCurve, RangeCalculator, DEdxFitter, Hypothesis,
// FitResult.
//
// Dependency rule: L6 may depend on L1-L5, ions and profile.
// No SQL/database code is allowed in this package.
package l6pid
