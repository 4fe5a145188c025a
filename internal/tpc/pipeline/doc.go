// Package pipeline runs the per-event reconstruction chain: clustering,
// hit fitting, 2-D segment fitting, 3-D track assembly, charge profiling
// and dE/dx particle identification.
//
// Each stage fully consumes its predecessor's output. A Reconstructor holds
// configuration only, so distinct events may be reconstructed on separate
// goroutines.
// Key types: Params, Reconstructor, Event.
//
// Dependency rule: pipeline may depend on every internal/tpc layer; no
// layer may depend on it.
// No SQL/database code is allowed in this package.
package pipeline
