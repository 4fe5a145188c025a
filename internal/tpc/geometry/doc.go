// Package geometry describes the detector readout seen by reconstruction.
//
// Responsibilities: projection identifiers (U, V, W strip planes), the
// Provider interface that maps fractional (strip, time-sample) indices to
// millimetres, pitch directions, and the chamber boundary radius.
// Key types: Projection, Provider, UVW.
//
// Dependency rule: geometry depends on nothing else in internal/tpc; every
// reconstruction layer may depend on it.
package geometry
