// Package l1charge owns Layer 1 (Charge) of the TPC data model.
//
// Responsibilities: the sparse per-event charge map keyed by (projection,
// strip, time sample), dense rebinned grids handed to clustering, and the
// CSV event format read and written by the CLI.
// Key types: ChargeMap, Key, Bin, Grid.
//
// Dependency rule: L1 depends only on geometry, never on L2+.
// No SQL/database code is allowed in this package.
package l1charge
