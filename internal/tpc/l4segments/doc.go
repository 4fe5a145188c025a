// Package l4segments owns Layer 4 (Segments) of the TPC data model.
//
// Responsibilities: straight-line segments in one projection plane, the
// loss functions that score them against reconstructed hits, the
// (lambda, distance) decomposition of hits relative to a segment, charge
// profiles along a segment, Hough line candidates, and the per-projection
// line fit that seeds 3-D track assembly.
// Key types: Segment2D, LossType, Fitter, Accumulator.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
// No SQL/database code is allowed in this package.
package l4segments
