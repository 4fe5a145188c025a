// Package l5tracks owns Layer 5 (Tracks) of the TPC data model.
//
// Responsibilities: lifting per-projection segments into a 3-D polyline,
// scoring it against the hits of every projection, driving the fit-mode
// state machine (tangent, bias, tangent+bias, start/stop nodes) through an
// optimizer.Minimizer, and the boundary operations that extend a track to
// the chamber surface, shrink it back to its hits, split it at a fitted
// point and drop empty pieces.
// Key types: Segment3D, Track3D, FitMode, Assembler.
//
// Dependency rule: L5 may depend on L1-L4, but never on L6.
// No SQL/database code is allowed in this package.
package l5tracks
