// Package l3hits owns Layer 3 (Hits) of the TPC data model.
//
// Responsibilities: fitting 1-D charge slices of a cleaned cluster along the
// time axis (one slice per strip) and along the strip axis (one slice per
// time sample) with competing noise, single-peak and double-peak models, and
// turning accepted peaks into sub-bin reconstructed hits in millimetres.
// Key types: Hit2D, Hit2DCollection, Fitter, SliceFit.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
// No SQL/database code is allowed in this package.
package l3hits
