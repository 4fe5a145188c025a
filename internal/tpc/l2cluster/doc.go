// Package l2cluster owns Layer 2 (Clusters) of the TPC data model.
//
// Responsibilities: turning the dense charge profile of one projection into
// a cleaned cluster by flood-filling from seed bins with a kernel-sum
// criterion, zeroing every bin the fill never reaches.
// Key types: Params, Clusterer, Cluster.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
// No SQL/database code is allowed in this package.
package l2cluster
