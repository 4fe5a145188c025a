// Package ions is the read-only registry of ion properties used by range
// and energy-loss calculations.
//
// Responsibilities: ion identifiers, charge and mass numbers, atomic masses
// and the nuclear rest energy derived from them.
// Key types: Ion, Properties, Table.
//
// Dependency rule: ions depends on nothing else in internal/tpc.
package ions
