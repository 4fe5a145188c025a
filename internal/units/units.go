// Package units provides shared constants and conversions for the energy and
// length units found in external range tables. Internally every energy is in
// MeV and every length in mm.
package units

import (
	"fmt"
	"strings"
)

// Energy unit constants
const (
	EV  = "eV"
	KeV = "keV"
	MeV = "MeV"
	GeV = "GeV"
)

// Length unit constants
const (
	UM = "um"
	MM = "mm"
	CM = "cm"
	M  = "m"
)

// ValidEnergyUnits contains all valid energy unit values
var ValidEnergyUnits = []string{EV, KeV, MeV, GeV}

// ValidLengthUnits contains all valid length unit values
var ValidLengthUnits = []string{UM, MM, CM, M}

var energyToMeV = map[string]float64{
	"ev":  1e-6,
	"kev": 1e-3,
	"mev": 1,
	"gev": 1e3,
}

var lengthToMM = map[string]float64{
	"um": 1e-3,
	"mm": 1,
	"cm": 10,
	"m":  1e3,
}

// IsValidEnergy reports whether unit names a known energy unit (case-insensitive).
func IsValidEnergy(unit string) bool {
	_, ok := energyToMeV[strings.ToLower(unit)]
	return ok
}

// IsValidLength reports whether unit names a known length unit (case-insensitive).
func IsValidLength(unit string) bool {
	_, ok := lengthToMM[strings.ToLower(unit)]
	return ok
}

// EnergyFactor returns the multiplier converting a value in unit to MeV.
// An empty unit means MeV.
func EnergyFactor(unit string) (float64, error) {
	if unit == "" {
		return 1, nil
	}
	f, ok := energyToMeV[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("unknown energy unit %q (valid: %s)", unit, strings.Join(ValidEnergyUnits, ", "))
	}
	return f, nil
}

// LengthFactor returns the multiplier converting a value in unit to mm.
// An empty unit means mm.
func LengthFactor(unit string) (float64, error) {
	if unit == "" {
		return 1, nil
	}
	f, ok := lengthToMM[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("unknown length unit %q (valid: %s)", unit, strings.Join(ValidLengthUnits, ", "))
	}
	return f, nil
}

// ToMeV converts an energy expressed in unit to MeV.
func ToMeV(v float64, unit string) (float64, error) {
	f, err := EnergyFactor(unit)
	if err != nil {
		return 0, err
	}
	return v * f, nil
}

// ToMM converts a length expressed in unit to mm.
func ToMM(v float64, unit string) (float64, error) {
	f, err := LengthFactor(unit)
	if err != nil {
		return 0, err
	}
	return v * f, nil
}
