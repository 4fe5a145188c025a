package ions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Ion identifies a charged particle species.
type Ion int

const (
	Unknown Ion = iota
	Proton
	Alpha
	C12
	C13
	C14
	N15
	O16
	O17
	O18
)

const (
	// AtomicMassUnitMeV is the unified atomic mass unit in MeV/c^2.
	AtomicMassUnitMeV = 931.49410242
	// ElectronMassMeV is the electron rest energy in MeV.
	ElectronMassMeV = 0.51099895000
)

// ErrUnknownIon is returned for ions missing from a Table.
var ErrUnknownIon = errors.New("unknown ion")

// Properties describes one ion species. AtomicMass is the neutral-atom
// mass in u.
type Properties struct {
	Name       string
	Z          int
	A          int
	AtomicMass float64
}

// NuclearMassMeV returns the bare-nucleus rest energy, ignoring electron
// binding energies.
func (p Properties) NuclearMassMeV() float64 {
	return p.AtomicMass*AtomicMassUnitMeV - float64(p.Z)*ElectronMassMeV
}

// Table maps ions to their properties. A Table is never modified after
// construction, so one value may be shared between goroutines.
type Table struct {
	props  map[Ion]Properties
	byName map[string]Ion
}

// AME2020 atomic masses.
var defaultProperties = map[Ion]Properties{
	Proton: {Name: "H1", Z: 1, A: 1, AtomicMass: 1.00782503190},
	Alpha:  {Name: "He4", Z: 2, A: 4, AtomicMass: 4.00260325413},
	C12:    {Name: "C12", Z: 6, A: 12, AtomicMass: 12.0},
	C13:    {Name: "C13", Z: 6, A: 13, AtomicMass: 13.00335483534},
	C14:    {Name: "C14", Z: 6, A: 14, AtomicMass: 14.003241989},
	N15:    {Name: "N15", Z: 7, A: 15, AtomicMass: 15.0001088983},
	O16:    {Name: "O16", Z: 8, A: 16, AtomicMass: 15.9949146193},
	O17:    {Name: "O17", Z: 8, A: 17, AtomicMass: 16.9991317560},
	O18:    {Name: "O18", Z: 8, A: 18, AtomicMass: 17.9991596121},
}

// aliases are extra names accepted by Parse.
var aliases = map[string]Ion{
	"proton": Proton,
	"p":      Proton,
	"alpha":  Alpha,
	"he":     Alpha,
}

// NewTable builds a table from props. The map is copied.
func NewTable(props map[Ion]Properties) *Table {
	t := &Table{props: make(map[Ion]Properties, len(props)), byName: make(map[string]Ion)}
	for ion, p := range props {
		t.props[ion] = p
		t.byName[strings.ToLower(p.Name)] = ion
	}
	for name, ion := range aliases {
		if _, ok := t.props[ion]; ok {
			t.byName[name] = ion
		}
	}
	return t
}

// DefaultTable returns a table with every ion the reconstruction knows.
func DefaultTable() *Table { return NewTable(defaultProperties) }

// Properties returns the properties of ion.
func (t *Table) Properties(ion Ion) (Properties, error) {
	p, ok := t.props[ion]
	if !ok {
		return Properties{}, fmt.Errorf("%w: %s", ErrUnknownIon, ion)
	}
	return p, nil
}

// MassMeV returns the nuclear rest energy of ion in MeV.
func (t *Table) MassMeV(ion Ion) (float64, error) {
	p, err := t.Properties(ion)
	if err != nil {
		return 0, err
	}
	return p.NuclearMassMeV(), nil
}

// Parse looks an ion up by name ("He4", "alpha", "C12", ...), ignoring case.
func (t *Table) Parse(name string) (Ion, error) {
	ion, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Unknown, fmt.Errorf("%w: %q", ErrUnknownIon, name)
	}
	return ion, nil
}

// Ions lists the ions in the table in identifier order.
func (t *Table) Ions() []Ion {
	out := make([]Ion, 0, len(t.props))
	for ion := range t.props {
		out = append(out, ion)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (i Ion) String() string {
	if p, ok := defaultProperties[i]; ok {
		return p.Name
	}
	return fmt.Sprintf("Ion(%d)", int(i))
}

// ParseIon parses an ion name against the default table.
func ParseIon(name string) (Ion, error) { return DefaultTable().Parse(name) }
