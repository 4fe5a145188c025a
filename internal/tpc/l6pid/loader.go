package l6pid

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/tpcreco/internal/fsutil"
	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/units"
)

// TableSource describes an external range table. The file holds one
// point per line, whitespace separated; blank lines and lines starting
// with '#' are skipped. Non-numeric fields are ignored when counting
// columns.
type TableSource struct {
	Gas  Gas
	Ion  string
	Path string
	// EnergyUnit and RangeUnit default to MeV and mm.
	EnergyUnit string
	RangeUnit  string
	// EnergyColumn and RangeColumn index the numeric fields of a line.
	// Zero values select columns 0 and 1.
	EnergyColumn int
	RangeColumn  int
	// PressureMbar and TemperatureK are the conditions the table was made
	// at; zero selects the reference conditions.
	PressureMbar float64
	TemperatureK float64
}

func (s TableSource) columns() (int, int) {
	if s.EnergyColumn == 0 && s.RangeColumn == 0 {
		return 0, 1
	}
	return s.EnergyColumn, s.RangeColumn
}

// ReadRangeTable parses a range table from r.
func ReadRangeTable(r io.Reader, src TableSource) (*RangeCurve, error) {
	ef, err := units.EnergyFactor(src.EnergyUnit)
	if err != nil {
		return nil, err
	}
	rf, err := units.LengthFactor(src.RangeUnit)
	if err != nil {
		return nil, err
	}
	p, t := src.PressureMbar, src.TemperatureK
	if p == 0 {
		p = ReferencePressureMbar
	}
	if t == 0 {
		t = ReferenceTemperatureK
	}
	ec, rc := src.columns()

	var energy, rng []float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var nums []float64
		for _, f := range strings.Fields(text) {
			if v, err := strconv.ParseFloat(f, 64); err == nil {
				nums = append(nums, v)
			}
		}
		if len(nums) <= max(ec, rc) {
			return nil, fmt.Errorf("line %d: need %d numeric columns, got %d", line, max(ec, rc)+1, len(nums))
		}
		energy = append(energy, nums[ec]*ef)
		rng = append(rng, nums[rc]*rf)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewRangeCurve(energy, rng, p, t)
}

// LoadRangeTable reads src from fsys and registers it with the calculator.
func (c *RangeCalculator) LoadRangeTable(fsys fsutil.FileSystem, src TableSource) error {
	ion, err := c.table.Parse(src.Ion)
	if err != nil {
		return err
	}
	f, err := fsys.Open(src.Path)
	if err != nil {
		return fmt.Errorf("open range table: %w", err)
	}
	defer f.Close()
	curve, err := ReadRangeTable(f, src)
	if err != nil {
		return fmt.Errorf("range table %s: %w", src.Path, err)
	}
	gas := src.Gas
	if gas == "" {
		gas = c.gas
	}
	key := CurveKey{Gas: gas, Ion: ion}
	if err := c.AddCurve(key, curve); err != nil {
		return err
	}
	monitoring.Logf("[pid] loaded %s from %s: %d points up to %.3g MeV", key, src.Path, curve.Len(), curve.MaxEnergy())
	return nil
}
