package l1charge

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
)

// csvHeader is the column layout of the event CSV format.
var csvHeader = []string{"projection", "strip", "sample", "charge"}

// ReadCSV parses an event in CSV form (header projection,strip,sample,charge).
// Repeated keys accumulate.
func ReadCSV(r io.Reader) (*ChargeMap, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read event CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty event CSV")
	}
	for i, col := range csvHeader {
		if strings.ToLower(strings.TrimSpace(records[0][i])) != col {
			return nil, fmt.Errorf("invalid header in event CSV, expected: %s", strings.Join(csvHeader, ","))
		}
	}

	m := NewChargeMap()
	for i, rec := range records[1:] {
		line := i + 2
		p, err := geometry.ParseProjection(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		strip, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid strip %q: %w", line, rec[1], err)
		}
		sample, err := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid sample %q: %w", line, rec[2], err)
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid charge %q: %w", line, rec[3], err)
		}
		m.Add(p, strip, sample, q)
	}
	return m, nil
}

// WriteCSV writes m in the format accepted by ReadCSV, ordered by
// projection, strip and sample.
func WriteCSV(w io.Writer, m *ChargeMap) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range geometry.Projections {
		for _, b := range m.Bins(p) {
			rec := []string{
				p.String(),
				strconv.Itoa(b.Strip),
				strconv.Itoa(b.Sample),
				strconv.FormatFloat(b.Charge, 'g', -1, 64),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
