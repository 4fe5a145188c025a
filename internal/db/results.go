package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/l6pid"
	"github.com/banshee-data/tpcreco/internal/tpc/pipeline"
	"github.com/banshee-data/tpcreco/internal/version"
)

// ErrRunNotFound is returned when a run id is not in the store.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of the reconstruction over a set of events.
type Run struct {
	ID          string
	StartedUnix float64
	Source      string
	Version     string
	ConfigJSON  string
}

// PIDRecord holds the best dE/dx hypothesis of an event.
type PIDRecord struct {
	Chi2               float64
	NormalizedChi2     float64
	Reflected          bool
	VertexOffsetMM     float64
	PrimaryRangeMM     float64
	SecondaryRangeMM   float64
	PrimaryEnergyMeV   float64
	SecondaryEnergyMeV float64
}

// EventRecord is the stored summary of one reconstructed event.
type EventRecord struct {
	ID          string
	RunID       string
	Index       int
	EventType   string
	NumSegments int
	LengthMM    float64
	Loss        float64
	Converged   bool
	// Start and End are nil for events without a track.
	Start       *[3]float64
	End         *[3]float64
	TotalCharge float64
	// PID is nil when identification did not run.
	PID         *PIDRecord
}

// RecordFromEvent summarizes a reconstructed event for storage.
func RecordFromEvent(runID string, index int, ev *pipeline.Event) *EventRecord {
	r := &EventRecord{
		RunID:     runID,
		Index:     index,
		EventType: l6pid.EventUnknown.String(),
	}
	if ev == nil {
		return r
	}
	r.EventType = ev.EventType().String()
	if t := ev.Track; t != nil {
		r.NumSegments = t.NumSegments()
		r.LengthMM = t.Length()
		r.Loss = t.Loss()
		r.Converged = t.Converged()
		r.TotalCharge = t.IntegratedCharge()
		if nodes := t.Nodes(); len(nodes) >= 2 {
			s, e := nodes[0], nodes[len(nodes)-1]
			r.Start = &[3]float64{s.X, s.Y, s.Z}
			r.End = &[3]float64{e.X, e.Y, e.Z}
		}
	}
	if ev.PID != nil && ev.PID.Best.Type != l6pid.EventUnknown {
		b := ev.PID.Best
		r.PID = &PIDRecord{
			Chi2:               b.Chi2,
			NormalizedChi2:     b.NormalizedChi2,
			Reflected:          b.Reflected,
			VertexOffsetMM:     b.VertexOffset,
			PrimaryRangeMM:     b.PrimaryRange,
			SecondaryRangeMM:   b.SecondaryRange,
			PrimaryEnergyMeV:   b.PrimaryEnergy,
			SecondaryEnergyMeV: b.SecondaryEnergy,
		}
	}
	return r
}

// StartRun records a new run and returns it with a fresh id.
func (db *DB) StartRun(source string, configJSON []byte) (*Run, error) {
	if len(configJSON) == 0 {
		configJSON = []byte("{}")
	}
	r := &Run{
		ID:          uuid.NewString(),
		StartedUnix: float64(time.Now().UnixNano()) / 1e9,
		Source:      source,
		Version:     version.String(),
		ConfigJSON:  string(configJSON),
	}
	_, err := db.Exec(`INSERT INTO runs (run_id, started_unix, source, version, config_json) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.StartedUnix, r.Source, r.Version, r.ConfigJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	monitoring.Logf("[db] started run %s (%s)", r.ID, source)
	return r, nil
}

// GetRun loads a run by id.
func (db *DB) GetRun(id string) (*Run, error) {
	var r Run
	err := db.QueryRow(`SELECT run_id, started_unix, source, version, config_json FROM runs WHERE run_id = ?`, id).
		Scan(&r.ID, &r.StartedUnix, &r.Source, &r.Version, &r.ConfigJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns every run, oldest first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(`SELECT run_id, started_unix, source, version, config_json FROM runs ORDER BY started_unix, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedUnix, &r.Source, &r.Version, &r.ConfigJSON); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its events.
func (db *DB) DeleteRun(id string) error {
	res, err := db.Exec(`DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// SaveEvent stores e, assigning an id when it has none.
func (db *DB) SaveEvent(e *EventRecord) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var start, end [3]sql.NullFloat64
	if e.Start != nil {
		start = nullVec(*e.Start)
	}
	if e.End != nil {
		end = nullVec(*e.End)
	}
	var pid struct {
		chi2, norm, vertex, pr, sr, pe, se sql.NullFloat64
		reflected                          sql.NullBool
	}
	if p := e.PID; p != nil {
		pid.chi2 = sql.NullFloat64{Float64: p.Chi2, Valid: true}
		pid.norm = sql.NullFloat64{Float64: p.NormalizedChi2, Valid: true}
		pid.reflected = sql.NullBool{Bool: p.Reflected, Valid: true}
		pid.vertex = sql.NullFloat64{Float64: p.VertexOffsetMM, Valid: true}
		pid.pr = sql.NullFloat64{Float64: p.PrimaryRangeMM, Valid: true}
		pid.sr = sql.NullFloat64{Float64: p.SecondaryRangeMM, Valid: true}
		pid.pe = sql.NullFloat64{Float64: p.PrimaryEnergyMeV, Valid: true}
		pid.se = sql.NullFloat64{Float64: p.SecondaryEnergyMeV, Valid: true}
	}

	_, err := db.Exec(`INSERT INTO events (
			event_id, run_id, event_index, event_type, n_segments, length_mm, loss, converged,
			start_x, start_y, start_z, end_x, end_y, end_z, total_charge,
			chi2, normalized_chi2, reflected, vertex_offset_mm,
			primary_range_mm, secondary_range_mm, primary_energy_mev, secondary_energy_mev
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Index, e.EventType, e.NumSegments, e.LengthMM, e.Loss, e.Converged,
		start[0], start[1], start[2], end[0], end[1], end[2], e.TotalCharge,
		pid.chi2, pid.norm, pid.reflected, pid.vertex,
		pid.pr, pid.sr, pid.pe, pid.se,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %d of run %s: %w", e.Index, e.RunID, err)
	}
	return nil
}

// ListEvents returns the events of a run ordered by index.
func (db *DB) ListEvents(runID string) ([]EventRecord, error) {
	rows, err := db.Query(`SELECT
			event_id, run_id, event_index, event_type, n_segments, length_mm, loss, converged,
			start_x, start_y, start_z, end_x, end_y, end_z, total_charge,
			chi2, normalized_chi2, reflected, vertex_offset_mm,
			primary_range_mm, secondary_range_mm, primary_energy_mev, secondary_energy_mev
		FROM events WHERE run_id = ? ORDER BY event_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var (
			e          EventRecord
			start, end [3]sql.NullFloat64
			chi2, norm sql.NullFloat64
			reflected  sql.NullBool
			vertex     sql.NullFloat64
			pr, sr     sql.NullFloat64
			pe, se     sql.NullFloat64
		)
		err := rows.Scan(&e.ID, &e.RunID, &e.Index, &e.EventType, &e.NumSegments, &e.LengthMM, &e.Loss, &e.Converged,
			&start[0], &start[1], &start[2], &end[0], &end[1], &end[2], &e.TotalCharge,
			&chi2, &norm, &reflected, &vertex, &pr, &sr, &pe, &se)
		if err != nil {
			return nil, err
		}
		e.Start = vecOf(start)
		e.End = vecOf(end)
		if chi2.Valid {
			e.PID = &PIDRecord{
				Chi2:               chi2.Float64,
				NormalizedChi2:     norm.Float64,
				Reflected:          reflected.Bool,
				VertexOffsetMM:     vertex.Float64,
				PrimaryRangeMM:     pr.Float64,
				SecondaryRangeMM:   sr.Float64,
				PrimaryEnergyMeV:   pe.Float64,
				SecondaryEnergyMeV: se.Float64,
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// EventTypeCounts tallies the identified event types of a run.
func (db *DB) EventTypeCounts(runID string) (map[string]int, error) {
	rows, err := db.Query(`SELECT event_type, COUNT(*) FROM events WHERE run_id = ? GROUP BY event_type`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func nullVec(v [3]float64) [3]sql.NullFloat64 {
	var out [3]sql.NullFloat64
	for i, x := range v {
		out[i] = sql.NullFloat64{Float64: x, Valid: true}
	}
	return out
}

func vecOf(v [3]sql.NullFloat64) *[3]float64 {
	if !v[0].Valid || !v[1].Valid || !v[2].Valid {
		return nil
	}
	return &[3]float64{v[0].Float64, v[1].Float64, v[2].Float64}
}
