package pipeline

import (
	"fmt"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l1charge"
	"github.com/banshee-data/tpcreco/internal/tpc/l2cluster"
	"github.com/banshee-data/tpcreco/internal/tpc/l3hits"
	"github.com/banshee-data/tpcreco/internal/tpc/l4segments"
	"github.com/banshee-data/tpcreco/internal/tpc/l5tracks"
	"github.com/banshee-data/tpcreco/internal/tpc/l6pid"
	"github.com/banshee-data/tpcreco/internal/tpc/profile"
)

// DefaultProfileBinWidthMM is the charge-profile binning along the track.
const DefaultProfileBinWidthMM = 1.0

// Params gathers the configuration of every stage.
type Params struct {
	StripRebin      int
	TimeRebin       int
	Cluster         l2cluster.Params
	Hits            l3hits.Params
	SegmentLoss     l4segments.LossType
	Hough           l4segments.HoughParams
	Assembly        l5tracks.Params
	ProfileBinWidth float64
	PID             l6pid.FitterParams
}

// DefaultParams returns the default configuration of every stage.
func DefaultParams() Params {
	return Params{
		StripRebin:      1,
		TimeRebin:       1,
		Cluster:         l2cluster.DefaultParams(),
		Hits:            l3hits.DefaultParams(),
		SegmentLoss:     l4segments.LossTangentBias,
		Hough:           l4segments.DefaultHoughParams(),
		Assembly:        l5tracks.DefaultParams(),
		ProfileBinWidth: DefaultProfileBinWidthMM,
		PID:             l6pid.DefaultFitterParams(),
	}
}

// Validate checks the stage parameters.
func (p Params) Validate() error {
	if p.StripRebin < 1 || p.TimeRebin < 1 {
		return fmt.Errorf("rebin factors must be at least 1, got %d x %d", p.StripRebin, p.TimeRebin)
	}
	if p.ProfileBinWidth <= 0 {
		return fmt.Errorf("profile bin width must be positive, got %g", p.ProfileBinWidth)
	}
	if err := p.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if err := p.Hits.Validate(); err != nil {
		return fmt.Errorf("hits: %w", err)
	}
	if err := p.Hough.Validate(); err != nil {
		return fmt.Errorf("segments: %w", err)
	}
	if err := p.Assembly.Validate(); err != nil {
		return fmt.Errorf("track: %w", err)
	}
	return nil
}

// Event is the reconstruction of one charge map. Per-projection arrays are
// indexed by geometry.Projection.
type Event struct {
	Clusters [geometry.NumProjections]*l2cluster.Cluster
	Hits     [geometry.NumProjections]l3hits.Hit2DCollection
	Segments [geometry.NumProjections]*l4segments.Segment2D
	// Candidates holds one segment per Hough line found in each projection,
	// strongest first. The track is assembled from Segments.
	Candidates [geometry.NumProjections][]*l4segments.Segment2D
	Track    *l5tracks.Track3D
	Profile  *profile.Profile
	// PID is nil when no range calculator was configured.
	PID *l6pid.Fit
}

// EventType returns the identified particle content, EventUnknown when
// identification did not run.
func (e *Event) EventType() l6pid.EventType {
	if e.PID == nil {
		return l6pid.EventUnknown
	}
	return e.PID.Best.Type
}

// Reconstructor runs the reconstruction chain.
type Reconstructor struct {
	params    Params
	geom      geometry.Provider
	clusterer *l2cluster.Clusterer
	hits      *l3hits.Fitter
	segments  *l4segments.Fitter
	assembler *l5tracks.Assembler
	dedx      *l6pid.DEdxFitter
}

// NewReconstructor wires the stages. A nil calc disables particle
// identification.
func NewReconstructor(geom geometry.Provider, calc *l6pid.RangeCalculator, p Params) (*Reconstructor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	assembler, err := l5tracks.NewAssembler(p.Assembly, geom, nil)
	if err != nil {
		return nil, fmt.Errorf("track assembler: %w", err)
	}
	segments := l4segments.NewFitter(p.SegmentLoss, geom, nil)
	if err := segments.SetHoughParams(p.Hough); err != nil {
		return nil, fmt.Errorf("segment fitter: %w", err)
	}
	r := &Reconstructor{
		params:    p,
		geom:      geom,
		clusterer: l2cluster.NewClusterer(p.Cluster),
		hits:      l3hits.NewFitter(p.Hits, geom),
		segments:  segments,
		assembler: assembler,
	}
	if calc != nil {
		dedx, err := l6pid.NewDEdxFitter(calc, p.PID, nil)
		if err != nil {
			return nil, fmt.Errorf("dE/dx fitter: %w", err)
		}
		r.dedx = dedx
	}
	return r, nil
}

// Params returns the configuration.
func (r *Reconstructor) Params() Params { return r.params }

// Reconstruct processes one charge map. Data absence at any stage yields
// empty results, not an error. Errors come from a charge map too sparse to
// grid and from dE/dx configuration.
func (r *Reconstructor) Reconstruct(m *l1charge.ChargeMap) (*Event, error) {
	defer monitoring.Stage("reconstruct")()
	ev := &Event{}
	for _, p := range geometry.Projections {
		grid, err := m.Grid(p, r.params.StripRebin, r.params.TimeRebin)
		if err != nil {
			return nil, err
		}
		ev.Clusters[p] = r.clusterer.Build(grid)
		ev.Hits[p] = r.hits.MakeRecHits(ev.Clusters[p])
		ev.Segments[p] = r.segments.Fit(p, ev.Hits[p])
		ev.Candidates[p] = r.segments.FindSegments(p, ev.Hits[p])
		if n := len(ev.Candidates[p]); n > 1 {
			monitoring.Logf("[track] projection %s: %d line candidates", p, n)
		}
	}
	ev.Track = r.assembler.Assemble(ev.Segments[:])
	ev.Profile = ev.Track.ChargeProfile(r.params.ProfileBinWidth)
	if r.dedx == nil {
		return ev, nil
	}
	fit, err := r.dedx.FitHisto(ev.Profile)
	if err != nil {
		return nil, fmt.Errorf("dE/dx fit: %w", err)
	}
	ev.PID = fit
	monitoring.Logf("[pid] event: %s, track length %.2f mm", fit.Best.Type, ev.Track.Length())
	return ev, nil
}
