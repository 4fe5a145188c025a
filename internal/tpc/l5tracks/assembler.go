package l5tracks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l3hits"
	"github.com/banshee-data/tpcreco/internal/tpc/l4segments"
	"github.com/banshee-data/tpcreco/internal/tpc/optimizer"
)

// Params configures track assembly.
type Params struct {
	// FitModes is the sequence of fits run after seeding.
	FitModes []FitMode
	Combine  Combine
	// LossProjection restricts the loss to one projection; AllProjections
	// uses every projection.
	LossProjection int
	// ChamberRadius overrides the geometry's chamber radius when positive.
	ChamberRadius float64
	// ExtendShrink runs extend, shrink, a start/stop refit and empty-segment
	// removal after the mode sequence.
	ExtendShrink bool
	// MaxSplits bounds the number of worst-segment splits.
	MaxSplits int
	RadiusCut float64
	Optimizer optimizer.Settings
}

// DefaultParams returns the default assembly parameters.
func DefaultParams() Params {
	return Params{
		FitModes:       DefaultFitModes(),
		Combine:        CombineSum,
		LossProjection: AllProjections,
		ExtendShrink:   true,
		RadiusCut:      DefaultRadiusCut,
		Optimizer:      optimizer.DefaultSettings(),
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.LossProjection != AllProjections && !geometry.Projection(p.LossProjection).Valid() {
		return fmt.Errorf("loss projection must be %d or a projection index 0..%d, got %d",
			AllProjections, geometry.NumProjections-1, p.LossProjection)
	}
	for _, m := range p.FitModes {
		if _, ok := fitModeNames[m]; !ok {
			return fmt.Errorf("unknown fit mode %d", int(m))
		}
	}
	if p.Combine != CombineSum && p.Combine != CombineMax {
		return fmt.Errorf("unknown loss combination %d", int(p.Combine))
	}
	if p.MaxSplits < 0 {
		return fmt.Errorf("max splits must be non-negative, got %d", p.MaxSplits)
	}
	if p.RadiusCut <= 0 {
		return fmt.Errorf("radius cut must be positive, got %g", p.RadiusCut)
	}
	return nil
}

// Assembler builds Track3D objects from per-projection segments.
type Assembler struct {
	params    Params
	geom      geometry.Provider
	minimizer optimizer.Minimizer
}

// NewAssembler creates an assembler after validating p. A nil minimizer
// selects Nelder-Mead with p.Optimizer settings.
func NewAssembler(p Params, geom geometry.Provider, minimizer optimizer.Minimizer) (*Assembler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if minimizer == nil {
		minimizer = optimizer.NewNelderMead(p.Optimizer)
	}
	return &Assembler{params: p, geom: geom, minimizer: minimizer}, nil
}

// Params returns the assembly configuration.
func (a *Assembler) Params() Params { return a.params }

// Assemble combines the segments, at most one per projection, into a
// fitted track. Fewer than two usable segments give a track without
// segments, with zero length and loss.
func (a *Assembler) Assemble(segments []*l4segments.Segment2D) *Track3D {
	var hits [geometry.NumProjections]l3hits.Hit2DCollection
	var usable []*l4segments.Segment2D
	for _, s := range segments {
		if s == nil || !s.Proj.Valid() {
			continue
		}
		hits[s.Proj] = append(hits[s.Proj], s.Hits...)
		if s.Valid() && s.Length() > 0 {
			usable = append(usable, s)
		}
	}

	track := NewTrack3D(a.geom, hits)
	track.SetRadiusCut(a.params.RadiusCut)
	track.combine = a.params.Combine
	track.EnableProjectionForLoss(a.params.LossProjection)
	if len(usable) < 2 {
		monitoring.Logf("[track] %d usable projections, need 2: empty track", len(usable))
		return track
	}

	seed, ok := SeedFromProjections(a.geom, usable)
	if !ok {
		monitoring.Logf("[track] projection planes do not define a line: empty track")
		return track
	}
	track.AddSegment(seed)

	for _, m := range a.params.FitModes {
		a.fit(track, m)
	}
	if a.params.ExtendShrink {
		radius := a.params.ChamberRadius
		if radius <= 0 {
			radius = a.geom.ChamberRadius()
		}
		track.ExtendToChamberRange(radius)
		track.ShrinkToHits()
		a.fit(track, FitStartStop)
		// Start/stop fits leave the nodes free to slide along the line.
		track.ShrinkToHits()
		track.RemoveEmptySegments()
	}
	for i := 0; i < a.params.MaxSplits && track.NumSegments() > 0; i++ {
		f, err := a.FitSplitPoint(track)
		if err != nil {
			monitoring.Logf("[track] split %d: %v", i, err)
			break
		}
		monitoring.Logf("[track] split %d at %.2f of the worst segment, loss %.4g", i, f, track.Loss())
	}
	monitoring.Logf("[track] %d segments, length %.2f mm, loss %.4g, converged %t",
		track.NumSegments(), track.Length(), track.Loss(), track.Converged())
	return track
}

// splitSteps sets the split-point grid: fractions k/splitSteps for
// k = 1..splitSteps-1.
const splitSteps = 20

// FitSplitPoint splits the worst segment of t at the grid fraction of its
// length that gives the lowest loss after a start/stop refit, leaves t in
// that state and returns the fraction.
func (a *Assembler) FitSplitPoint(t *Track3D) (float64, error) {
	worst := t.WorstSegment()
	if worst < 0 {
		return 0, fmt.Errorf("track has no segments")
	}
	var best *Track3D
	var bestFraction float64
	for k := 1; k < splitSteps; k++ {
		f := float64(k) / splitSteps
		trial := t.Clone()
		if err := trial.SplitSegment(worst, f); err != nil {
			return 0, err
		}
		a.fit(trial, FitStartStop)
		trial.ShrinkToHits()
		if best == nil || trial.Loss() < best.Loss() {
			best, bestFraction = trial, f
		}
	}
	t.segments = best.segments
	t.converged = best.converged
	t.changed()
	return bestFraction, nil
}

// fit minimizes the track loss in mode m, keeping the best point found.
func (a *Assembler) fit(t *Track3D, m FitMode) {
	if t.NumSegments() == 0 {
		return
	}
	t.SetFitMode(m)
	before := t.Segments()
	params := t.Params()
	res, err := a.minimizer.Minimize(t, params)
	if err != nil {
		monitoring.Logf("[track] %s fit failed: %v", m, err)
		t.segments = before
		t.converged = false
		t.changed()
		return
	}
	t.UpdateAndGetLoss(res.Params)
	if !res.Converged {
		monitoring.Logf("[track] %s fit stopped: %s after %d iterations", m, res.Status, res.Iterations)
		t.converged = false
	}
}

// SeedFromProjections intersects the planes spanned by each projection's
// 2-D line and the drift axis. The line direction is the eigenvector of
// sum(N N^T) with the smallest eigenvalue, N being the plane normals; the
// endpoints are the 2-D endpoints mapped onto that line, averaged over
// projections with weights equal to the squared projected length.
func SeedFromProjections(geom geometry.Provider, segments []*l4segments.Segment2D) (Segment3D, bool) {
	if len(segments) < 2 {
		return Segment3D{}, false
	}
	m := mat.NewSymDense(3, nil)
	b := mat.NewVecDense(3, nil)
	for _, s := range segments {
		d := geom.PitchDirection(s.Proj)
		nz, ns := -s.Tangent.Y, s.Tangent.X
		n := mat.NewVecDense(3, []float64{ns * d.X, ns * d.Y, nz})
		c := nz*s.Bias.X + ns*s.Bias.Y
		m.SymRankOne(m, 1, n)
		b.AddScaledVec(b, c, n)
	}

	var eig mat.EigenSym
	if !eig.Factorize(m, true) {
		return Segment3D{}, false
	}
	vals := eig.Values(nil)
	if vals[1] < 1e-6 {
		return Segment3D{}, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	dir := r3.Unit(r3.Vec{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)})

	// Pin the free position along the line with the dir*dir^T term.
	a := mat.NewSymDense(3, nil)
	a.SymRankOne(m, 1, mat.NewVecDense(3, []float64{dir.X, dir.Y, dir.Z}))
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return Segment3D{}, false
	}
	x0 := r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}

	var lo, hi, wsum float64
	for _, s := range segments {
		pitch := geom.PitchDirection(s.Proj)
		q := project(x0, pitch)
		tp := project(dir, pitch)
		w := r2.Dot(tp, tp)
		if w < 1e-6 {
			continue
		}
		l1 := r2.Dot(r2.Sub(s.Start, q), tp) / w
		l2 := r2.Dot(r2.Sub(s.End, q), tp) / w
		lo += math.Min(l1, l2) * w
		hi += math.Max(l1, l2) * w
		wsum += w
	}
	if wsum == 0 {
		return Segment3D{}, false
	}
	lo /= wsum
	hi /= wsum
	if hi-lo < minSegmentLength {
		return Segment3D{}, false
	}
	return Segment3D{Start: r3.Add(x0, r3.Scale(lo, dir)), End: r3.Add(x0, r3.Scale(hi, dir))}, true
}
