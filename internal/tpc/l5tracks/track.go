package l5tracks

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l3hits"
	"github.com/banshee-data/tpcreco/internal/tpc/l4segments"
	"github.com/banshee-data/tpcreco/internal/tpc/optimizer"
	"github.com/banshee-data/tpcreco/internal/tpc/profile"
)

const (
	// DefaultRadiusCut is the distance (mm) from a projected segment within
	// which hits count for charge, profile and endpoint searches.
	DefaultRadiusCut = 4.0
	// minSegmentLength marks a segment as degenerate.
	minSegmentLength = 0.1
	// minProjectedFraction drops projections whose projected length is
	// short compared to the best projection from endpoint searches and
	// profiles.
	minProjectedFraction = 0.3
	profileMarginFraction = 0.2
	minProfileMargin      = 5.0
)

// Track3D is an ordered polyline of segments fitted to the hits of every
// projection. Consecutive segments share their end and start points.
//
// Track3D implements optimizer.Evaluator: Params lists the free parameters
// of the current fit mode and Evaluate applies a parameter vector relative
// to the state captured by Params, then returns the updated loss.
type Track3D struct {
	geom      geometry.Provider
	hits      [geometry.NumProjections]l3hits.Hit2DCollection
	segments  []Segment3D
	mode      FitMode
	combine   Combine
	lossProj  int
	radiusCut float64

	ref []Segment3D

	length      float64
	loss        float64
	segmentLoss []float64
	assigned    [][geometry.NumProjections]l3hits.Hit2DCollection
	converged   bool
}

var _ optimizer.Evaluator = (*Track3D)(nil)

// NewTrack3D creates a track without segments over the given hits.
func NewTrack3D(geom geometry.Provider, hits [geometry.NumProjections]l3hits.Hit2DCollection) *Track3D {
	return &Track3D{
		geom:      geom,
		hits:      hits,
		mode:      FitTangentBias,
		lossProj:  AllProjections,
		radiusCut: DefaultRadiusCut,
		converged: true,
	}
}

// AddSegment appends s and updates the track.
func (t *Track3D) AddSegment(s Segment3D) {
	t.segments = append(t.segments, s)
	t.changed()
}

// Segments returns a copy of the segments.
func (t *Track3D) Segments() []Segment3D { return append([]Segment3D(nil), t.segments...) }

// NumSegments returns the number of segments.
func (t *Track3D) NumSegments() int { return len(t.segments) }

// Hits returns the hits of projection p.
func (t *Track3D) Hits(p geometry.Projection) l3hits.Hit2DCollection { return t.hits[p] }

// Length returns the cached total length. An empty track has length 0.
func (t *Track3D) Length() float64 { return t.length }

// Loss returns the loss computed by the last Update.
func (t *Track3D) Loss() float64 { return t.loss }

// SegmentLosses returns the cached per-segment losses.
func (t *Track3D) SegmentLosses() []float64 { return append([]float64(nil), t.segmentLoss...) }

// FitMode returns the current fit mode.
func (t *Track3D) FitMode() FitMode { return t.mode }

// SetFitMode switches the fit mode and recomputes the loss, which depends
// on the mode.
func (t *Track3D) SetFitMode(m FitMode) {
	t.mode = m
	t.ref = nil
	t.Update()
}

// SetCombine selects how per-projection losses are merged.
func (t *Track3D) SetCombine(c Combine) {
	t.combine = c
	t.Update()
}

// SetRadiusCut sets the hit distance cut used by charge and endpoint
// searches. Non-positive values restore the default.
func (t *Track3D) SetRadiusCut(r float64) {
	if r <= 0 {
		r = DefaultRadiusCut
	}
	t.radiusCut = r
}

// EnableProjectionForLoss restricts the loss to projection p, or to all
// projections when p is AllProjections (or out of range).
func (t *Track3D) EnableProjectionForLoss(p int) {
	if !geometry.Projection(p).Valid() {
		p = AllProjections
	}
	t.lossProj = p
	t.Update()
}

// Converged reports whether every fit applied to the track converged.
func (t *Track3D) Converged() bool { return t.converged }

func (t *Track3D) projectionEnabled(p geometry.Projection) bool {
	return t.lossProj == AllProjections || int(p) == t.lossProj
}

func (t *Track3D) lossType() l4segments.LossType {
	if t.mode == FitTangent {
		return l4segments.LossTangent
	}
	return l4segments.LossBias
}

// changed drops the parameter snapshot after a structural edit and
// recomputes derived state.
func (t *Track3D) changed() {
	t.ref = nil
	t.Update()
}

// Update recomputes the length, the hit-to-segment assignment and the
// per-segment and total losses.
func (t *Track3D) Update() {
	t.length = 0
	t.loss = 0
	t.segmentLoss = t.segmentLoss[:0]
	t.assigned = t.assigned[:0]
	if len(t.segments) == 0 {
		return
	}
	for _, s := range t.segments {
		t.length += s.Length()
	}
	t.assignHits()

	lt := t.lossType()
	for i, s := range t.segments {
		var segLoss float64
		for _, p := range geometry.Projections {
			if !t.projectionEnabled(p) {
				continue
			}
			l := s.Projection(t.geom, p).Loss(t.assigned[i][p], lt)
			if t.combine == CombineMax {
				segLoss = math.Max(segLoss, l)
			} else {
				segLoss += l
			}
		}
		t.segmentLoss = append(t.segmentLoss, segLoss)
		t.loss += segLoss
	}
}

// assignHits gives every hit to the nearest projected segment.
func (t *Track3D) assignHits() {
	n := len(t.segments)
	t.assigned = make([][geometry.NumProjections]l3hits.Hit2DCollection, n)
	for _, p := range geometry.Projections {
		if n == 1 {
			t.assigned[0][p] = t.hits[p]
			continue
		}
		proj := make([]*l4segments.Segment2D, n)
		for i, s := range t.segments {
			proj[i] = s.Projection(t.geom, p)
		}
		for _, h := range t.hits[p] {
			best, bestDist := 0, math.Inf(1)
			for i, seg := range proj {
				if d := segmentDistance(seg, h.Point()); d < bestDist {
					best, bestDist = i, d
				}
			}
			t.assigned[best][p] = append(t.assigned[best][p], h)
		}
	}
}

// segmentDistance is the distance from pt to the finite segment.
func segmentDistance(s *l4segments.Segment2D, pt r2.Vec) float64 {
	lambda, d := s.LambdaAndDistance(pt)
	switch {
	case !s.Valid():
		return r2.Norm(r2.Sub(pt, s.Start))
	case lambda < 0:
		return r2.Norm(r2.Sub(pt, s.Start))
	case lambda > s.Length():
		return r2.Norm(r2.Sub(pt, s.End))
	}
	return math.Abs(d)
}

// Params snapshots the segments and returns the free parameters of the
// current fit mode.
func (t *Track3D) Params() []optimizer.Param {
	t.ref = append(t.ref[:0], t.segments...)
	var params []optimizer.Param
	if t.mode == FitStartStop {
		for i, node := range t.Nodes() {
			params = append(params,
				optimizer.Free(fmt.Sprintf("node%d_x", i), node.X, 1),
				optimizer.Free(fmt.Sprintf("node%d_y", i), node.Y, 1),
				optimizer.Free(fmt.Sprintf("node%d_z", i), node.Z, 1),
			)
		}
		return params
	}
	for i, s := range t.segments {
		b := s.Bias()
		theta, phi := angles(s.Tangent())
		if t.mode == FitBiasXY || t.mode == FitTangentBias {
			params = append(params,
				optimizer.Free(fmt.Sprintf("seg%d_x", i), b.X, 1),
				optimizer.Free(fmt.Sprintf("seg%d_y", i), b.Y, 1))
		}
		if t.mode == FitBiasZ || t.mode == FitTangentBias {
			params = append(params, optimizer.Free(fmt.Sprintf("seg%d_z", i), b.Z, 1))
		}
		if t.mode == FitTangent || t.mode == FitTangentBias {
			params = append(params,
				optimizer.Free(fmt.Sprintf("seg%d_theta", i), theta, 0.05),
				optimizer.Free(fmt.Sprintf("seg%d_phi", i), phi, 0.05))
		}
	}
	return params
}

// UpdateAndGetLoss applies x, laid out as returned by Params, and returns
// the new loss.
func (t *Track3D) UpdateAndGetLoss(x []float64) float64 {
	if t.ref == nil {
		t.Params()
	}
	t.apply(x)
	t.Update()
	return t.loss
}

// Evaluate implements optimizer.Evaluator.
func (t *Track3D) Evaluate(x []float64) float64 { return t.UpdateAndGetLoss(x) }

func (t *Track3D) apply(x []float64) {
	if t.mode == FitStartStop {
		for i := range t.segments {
			t.segments[i] = Segment3D{
				Start: r3.Vec{X: x[3*i], Y: x[3*i+1], Z: x[3*i+2]},
				End:   r3.Vec{X: x[3*i+3], Y: x[3*i+4], Z: x[3*i+5]},
			}
		}
		return
	}
	k := 0
	next := func() float64 {
		v := x[k]
		k++
		return v
	}
	for i, s := range t.ref {
		b := s.Bias()
		dir := s.Tangent()
		if t.mode == FitBiasXY || t.mode == FitTangentBias {
			b.X = next()
			b.Y = next()
		}
		if t.mode == FitBiasZ || t.mode == FitTangentBias {
			b.Z = next()
		}
		if t.mode == FitTangent || t.mode == FitTangentBias {
			theta := next()
			dir = fromAngles(theta, next())
		}
		half := r3.Scale(0.5*s.Length(), dir)
		t.segments[i] = Segment3D{Start: r3.Sub(b, half), End: r3.Add(b, half)}
	}
	// Neighbours moved independently; meet halfway.
	for i := 1; i < len(t.segments); i++ {
		m := r3.Scale(0.5, r3.Add(t.segments[i-1].End, t.segments[i].Start))
		t.segments[i-1].End = m
		t.segments[i].Start = m
	}
}

// Nodes returns the polyline nodes: the first start followed by every end.
func (t *Track3D) Nodes() []r3.Vec {
	if len(t.segments) == 0 {
		return nil
	}
	nodes := make([]r3.Vec, 0, len(t.segments)+1)
	nodes = append(nodes, t.segments[0].Start)
	for _, s := range t.segments {
		nodes = append(nodes, s.End)
	}
	return nodes
}

// ExtendToChamberRange moves the first start backwards and the last end
// forwards along their own segments onto the sphere of radius r centred on
// the origin. Endpoints already on or beyond the sphere are kept.
func (t *Track3D) ExtendToChamberRange(r float64) {
	if len(t.segments) == 0 || t.length < minSegmentLength {
		return
	}
	first := &t.segments[0]
	if dir := first.Tangent(); r3.Norm(dir) > 0 {
		if mu, ok := sphereExit(first.Start, r3.Scale(-1, dir), r); ok {
			first.Start = r3.Sub(first.Start, r3.Scale(mu, dir))
		}
	}
	last := &t.segments[len(t.segments)-1]
	if dir := last.Tangent(); r3.Norm(dir) > 0 {
		if mu, ok := sphereExit(last.End, dir, r); ok {
			last.End = r3.Add(last.End, r3.Scale(mu, dir))
		}
	}
	t.changed()
}

// sphereExit solves |p + mu*dir|^2 = r^2 for the positive root along the
// unit vector dir.
func sphereExit(p, dir r3.Vec, r float64) (float64, bool) {
	b := r3.Dot(p, dir)
	disc := b*b - r3.Dot(p, p) + r*r
	if disc < 0 {
		return 0, false
	}
	mu := -b + math.Sqrt(disc)
	return mu, mu > 0
}

// ShrinkToHits pulls the first start and the last end back to the
// extremal hits, within the radius cut, of the projections that see the
// segment with enough projected length.
func (t *Track3D) ShrinkToHits() {
	if len(t.segments) == 0 || t.length < minSegmentLength {
		return
	}
	lastIdx := len(t.segments) - 1
	lo, _, okLo := t.hitExtent(0)
	_, hi, okHi := t.hitExtent(lastIdx)
	first, last := t.segments[0], t.segments[lastIdx]
	if okLo {
		t.segments[0].Start = first.PointAt(lo)
	}
	if okHi {
		t.segments[lastIdx].End = last.PointAt(hi)
	}
	t.changed()
}

// hitExtent returns the smallest and largest 3-D path positions, measured
// from the start of segment i, of the hits assigned to it.
func (t *Track3D) hitExtent(i int) (lo, hi float64, ok bool) {
	s := t.segments[i]
	length := s.Length()
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, pv := range t.usableProjections(s) {
		scale := length / pv.seg.Length()
		for _, h := range t.assigned[i][pv.proj] {
			l2, d := pv.seg.LambdaAndDistance(h.Point())
			if math.Abs(d) >= t.radiusCut {
				continue
			}
			lo = math.Min(lo, l2*scale)
			hi = math.Max(hi, l2*scale)
		}
	}
	return lo, hi, !math.IsInf(lo, 1)
}

type projectedSegment struct {
	proj geometry.Projection
	seg  *l4segments.Segment2D
}

// usableProjections returns the enabled projections of s whose projected
// length is at least minProjectedFraction of the longest one.
func (t *Track3D) usableProjections(s Segment3D) []projectedSegment {
	var all []projectedSegment
	var longest float64
	for _, p := range geometry.Projections {
		if !t.projectionEnabled(p) {
			continue
		}
		seg := s.Projection(t.geom, p)
		if !seg.Valid() {
			continue
		}
		all = append(all, projectedSegment{proj: p, seg: seg})
		longest = math.Max(longest, seg.Length())
	}
	out := all[:0]
	for _, pv := range all {
		if pv.seg.Length() >= minProjectedFraction*longest && pv.seg.Length() > 1e-9 {
			out = append(out, pv)
		}
	}
	return out
}

// RemoveEmptySegments drops segments shorter than minSegmentLength or
// without hits in any enabled projection, keeping the order of the rest.
// Each kept segment is reattached to the end of its predecessor.
func (t *Track3D) RemoveEmptySegments() {
	if len(t.segments) == 0 {
		return
	}
	kept := t.segments[:0:0]
	for i, s := range t.segments {
		var n int
		for _, p := range geometry.Projections {
			if t.projectionEnabled(p) {
				n += len(t.assigned[i][p])
			}
		}
		if s.Length() < minSegmentLength || n == 0 {
			continue
		}
		kept = append(kept, s)
	}
	for i := 1; i < len(kept); i++ {
		kept[i].Start = kept[i-1].End
	}
	t.segments = kept
	t.changed()
}

// SplitSegment cuts segment i at fraction of its length into two
// collinear segments. Fractions outside (0, 1) split in the middle.
func (t *Track3D) SplitSegment(i int, fraction float64) error {
	if i < 0 || i >= len(t.segments) {
		return fmt.Errorf("segment %d out of range [0, %d)", i, len(t.segments))
	}
	if fraction <= 0 || fraction >= 1 {
		fraction = 0.5
	}
	s := t.segments[i]
	mid := s.PointAt(fraction * s.Length())
	second := Segment3D{Start: mid, End: s.End}
	t.segments[i].End = mid
	t.segments = append(t.segments[:i+1], append([]Segment3D{second}, t.segments[i+1:]...)...)
	t.changed()
	return nil
}

// WorstSegment returns the index of the segment with the largest loss, or
// -1 for a track without segments.
func (t *Track3D) WorstSegment() int {
	if len(t.segments) == 0 {
		return -1
	}
	worst := 0
	for i, l := range t.segmentLoss {
		if l > t.segmentLoss[worst] {
			worst = i
		}
	}
	return worst
}

// SplitWorstSegment splits the segment with the largest loss.
func (t *Track3D) SplitWorstSegment(fraction float64) error {
	worst := t.WorstSegment()
	if worst < 0 {
		return fmt.Errorf("track has no segments")
	}
	return t.SplitSegment(worst, fraction)
}

// Clone returns an independent copy sharing the read-only hit collections.
func (t *Track3D) Clone() *Track3D {
	c := &Track3D{
		geom:      t.geom,
		hits:      t.hits,
		segments:  append([]Segment3D(nil), t.segments...),
		mode:      t.mode,
		combine:   t.combine,
		lossProj:  t.lossProj,
		radiusCut: t.radiusCut,
		converged: t.converged,
	}
	c.Update()
	return c
}

// Reverse flips the direction of travel.
func (t *Track3D) Reverse() {
	n := len(t.segments)
	for i := 0; i < n/2; i++ {
		t.segments[i], t.segments[n-1-i] = t.segments[n-1-i], t.segments[i]
	}
	for i := range t.segments {
		t.segments[i].Start, t.segments[i].End = t.segments[i].End, t.segments[i].Start
	}
	t.changed()
}

// IntegratedCharge sums, over segments and enabled projections, the
// charge of assigned hits that project inside the segment within the
// radius cut.
func (t *Track3D) IntegratedCharge() float64 {
	var q float64
	for i, s := range t.segments {
		for _, p := range geometry.Projections {
			if !t.projectionEnabled(p) {
				continue
			}
			seg := s.Projection(t.geom, p)
			seg.Hits = t.assigned[i][p]
			q += seg.IntegratedCharge(t.radiusCut)
		}
	}
	return q
}

// ChargeProfile bins hit charge along the track path, measured from the
// first node, summing the usable projections. The binning covers the
// track with a margin on both sides. An empty track yields an empty
// profile.
func (t *Track3D) ChargeProfile(binWidth float64) *profile.Profile {
	if binWidth <= 0 {
		binWidth = 1
	}
	if len(t.segments) == 0 || t.length < minSegmentLength {
		return profile.New(0, binWidth, nil)
	}
	margin := math.Max(profileMarginFraction*t.length, minProfileMargin)
	b := profile.NewBuilderRange(-margin, t.length+margin, binWidth)
	var offset float64
	for i, s := range t.segments {
		length := s.Length()
		for _, pv := range t.usableProjections(s) {
			pv.seg.FillProfile(b, t.assigned[i][pv.proj], t.radiusCut, offset, length/pv.seg.Length())
		}
		offset += length
	}
	return b.Profile()
}

func (t *Track3D) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "track: %d segments, length %.2f mm, loss %.4g, mode %s",
		len(t.segments), t.length, t.loss, t.mode)
	for i, s := range t.segments {
		fmt.Fprintf(&sb, "\n  [%d] %s", i, s)
	}
	return sb.String()
}
