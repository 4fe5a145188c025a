package l5tracks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/testutil"
	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l3hits"
	"github.com/banshee-data/tpcreco/internal/tpc/l4segments"
)

func init() {
	monitoring.SetLogger(nil)
}

var (
	vertexA = r3.Vec{X: -30, Y: 10, Z: -20}
	vertexB = r3.Vec{X: 40, Y: -5, Z: 25}
)

// projectedHits samples n points evenly from a to b and projects them onto
// every strip plane.
func projectedHits(geom geometry.Provider, a, b r3.Vec, n int) [geometry.NumProjections]l3hits.Hit2DCollection {
	var hits [geometry.NumProjections]l3hits.Hit2DCollection
	for _, p := range geometry.Projections {
		d := geom.PitchDirection(p)
		for i := 0; i < n; i++ {
			f := float64(i) / float64(n-1)
			pt := r3.Add(a, r3.Scale(f, r3.Sub(b, a)))
			hits[p] = append(hits[p], l3hits.Hit2D{
				PosTime:  pt.Z,
				PosStrip: pt.X*d.X + pt.Y*d.Y,
				Charge:   100,
			})
		}
	}
	return hits
}

func straightTrack(geom geometry.Provider) *Track3D {
	tr := NewTrack3D(geom, projectedHits(geom, vertexA, vertexB, 41))
	tr.AddSegment(Segment3D{Start: vertexA, End: vertexB})
	return tr
}

func assertVec(t *testing.T, name string, got, want r3.Vec, tol float64) {
	t.Helper()
	if d := r3.Norm(r3.Sub(got, want)); d > tol || math.IsNaN(d) {
		t.Errorf("%s = %v, want %v (distance %g > %g)", name, got, want, d, tol)
	}
}

func TestFitMode_Parse(t *testing.T) {
	for _, m := range []FitMode{FitTangent, FitBiasZ, FitBiasXY, FitTangentBias, FitStartStop} {
		got, err := ParseFitMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseFitMode("bias_w")
	assert.Error(t, err)

	c, err := ParseCombine("max")
	require.NoError(t, err)
	assert.Equal(t, CombineMax, c)
	_, err = ParseCombine("mean")
	assert.Error(t, err)
}

func TestTrack3D_Empty(t *testing.T) {
	tr := NewTrack3D(geometry.DefaultUVW(), [geometry.NumProjections]l3hits.Hit2DCollection{})
	tr.Update()
	tr.ExtendToChamberRange(100)
	tr.ShrinkToHits()
	tr.RemoveEmptySegments()
	tr.Reverse()

	assert.Equal(t, 0.0, tr.Length())
	assert.Equal(t, 0.0, tr.Loss())
	assert.Empty(t, tr.Nodes())
	assert.Equal(t, 0, tr.ChargeProfile(1).Len())
	assert.Equal(t, 0.0, tr.IntegratedCharge())
	assert.Error(t, tr.SplitWorstSegment(0.5))
}

func TestTrack3D_LossZeroOnTruth(t *testing.T) {
	geom := geometry.DefaultUVW()
	tr := straightTrack(geom)
	testutil.AssertInDelta(t, "length", tr.Length(), r3.Norm(r3.Sub(vertexB, vertexA)), 1e-9)
	testutil.AssertInDelta(t, "loss", tr.Loss(), 0, 1e-9)

	for _, m := range []FitMode{FitTangent, FitBiasZ, FitBiasXY, FitTangentBias, FitStartStop} {
		tr.SetFitMode(m)
		testutil.AssertInDelta(t, m.String()+" loss", tr.Loss(), 0, 1e-9)
	}
}

func TestTrack3D_ParamsAndUpdate(t *testing.T) {
	geom := geometry.DefaultUVW()
	tr := straightTrack(geom)

	counts := map[FitMode]int{FitTangent: 2, FitBiasZ: 1, FitBiasXY: 2, FitTangentBias: 5, FitStartStop: 6}
	for m, n := range counts {
		tr.SetFitMode(m)
		assert.Len(t, tr.Params(), n, m.String())
	}

	tr.SetFitMode(FitBiasZ)
	params := tr.Params()
	require.Len(t, params, 1)
	z0 := params[0].Value

	assert.Greater(t, tr.UpdateAndGetLoss([]float64{z0 + 1}), 0.5)
	testutil.AssertInDelta(t, "loss back at start", tr.UpdateAndGetLoss([]float64{z0}), 0, 1e-9)
	segs := tr.Segments()
	require.Len(t, segs, 1)
	assertVec(t, "start", segs[0].Start, vertexA, 1e-9)
	assertVec(t, "end", segs[0].End, vertexB, 1e-9)
}

func TestTrack3D_ProjectionSelectionAndCombine(t *testing.T) {
	geom := geometry.DefaultUVW()
	tr := NewTrack3D(geom, projectedHits(geom, vertexA, vertexB, 41))
	shift := r3.Vec{X: 1.5, Y: -0.5, Z: 0.3}
	tr.AddSegment(Segment3D{Start: r3.Add(vertexA, shift), End: r3.Add(vertexB, shift)})

	var per [geometry.NumProjections]float64
	for _, p := range geometry.Projections {
		tr.EnableProjectionForLoss(int(p))
		per[p] = tr.Loss()
	}
	tr.EnableProjectionForLoss(AllProjections)
	testutil.AssertInDelta(t, "sum", tr.Loss(), per[0]+per[1]+per[2], 1e-9)

	tr.SetCombine(CombineMax)
	testutil.AssertInDelta(t, "max", tr.Loss(), math.Max(per[0], math.Max(per[1], per[2])), 1e-9)
}

func TestTrack3D_ExtendShrinkRoundTrip(t *testing.T) {
	geom := geometry.DefaultUVW()
	tr := straightTrack(geom)
	original := tr.Length()

	tr.ExtendToChamberRange(geom.ChamberRadius())
	segs := tr.Segments()
	require.Len(t, segs, 1)
	testutil.AssertInDelta(t, "|start|", r3.Norm(segs[0].Start), geom.ChamberRadius(), 1e-9)
	testutil.AssertInDelta(t, "|end|", r3.Norm(segs[0].End), geom.ChamberRadius(), 1e-9)
	assert.Greater(t, tr.Length(), original)

	tr.ShrinkToHits()
	segs = tr.Segments()
	assertVec(t, "start", segs[0].Start, vertexA, 1e-6)
	assertVec(t, "end", segs[0].End, vertexB, 1e-6)
	testutil.AssertInDelta(t, "length", tr.Length(), original, 1e-6)
}

func TestTrack3D_SplitReverseNodes(t *testing.T) {
	geom := geometry.DefaultUVW()
	tr := straightTrack(geom)
	length := tr.Length()

	require.NoError(t, tr.SplitSegment(0, 0.25))
	assert.Equal(t, 2, tr.NumSegments())
	testutil.AssertInDelta(t, "length after split", tr.Length(), length, 1e-9)
	testutil.AssertInDelta(t, "loss after split", tr.Loss(), 0, 1e-9)

	nodes := tr.Nodes()
	require.Len(t, nodes, 3)
	assertVec(t, "first node", nodes[0], vertexA, 1e-9)
	assertVec(t, "split node", nodes[1], r3.Add(vertexA, r3.Scale(0.25, r3.Sub(vertexB, vertexA))), 1e-9)
	assertVec(t, "last node", nodes[2], vertexB, 1e-9)

	tr.Reverse()
	rev := tr.Nodes()
	for i := range nodes {
		assertVec(t, "reversed node", rev[i], nodes[len(nodes)-1-i], 1e-12)
	}
	testutil.AssertInDelta(t, "length after reverse", tr.Length(), length, 1e-9)

	assert.Error(t, tr.SplitSegment(5, 0.5))
	require.NoError(t, tr.SplitWorstSegment(-1))
	assert.Equal(t, 3, tr.NumSegments())
}

func TestTrack3D_RemoveEmptySegments(t *testing.T) {
	geom := geometry.DefaultUVW()
	// Hits stop short of vertexB so none sit on the shared node.
	short := r3.Add(vertexA, r3.Scale(0.9, r3.Sub(vertexB, vertexA)))
	tr := NewTrack3D(geom, projectedHits(geom, vertexA, short, 37))
	tr.AddSegment(Segment3D{Start: vertexA, End: vertexB})
	// A dangling piece far from every hit.
	tr.AddSegment(Segment3D{Start: vertexB, End: r3.Vec{X: 40, Y: 60, Z: 80}})
	// A degenerate piece.
	tr.AddSegment(Segment3D{Start: r3.Vec{X: 40, Y: 60, Z: 80}, End: r3.Vec{X: 40, Y: 60, Z: 80}})

	tr.RemoveEmptySegments()
	segs := tr.Segments()
	require.Len(t, segs, 1)
	assertVec(t, "start", segs[0].Start, vertexA, 1e-9)
	assertVec(t, "end", segs[0].End, vertexB, 1e-9)
}

func TestTrack3D_ChargeAndProfile(t *testing.T) {
	geom := geometry.DefaultUVW()
	tr := straightTrack(geom)
	total := 3 * 41 * 100.0

	testutil.AssertInDelta(t, "integrated charge", tr.IntegratedCharge(), total, 1e-6)

	p := tr.ChargeProfile(1)
	require.Greater(t, p.Len(), int(tr.Length()))
	assert.Less(t, p.Start, 0.0)
	testutil.AssertRelative(t, "profile integral", p.Integral(), total, 1e-9)
	lo, hi, ok := p.Edges(0.05)
	require.True(t, ok)
	testutil.AssertInDelta(t, "profile start", lo, 0, 1.5)
	testutil.AssertInDelta(t, "profile end", hi, tr.Length(), 1.5)
}

func segmentsFor(t *testing.T, geom geometry.Provider, hits [geometry.NumProjections]l3hits.Hit2DCollection, projs ...geometry.Projection) []*l4segments.Segment2D {
	t.Helper()
	f := l4segments.NewFitter(l4segments.LossBias, geom, nil)
	var out []*l4segments.Segment2D
	for _, p := range projs {
		seg := f.Fit(p, hits[p])
		require.True(t, seg.Valid(), "projection %s", p)
		out = append(out, seg)
	}
	return out
}

func TestSeedFromProjections(t *testing.T) {
	geom := geometry.DefaultUVW()
	hits := projectedHits(geom, vertexA, vertexB, 41)

	for _, projs := range [][]geometry.Projection{
		{geometry.U, geometry.V, geometry.W},
		{geometry.U, geometry.V},
		{geometry.V, geometry.W},
	} {
		seed, ok := SeedFromProjections(geom, segmentsFor(t, geom, hits, projs...))
		require.True(t, ok)
		if r3.Dot(seed.Tangent(), r3.Sub(vertexB, vertexA)) < 0 {
			seed.Start, seed.End = seed.End, seed.Start
		}
		assertVec(t, "seed start", seed.Start, vertexA, 1e-3)
		assertVec(t, "seed end", seed.End, vertexB, 1e-3)
	}

	_, ok := SeedFromProjections(geom, segmentsFor(t, geom, hits, geometry.U))
	assert.False(t, ok)
}

func TestAssembler_Assemble(t *testing.T) {
	geom := geometry.DefaultUVW()
	hits := projectedHits(geom, vertexA, vertexB, 41)
	a, err := NewAssembler(DefaultParams(), geom, nil)
	require.NoError(t, err)

	tr := a.Assemble(segmentsFor(t, geom, hits, geometry.U, geometry.V, geometry.W))
	require.Equal(t, 1, tr.NumSegments())
	testutil.AssertInDelta(t, "length", tr.Length(), r3.Norm(r3.Sub(vertexB, vertexA)), 0.05)
	assert.Less(t, tr.Loss(), 1e-3)

	nodes := tr.Nodes()
	first, last := nodes[0], nodes[len(nodes)-1]
	if r3.Norm(r3.Sub(first, vertexA)) > r3.Norm(r3.Sub(first, vertexB)) {
		first, last = last, first
	}
	assertVec(t, "vertex A", first, vertexA, 0.05)
	assertVec(t, "vertex B", last, vertexB, 0.05)
}

func TestAssembler_NeedsTwoProjections(t *testing.T) {
	geom := geometry.DefaultUVW()
	hits := projectedHits(geom, vertexA, vertexB, 41)
	a, err := NewAssembler(DefaultParams(), geom, nil)
	require.NoError(t, err)

	tr := a.Assemble(segmentsFor(t, geom, hits, geometry.W))
	assert.Equal(t, 0, tr.NumSegments())
	assert.Equal(t, 0.0, tr.Length())
	assert.Equal(t, 0.0, tr.Loss())
	assert.Len(t, tr.Hits(geometry.W), 41)

	empty := a.Assemble(nil)
	assert.Equal(t, 0, empty.NumSegments())
}

func TestAssembler_Splits(t *testing.T) {
	geom := geometry.DefaultUVW()
	hits := projectedHits(geom, vertexA, vertexB, 41)
	p := DefaultParams()
	p.MaxSplits = 1
	a, err := NewAssembler(p, geom, nil)
	require.NoError(t, err)
	tr := a.Assemble(segmentsFor(t, geom, hits, geometry.U, geometry.V, geometry.W))

	require.Equal(t, 2, tr.NumSegments())
	testutil.AssertInDelta(t, "length", tr.Length(), r3.Norm(r3.Sub(vertexB, vertexA)), 0.1)
}

func TestAssembler_FitSplitPoint(t *testing.T) {
	geom := geometry.DefaultUVW()
	kink := r3.Add(r3.Add(vertexA, r3.Scale(0.3, r3.Sub(vertexB, vertexA))), r3.Vec{Y: 15})
	first := projectedHits(geom, vertexA, kink, 16)
	second := projectedHits(geom, kink, vertexB, 35)
	var hits [geometry.NumProjections]l3hits.Hit2DCollection
	for _, p := range geometry.Projections {
		hits[p] = append(append(hits[p], first[p]...), second[p]...)
	}
	a, err := NewAssembler(DefaultParams(), geom, nil)
	require.NoError(t, err)

	tr := NewTrack3D(geom, hits)
	tr.AddSegment(Segment3D{Start: vertexA, End: vertexB})
	mid := tr.Clone()

	f, err := a.FitSplitPoint(tr)
	require.NoError(t, err)
	assert.Greater(t, f, 0.0)
	assert.Less(t, f, 1.0)
	require.Equal(t, 2, tr.NumSegments())
	assertVec(t, "kink", tr.Nodes()[1], kink, 3)

	// The scanned split is never worse than a fixed split in the middle.
	require.NoError(t, mid.SplitSegment(0, 0.5))
	a.fit(mid, FitStartStop)
	mid.ShrinkToHits()
	assert.LessOrEqual(t, tr.Loss(), mid.Loss()+1e-12)

	_, err = a.FitSplitPoint(NewTrack3D(geom, hits))
	assert.Error(t, err)
}

func TestTrack3D_CloneIsIndependent(t *testing.T) {
	geom := geometry.DefaultUVW()
	tr := straightTrack(geom)
	c := tr.Clone()
	require.NoError(t, c.SplitSegment(0, 0.5))
	assert.Equal(t, 1, tr.NumSegments())
	assert.Equal(t, 2, c.NumSegments())
	testutil.AssertInDelta(t, "clone loss", c.Loss(), tr.Loss(), 1e-9)
	assert.Equal(t, 0, tr.WorstSegment())
	assert.Equal(t, -1, NewTrack3D(geom, tr.hits).WorstSegment())
}

func TestNewAssembler_RejectsInvalidParams(t *testing.T) {
	geom := geometry.DefaultUVW()
	tests := []struct {
		name   string
		modify func(p *Params)
		want   string
	}{
		{"loss projection", func(p *Params) { p.LossProjection = 3 }, "loss projection"},
		{"negative loss projection", func(p *Params) { p.LossProjection = -2 }, "loss projection"},
		{"fit mode", func(p *Params) { p.FitModes = []FitMode{FitTangent, FitMode(42)} }, "fit mode"},
		{"combine", func(p *Params) { p.Combine = Combine(7) }, "combination"},
		{"max splits", func(p *Params) { p.MaxSplits = -1 }, "max splits"},
		{"radius cut", func(p *Params) { p.RadiusCut = 0 }, "radius cut"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			a, err := NewAssembler(p, geom, nil)
			require.Error(t, err)
			assert.Nil(t, a)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	for _, proj := range []int{AllProjections, 0, 1, 2} {
		p := DefaultParams()
		p.LossProjection = proj
		_, err := NewAssembler(p, geom, nil)
		assert.NoError(t, err, "loss projection %d", proj)
	}
}
