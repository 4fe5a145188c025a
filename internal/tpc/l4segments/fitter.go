package l4segments

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l3hits"
	"github.com/banshee-data/tpcreco/internal/tpc/optimizer"
)

// Fitter fits one straight segment per projection.
type Fitter struct {
	lossType  LossType
	geom      geometry.Provider
	minimizer optimizer.Minimizer
	hough     HoughParams
}

// NewFitter creates a segment fitter with default Hough settings. A nil
// minimizer selects Nelder-Mead with default settings.
func NewFitter(lossType LossType, geom geometry.Provider, minimizer optimizer.Minimizer) *Fitter {
	if minimizer == nil {
		minimizer = optimizer.NewNelderMead(optimizer.DefaultSettings())
	}
	return &Fitter{lossType: lossType, geom: geom, minimizer: minimizer, hough: DefaultHoughParams()}
}

// SetHoughParams replaces the accumulator settings used for seeding.
func (f *Fitter) SetHoughParams(p HoughParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	f.hough = p
	return nil
}

// LossType returns the loss the fitter minimizes.
func (f *Fitter) LossType() LossType { return f.lossType }

// lineSeed is a starting line for refinement.
type lineSeed struct {
	name         string
	centre, axis r2.Vec
}

// refined is a seed after minimization: the line is centre plus
// x[1] along the seed normal, with direction angle x[0].
type refined struct {
	seed lineSeed
	x    []float64
	loss float64
}

func (r refined) place(seg *Segment2D) {
	bias := r.seed.centre
	if len(r.x) > 1 {
		bias = r2.Add(bias, r2.Scale(r.x[1], r2.Vec{X: -r.seed.axis.Y, Y: r.seed.axis.X}))
	}
	seg.SetBiasTangent(bias, r2.Vec{X: math.Cos(r.x[0]), Y: math.Sin(r.x[0])})
}

// Fit seeds a line through hits from both the charge-weighted principal
// axis and the strongest Hough line, refines each by minimizing the
// fitter's loss and keeps the better one. Start and End are set to the
// extremal hit projections, with Tangent pointing towards later drift
// time. Fewer than two hits, or hits without spread, give a segment that
// is not Valid.
func (f *Fitter) Fit(p geometry.Projection, hits l3hits.Hit2DCollection) *Segment2D {
	seg := NewSegment2D(p, r2.Vec{X: f.geom.TimeBinWidth(), Y: f.geom.ProjectionPitch(p)})
	seg.Hits = hits
	if len(hits) < 2 {
		return seg
	}

	centre, axis, ok := principalAxis(hits)
	if !ok {
		return seg
	}
	seeds := []lineSeed{{name: "principal axis", centre: centre, axis: axis}}
	if acc := NewAccumulator(hits, f.hough); acc != nil {
		if peaks := acc.Peaks(1); len(peaks) == 1 {
			seeds = append(seeds, lineSeed{name: "hough", centre: peaks[0].Bias(), axis: peaks[0].Tangent()})
		}
	}

	var best refined
	for i, sd := range seeds {
		r := f.refine(seg, p, hits, sd)
		if i == 0 || r.loss < best.loss {
			best = r
		}
	}
	best.place(seg)

	t := seg.Tangent
	if t.X < 0 || (t.X == 0 && t.Y < 0) {
		t = r2.Scale(-1, t)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, h := range hits {
		rel := r2.Sub(h.Point(), seg.Bias)
		if math.Abs(r2.Cross(t, rel)) > BiasMaxDistance {
			continue
		}
		l := r2.Dot(rel, t)
		lo, hi = math.Min(lo, l), math.Max(hi, l)
	}
	if math.IsInf(lo, 1) {
		return seg
	}
	bias := seg.Bias
	seg.SetStartEnd(r2.Add(bias, r2.Scale(lo, t)), r2.Add(bias, r2.Scale(hi, t)))
	seg.FitLoss = seg.Loss(hits, f.lossType)
	return seg
}

// refine minimizes the loss over the direction angle and, unless only
// the tangent matters, the normal offset from the seed line.
func (f *Fitter) refine(seg *Segment2D, p geometry.Projection, hits l3hits.Hit2DCollection, sd lineSeed) refined {
	phi0 := math.Atan2(sd.axis.Y, sd.axis.X)
	params := []optimizer.Param{optimizer.Free("phi", phi0, 0.05)}
	if f.lossType != LossTangent {
		params = append(params, optimizer.Free("offset", 0, 0.5))
	}
	r := refined{seed: sd}
	eval := optimizer.EvaluatorFunc(func(x []float64) float64 {
		refined{seed: sd, x: x}.place(seg)
		return seg.Loss(hits, f.lossType)
	})
	res, err := f.minimizer.Minimize(eval, params)
	if err != nil {
		monitoring.Logf("[track] projection %s: %s seed refinement failed: %v", p, sd.name, err)
		r.x = []float64{phi0, 0}
	} else {
		r.x = append([]float64(nil), res.Params...)
	}
	r.place(seg)
	r.loss = seg.Loss(hits, f.lossType)
	return r
}

// FindSegments fits one segment per Hough peak, up to MaxPeaks. Each peak
// claims the unclaimed hits within BiasMaxDistance of its line; peaks with
// fewer than MinHits claimed hits are skipped. Segments come in decreasing
// vote order.
func (f *Fitter) FindSegments(p geometry.Projection, hits l3hits.Hit2DCollection) []*Segment2D {
	acc := NewAccumulator(hits, f.hough)
	if acc == nil {
		return nil
	}
	claimed := make([]bool, len(hits))
	var out []*Segment2D
	for _, line := range acc.Peaks(f.hough.MaxPeaks) {
		var own l3hits.Hit2DCollection
		var idx []int
		for i, h := range hits {
			if !claimed[i] && line.Distance(h.Point()) <= BiasMaxDistance {
				own = append(own, h)
				idx = append(idx, i)
			}
		}
		if len(own) < f.hough.MinHits {
			continue
		}
		seg := f.Fit(p, own)
		if !seg.Valid() {
			continue
		}
		for _, i := range idx {
			claimed[i] = true
		}
		out = append(out, seg)
	}
	return out
}

// principalAxis returns the charge-weighted centroid of hits and the unit
// eigenvector of their covariance with the largest eigenvalue.
func principalAxis(hits l3hits.Hit2DCollection) (centre, axis r2.Vec, ok bool) {
	xs := make([]float64, len(hits))
	ys := make([]float64, len(hits))
	ws := make([]float64, len(hits))
	for i, h := range hits {
		xs[i], ys[i], ws[i] = h.PosTime, h.PosStrip, math.Abs(h.Charge)
	}
	centre = r2.Vec{X: stat.Mean(xs, ws), Y: stat.Mean(ys, ws)}
	cxx := stat.Covariance(xs, xs, ws)
	cxy := stat.Covariance(xs, ys, ws)
	cyy := stat.Covariance(ys, ys, ws)
	if cxx+cyy <= 1e-12 || math.IsNaN(cxx+cyy) {
		return centre, r2.Vec{}, false
	}

	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(2, []float64{cxx, cxy, cxy, cyy}), true) {
		return centre, r2.Vec{}, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// Eigenvalues are ascending; the last column is the major axis.
	axis = unit(r2.Vec{X: vecs.At(0, 1), Y: vecs.At(1, 1)})
	return centre, axis, r2.Norm(axis) > 0
}
