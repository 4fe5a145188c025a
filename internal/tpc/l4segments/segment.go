package l4segments

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l3hits"
	"github.com/banshee-data/tpcreco/internal/tpc/profile"
)

// LossType selects how hits are scored against a line.
type LossType int

const (
	// LossTangent is the charge-weighted variance of signed hit distances.
	// It ignores a global offset, so only the direction matters.
	LossTangent LossType = iota
	// LossBias is the charge-weighted mean squared hit distance.
	LossBias
	// LossTangentBias scores like LossBias; it marks fits where both the
	// direction and the offset are free.
	LossTangentBias
)

func (t LossType) String() string {
	switch t {
	case LossTangent:
		return "tangent"
	case LossBias:
		return "bias"
	case LossTangentBias:
		return "tangent_bias"
	}
	return fmt.Sprintf("LossType(%d)", int(t))
}

// ParseLossType parses the String form of a LossType.
func ParseLossType(s string) (LossType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tangent":
		return LossTangent, nil
	case "bias":
		return LossBias, nil
	case "tangent_bias", "tangentbias":
		return LossTangentBias, nil
	}
	return 0, fmt.Errorf("unknown loss type %q", s)
}

// Loss constants.
const (
	// TangentMaxDistance excludes hits further than this (mm) from the
	// tangent loss.
	TangentMaxDistance = 20.0
	// BiasMaxDistance excludes hits further than this (mm) from the bias loss.
	BiasMaxDistance = 10.0
	// DummyLoss is returned for a null tangent or when no hit is in range.
	DummyLoss = 999.0
	// defaultHalfLength is the half-length given to a segment placed from a
	// bias and a tangent alone.
	defaultHalfLength = 100.0
	minTangentNorm    = 1e-3
	lambdaTolerance   = 1e-9
)

// Segment2D is a straight segment in one projection plane. Points are
// r2.Vec with X along drift time and Y along the strip coordinate, both in
// mm. Tangent is unit length (or zero for a degenerate segment) and Start
// and End lie on the line through Bias along Tangent.
type Segment2D struct {
	Proj    geometry.Projection
	Bias    r2.Vec
	Tangent r2.Vec
	Start   r2.Vec
	End     r2.Vec
	Hits    l3hits.Hit2DCollection
	// Cell is the readout cell size (time bin, strip pitch) in mm.
	Cell r2.Vec
	// FitLoss is the loss recorded by the last fit.
	FitLoss float64
}

// NewSegment2D returns an empty segment of projection p.
func NewSegment2D(p geometry.Projection, cell r2.Vec) *Segment2D {
	return &Segment2D{Proj: p, Cell: cell}
}

// SetBiasTangent places the segment on the line through bias along
// tangent, spanning defaultHalfLength on both sides of bias.
func (s *Segment2D) SetBiasTangent(bias, tangent r2.Vec) {
	s.Bias = bias
	s.Tangent = unit(tangent)
	s.Start = r2.Sub(bias, r2.Scale(defaultHalfLength, s.Tangent))
	s.End = r2.Add(bias, r2.Scale(defaultHalfLength, s.Tangent))
}

// SetStartEnd places the segment between two points. Bias becomes the
// midpoint.
func (s *Segment2D) SetStartEnd(start, end r2.Vec) {
	s.Start = start
	s.End = end
	s.Tangent = unit(r2.Sub(end, start))
	s.Bias = r2.Scale(0.5, r2.Add(start, end))
}

// Length returns |End-Start|.
func (s *Segment2D) Length() float64 { return r2.Norm(r2.Sub(s.End, s.Start)) }

// Valid reports whether the segment has a usable direction.
func (s *Segment2D) Valid() bool { return r2.Norm(s.Tangent) > 0.5 }

// LambdaAndDistance decomposes pt relative to the segment: lambda is the
// signed position along Tangent measured from Start and distance is the
// signed perpendicular offset, positive on the left of Tangent.
func (s *Segment2D) LambdaAndDistance(pt r2.Vec) (lambda, distance float64) {
	delta := r2.Sub(pt, s.Start)
	lambda = r2.Dot(delta, s.Tangent)
	distance = r2.Cross(s.Tangent, delta)
	return lambda, distance
}

// Loss scores hits against the segment's line. An empty collection scores
// zero.
func (s *Segment2D) Loss(hits l3hits.Hit2DCollection, t LossType) float64 {
	if len(hits) == 0 {
		return 0
	}
	if r2.Norm(s.Tangent) < minTangentNorm {
		return DummyLoss
	}
	if t == LossTangent {
		return s.parallelLineLoss(hits)
	}
	return s.hitDistanceLoss(hits)
}

func (s *Segment2D) parallelLineLoss(hits l3hits.Hit2DCollection) float64 {
	ds := make([]float64, 0, len(hits))
	ws := make([]float64, 0, len(hits))
	for _, h := range hits {
		_, d := s.LambdaAndDistance(h.Point())
		if math.Abs(d) > TangentMaxDistance {
			continue
		}
		ds = append(ds, d)
		ws = append(ws, math.Abs(h.Charge))
	}
	if len(ds) == 0 || floats.Sum(ws) <= 0 {
		return DummyLoss
	}
	_, variance := stat.PopMeanVariance(ds, ws)
	return math.Max(variance, 0)
}

func (s *Segment2D) hitDistanceLoss(hits l3hits.Hit2DCollection) float64 {
	var loss, charge float64
	for _, h := range hits {
		_, d := s.LambdaAndDistance(h.Point())
		if math.Abs(d) > BiasMaxDistance {
			continue
		}
		q := math.Abs(h.Charge)
		loss += d * d * q
		charge += q
	}
	if charge <= 0 {
		return DummyLoss
	}
	return loss / charge
}

// CellExtent returns the length along Tangent covered by one readout cell.
func (s *Segment2D) CellExtent() float64 {
	a := math.Abs(r2.Dot(s.Cell, s.Tangent))
	b := math.Abs(r2.Dot(r2.Vec{X: s.Cell.X, Y: -s.Cell.Y}, s.Tangent))
	return math.Max(a, b)
}

// FillProfile adds the charge of hits within radiusCut of the line to b.
// A hit at lambda covers [lambda-w/2, lambda+w/2], w being the cell extent;
// positions map to the profile axis as offset + scale*lambda.
func (s *Segment2D) FillProfile(b *profile.Builder, hits l3hits.Hit2DCollection, radiusCut, offset, scale float64) {
	if !s.Valid() {
		return
	}
	half := 0.5 * s.CellExtent() * scale
	for _, h := range hits {
		lambda, d := s.LambdaAndDistance(h.Point())
		if math.Abs(d) >= radiusCut {
			continue
		}
		x := offset + scale*lambda
		b.FillSpread(x-half, x+half, h.Charge)
	}
}

// ChargeProfile bins the charge of the segment's own hits along the
// segment, from Start to End, with the given bin width. Hits further than
// radiusCut from the line are treated as cross-talk and dropped.
func (s *Segment2D) ChargeProfile(radiusCut, binWidth float64) *profile.Profile {
	b := profile.NewBuilderRange(0, math.Max(s.Length(), binWidth), binWidth)
	s.FillProfile(b, s.Hits, radiusCut, 0, 1)
	return b.Profile()
}

// IntegratedCharge sums the charge of the segment's hits that project
// inside the segment and lie within radiusCut of it.
func (s *Segment2D) IntegratedCharge(radiusCut float64) float64 {
	length := s.Length()
	var q float64
	for _, h := range s.Hits {
		lambda, d := s.LambdaAndDistance(h.Point())
		if lambda >= -lambdaTolerance && lambda <= length+lambdaTolerance && math.Abs(d) < radiusCut {
			q += h.Charge
		}
	}
	return q
}

func (s *Segment2D) String() string {
	return fmt.Sprintf("%s: (%.2f, %.2f) -> (%.2f, %.2f) loss %.4g hits %d",
		s.Proj, s.Start.X, s.Start.Y, s.End.X, s.End.Y, s.FitLoss, len(s.Hits))
}

func unit(v r2.Vec) r2.Vec {
	n := r2.Norm(v)
	if n < 1e-12 {
		return r2.Vec{}
	}
	return r2.Scale(1/n, v)
}
