package l5tracks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l4segments"
)

// Segment3D is a straight piece of a track between two points in mm.
type Segment3D struct {
	Start r3.Vec
	End   r3.Vec
}

// Length returns |End-Start|.
func (s Segment3D) Length() float64 { return r3.Norm(r3.Sub(s.End, s.Start)) }

// Tangent returns the unit direction from Start to End, or the zero vector
// for a degenerate segment.
func (s Segment3D) Tangent() r3.Vec {
	d := r3.Sub(s.End, s.Start)
	n := r3.Norm(d)
	if n < 1e-12 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, d)
}

// Bias returns the midpoint.
func (s Segment3D) Bias() r3.Vec { return r3.Scale(0.5, r3.Add(s.Start, s.End)) }

// PointAt returns Start + lambda*Tangent.
func (s Segment3D) PointAt(lambda float64) r3.Vec {
	return r3.Add(s.Start, r3.Scale(lambda, s.Tangent()))
}

// Projection returns the segment as seen by projection p: drift coordinate
// z on the X axis and strip coordinate on the Y axis.
func (s Segment3D) Projection(geom geometry.Provider, p geometry.Projection) *l4segments.Segment2D {
	seg := l4segments.NewSegment2D(p, r2.Vec{X: geom.TimeBinWidth(), Y: geom.ProjectionPitch(p)})
	d := geom.PitchDirection(p)
	seg.SetStartEnd(project(s.Start, d), project(s.End, d))
	return seg
}

func project(v r3.Vec, pitch r2.Vec) r2.Vec {
	return r2.Vec{X: v.Z, Y: v.X*pitch.X + v.Y*pitch.Y}
}

// angles returns the polar and azimuthal angles of a unit vector.
func angles(t r3.Vec) (theta, phi float64) {
	return math.Acos(math.Max(-1, math.Min(1, t.Z))), math.Atan2(t.Y, t.X)
}

func fromAngles(theta, phi float64) r3.Vec {
	st := math.Sin(theta)
	return r3.Vec{X: st * math.Cos(phi), Y: st * math.Sin(phi), Z: math.Cos(theta)}
}

func (s Segment3D) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f) -> (%.2f, %.2f, %.2f) length %.2f mm",
		s.Start.X, s.Start.Y, s.Start.Z, s.End.X, s.End.Y, s.End.Z, s.Length())
}
