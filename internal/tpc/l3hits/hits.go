package l3hits

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// cleanFloor keeps zero-charge hits out even with a zero fraction.
const cleanFloor = 1e-3

// Hit2D is one reconstructed hit: a charge-weighted point of a projection,
// in mm along the strip and drift axes.
type Hit2D struct {
	PosStrip float64
	PosTime  float64
	Charge   float64
}

// Point returns the hit as a 2-D vector with X along drift time and Y along
// the strip coordinate, the convention used by segment fitting.
func (h Hit2D) Point() r2.Vec { return r2.Vec{X: h.PosTime, Y: h.PosStrip} }

// Hit2DCollection is an unordered set of hits of one projection.
type Hit2DCollection []Hit2D

// TotalCharge sums the hit charges.
func (c Hit2DCollection) TotalCharge() float64 {
	var sum float64
	for _, h := range c {
		sum += h.Charge
	}
	return sum
}

// MaxCharge returns the largest hit charge, zero for an empty collection.
func (c Hit2DCollection) MaxCharge() float64 {
	var m float64
	for _, h := range c {
		m = max(m, h.Charge)
	}
	return m
}

// Clean returns the hits whose charge exceeds fraction of the largest hit
// charge within radius mm of them. A non-positive radius compares every hit
// against the largest charge of the collection. The receiver is not
// modified.
//
// The local reference keeps a faint track next to a bright one: the far end
// of an alpha is judged against the alpha's own Bragg peak, not against a
// heavy recoil on the other side of the vertex.
func (c Hit2DCollection) Clean(fraction, radius float64) Hit2DCollection {
	out := make(Hit2DCollection, 0, len(c))
	global := c.MaxCharge()
	for _, h := range c {
		ref := global
		if radius > 0 {
			ref = c.localMaxCharge(h.Point(), radius)
		}
		if h.Charge > fraction*ref+cleanFloor {
			out = append(out, h)
		}
	}
	return out
}

// localMaxCharge returns the largest charge of the hits within radius of p.
func (c Hit2DCollection) localMaxCharge(p r2.Vec, radius float64) float64 {
	var m float64
	r2max := radius * radius
	for _, h := range c {
		d := r2.Sub(h.Point(), p)
		if d.X*d.X+d.Y*d.Y <= r2max {
			m = max(m, h.Charge)
		}
	}
	return m
}
