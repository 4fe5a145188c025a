package geometry

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// Projection identifies one strip plane of the readout.
type Projection int

const (
	U Projection = iota
	V
	W
)

// NumProjections is the number of strip planes.
const NumProjections = 3

// Projections lists every projection in index order.
var Projections = [NumProjections]Projection{U, V, W}

// ErrUnknownProjection is returned by ParseProjection for unrecognised names.
var ErrUnknownProjection = errors.New("unknown projection")

func (p Projection) String() string {
	switch p {
	case U:
		return "U"
	case V:
		return "V"
	case W:
		return "W"
	}
	return fmt.Sprintf("Projection(%d)", int(p))
}

// Valid reports whether p is one of U, V, W.
func (p Projection) Valid() bool { return p >= U && p <= W }

// ParseProjection parses "U", "V" or "W" (case-insensitive).
func ParseProjection(s string) (Projection, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "U":
		return U, nil
	case "V":
		return V, nil
	case "W":
		return W, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProjection, s)
}

// Provider maps discretized readout coordinates to physical units.
// The time axis of every projection is the drift (z) axis.
type Provider interface {
	// ProjectionPitch returns the strip pitch of p in mm.
	ProjectionPitch(p Projection) float64
	// TimeBinWidth returns the drift distance covered by one time sample in mm.
	TimeBinWidth() float64
	// PitchDirection returns the unit vector in the XY plane along which the
	// strip coordinate of p increases.
	PitchDirection(p Projection) r2.Vec
	// PhysicalPosition converts fractional strip and sample indices of p to
	// the strip coordinate and the drift coordinate, both in mm.
	PhysicalPosition(p Projection, strip, sample float64) (alongStrip, alongTime float64)
	// ChamberRadius returns the radius in mm of the sensitive volume,
	// modelled as a sphere centred on the origin.
	ChamberRadius() float64
}

// Default readout parameters.
const (
	DefaultStripPitchMM    = 1.5
	DefaultTimeBinMM       = 0.65
	DefaultChamberRadiusMM = 100.0
)

// UVW is a three-plane strip readout with pitch directions at pi, pi/3 and
// -pi/3 and a uniform drift sampling. Strip 0 and sample 0 sit at -radius so
// every point inside the chamber maps to non-negative indices.
type UVW struct {
	Pitch   float64
	TimeBin float64
	Radius  float64

	dirs [NumProjections]r2.Vec
}

var _ Provider = (*UVW)(nil)

// NewUVW builds a UVW readout. Non-positive arguments fall back to the defaults.
func NewUVW(pitch, timeBin, radius float64) *UVW {
	if pitch <= 0 {
		pitch = DefaultStripPitchMM
	}
	if timeBin <= 0 {
		timeBin = DefaultTimeBinMM
	}
	if radius <= 0 {
		radius = DefaultChamberRadiusMM
	}
	g := &UVW{Pitch: pitch, TimeBin: timeBin, Radius: radius}
	for i, phi := range [NumProjections]float64{math.Pi, math.Pi / 3, -math.Pi / 3} {
		g.dirs[i] = r2.Vec{X: math.Cos(phi), Y: math.Sin(phi)}
	}
	return g
}

// DefaultUVW returns the readout used by the default configuration.
func DefaultUVW() *UVW {
	return NewUVW(DefaultStripPitchMM, DefaultTimeBinMM, DefaultChamberRadiusMM)
}

func (g *UVW) ProjectionPitch(Projection) float64 { return g.Pitch }
func (g *UVW) TimeBinWidth() float64             { return g.TimeBin }
func (g *UVW) ChamberRadius() float64            { return g.Radius }

func (g *UVW) PitchDirection(p Projection) r2.Vec {
	if !p.Valid() {
		return r2.Vec{}
	}
	return g.dirs[p]
}

func (g *UVW) PhysicalPosition(p Projection, strip, sample float64) (alongStrip, alongTime float64) {
	return strip*g.Pitch - g.Radius, sample*g.TimeBin - g.Radius
}

// StripCoordinate returns the strip coordinate in mm of the point (x, y).
func (g *UVW) StripCoordinate(p Projection, x, y float64) float64 {
	return r2.Dot(r2.Vec{X: x, Y: y}, g.PitchDirection(p))
}

// StripOf returns the fractional strip index of (x, y) in projection p.
func (g *UVW) StripOf(p Projection, x, y float64) float64 {
	return (g.StripCoordinate(p, x, y) + g.Radius) / g.Pitch
}

// SampleOf returns the fractional time-sample index of drift coordinate z.
func (g *UVW) SampleOf(z float64) float64 {
	return (z + g.Radius) / g.TimeBin
}
