package l1charge

import (
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
)

// Grid is a dense, possibly rebinned, charge profile of one projection.
// Cell (i, j) covers raw strips StripMin+i*StripRebin ... +StripRebin-1 and
// raw samples SampleMin+j*TimeRebin ... +TimeRebin-1. Values is row-major
// with one row per strip cell.
type Grid struct {
	Proj       geometry.Projection
	StripMin   int
	SampleMin  int
	NStrips    int
	NSamples   int
	StripRebin int
	TimeRebin  int
	Values     []float64
}

// NewGrid allocates a zeroed grid.
func NewGrid(p geometry.Projection, stripMin, sampleMin, nStrips, nSamples int) *Grid {
	return &Grid{
		Proj:       p,
		StripMin:   stripMin,
		SampleMin:  sampleMin,
		NStrips:    nStrips,
		NSamples:   nSamples,
		StripRebin: 1,
		TimeRebin:  1,
		Values:     make([]float64, nStrips*nSamples),
	}
}

// Empty reports whether the grid holds no cells.
func (g *Grid) Empty() bool { return g == nil || len(g.Values) == 0 }

// Index returns the offset of cell (i, j) in Values.
func (g *Grid) Index(i, j int) int { return i*g.NSamples + j }

// At returns the charge of cell (i, j); out-of-range cells read as zero.
func (g *Grid) At(i, j int) float64 {
	if i < 0 || j < 0 || i >= g.NStrips || j >= g.NSamples {
		return 0
	}
	return g.Values[g.Index(i, j)]
}

// Set stores q in cell (i, j).
func (g *Grid) Set(i, j int, q float64) { g.Values[g.Index(i, j)] = q }

// Sum returns the total charge of the grid.
func (g *Grid) Sum() float64 {
	if g.Empty() {
		return 0
	}
	return floats.Sum(g.Values)
}

// Max returns the largest cell value and its position.
func (g *Grid) Max() (q float64, i, j int) {
	if g.Empty() {
		return 0, -1, -1
	}
	k := floats.MaxIdx(g.Values)
	return g.Values[k], k / g.NSamples, k % g.NSamples
}

// Row returns a copy of the time slice of strip cell i.
func (g *Grid) Row(i int) []float64 {
	out := make([]float64, g.NSamples)
	copy(out, g.Values[g.Index(i, 0):g.Index(i, 0)+g.NSamples])
	return out
}

// Column returns a copy of the strip slice of time cell j.
func (g *Grid) Column(j int) []float64 {
	out := make([]float64, g.NStrips)
	for i := range out {
		out[i] = g.Values[g.Index(i, j)]
	}
	return out
}

// StripIndex converts a fractional cell coordinate along the strip axis to
// a fractional raw strip index (cell centres map to the mean of their raw
// strips).
func (g *Grid) StripIndex(ci float64) float64 {
	return float64(g.StripMin) + ci*float64(g.StripRebin) + float64(g.StripRebin-1)/2
}

// SampleIndex is the time-axis counterpart of StripIndex.
func (g *Grid) SampleIndex(cj float64) float64 {
	return float64(g.SampleMin) + cj*float64(g.TimeRebin) + float64(g.TimeRebin-1)/2
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := *g
	c.Values = append([]float64(nil), g.Values...)
	return &c
}
