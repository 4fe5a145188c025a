package profile

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Profile is a uniformly binned charge profile along a track. Bin i covers
// [Start+i*BinWidth, Start+(i+1)*BinWidth).
type Profile struct {
	Start    float64
	BinWidth float64
	Values   []float64
}

// Builder accumulates charge into a fixed binning.
type Builder struct {
	bins  []float64
	start float64
	width float64
	n     int
}

// NewBuilder prepares n bins starting at start with the given width.
// n is forced to at least 1.
func NewBuilder(start, binWidth float64, n int) *Builder {
	if n < 1 {
		n = 1
	}
	if binWidth <= 0 {
		binWidth = 1
	}
	return &Builder{
		bins:  make([]float64, n),
		start: start,
		width: binWidth,
		n:     n,
	}
}

// NewBuilderRange prepares bins of the given width covering [lo, hi].
func NewBuilderRange(lo, hi, binWidth float64) *Builder {
	if binWidth <= 0 {
		binWidth = 1
	}
	n := int(math.Ceil((hi - lo) / binWidth))
	return NewBuilder(lo, binWidth, n)
}

// Fill adds weight w at position x. Positions outside the binning are dropped.
func (b *Builder) Fill(x, w float64) {
	if math.IsNaN(x) || math.IsNaN(w) {
		return
	}
	i := int(math.Floor((x - b.start) / b.width))
	if i < 0 || i >= b.n {
		return
	}
	b.bins[i] += w
}

// FillSpread distributes weight w uniformly over [lo, hi], splitting it
// between the bins the interval overlaps. A degenerate interval behaves
// like Fill.
func (b *Builder) FillSpread(lo, hi, w float64) {
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi-lo < 1e-12 {
		b.Fill(lo, w)
		return
	}
	first := int(math.Floor((lo - b.start) / b.width))
	last := int(math.Floor((hi - b.start) / b.width))
	for i := max(first, 0); i <= min(last, b.n-1); i++ {
		binLo := b.start + float64(i)*b.width
		overlap := math.Min(hi, binLo+b.width) - math.Max(lo, binLo)
		if overlap <= 0 {
			continue
		}
		b.bins[i] += w * overlap / (hi - lo)
	}
}

// Profile snapshots the accumulated bin contents.
func (b *Builder) Profile() *Profile {
	return New(b.start, b.width, b.bins)
}

// New returns a profile holding a copy of values.
func New(start, binWidth float64, values []float64) *Profile {
	return &Profile{Start: start, BinWidth: binWidth, Values: append([]float64(nil), values...)}
}

// Len returns the number of bins.
func (p *Profile) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Values)
}

// End returns the upper edge of the last bin.
func (p *Profile) End() float64 { return p.Start + float64(len(p.Values))*p.BinWidth }

// Center returns the centre of bin i.
func (p *Profile) Center(i int) float64 { return p.Start + (float64(i)+0.5)*p.BinWidth }

// Integral returns the summed bin contents.
func (p *Profile) Integral() float64 {
	if p.Len() == 0 {
		return 0
	}
	return floats.Sum(p.Values)
}

// MaxBin returns the index and content of the largest bin, or (-1, 0) when empty.
func (p *Profile) MaxBin() (int, float64) {
	if p.Len() == 0 {
		return -1, 0
	}
	i := floats.MaxIdx(p.Values)
	return i, p.Values[i]
}

// Edges returns the centres of the first and last bins whose content reaches
// fraction of the maximum. ok is false for an empty or all-zero profile.
func (p *Profile) Edges(fraction float64) (lo, hi float64, ok bool) {
	_, peak := p.MaxBin()
	if peak <= 0 {
		return 0, 0, false
	}
	thr := fraction * peak
	first, last := -1, -1
	for i, v := range p.Values {
		if v >= thr {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	return p.Center(first), p.Center(last), true
}

// Reflect mirrors the profile about its centre, keeping the binning.
func (p *Profile) Reflect() *Profile {
	out := New(p.Start, p.BinWidth, p.Values)
	floats.Reverse(out.Values)
	return out
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile { return New(p.Start, p.BinWidth, p.Values) }
