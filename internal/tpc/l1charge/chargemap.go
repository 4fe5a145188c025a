package l1charge

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
)

// Key addresses one readout bin.
type Key struct {
	Proj   geometry.Projection
	Strip  int
	Sample int
}

// Bin is a populated bin of one projection.
type Bin struct {
	Strip  int
	Sample int
	Charge float64
}

// ChargeMap is the sparse raw input of one event. Missing keys carry zero
// charge. The map is filled once by the event source and treated as
// read-only by reconstruction.
type ChargeMap struct {
	bins map[Key]float64
}

// NewChargeMap returns an empty charge map.
func NewChargeMap() *ChargeMap {
	return &ChargeMap{bins: make(map[Key]float64)}
}

// Add accumulates charge q into (p, strip, sample).
func (m *ChargeMap) Add(p geometry.Projection, strip, sample int, q float64) {
	if q == 0 {
		return
	}
	m.bins[Key{Proj: p, Strip: strip, Sample: sample}] += q
}

// Charge returns the charge stored at (p, strip, sample), zero when absent.
func (m *ChargeMap) Charge(p geometry.Projection, strip, sample int) float64 {
	return m.bins[Key{Proj: p, Strip: strip, Sample: sample}]
}

// Len returns the number of populated bins over all projections.
func (m *ChargeMap) Len() int { return len(m.bins) }

// Bins returns the populated bins of p sorted by strip, then sample.
func (m *ChargeMap) Bins(p geometry.Projection) []Bin {
	var out []Bin
	for k, q := range m.bins {
		if k.Proj == p {
			out = append(out, Bin{Strip: k.Strip, Sample: k.Sample, Charge: q})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strip != out[j].Strip {
			return out[i].Strip < out[j].Strip
		}
		return out[i].Sample < out[j].Sample
	})
	return out
}

// TotalCharge sums the charge of p.
func (m *ChargeMap) TotalCharge(p geometry.Projection) float64 {
	var sum float64
	for k, q := range m.bins {
		if k.Proj == p {
			sum += q
		}
	}
	return sum
}

// MaxGridCells bounds the dense grid of one projection. Bins scattered
// further apart than any readout could produce fail with ErrGridTooLarge
// instead of forcing the allocation.
const MaxGridCells = 1 << 22

// ErrGridTooLarge reports a bounding box above MaxGridCells.
var ErrGridTooLarge = errors.New("charge map grid too large")

// Grid builds the dense charge profile of p covering the bounding box of its
// populated bins, merging stripRebin x timeRebin raw bins into one cell.
// Rebin factors below 1 are treated as 1. A projection without bins yields
// an empty Grid.
func (m *ChargeMap) Grid(p geometry.Projection, stripRebin, timeRebin int) (*Grid, error) {
	if stripRebin < 1 {
		stripRebin = 1
	}
	if timeRebin < 1 {
		timeRebin = 1
	}
	bins := m.Bins(p)
	g := &Grid{Proj: p, StripRebin: stripRebin, TimeRebin: timeRebin}
	if len(bins) == 0 {
		return g, nil
	}

	minS, maxS := bins[0].Strip, bins[0].Strip
	minT, maxT := bins[0].Sample, bins[0].Sample
	for _, b := range bins[1:] {
		minS = min(minS, b.Strip)
		maxS = max(maxS, b.Strip)
		minT = min(minT, b.Sample)
		maxT = max(maxT, b.Sample)
	}
	// Spans in float64 so far-apart int bins cannot overflow.
	nStrips := math.Floor((float64(maxS)-float64(minS))/float64(stripRebin)) + 1
	nSamples := math.Floor((float64(maxT)-float64(minT))/float64(timeRebin)) + 1
	if nStrips*nSamples > MaxGridCells {
		return nil, fmt.Errorf("projection %s: strips [%d, %d] x samples [%d, %d] needs %.0f cells, limit %d: %w",
			p, minS, maxS, minT, maxT, nStrips*nSamples, MaxGridCells, ErrGridTooLarge)
	}
	g.StripMin, g.SampleMin = minS, minT
	g.NStrips = int(nStrips)
	g.NSamples = int(nSamples)
	g.Values = make([]float64, g.NStrips*g.NSamples)
	for _, b := range bins {
		i := (b.Strip - minS) / stripRebin
		j := (b.Sample - minT) / timeRebin
		g.Values[g.Index(i, j)] += b.Charge
	}
	return g, nil
}
