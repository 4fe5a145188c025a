package l2cluster

import (
	"fmt"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/l1charge"
)

// Constants for clustering configuration
const (
	// DefaultSeedThreshold is the minimum bin charge that starts a flood fill.
	DefaultSeedThreshold = 20.0
	// DefaultKernelSumThreshold is the minimum charge summed over a kernel
	// window for its centre bin to spread the cluster.
	DefaultKernelSumThreshold = 150.0
	// DefaultEmptyBinThreshold is the charge at or below which a bin is
	// treated as empty: it neither counts towards kernel sums nor joins.
	DefaultEmptyBinThreshold = 1.0
	// DefaultKernelRadius is the kernel half-width in grid cells on each axis.
	DefaultKernelRadius = 1
)

// Radius is the half-width of the kernel window in grid cells.
type Radius struct {
	Strip int
	Time  int
}

// Params configures the clusterer.
type Params struct {
	SeedThreshold      float64
	KernelSumThreshold float64
	EmptyBinThreshold  float64
	Kernel             Radius
}

// DefaultParams returns the default clustering parameters (3x3 kernel).
func DefaultParams() Params {
	return Params{
		SeedThreshold:      DefaultSeedThreshold,
		KernelSumThreshold: DefaultKernelSumThreshold,
		EmptyBinThreshold:  DefaultEmptyBinThreshold,
		Kernel:             Radius{Strip: DefaultKernelRadius, Time: DefaultKernelRadius},
	}
}

// Validate checks parameter consistency.
func (p Params) Validate() error {
	if p.Kernel.Strip < 0 || p.Kernel.Time < 0 {
		return fmt.Errorf("kernel radius must be non-negative, got %d x %d", p.Kernel.Strip, p.Kernel.Time)
	}
	if p.SeedThreshold <= p.EmptyBinThreshold {
		return fmt.Errorf("seed threshold %g must exceed empty-bin threshold %g", p.SeedThreshold, p.EmptyBinThreshold)
	}
	if p.KernelSumThreshold < 0 {
		return fmt.Errorf("kernel-sum threshold must be non-negative, got %g", p.KernelSumThreshold)
	}
	return nil
}

// Cluster is a cleaned charge profile: the input grid with every bin outside
// the cluster set to zero.
type Cluster struct {
	Grid *l1charge.Grid
	// Members is the number of bins kept.
	Members int
	// Seeds is the number of seed bins that started a fill.
	Seeds int
}

// Empty reports the no-seed (or all-noise) outcome. Callers skip the projection.
func (c *Cluster) Empty() bool { return c == nil || c.Members == 0 }

// Sum returns the cluster charge.
func (c *Cluster) Sum() float64 {
	if c.Empty() {
		return 0
	}
	return c.Grid.Sum()
}

// Clusterer builds clusters with fixed parameters. It holds no per-event
// state and is safe for concurrent use.
type Clusterer struct {
	params Params
}

// NewClusterer creates a clusterer.
func NewClusterer(p Params) *Clusterer {
	return &Clusterer{params: p}
}

// Params returns the clusterer configuration.
func (c *Clusterer) Params() Params { return c.params }

// BuildCluster clusters profile with the given seed threshold and kernel
// radius, using the default kernel-sum and empty-bin thresholds.
func BuildCluster(profile *l1charge.Grid, seedThreshold float64, kernel Radius) *Cluster {
	p := DefaultParams()
	p.SeedThreshold = seedThreshold
	p.Kernel = kernel
	return NewClusterer(p).Build(profile)
}

// Build flood-fills profile from every seed bin (charge >= SeedThreshold).
//
// A reached bin is a core bin when the above-empty charge inside its kernel
// window exceeds KernelSumThreshold. Every above-empty bin inside a core
// window joins the cluster and is queued, so the fill spreads through
// correlated charge and stops at isolated spikes. Bins that never join are
// zeroed. The result is a fixed point: rebuilding it with the same
// parameters reproduces it exactly.
func (c *Clusterer) Build(profile *l1charge.Grid) *Cluster {
	if profile.Empty() {
		return &Cluster{Grid: profile}
	}
	g := profile
	p := c.params
	n := len(g.Values)

	member := make([]bool, n)
	reached := make([]bool, n)
	queue := make([]int, 0, 64)
	seeds := 0

	for k, q := range g.Values {
		if q < p.SeedThreshold || reached[k] {
			continue
		}
		seeds++
		reached[k] = true
		queue = append(queue[:0], k)
		for head := 0; head < len(queue); head++ {
			idx := queue[head]
			i, j := idx/g.NSamples, idx%g.NSamples
			if c.kernelSum(g, i, j) <= p.KernelSumThreshold {
				continue // not a core bin
			}
			for ii := max(0, i-p.Kernel.Strip); ii <= min(g.NStrips-1, i+p.Kernel.Strip); ii++ {
				for jj := max(0, j-p.Kernel.Time); jj <= min(g.NSamples-1, j+p.Kernel.Time); jj++ {
					nb := g.Index(ii, jj)
					if g.Values[nb] <= p.EmptyBinThreshold {
						continue
					}
					member[nb] = true
					if !reached[nb] {
						reached[nb] = true
						queue = append(queue, nb)
					}
				}
			}
		}
	}

	out := g.Clone()
	members := 0
	for k := range out.Values {
		if member[k] {
			members++
			continue
		}
		out.Values[k] = 0
	}
	monitoring.Logf("[cluster] projection %s: %d seeds, %d/%d bins kept", g.Proj, seeds, members, n)
	return &Cluster{Grid: out, Members: members, Seeds: seeds}
}

// kernelSum sums above-empty charge in the window centred on (i, j).
func (c *Clusterer) kernelSum(g *l1charge.Grid, i, j int) float64 {
	p := c.params
	var sum float64
	for ii := max(0, i-p.Kernel.Strip); ii <= min(g.NStrips-1, i+p.Kernel.Strip); ii++ {
		for jj := max(0, j-p.Kernel.Time); jj <= min(g.NSamples-1, j+p.Kernel.Time); jj++ {
			if q := g.Values[g.Index(ii, jj)]; q > p.EmptyBinThreshold {
				sum += q
			}
		}
	}
	return sum
}
