package l2cluster

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tpcreco/internal/monitoring"
	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l1charge"
)

func init() {
	monitoring.SetLogger(nil)
}

// trackGrid paints a diagonal Gaussian ridge plus optional noise and spikes.
func trackGrid(noise float64, seed uint64) *l1charge.Grid {
	g := l1charge.NewGrid(geometry.U, 0, 0, 40, 60)
	rng := rand.New(rand.NewPCG(seed, seed+1))
	for i := 0; i < g.NStrips; i++ {
		centre := 10 + 1.0*float64(i)
		for j := 0; j < g.NSamples; j++ {
			d := (float64(j) - centre) / 1.2
			q := 200 * math.Exp(-0.5*d*d)
			if i < 5 || i > 34 {
				q = 0
			}
			q += noise * rng.NormFloat64()
			g.Set(i, j, q)
		}
	}
	return g
}

// ====================================================================
// Basic behaviour
// ====================================================================

func TestBuild_EmptyProfile(t *testing.T) {
	c := NewClusterer(DefaultParams()).Build(l1charge.NewGrid(geometry.U, 0, 0, 0, 0))
	assert.True(t, c.Empty())
	assert.Equal(t, 0.0, c.Sum())

	var nilGrid *l1charge.Grid
	assert.True(t, NewClusterer(DefaultParams()).Build(nilGrid).Empty())
}

func TestBuild_NoSeed(t *testing.T) {
	g := l1charge.NewGrid(geometry.V, 0, 0, 10, 10)
	for k := range g.Values {
		g.Values[k] = 5 // below seed threshold everywhere
	}
	c := NewClusterer(DefaultParams()).Build(g)
	assert.True(t, c.Empty())
	assert.Equal(t, 0, c.Seeds)
	assert.Equal(t, 0.0, c.Sum())
}

func TestBuild_IsolatedSpikeRemoved(t *testing.T) {
	g := l1charge.NewGrid(geometry.W, 0, 0, 10, 10)
	g.Set(5, 5, 100) // above seed, but its kernel sum (100) is below 150
	c := NewClusterer(DefaultParams()).Build(g)
	assert.True(t, c.Empty())
	assert.Equal(t, 1, c.Seeds)
}

func TestBuild_KeepsTrackDropsNoise(t *testing.T) {
	g := trackGrid(0, 1)
	// Far-away noise bins that no track bin reaches.
	g.Set(0, 59, 30)
	g.Set(39, 0, 15)

	c := NewClusterer(DefaultParams()).Build(g)
	require.False(t, c.Empty())
	assert.Equal(t, 0.0, c.Grid.At(0, 59))
	assert.Equal(t, 0.0, c.Grid.At(39, 0))
	// Ridge centre of strip 20 is at sample 30.
	assert.Equal(t, g.At(20, 30), c.Grid.At(20, 30))

	var want float64
	for _, q := range g.Values {
		if q > DefaultEmptyBinThreshold {
			want += q
		}
	}
	assert.InDelta(t, want-45, c.Sum(), 1e-6)

	// The input grid is left untouched.
	assert.Equal(t, 30.0, g.At(0, 59))
}

func TestBuild_KernelRadius(t *testing.T) {
	g := l1charge.NewGrid(geometry.U, 0, 0, 1, 12)
	for _, j := range []int{2, 3, 4} {
		g.Set(0, j, 80)
	}
	for _, j := range []int{7, 8, 9} {
		g.Set(0, j, 80)
	}

	narrow := BuildCluster(g, 50, Radius{Strip: 1, Time: 1})
	wide := BuildCluster(g, 50, Radius{Strip: 0, Time: 3})

	// Both keep every populated bin; the wide window also spans the gap.
	assert.Equal(t, 480.0, narrow.Sum())
	assert.Equal(t, 480.0, wide.Sum())
	// A single 80 with a radius-0 strip window never reaches 150 alone,
	// but 3 consecutive bins do.
	lone := l1charge.NewGrid(geometry.U, 0, 0, 1, 5)
	lone.Set(0, 2, 80)
	assert.True(t, BuildCluster(lone, 50, Radius{Strip: 0, Time: 3}).Empty())
}

func TestBuild_KernelSumMustExceedThreshold(t *testing.T) {
	g := l1charge.NewGrid(geometry.U, 0, 0, 1, 5)
	g.Set(0, 1, 50)
	g.Set(0, 2, 50)
	g.Set(0, 3, 50)

	p := DefaultParams()
	p.Kernel = Radius{Strip: 0, Time: 1}

	// The centre window sums to exactly 150.
	p.KernelSumThreshold = 150
	assert.True(t, NewClusterer(p).Build(g).Empty(), "a sum equal to the threshold is not a core bin")

	p.KernelSumThreshold = 149.5
	c := NewClusterer(p).Build(g)
	require.False(t, c.Empty())
	assert.Equal(t, 150.0, c.Sum())
}

// ====================================================================
// Fixed-point property
// ====================================================================

func TestBuild_Idempotent(t *testing.T) {
	for _, seed := range []uint64{1, 2, 3, 4, 5} {
		g := trackGrid(6, seed)
		cl := NewClusterer(DefaultParams())

		first := cl.Build(g)
		second := cl.Build(first.Grid)

		require.False(t, first.Empty())
		if diff := cmp.Diff(first.Grid.Values, second.Grid.Values); diff != "" {
			t.Fatalf("seed %d: re-clustering changed the cluster (-first +second):\n%s", seed, diff)
		}
		assert.Equal(t, first.Members, second.Members)
	}
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.Kernel.Time = -1
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.SeedThreshold = p.EmptyBinThreshold
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.KernelSumThreshold = -5
	assert.Error(t, p.Validate())
}
