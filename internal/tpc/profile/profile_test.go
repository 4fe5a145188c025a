package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_FillSpread(t *testing.T) {
	b := NewBuilder(0, 1, 10)
	b.FillSpread(1.5, 3.5, 4) // 0.5 in bin 1, 1 in bin 2, 0.5 in bin 3
	b.Fill(7.2, 2)
	b.Fill(-3, 100) // underflow dropped
	b.FillSpread(9.5, 12.5, 3)

	p := b.Profile()
	require.Equal(t, 10, p.Len())
	assert.InDelta(t, 1.0, p.Values[1], 1e-12)
	assert.InDelta(t, 2.0, p.Values[2], 1e-12)
	assert.InDelta(t, 1.0, p.Values[3], 1e-12)
	assert.InDelta(t, 2.0, p.Values[7], 1e-12)
	assert.InDelta(t, 0.5, p.Values[9], 1e-12)
	assert.InDelta(t, 6.5, p.Integral(), 1e-12)
}

func TestBuilder_Range(t *testing.T) {
	b := NewBuilderRange(-2, 3, 0.5)
	p := b.Profile()
	assert.Equal(t, 10, p.Len())
	assert.Equal(t, -2.0, p.Start)
	assert.InDelta(t, 3.0, p.End(), 1e-12)
	assert.InDelta(t, -1.75, p.Center(0), 1e-12)
}

func TestProfile_MaxBinEdgesReflect(t *testing.T) {
	p := New(10, 2, []float64{0, 1, 5, 20, 3, 0})

	i, v := p.MaxBin()
	assert.Equal(t, 3, i)
	assert.Equal(t, 20.0, v)

	lo, hi, ok := p.Edges(0.05)
	require.True(t, ok)
	assert.Equal(t, p.Center(1), lo)
	assert.Equal(t, p.Center(4), hi)

	r := p.Reflect()
	assert.Equal(t, []float64{0, 3, 20, 5, 1, 0}, r.Values)
	assert.Equal(t, []float64{0, 1, 5, 20, 3, 0}, p.Values, "Reflect must not modify the receiver")
	assert.Equal(t, p.Integral(), r.Integral())
}

func TestProfile_Empty(t *testing.T) {
	var p *Profile
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0.0, p.Integral())

	z := New(0, 1, []float64{0, 0})
	_, _, ok := z.Edges(0.1)
	assert.False(t, ok)
	i, _ := New(0, 1, nil).MaxBin()
	assert.Equal(t, -1, i)
}
