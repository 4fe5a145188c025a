package l1charge

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
)

func TestChargeMap_AddAccumulates(t *testing.T) {
	m := NewChargeMap()
	m.Add(geometry.U, 3, 7, 10)
	m.Add(geometry.U, 3, 7, 5)
	m.Add(geometry.V, 3, 7, 1)
	m.Add(geometry.W, 0, 0, 0) // zero charge is not stored

	assert.Equal(t, 15.0, m.Charge(geometry.U, 3, 7))
	assert.Equal(t, 1.0, m.Charge(geometry.V, 3, 7))
	assert.Equal(t, 0.0, m.Charge(geometry.W, 3, 7))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 15.0, m.TotalCharge(geometry.U))
}

func TestChargeMap_BinsSorted(t *testing.T) {
	m := NewChargeMap()
	m.Add(geometry.V, 5, 1, 1)
	m.Add(geometry.V, 2, 9, 2)
	m.Add(geometry.V, 2, 3, 3)
	m.Add(geometry.U, 0, 0, 4)

	want := []Bin{{2, 3, 3}, {2, 9, 2}, {5, 1, 1}}
	if diff := cmp.Diff(want, m.Bins(geometry.V)); diff != "" {
		t.Errorf("Bins(V) mismatch (-want +got):\n%s", diff)
	}
}

func TestChargeMap_Grid(t *testing.T) {
	m := NewChargeMap()
	m.Add(geometry.W, 10, 20, 1)
	m.Add(geometry.W, 12, 23, 2)
	m.Add(geometry.W, 11, 20, 4)

	g, err := m.Grid(geometry.W, 1, 1)
	require.NoError(t, err)
	require.False(t, g.Empty())
	assert.Equal(t, 10, g.StripMin)
	assert.Equal(t, 20, g.SampleMin)
	assert.Equal(t, 3, g.NStrips)
	assert.Equal(t, 4, g.NSamples)
	assert.Equal(t, 1.0, g.At(0, 0))
	assert.Equal(t, 4.0, g.At(1, 0))
	assert.Equal(t, 2.0, g.At(2, 3))
	assert.Equal(t, 0.0, g.At(5, 5))
	assert.Equal(t, 7.0, g.Sum())

	q, i, j := g.Max()
	assert.Equal(t, 4.0, q)
	assert.Equal(t, 1, i)
	assert.Equal(t, 0, j)

	assert.Equal(t, []float64{1, 0, 0, 0}, g.Row(0))
	assert.Equal(t, []float64{1, 4, 0}, g.Column(0))
}

func TestChargeMap_GridRebin(t *testing.T) {
	m := NewChargeMap()
	for s := 0; s < 4; s++ {
		for tm := 0; tm < 6; tm++ {
			m.Add(geometry.U, s, tm, 1)
		}
	}
	g, err := m.Grid(geometry.U, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NStrips)
	assert.Equal(t, 2, g.NSamples)
	for _, v := range g.Values {
		assert.Equal(t, 6.0, v)
	}
	// Cell centres sit between the merged raw bins.
	assert.Equal(t, 0.5, g.StripIndex(0))
	assert.Equal(t, 2.5, g.StripIndex(1))
	assert.Equal(t, 1.0, g.SampleIndex(0))
	assert.Equal(t, 4.0, g.SampleIndex(1))
}

func TestChargeMap_GridEmptyProjection(t *testing.T) {
	m := NewChargeMap()
	m.Add(geometry.U, 1, 1, 1)
	g, err := m.Grid(geometry.V, 1, 1)
	require.NoError(t, err)
	assert.True(t, g.Empty())
	assert.Equal(t, 0.0, g.Sum())
	_, i, j := g.Max()
	assert.Equal(t, -1, i)
	assert.Equal(t, -1, j)
}

func TestChargeMap_GridTooLarge(t *testing.T) {
	m := NewChargeMap()
	m.Add(geometry.U, 0, 0, 5)
	m.Add(geometry.U, 1_000_000, 1_000_000, 5)
	_, err := m.Grid(geometry.U, 1, 1)
	assert.ErrorIs(t, err, ErrGridTooLarge)

	// Rebinning brings the same span under the limit.
	g, err := m.Grid(geometry.U, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1001, g.NStrips)
	assert.Equal(t, 10.0, g.Sum())

	extreme := NewChargeMap()
	extreme.Add(geometry.W, math.MinInt, 0, 1)
	extreme.Add(geometry.W, math.MaxInt, 0, 1)
	_, err = extreme.Grid(geometry.W, 1, 1)
	assert.ErrorIs(t, err, ErrGridTooLarge)
}

func TestGrid_Clone(t *testing.T) {
	g := NewGrid(geometry.U, 0, 0, 2, 2)
	g.Set(1, 1, 3)
	c := g.Clone()
	c.Set(1, 1, 9)
	assert.Equal(t, 3.0, g.At(1, 1))
	assert.Equal(t, 9.0, c.At(1, 1))
}

func TestCSV_RoundTrip(t *testing.T) {
	m := NewChargeMap()
	m.Add(geometry.U, 1, 2, 3.5)
	m.Add(geometry.W, 7, 8, 100)
	m.Add(geometry.V, 4, 4, 0.25)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, m))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "projection,strip,sample,charge", lines[0])
	assert.Equal(t, "U,1,2,3.5", lines[1])
	assert.Equal(t, "V,4,4,0.25", lines[2])

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	for _, p := range geometry.Projections {
		if diff := cmp.Diff(m.Bins(p), back.Bins(p)); diff != "" {
			t.Errorf("projection %s mismatch (-want +got):\n%s", p, diff)
		}
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad header", "a,b,c,d\nU,1,1,1\n"},
		{"bad projection", "projection,strip,sample,charge\nX,1,1,1\n"},
		{"bad strip", "projection,strip,sample,charge\nU,x,1,1\n"},
		{"bad sample", "projection,strip,sample,charge\nU,1,y,1\n"},
		{"bad charge", "projection,strip,sample,charge\nU,1,1,z\n"},
		{"short record", "projection,strip,sample,charge\nU,1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}
