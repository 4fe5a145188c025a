package ions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_MassMeV(t *testing.T) {
	tab := DefaultTable()
	tests := []struct {
		ion  Ion
		want float64
	}{
		{Proton, 938.272},
		{Alpha, 3727.379},
		{C12, 11174.862},
	}
	for _, tt := range tests {
		t.Run(tt.ion.String(), func(t *testing.T) {
			m, err := tab.MassMeV(tt.ion)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, m, 0.01)
		})
	}
}

func TestTable_Unknown(t *testing.T) {
	tab := NewTable(map[Ion]Properties{Alpha: defaultProperties[Alpha]})
	_, err := tab.MassMeV(C12)
	assert.True(t, errors.Is(err, ErrUnknownIon))

	_, err = tab.Parse("C12")
	assert.True(t, errors.Is(err, ErrUnknownIon))
	assert.Equal(t, []Ion{Alpha}, tab.Ions())
}

func TestParseIon(t *testing.T) {
	tests := map[string]Ion{
		"He4":    Alpha,
		"alpha":  Alpha,
		" c12 ":  C12,
		"proton": Proton,
		"O18":    O18,
	}
	for in, want := range tests {
		got, err := ParseIon(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseIon("Xe")
	assert.ErrorIs(t, err, ErrUnknownIon)
}

func TestIon_String(t *testing.T) {
	assert.Equal(t, "C14", C14.String())
	assert.Equal(t, "Ion(42)", Ion(42).String())
	assert.Equal(t, "Ion(0)", Unknown.String())
}

func TestTable_Ions(t *testing.T) {
	all := DefaultTable().Ions()
	require.Len(t, all, 9)
	assert.Equal(t, Proton, all[0])
	assert.Equal(t, O18, all[len(all)-1])
}
