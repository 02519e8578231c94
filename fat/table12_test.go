package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable12RoundTrip(t *testing.T) {
	table := NewTable12(make([]byte, 12))

	require.NoError(t, table.WriteEntry(2, 0x345))
	require.NoError(t, table.WriteEntry(3, uint16(EndOfChain)))

	v2, err := table.ReadEntry(2)
	require.NoError(t, err)
	assert.EqualValues(t, 0x345, v2)

	v3, err := table.ReadEntry(3)
	require.NoError(t, err)
	assert.True(t, IsEndOfChain(v3))
}

func TestTable12WriteDoesNotClobberNeighbor(t *testing.T) {
	table := NewTable12(make([]byte, 12))
	require.NoError(t, table.WriteEntry(4, 0xABC))
	require.NoError(t, table.WriteEntry(5, 0x123))

	v4, err := table.ReadEntry(4)
	require.NoError(t, err)
	assert.EqualValues(t, 0xABC, v4)

	v5, err := table.ReadEntry(5)
	require.NoError(t, err)
	assert.EqualValues(t, 0x123, v5)
}

func TestNewBlankTable12StampsReservedEntries(t *testing.T) {
	table := NewBlankTable12(12, 0xF0)

	v0, err := table.ReadEntry(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0xFF0, v0)

	v1, err := table.ReadEntry(1)
	require.NoError(t, err)
	assert.EqualValues(t, 0xFFF, v1)
}

func TestTable12ReadOutOfRange(t *testing.T) {
	table := NewTable12(make([]byte, 3))
	_, err := table.ReadEntry(100)
	require.Error(t, err)
}

func TestIsValidClusterBoundaries(t *testing.T) {
	assert.False(t, IsValidCluster(0x000))
	assert.False(t, IsValidCluster(0x001))
	assert.True(t, IsValidCluster(0x002))
	assert.True(t, IsValidCluster(0xFEF))
	assert.False(t, IsValidCluster(0xFF0))
}
