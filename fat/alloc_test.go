package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkfs-go/fscore"
)

func newTestAllocator(numClusters uint32) (*Allocator, *Table12) {
	// +2 reserved entries (0, 1) plus numClusters data entries.
	table := NewBlankTable12((numClusters+2)*3/2+2, 0xF0)
	return NewAllocator(table, numClusters), table
}

func TestAllocateChainLinksInOrder(t *testing.T) {
	alloc, table := newTestAllocator(10)

	chain, err := alloc.AllocateChain(3)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.EqualValues(t, 3, chain[0])
	assert.EqualValues(t, 4, chain[1])
	assert.EqualValues(t, 5, chain[2])

	v0, _ := table.ReadEntry(uint32(chain[0]))
	assert.EqualValues(t, chain[1], v0)
	v1, _ := table.ReadEntry(uint32(chain[1]))
	assert.EqualValues(t, chain[2], v1)
	v2, _ := table.ReadEntry(uint32(chain[2]))
	assert.True(t, IsEndOfChain(v2))
}

func TestAllocateChainNoSpaceRollsBack(t *testing.T) {
	alloc, table := newTestAllocator(3) // clusters 3, 4 only usable

	_, err := alloc.AllocateChain(5)
	require.ErrorIs(t, err, fscore.ErrNoSpaceOnDevice)

	// Every cluster must be free again after the rollback.
	for c := uint32(3); c < 5; c++ {
		v, err := table.ReadEntry(c)
		require.NoError(t, err)
		assert.EqualValues(t, 0, v)
	}
}

func TestFreeChainAndListChain(t *testing.T) {
	alloc, _ := newTestAllocator(10)
	chain, err := alloc.AllocateChain(3)
	require.NoError(t, err)

	listed, err := alloc.ListChain(chain[0])
	require.NoError(t, err)
	assert.Equal(t, chain, listed)

	require.NoError(t, alloc.FreeChain(chain[0]))
	for _, c := range chain {
		free, err := alloc.FindFree()
		require.NoError(t, err)
		assert.True(t, free != 0)
		_ = c
	}
}

func TestReusesFreedClustersInAscendingOrder(t *testing.T) {
	alloc, _ := newTestAllocator(12)

	a, err := alloc.AllocateChain(2)
	require.NoError(t, err)
	b, err := alloc.AllocateChain(2)
	require.NoError(t, err)
	c, err := alloc.AllocateChain(2)
	require.NoError(t, err)
	_ = c

	require.NoError(t, alloc.FreeChain(b[0]))

	d, err := alloc.AllocateChain(2)
	require.NoError(t, err)
	assert.Equal(t, b, d)
	_ = a
}

func TestAppendClusterExtendsChain(t *testing.T) {
	alloc, table := newTestAllocator(10)
	chain, err := alloc.AllocateChain(1)
	require.NoError(t, err)

	next, err := alloc.AppendCluster(chain[len(chain)-1])
	require.NoError(t, err)

	v, err := table.ReadEntry(uint32(chain[len(chain)-1]))
	require.NoError(t, err)
	assert.EqualValues(t, next, v)

	vNext, err := table.ReadEntry(uint32(next))
	require.NoError(t, err)
	assert.True(t, IsEndOfChain(vNext))
}
