package fat

import (
	"github.com/mkfs-go/fscore"
)

// Allocator locates, chains, and releases clusters in a Table12. Entries 0
// through 2 are never considered free: 0 and 1 are the reserved media
// descriptor / end-of-chain markers (spec invariant 4), and scanning starts
// at 3 per spec §4.3.
type Allocator struct {
	table       *Table12
	numClusters uint32
}

func NewAllocator(table *Table12, numClusters uint32) *Allocator {
	return &Allocator{table: table, numClusters: numClusters}
}

// FindFree returns the first free cluster at index >= 3, or 0 if the volume
// is full.
func (a *Allocator) FindFree() (ClusterID, error) {
	for c := uint32(3); c < a.numClusters+2; c++ {
		v, err := a.table.ReadEntry(c)
		if err != nil {
			return 0, err
		}
		if ClusterID(v) == clusterFree {
			return ClusterID(c), nil
		}
	}
	return 0, nil
}

// AllocateChain reserves n clusters (n >= 1), links them into a chain in
// ascending order of discovery, and terminates the chain with EndOfChain. It
// returns fscore.ErrNoSpaceOnDevice if fewer than n clusters are free,
// leaving the table unmodified in that case.
func (a *Allocator) AllocateChain(n uint) ([]ClusterID, error) {
	if n == 0 {
		return nil, fscore.ErrInvalidArgument.WithMessage("cannot allocate a chain of zero clusters")
	}

	chain := make([]ClusterID, 0, n)
	for uint(len(chain)) < n {
		free, err := a.FindFree()
		if err != nil {
			return nil, err
		}
		if free == 0 {
			a.rollback(chain)
			return nil, fscore.ErrNoSpaceOnDevice
		}
		if err := a.table.WriteEntry(uint32(free), uint16(EndOfChain)); err != nil {
			a.rollback(chain)
			return nil, err
		}
		if len(chain) > 0 {
			if err := a.table.WriteEntry(uint32(chain[len(chain)-1]), uint16(free)); err != nil {
				a.rollback(chain)
				return nil, err
			}
		}
		chain = append(chain, free)
	}
	return chain, nil
}

// rollback frees every cluster already claimed by a failed AllocateChain
// call so a NoSpace error doesn't leak clusters.
func (a *Allocator) rollback(chain []ClusterID) {
	for _, c := range chain {
		a.table.WriteEntry(uint32(c), uint16(clusterFree))
	}
}

// FreeChain walks the chain starting at start, zeroing every entry, stopping
// once it reads an end-of-chain marker.
func (a *Allocator) FreeChain(start ClusterID) error {
	if start == 0 {
		return nil
	}
	current := start
	for {
		v, err := a.table.ReadEntry(uint32(current))
		if err != nil {
			return err
		}
		if err := a.table.WriteEntry(uint32(current), uint16(clusterFree)); err != nil {
			return err
		}
		if IsEndOfChain(v) {
			break
		}
		current = ClusterID(v)
	}
	return nil
}

// ListChain returns every cluster in the chain starting at start, in order.
func (a *Allocator) ListChain(start ClusterID) ([]ClusterID, error) {
	if start == 0 {
		return nil, nil
	}
	var chain []ClusterID
	current := start
	for {
		chain = append(chain, current)
		v, err := a.table.ReadEntry(uint32(current))
		if err != nil {
			return chain, err
		}
		if IsEndOfChain(v) {
			break
		}
		if !IsValidCluster(v) {
			return chain, fscore.ErrFileSystemCorrupted.WithMessage("cluster chain references an invalid cluster")
		}
		current = ClusterID(v)
	}
	return chain, nil
}

// AppendCluster grows an existing chain by one cluster, linking it after the
// chain's current last (end-of-chain) entry, and returns the new cluster.
func (a *Allocator) AppendCluster(chainTail ClusterID) (ClusterID, error) {
	free, err := a.FindFree()
	if err != nil {
		return 0, err
	}
	if free == 0 {
		return 0, fscore.ErrNoSpaceOnDevice
	}
	if err := a.table.WriteEntry(uint32(free), uint16(EndOfChain)); err != nil {
		return 0, err
	}
	if err := a.table.WriteEntry(uint32(chainTail), uint16(free)); err != nil {
		return 0, err
	}
	return free, nil
}
