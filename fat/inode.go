package fat

import (
	"time"

	"github.com/mkfs-go/fscore"
)

// InodeRecord is the in-memory snapshot of a FAT directory entry that the
// inode registry hands out a stable handle for.
type InodeRecord struct {
	Parent       fscore.INODE
	Attr         uint8 // directory-entry attribute byte; AttrDirectory marks a directory
	FirstCluster ClusterID
	Size         uint32
	Atime        time.Time
	Ctime        time.Time
	Mtime        time.Time
}

func (rec *InodeRecord) IsDir() bool {
	return rec.Attr&AttrDirectory != 0
}

// InodeRegistry is the append-only, in-memory index mapping inode handles to
// InodeRecord snapshots (spec §4.5). It's never reindexed or compacted
// during a mount; handle N lives at index N-1.
type InodeRegistry struct {
	records []InodeRecord
}

// NewInodeRegistry seeds a fresh registry with the synthetic root inode
// (spec invariant 2): handle 1, parent 1, directory, first_cluster 0.
func NewInodeRegistry() *InodeRegistry {
	reg := &InodeRegistry{}
	reg.records = append(reg.records, InodeRecord{
		Parent:       fscore.RootINODE,
		Attr:         AttrDirectory,
		FirstCluster: 0,
		Size:         0,
	})
	return reg
}

// Get returns the record for handle, or fscore.ErrNotFound if it was never
// registered.
func (reg *InodeRegistry) Get(handle fscore.INODE) (*InodeRecord, error) {
	if handle < 1 || int(handle) > len(reg.records) {
		return nil, fscore.ErrNotFound.WithMessage("no such inode handle")
	}
	return &reg.records[handle-1], nil
}

// Register appends rec and returns its newly assigned handle.
func (reg *InodeRegistry) Register(rec InodeRecord) fscore.INODE {
	reg.records = append(reg.records, rec)
	return fscore.INODE(len(reg.records))
}

// Len reports how many inodes have been registered, including the root.
func (reg *InodeRegistry) Len() int { return len(reg.records) }
