// Package driver defines the dispatch surface every filesystem in this
// module implements: the nine generic operations of spec §6, and the four
// lifecycle hooks (load, create, close, check) a Registry uses to mount,
// format, unmount, and verify a volume without knowing which concrete
// filesystem it's talking to.
package driver

import (
	"github.com/mkfs-go/fscore"
	"github.com/mkfs-go/fscore/block"
)

// Filesystem is the set of generic operations a mounted filesystem exposes.
// Every method signature matches spec §6 exactly, modulo Go's idiom of
// returning (value, ok, error) instead of a nullable result for Readdir.
type Filesystem interface {
	Read(ino fscore.INODE, buf []byte, off int64) (int, error)
	Write(ino fscore.INODE, buf []byte, off int64) (int, error)
	Touch(stat fscore.FileStat) (fscore.INODE, error)
	Readdir(dir fscore.INODE, index int) (fscore.DirEntry, bool, error)
	Link(child, dir fscore.INODE, name string) error
	Unlink(dir fscore.INODE, index int) error
	Fstat(ino fscore.INODE) (fscore.FileStat, error)
	Mkdir(parent fscore.INODE, name string) error
	Rmdir(dir fscore.INODE, index int) error
}

// Hooks are the lifecycle operations that bring a Filesystem into and out of
// existence.
type Hooks interface {
	// Load mounts an existing volume found on dev.
	Load(dev block.Device, flags fscore.MountFlags) (Filesystem, error)

	// Create formats a fresh volume on dev according to stat, then mounts it
	// exactly as Load would.
	Create(dev block.Device, stat fscore.FSStat) (Filesystem, error)

	// Close flushes any pending writes and releases the resources a Load or
	// Create call acquired. fs must not be used again afterwards.
	Close(fs Filesystem) error

	// Check walks fs looking for inconsistencies without modifying it. A nil
	// return means the check found none; what a driver's check covers is
	// documented on its implementation.
	Check(fs Filesystem) error
}

// Record bundles one filesystem driver's identity, availability, and
// lifecycle hooks, mirroring the "driver record" spec §6 describes.
type Record struct {
	Name    string
	Present bool
	Hooks   Hooks
}

// Registry is the set of drivers a caller can select between by name.
type Registry []Record

// Select returns the named driver's Record. It fails with ErrNotSupported if
// no driver by that name is registered, or if it's registered but not
// Present (i.e. declared but not implemented, like ext2 in this module).
func (reg Registry) Select(name string) (Record, error) {
	for _, rec := range reg {
		if rec.Name != name {
			continue
		}
		if !rec.Present {
			return Record{}, fscore.ErrNotSupported.WithMessage(
				"driver \"" + name + "\" is registered but not implemented")
		}
		return rec, nil
	}
	return Record{}, fscore.ErrNotSupported.WithMessage("no driver registered under name \"" + name + "\"")
}
