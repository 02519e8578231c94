// Package fscore defines the platform-independent types shared by every
// filesystem driver in this module: the opaque inode handle, file metadata,
// directory entries, and the mount flags a driver's Load hook receives.
package fscore

import (
	"os"
	"time"
)

// INODE is an opaque handle identifying a file or directory within a mounted
// filesystem. Handle 1 always refers to the root directory. Handles are never
// reused for the lifetime of a mount.
type INODE uint64

// RootINODE is the handle reserved for the root directory of any mounted
// filesystem.
const RootINODE = INODE(1)

// UnknownINODE is the sentinel parent handle assigned to an inode that has
// been allocated by Touch but not yet linked into a directory.
const UnknownINODE = INODE(0xFFFFFFFFFFFFFFFF)

// FileStat is the metadata a filesystem driver reports for an inode: its
// size, POSIX-style mode bits, and its three timestamps.
type FileStat struct {
	Size  int64
	Mode  os.FileMode
	Atime time.Time
	Ctime time.Time
	Mtime time.Time
}

func (stat FileStat) IsDir() bool {
	return stat.Mode.IsDir()
}

// DirEntry is a single result from Readdir: a child's name and its handle.
type DirEntry struct {
	Name  string
	INODE INODE
}

// FSStat describes the geometry a Create (format) hook should lay out on a
// fresh volume.
type FSStat struct {
	TotalBytes        int64
	BytesPerSector    uint16
	SectorsPerCluster uint8
	RootEntryCount    uint16
	MediaDescriptor   uint8
}

// MountFlags controls the permissions a driver's Load hook grants for the
// duration of a mount.
type MountFlags int

const (
	// MountFlagsAllowRead permits read, readdir, and fstat.
	MountFlagsAllowRead = MountFlags(1 << iota)
	// MountFlagsAllowWrite permits write to existing inodes.
	MountFlagsAllowWrite
	// MountFlagsAllowInsert permits touch, link, and mkdir.
	MountFlagsAllowInsert
	// MountFlagsAllowDelete permits unlink and rmdir.
	MountFlagsAllowDelete
)

const MountFlagsReadOnly = MountFlagsAllowRead
const MountFlagsReadWrite = MountFlagsAllowRead | MountFlagsAllowWrite |
	MountFlagsAllowInsert | MountFlagsAllowDelete

func (flags MountFlags) CanRead() bool   { return flags&MountFlagsAllowRead != 0 }
func (flags MountFlags) CanWrite() bool  { return flags&MountFlagsAllowWrite != 0 }
func (flags MountFlags) CanInsert() bool { return flags&MountFlagsAllowInsert != 0 }
func (flags MountFlags) CanDelete() bool { return flags&MountFlagsAllowDelete != 0 }
