package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/mkfs-go/fscore"
)

// ClusterID identifies a cluster, either by its index in the FAT or by one
// of the reserved values below. Index 0 in read_clusters/write_clusters
// terms addresses the fixed FAT12/16 root directory, not a FAT-indexed
// cluster; ClusterID only ever names indices 2 and up for chains.
type ClusterID uint32

const (
	clusterFree       = ClusterID(0x000)
	clusterReserved   = ClusterID(0x001)
	clusterMinValid   = ClusterID(0x002)
	clusterMaxValid   = ClusterID(0xFEF)
	clusterReservedLo = ClusterID(0xFF0)
	clusterReservedHi = ClusterID(0xFF6)
	clusterBad        = ClusterID(0xFF7)
	clusterEOFLo      = ClusterID(0xFF8)
	clusterEOFHi      = ClusterID(0xFFF)
)

// EndOfChain is the terminator value this driver writes when closing off a
// cluster chain. Any value in [0xFF8, 0xFFF] reads back as end-of-chain;
// this is simply the canonical one callers should write.
const EndOfChain = ClusterID(0xFFF)

// Table12 is the in-memory, packed 12-bit FAT. It never touches disk itself;
// loading and flushing are done by the caller (see lifecycle.go's Load/Close).
type Table12 struct {
	buf []byte
}

// NewTable12 wraps an existing packed FAT buffer (sectorsPerFAT*bytesPerSector
// bytes, as read from disk) for 12-bit entry access.
func NewTable12(buf []byte) *Table12 {
	return &Table12{buf: buf}
}

// NewBlankTable12 allocates a fresh FAT buffer of the given byte size and
// stamps entries 0 and 1 per spec invariant 4.
func NewBlankTable12(sizeBytes uint32, mediaDescriptor uint8) *Table12 {
	t := &Table12{buf: make([]byte, sizeBytes)}
	t.WriteEntry(0, uint16(0xF00)|uint16(mediaDescriptor))
	t.WriteEntry(1, 0xFFF)
	return t
}

// Bytes exposes the packed buffer, e.g. for flushing to disk.
func (t *Table12) Bytes() []byte { return t.buf }

// ReadEntry returns the 12-bit value stored at cluster index c.
func (t *Table12) ReadEntry(c uint32) (uint16, error) {
	offset := c + c/2
	if int(offset)+1 >= len(t.buf) {
		return 0, fscore.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("cluster %d out of range for a %d-byte FAT", c, len(t.buf)))
	}
	word := binary.LittleEndian.Uint16(t.buf[offset:])
	if c%2 == 1 {
		return word >> 4, nil
	}
	return word & 0x0FFF, nil
}

// WriteEntry stores a 12-bit value at cluster index c, preserving the
// neighboring entry that shares its 16-bit word.
func (t *Table12) WriteEntry(c uint32, v uint16) error {
	offset := c + c/2
	if int(offset)+1 >= len(t.buf) {
		return fscore.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("cluster %d out of range for a %d-byte FAT", c, len(t.buf)))
	}
	word := binary.LittleEndian.Uint16(t.buf[offset:])
	v &= 0x0FFF

	if c%2 == 1 {
		word = (word & 0x000F) | (v << 4)
	} else {
		word = (word & 0xF000) | v
	}
	binary.LittleEndian.PutUint16(t.buf[offset:], word)
	return nil
}

// IsValidCluster reports whether v addresses an allocatable data cluster
// (spec §3: 0x002..0xFEF).
func IsValidCluster(v uint16) bool {
	return ClusterID(v) >= clusterMinValid && ClusterID(v) <= clusterMaxValid
}

// IsEndOfChain reports whether v is any of the reserved end-of-chain markers
// (spec §3: 0xFF8..0xFFF).
func IsEndOfChain(v uint16) bool {
	return ClusterID(v) >= clusterEOFLo && ClusterID(v) <= clusterEOFHi
}
