package block

import (
	"encoding/binary"
	"fmt"

	"github.com/mkfs-go/fscore"
)

// mbrPartitionEntrySize is the size in bytes of one partition table entry in
// a classic MBR.
const mbrPartitionEntrySize = 16

// mbrTableOffset is the byte offset of the first partition entry within
// sector 0 of the disk.
const mbrTableOffset = 0x1BE

// mbrSignatureOffset is the byte offset of the 0x55AA boot signature.
const mbrSignatureOffset = 0x1FE

// MBREntry is one decoded entry from a classic MBR partition table.
type MBREntry struct {
	Bootable    bool
	Type        uint8
	StartLBA    uint32
	SectorCount uint32
}

// ReadMBR reads sector 0 of disk and decodes its partition table. It
// returns at most four entries; empty slots (Type == 0) are included so
// callers can distinguish "no partition here" from a parse failure.
func ReadMBR(disk Device) ([4]MBREntry, error) {
	var entries [4]MBREntry

	sector := make([]byte, SectorSize)
	if err := disk.ReadBlocks(sector, 0, 1); err != nil {
		return entries, err
	}

	// The signature is the byte 0x55 followed by 0xAA, i.e. 0xAA55 read as a
	// little-endian word.
	if binary.LittleEndian.Uint16(sector[mbrSignatureOffset:]) != 0xAA55 {
		return entries, fscore.ErrFileSystemCorrupted.WithMessage(
			"sector 0 is missing the 0x55AA MBR boot signature")
	}

	for i := 0; i < 4; i++ {
		raw := sector[mbrTableOffset+i*mbrPartitionEntrySize:]
		entries[i] = MBREntry{
			Bootable:    raw[0] == 0x80,
			Type:        raw[4],
			StartLBA:    binary.LittleEndian.Uint32(raw[8:12]),
			SectorCount: binary.LittleEndian.Uint32(raw[12:16]),
		}
	}

	return entries, nil
}

// Partition is a Device windowed onto a contiguous sector range of a larger
// Device, translating partition-relative sector numbers into disk-absolute
// ones before delegating.
type Partition struct {
	disk        Device
	startSector uint32
	numSectors  uint32
}

// NewPartition windows disk to the sector range [startSector, startSector+numSectors).
func NewPartition(disk Device, startSector, numSectors uint32) (*Partition, error) {
	if uint(startSector)+uint(numSectors) > uint(disk.TotalSectors()) {
		return nil, fscore.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("partition [%d, %d) exceeds disk of %d sectors",
				startSector, startSector+numSectors, disk.TotalSectors()))
	}
	return &Partition{disk: disk, startSector: startSector, numSectors: numSectors}, nil
}

// WholeDisk treats disk itself as the implicit "partition 0" when no MBR is
// present — the common case for a bare FAT image with no partition table.
func WholeDisk(disk Device) *Partition {
	return &Partition{disk: disk, startSector: 0, numSectors: disk.TotalSectors()}
}

func (p *Partition) TotalSectors() uint32 { return p.numSectors }

func (p *Partition) checkBounds(start uint32, n uint) error {
	if uint(start)+n > uint(p.numSectors) {
		return fscore.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("sector range [%d, %d) out of bounds [0, %d) for partition",
				start, uint(start)+n, p.numSectors))
	}
	return nil
}

func (p *Partition) ReadBlocks(buf []byte, startSector uint32, n uint) error {
	if err := p.checkBounds(startSector, n); err != nil {
		return err
	}
	return p.disk.ReadBlocks(buf, p.startSector+startSector, n)
}

func (p *Partition) WriteBlocks(buf []byte, startSector uint32, n uint) error {
	if err := p.checkBounds(startSector, n); err != nil {
		return err
	}
	return p.disk.WriteBlocks(buf, p.startSector+startSector, n)
}
