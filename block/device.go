// Package block provides the fixed-size block I/O adapter that filesystem
// drivers in this module are built on: a sector-addressable Device, a
// caching implementation backed by an io.ReadWriteSeeker, and an MBR
// partition view over a whole-disk image.
package block

// SectorSize is the fixed block size every Device in this module speaks in.
// The FAT driver refuses to mount volumes whose BPB disagrees with this.
const SectorSize = 512

// Device is the block I/O adapter a filesystem driver consumes: fixed-size
// sector reads and writes addressed within a partition (or a whole disk, if
// there is no partition table).
type Device interface {
	// ReadBlocks fills buf with n sectors' worth of data starting at sector
	// startSector. len(buf) must be exactly n*SectorSize.
	ReadBlocks(buf []byte, startSector uint32, n uint) error

	// WriteBlocks writes n sectors' worth of data from buf starting at
	// sector startSector. len(buf) must be exactly n*SectorSize.
	WriteBlocks(buf []byte, startSector uint32, n uint) error

	// TotalSectors returns the number of addressable sectors in the device.
	TotalSectors() uint32
}
