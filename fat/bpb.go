package fat

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/noxer/bytewriter"

	"github.com/mkfs-go/fscore"
)

// RawBPB is the on-disk layout of the BIOS Parameter Block, the common
// prefix of the boot sector shared by FAT12, FAT16, and FAT32. Fields the
// driver never needs to recompute independently (sectorsPerFAT16,
// totalSectors16/32) are unexported; callers go through BootSector's
// accessors instead.
type RawBPB struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCount          uint8
	RootEntryCount    uint16
	totalSectors16    uint16
	MediaDescriptor   uint8
	sectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	totalSectors32    uint32
}

// bpbSize is the size in bytes of RawBPB as laid out on disk (not
// binary.Size(RawBPB{}), since Go would pad the struct to word alignment).
const bpbSize = 36

// BootSector is a parsed BPB plus every quantity derived from it, computed
// once at mount time so the rest of the driver never recomputes geometry.
type BootSector struct {
	RawBPB

	TotalSectors    uint32
	SectorsPerFAT   uint32
	ClusterSize     uint32
	RootSectors     uint32
	FirstDataSector uint32
	NumClusters     uint32
	FATVariant      int
}

// ParseBPB decodes the 512-byte sector 0 of a partition into a BootSector,
// failing with fscore.ErrFileSystemCorrupted if the geometry is impossible.
func ParseBPB(sector []byte) (*BootSector, error) {
	if len(sector) < 512 {
		return nil, fscore.ErrInvalidArgument.WithMessage("boot sector must be 512 bytes")
	}

	var raw RawBPB
	buf := bytes.NewReader(sector[:bpbSize])
	if err := readRawBPB(buf, &raw); err != nil {
		return nil, fscore.ErrIOFailed.WrapError(err)
	}

	if raw.BytesPerSector != 512 {
		return nil, fscore.ErrFileSystemCorrupted.WithMessage(
			"bytes_per_sector must be 512")
	}
	if !isPowerOfTwoInRange(raw.SectorsPerCluster, 1, 128) {
		return nil, fscore.ErrFileSystemCorrupted.WithMessage(
			"sectors_per_cluster must be a power of two in [1, 128]")
	}

	sectorsPerFAT := uint32(raw.sectorsPerFAT16)
	totalSectors := uint32(raw.totalSectors16)
	if totalSectors == 0 {
		totalSectors = raw.totalSectors32
	}

	rootSectors := (uint32(raw.RootEntryCount)*32 + uint32(raw.BytesPerSector) - 1) / uint32(raw.BytesPerSector)
	firstDataSector := uint32(raw.ReservedSectors) + uint32(raw.FATCount)*sectorsPerFAT

	if totalSectors < firstDataSector+rootSectors {
		return nil, fscore.ErrFileSystemCorrupted.WithMessage(
			"total_sectors too small to hold reserved area, FATs, and root directory")
	}

	numClusters := (totalSectors - firstDataSector - rootSectors) / uint32(raw.SectorsPerCluster)

	bs := &BootSector{
		RawBPB:          raw,
		TotalSectors:    totalSectors,
		SectorsPerFAT:   sectorsPerFAT,
		ClusterSize:     uint32(raw.BytesPerSector) * uint32(raw.SectorsPerCluster),
		RootSectors:     rootSectors,
		FirstDataSector: firstDataSector,
		NumClusters:     numClusters,
		FATVariant:      determineFATVariant(numClusters),
	}
	return bs, nil
}

func readRawBPB(r io.Reader, raw *RawBPB) error {
	fields := []any{
		&raw.JmpBoot, &raw.OEMName, &raw.BytesPerSector, &raw.SectorsPerCluster,
		&raw.ReservedSectors, &raw.FATCount, &raw.RootEntryCount, &raw.totalSectors16,
		&raw.MediaDescriptor, &raw.sectorsPerFAT16, &raw.SectorsPerTrack, &raw.NumHeads,
		&raw.HiddenSectors, &raw.totalSectors32,
	}
	for _, field := range fields {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return err
		}
	}
	return nil
}

// determineFATVariant returns 12, 16, or 32 depending on the cluster count,
// per the Microsoft FAT documentation thresholds restated in spec §3. Only
// 12 is a fully supported mount target in this driver.
func determineFATVariant(numClusters uint32) int {
	if numClusters < 4085 {
		return 12
	}
	if numClusters < 65525 {
		return 16
	}
	return 32
}

func isPowerOfTwoInRange(v uint8, lo, hi uint8) bool {
	if v < lo || v > hi {
		return false
	}
	return v&(v-1) == 0
}

// DirentsPerCluster returns how many 32-byte directory entries fit in one
// cluster.
func (bs *BootSector) DirentsPerCluster() uint32 {
	return bs.ClusterSize / 32
}

// RootDirentCapacity returns how many 32-byte directory entries fit in the
// fixed-size FAT12/16 root directory region.
func (bs *BootSector) RootDirentCapacity() uint32 {
	return bs.RootSectors * uint32(bs.BytesPerSector) / 32
}

// EncodeBPB serializes a BootSector's RawBPB fields directly into dst's
// first bpbSize bytes, used by Create to write a fresh boot sector. Bytes
// beyond the BPB (boot code, signature) are left as whatever the caller
// already put in dst. Writes go straight into dst through bytewriter rather
// than through a scratch buffer that gets copied afterward.
func EncodeBPB(dst []byte, raw *RawBPB) {
	w := bytewriter.New(dst)
	fields := []any{
		raw.JmpBoot, raw.OEMName, raw.BytesPerSector, raw.SectorsPerCluster,
		raw.ReservedSectors, raw.FATCount, raw.RootEntryCount, raw.totalSectors16,
		raw.MediaDescriptor, raw.sectorsPerFAT16, raw.SectorsPerTrack, raw.NumHeads,
		raw.HiddenSectors, raw.totalSectors32,
	}
	for _, field := range fields {
		binary.Write(w, binary.LittleEndian, field)
	}
}
