package fat

import (
	"github.com/hashicorp/go-multierror"

	"github.com/mkfs-go/fscore"
	"github.com/mkfs-go/fscore/block"
	"github.com/mkfs-go/fscore/driver"
)

// hooks implements driver.Hooks for the FAT12 driver.
type hooks struct{}

// Hooks is the FAT12 driver's lifecycle implementation, registered under the
// name "fat12" below.
var Hooks driver.Hooks = hooks{}

// Load mounts an existing FAT12 volume: reads the BPB, reads the first FAT
// copy into memory, and seeds the inode registry with the root (spec §4.7
// "load"). flags is not consulted: the returned mount performs every
// operation, including writes, whatever flags were passed.
func (hooks) Load(dev block.Device, flags fscore.MountFlags) (driver.Filesystem, error) {
	sector := make([]byte, block.SectorSize)
	if err := dev.ReadBlocks(sector, 0, 1); err != nil {
		return nil, fscore.CastToDriverError(err)
	}
	boot, err := ParseBPB(sector)
	if err != nil {
		return nil, err
	}
	if boot.FATVariant != 12 {
		return nil, fscore.ErrNotSupported.WithMessage("only FAT12 volumes are supported")
	}

	fatBuf := make([]byte, boot.SectorsPerFAT*uint32(block.SectorSize))
	if err := dev.ReadBlocks(fatBuf, uint32(boot.ReservedSectors), uint(boot.SectorsPerFAT)); err != nil {
		return nil, fscore.CastToDriverError(err)
	}

	return newMount(dev, boot, NewTable12(fatBuf)), nil
}

// Create formats a fresh FAT12 volume on dev according to stat, then mounts
// it exactly as Load would (spec §4.7 "create").
func (hooks) Create(dev block.Device, stat fscore.FSStat) (driver.Filesystem, error) {
	boot, raw, err := deriveFormatGeometry(stat)
	if err != nil {
		return nil, err
	}

	sector := make([]byte, block.SectorSize)
	EncodeBPB(sector, raw)
	sector[510] = 0x55
	sector[511] = 0xAA
	if err := dev.WriteBlocks(sector, 0, 1); err != nil {
		return nil, fscore.CastToDriverError(err)
	}

	table := NewBlankTable12(boot.SectorsPerFAT*uint32(block.SectorSize), stat.MediaDescriptor)
	for i := uint8(0); i < raw.FATCount; i++ {
		start := uint32(raw.ReservedSectors) + uint32(i)*boot.SectorsPerFAT
		if err := dev.WriteBlocks(table.Bytes(), start, uint(boot.SectorsPerFAT)); err != nil {
			return nil, fscore.CastToDriverError(err)
		}
	}

	rootBuf := make([]byte, boot.RootSectors*uint32(block.SectorSize))
	rootStart := boot.FirstDataSector
	if err := dev.WriteBlocks(rootBuf, rootStart, uint(boot.RootSectors)); err != nil {
		return nil, fscore.CastToDriverError(err)
	}

	return newMount(dev, boot, table), nil
}

// deriveFormatGeometry picks reserved/FAT-count/cluster-size defaults and
// computes the rest of the BPB from stat's requested size, scaling cluster
// size up with volume size the way real FAT12 formatters do.
func deriveFormatGeometry(stat fscore.FSStat) (*BootSector, *RawBPB, error) {
	bytesPerSector := stat.BytesPerSector
	if bytesPerSector == 0 {
		bytesPerSector = block.SectorSize
	}
	sectorsPerCluster := stat.SectorsPerCluster
	if sectorsPerCluster == 0 {
		sectorsPerCluster = clusterScaleForSize(stat.TotalBytes)
	}
	rootEntryCount := stat.RootEntryCount
	if rootEntryCount == 0 {
		rootEntryCount = 224
	}

	const reservedSectors = 1
	const fatCount = 2
	totalSectors := uint32(stat.TotalBytes / int64(bytesPerSector))
	rootSectors := (uint32(rootEntryCount)*32 + uint32(bytesPerSector) - 1) / uint32(bytesPerSector)

	// Converge sectorsPerFAT against the cluster count it implies, since
	// each depends on the other (classic FAT12 formatter fixed-point loop).
	sectorsPerFAT := uint32(1)
	var numClusters uint32
	for i := 0; i < 8; i++ {
		firstDataSector := uint32(reservedSectors) + fatCount*sectorsPerFAT
		if totalSectors <= firstDataSector+rootSectors {
			return nil, nil, fscore.ErrInvalidArgument.WithMessage("requested volume too small for FAT12 layout")
		}
		numClusters = (totalSectors - firstDataSector - rootSectors) / uint32(sectorsPerCluster)
		entriesBytes := numClusters + numClusters/2 + 2
		next := (entriesBytes + uint32(bytesPerSector) - 1) / uint32(bytesPerSector)
		if next == sectorsPerFAT {
			break
		}
		sectorsPerFAT = next
	}

	raw := &RawBPB{
		OEMName:           [8]byte{'M', 'K', 'F', 'S', 'G', 'O', ' ', ' '},
		BytesPerSector:    bytesPerSector,
		SectorsPerCluster: sectorsPerCluster,
		ReservedSectors:   reservedSectors,
		FATCount:          fatCount,
		RootEntryCount:    rootEntryCount,
		MediaDescriptor:   stat.MediaDescriptor,
		SectorsPerTrack:   63,
		NumHeads:          255,
	}
	raw.JmpBoot = [3]byte{0xEB, 0x3C, 0x90}
	if totalSectors < 0x10000 {
		raw.totalSectors16 = uint16(totalSectors)
	} else {
		raw.totalSectors32 = totalSectors
	}
	raw.sectorsPerFAT16 = uint16(sectorsPerFAT)

	firstDataSector := uint32(reservedSectors) + fatCount*sectorsPerFAT
	boot := &BootSector{
		RawBPB:          *raw,
		TotalSectors:    totalSectors,
		SectorsPerFAT:   sectorsPerFAT,
		ClusterSize:     uint32(bytesPerSector) * uint32(sectorsPerCluster),
		RootSectors:     rootSectors,
		FirstDataSector: firstDataSector,
		NumClusters:     numClusters,
		FATVariant:      determineFATVariant(numClusters),
	}
	if boot.FATVariant != 12 {
		return nil, nil, fscore.ErrInvalidArgument.WithMessage(
			"requested volume needs FAT16/32 addressing; only FAT12 formatting is supported")
	}
	return boot, raw, nil
}

// clusterScaleForSize mirrors the classic floppy/small-HDD FAT12 cluster
// size ramp: bigger volumes get bigger clusters so the 12-bit table stays
// small enough to address the whole volume.
func clusterScaleForSize(totalBytes int64) uint8 {
	switch {
	case totalBytes <= 1*1024*1024:
		return 1
	case totalBytes <= 4*1024*1024:
		return 2
	case totalBytes <= 8*1024*1024:
		return 4
	case totalBytes <= 16*1024*1024:
		return 8
	default:
		return 16
	}
}

// Close flushes all FAT copies to disk and releases the mount (spec §4.7
// "close").
func (hooks) Close(fs driver.Filesystem) error {
	m, ok := fs.(*Mount)
	if !ok {
		return fscore.ErrInvalidArgument.WithMessage("not a fat mount")
	}
	for i := uint8(0); i < m.boot.FATCount; i++ {
		start := uint32(m.boot.ReservedSectors) + uint32(i)*m.boot.SectorsPerFAT
		if err := m.dev.WriteBlocks(m.table.Bytes(), start, uint(m.boot.SectorsPerFAT)); err != nil {
			return fscore.CastToDriverError(err)
		}
	}
	if flusher, ok := m.dev.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			return fscore.CastToDriverError(err)
		}
	}
	m.inodes = nil
	m.table = nil
	return nil
}

// Check walks the cluster chain of every inode currently in the registry and
// reports, accumulating every violation instead of aborting on the first, a
// file whose chain length disagrees with its declared size and a cluster
// that two different chains share. Only registered inodes are walked: right
// after Load that is the root alone, which has no chain, and the directory
// tree is not traversed to find more. Clusters that are marked allocated in
// the FAT but reached by no walked chain are not reported.
func (hooks) Check(fs driver.Filesystem) error {
	m, ok := fs.(*Mount)
	if !ok {
		return fscore.ErrInvalidArgument.WithMessage("not a fat mount")
	}

	var result *multierror.Error
	seen := make(map[ClusterID]fscore.INODE)
	walked := make(map[ClusterID]bool)

	for handle := fscore.INODE(1); int(handle) <= m.inodes.Len(); handle++ {
		rec, err := m.inodes.Get(handle)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if rec.FirstCluster == 0 {
			continue // root: not FAT-chained, nothing to walk
		}
		// Readdir registers a fresh handle on every call, so several handles
		// can name one directory entry; each chain is walked once.
		if walked[rec.FirstCluster] {
			continue
		}
		walked[rec.FirstCluster] = true

		chain, err := m.alloc.ListChain(rec.FirstCluster)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		if !rec.IsDir() && rec.Size > 0 {
			want := ceilDiv(int64(rec.Size), int64(m.boot.ClusterSize))
			if int64(len(chain)) != want {
				result = multierror.Append(result, fscore.ErrFileSystemCorrupted.WithMessage(
					"inode's cluster chain length disagrees with its declared size"))
			}
		}

		for _, c := range chain {
			if _, dup := seen[c]; dup {
				result = multierror.Append(result, fscore.ErrFileSystemCorrupted.WithMessage(
					"cluster is reachable from more than one inode's chain"))
				continue
			}
			seen[c] = handle
		}
	}

	return result.ErrorOrNil()
}

// Record is this driver's entry in a driver.Registry, registered under the
// name "fat12".
var Record = driver.Record{
	Name:    "fat12",
	Present: true,
	Hooks:   Hooks,
}

// Ext2Record documents the dispatcher's intended shape for a second driver
// without implementing one: ext2 format/allocation logic is out of scope
// (spec Non-goals).
var Ext2Record = driver.Record{
	Name:    "ext2",
	Present: false,
}

// DefaultRegistry is the registry this module ships, bundling the
// implemented FAT12 driver alongside the declared-but-absent ext2 slot.
var DefaultRegistry = driver.Registry{Record, Ext2Record}
