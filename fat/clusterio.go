package fat

import (
	"github.com/mkfs-go/fscore"
	"github.com/mkfs-go/fscore/block"
)

// ClusterIO translates (cluster, offset) addressing into sector-addressed
// block I/O, handling the FAT12/16 fixed-size root directory's special
// placement ahead of the regular data cluster region (spec §4.4).
type ClusterIO struct {
	dev  block.Device
	boot *BootSector
}

func NewClusterIO(dev block.Device, boot *BootSector) *ClusterIO {
	return &ClusterIO{dev: dev, boot: boot}
}

// firstSectorOfCluster returns the absolute sector where cluster begins.
// cluster == 0 addresses the root directory region; cluster >= 2 addresses
// the regular data region.
func (cio *ClusterIO) firstSectorOfCluster(cluster ClusterID) uint32 {
	if cluster == 0 {
		return cio.boot.FirstDataSector
	}
	return cio.boot.FirstDataSector + cio.boot.RootSectors +
		(uint32(cluster)-2)*uint32(cio.boot.SectorsPerCluster)
}

// ReadClusters reads n clusters starting at cluster into buf. For cluster ==
// 0 (the root directory) reads must start from the beginning; partial reads
// into the middle of the root region are undefined, per spec §4.4.
func (cio *ClusterIO) ReadClusters(buf []byte, cluster ClusterID, n uint) error {
	sectorsPerChunk := cio.sectorsForRead(cluster, n)
	if uint32(len(buf)) != sectorsPerChunk*uint32(block.SectorSize) {
		return fscore.ErrInvalidArgument.WithMessage("buffer size does not match requested cluster span")
	}
	start := cio.firstSectorOfCluster(cluster)
	return cio.dev.ReadBlocks(buf, start, uint(sectorsPerChunk))
}

// WriteClusters is the write counterpart of ReadClusters.
func (cio *ClusterIO) WriteClusters(buf []byte, cluster ClusterID, n uint) error {
	sectorsPerChunk := cio.sectorsForRead(cluster, n)
	if uint32(len(buf)) != sectorsPerChunk*uint32(block.SectorSize) {
		return fscore.ErrInvalidArgument.WithMessage("buffer size does not match requested cluster span")
	}
	start := cio.firstSectorOfCluster(cluster)
	return cio.dev.WriteBlocks(buf, start, uint(sectorsPerChunk))
}

// sectorsForRead returns how many sectors n "clusters" of cluster span
// actually occupy; for cluster 0 (root) that's n*RootSectors capped to the
// root region, for data clusters it's n*SectorsPerCluster.
func (cio *ClusterIO) sectorsForRead(cluster ClusterID, n uint) uint32 {
	if cluster == 0 {
		return cio.boot.RootSectors
	}
	return uint32(n) * uint32(cio.boot.SectorsPerCluster)
}

// ClusterSizeBytes is a convenience accessor used throughout fs.go.
func (cio *ClusterIO) ClusterSizeBytes() uint32 { return cio.boot.ClusterSize }
