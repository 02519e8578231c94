// Package fixtures builds in-memory disk images for tests, following the
// teacher's testing.LoadDiskImage pattern but without the compressed-image
// loading this module has no use for.
package fixtures

import (
	"io"

	"github.com/xaionaro-go/bytesextra"

	"github.com/mkfs-go/fscore/block"
)

// BlankImage allocates a zeroed in-memory disk image of the requested size
// and wraps it as an io.ReadWriteSeeker suitable for block.NewCache.
func BlankImage(sizeBytes int) io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(make([]byte, sizeBytes))
}

// BlankCache is BlankImage plus the block.Cache adapter wrapped around it,
// sized to hold totalSectors 512-byte sectors.
func BlankCache(totalSectors uint32) *block.Cache {
	stream := BlankImage(int(totalSectors) * block.SectorSize)
	return block.NewCache(stream, totalSectors)
}

// FromBytes wraps an existing disk image (e.g. one built by a test fixture
// or captured from a real floppy) as a block.Cache, sized from the image's
// length.
func FromBytes(data []byte) (*block.Cache, error) {
	stream := bytesextra.NewReadWriteSeeker(append([]byte(nil), data...))
	return block.NewCacheFromStreamSize(stream)
}
