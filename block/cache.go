package block

import (
	"fmt"
	"io"

	bitmap "github.com/boljen/go-bitmap"

	"github.com/mkfs-go/fscore"
)

// Cache adapts an io.ReadWriteSeeker — an open disk image, whether a real
// file or an in-memory buffer — into a sector-addressable Device. Sectors
// are loaded from the backing stream on first touch and kept in memory;
// writes mark the affected sectors dirty rather than hitting the stream
// immediately. Flush writes every dirty sector back and clears the dirty
// bitmap, following the same loaded/dirty bitmap-pair design the rest of
// this codebase's FAT tooling was adapted from.
type Cache struct {
	stream       io.ReadWriteSeeker
	totalSectors uint32
	loaded       bitmap.Bitmap
	dirty        bitmap.Bitmap
	data         []byte
}

// NewCache wraps stream, treating it as totalSectors sectors of SectorSize
// bytes each. The stream is not read until a sector is actually requested.
func NewCache(stream io.ReadWriteSeeker, totalSectors uint32) *Cache {
	return &Cache{
		stream:       stream,
		totalSectors: totalSectors,
		loaded:       bitmap.NewSlice(int(totalSectors)),
		dirty:        bitmap.NewSlice(int(totalSectors)),
		data:         make([]byte, int(totalSectors)*SectorSize),
	}
}

// NewCacheFromStreamSize infers the sector count from the stream's length.
func NewCacheFromStreamSize(stream io.ReadWriteSeeker) (*Cache, error) {
	end, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fscore.ErrIOFailed.WrapError(err)
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, fscore.ErrIOFailed.WrapError(err)
	}
	return NewCache(stream, uint32(end/SectorSize)), nil
}

func (c *Cache) TotalSectors() uint32 { return c.totalSectors }

func (c *Cache) checkBounds(start uint32, n uint) error {
	if start >= c.totalSectors || uint(start)+n > uint(c.totalSectors) {
		return fscore.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("sector range [%d, %d) out of bounds [0, %d)", start, uint(start)+n, c.totalSectors))
	}
	return nil
}

func (c *Cache) load(start uint32, n uint) error {
	for i := start; i < start+uint32(n); i++ {
		if c.loaded.Get(int(i)) {
			continue
		}
		off := int64(i) * SectorSize
		if _, err := c.stream.Seek(off, io.SeekStart); err != nil {
			return fscore.ErrIOFailed.WrapError(err)
		}
		buf := c.data[int(i)*SectorSize : int(i+1)*SectorSize]
		if _, err := io.ReadFull(c.stream, buf); err != nil {
			return fscore.ErrIOFailed.WrapError(err)
		}
		c.loaded.Set(int(i), true)
	}
	return nil
}

// ReadBlocks implements Device.
func (c *Cache) ReadBlocks(buf []byte, startSector uint32, n uint) error {
	if err := c.checkBounds(startSector, n); err != nil {
		return err
	}
	if uint(len(buf)) != n*SectorSize {
		return fscore.ErrInvalidArgument.WithMessage("buffer size does not match sector count")
	}
	if err := c.load(startSector, n); err != nil {
		return err
	}
	copy(buf, c.data[int(startSector)*SectorSize:int(startSector+uint32(n))*SectorSize])
	return nil
}

// WriteBlocks implements Device.
func (c *Cache) WriteBlocks(buf []byte, startSector uint32, n uint) error {
	if err := c.checkBounds(startSector, n); err != nil {
		return err
	}
	if uint(len(buf)) != n*SectorSize {
		return fscore.ErrInvalidArgument.WithMessage("buffer size does not match sector count")
	}
	copy(c.data[int(startSector)*SectorSize:int(startSector+uint32(n))*SectorSize], buf)
	for i := startSector; i < startSector+uint32(n); i++ {
		c.loaded.Set(int(i), true)
		c.dirty.Set(int(i), true)
	}
	return nil
}

// Flush writes every dirty sector back to the backing stream and clears the
// dirty bitmap. Sectors that were never loaded or written are left alone.
func (c *Cache) Flush() error {
	for i := uint32(0); i < c.totalSectors; i++ {
		if !c.dirty.Get(int(i)) {
			continue
		}
		off := int64(i) * SectorSize
		if _, err := c.stream.Seek(off, io.SeekStart); err != nil {
			return fscore.ErrIOFailed.WrapError(err)
		}
		buf := c.data[int(i)*SectorSize : int(i+1)*SectorSize]
		if _, err := c.stream.Write(buf); err != nil {
			return fscore.ErrIOFailed.WrapError(err)
		}
		c.dirty.Set(int(i), false)
	}
	return nil
}
