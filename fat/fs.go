package fat

import (
	"os"
	"time"

	"github.com/mkfs-go/fscore"
	"github.com/mkfs-go/fscore/block"
)

// Mount is one mounted FAT12 volume: the parsed boot sector, the in-memory
// FAT, the cluster allocator/IO built on it, and the append-only inode
// registry seeded at load time (spec §3 "Lifecycle").
type Mount struct {
	dev    block.Device
	boot   *BootSector
	table  *Table12
	alloc  *Allocator
	cio    *ClusterIO
	inodes *InodeRegistry
}

func newMount(dev block.Device, boot *BootSector, table *Table12) *Mount {
	m := &Mount{
		dev:   dev,
		boot:  boot,
		table: table,
	}
	m.alloc = NewAllocator(table, boot.NumClusters)
	m.cio = NewClusterIO(dev, boot)
	m.inodes = NewInodeRegistry()
	return m
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// clusterParams resolves rec's addressable byte span: its cluster chain (a
// synthetic single-entry chain for the FAT12 root, which is never chained),
// the size of one unit of that chain, and the effective total size used by
// read/write clamping (spec §4.7).
func (m *Mount) clusterParams(rec *InodeRecord) (chain []ClusterID, unitSize int64, effSize int64, err error) {
	if rec.FirstCluster == 0 {
		unitSize = int64(m.boot.RootSectors) * int64(block.SectorSize)
		return []ClusterID{0}, unitSize, unitSize, nil
	}
	chain, err = m.alloc.ListChain(rec.FirstCluster)
	if err != nil {
		return nil, 0, 0, err
	}
	unitSize = int64(m.boot.ClusterSize)
	if rec.Size > 0 {
		effSize = int64(rec.Size)
	} else {
		effSize = int64(len(chain)) * unitSize
	}
	return chain, unitSize, effSize, nil
}

// Read implements driver.Filesystem.
func (m *Mount) Read(ino fscore.INODE, buf []byte, off int64) (int, error) {
	rec, err := m.inodes.Get(ino)
	if err != nil {
		return 0, err
	}
	chain, unitSize, effSize, err := m.clusterParams(rec)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fscore.ErrInvalidArgument.WithMessage("negative offset")
	}
	if off >= effSize {
		return 0, nil
	}
	length := int64(len(buf))
	if length > effSize-off {
		length = effSize - off
	}
	if length <= 0 {
		return 0, nil
	}

	startIdx := off / unitSize
	intra := off % unitSize
	nUnits := ceilDiv(length+intra, unitSize)

	scratch := make([]byte, nUnits*unitSize)
	for i := int64(0); i < nUnits; i++ {
		idx := startIdx + i
		if int(idx) >= len(chain) {
			return 0, fscore.ErrFileSystemCorrupted.WithMessage("cluster chain shorter than declared size")
		}
		c := chain[idx]
		if err := m.cio.ReadClusters(scratch[i*unitSize:(i+1)*unitSize], c, 1); err != nil {
			return 0, err
		}
	}
	copy(buf[:length], scratch[intra:intra+length])
	return int(length), nil
}

// Write implements driver.Filesystem. It never extends a file past its
// current declared/effective size (spec §4.7); growth is the job of touch
// and link.
func (m *Mount) Write(ino fscore.INODE, buf []byte, off int64) (int, error) {
	rec, err := m.inodes.Get(ino)
	if err != nil {
		return 0, err
	}
	chain, unitSize, effSize, err := m.clusterParams(rec)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fscore.ErrInvalidArgument.WithMessage("negative offset")
	}
	if off >= effSize {
		return 0, nil
	}
	length := int64(len(buf))
	if length > effSize-off {
		length = effSize - off
	}
	if length <= 0 {
		return 0, nil
	}

	startIdx := off / unitSize
	intra := off % unitSize
	nUnits := ceilDiv(length+intra, unitSize)

	scratch := make([]byte, nUnits*unitSize)
	for i := int64(0); i < nUnits; i++ {
		idx := startIdx + i
		if int(idx) >= len(chain) {
			return 0, fscore.ErrFileSystemCorrupted.WithMessage("cluster chain shorter than declared size")
		}
		if err := m.cio.ReadClusters(scratch[i*unitSize:(i+1)*unitSize], chain[idx], 1); err != nil {
			return 0, err
		}
	}
	copy(scratch[intra:intra+length], buf[:length])
	for i := int64(0); i < nUnits; i++ {
		idx := startIdx + i
		if err := m.cio.WriteClusters(scratch[i*unitSize:(i+1)*unitSize], chain[idx], 1); err != nil {
			return 0, err
		}
	}
	return int(length), nil
}

// Touch implements driver.Filesystem. A new inode always gets at least one
// cluster, even at size 0 (spec §9's documented bug fix).
func (m *Mount) Touch(stat fscore.FileStat) (fscore.INODE, error) {
	n := uint(ceilDiv(stat.Size, int64(m.boot.ClusterSize)))
	if n == 0 {
		n = 1
	}
	chain, err := m.alloc.AllocateChain(n)
	if err != nil {
		return 0, err
	}

	attr := uint8(AttrArchive)
	if stat.IsDir() {
		attr = AttrDirectory
	}
	now := time.Now().UTC()
	rec := InodeRecord{
		Parent:       fscore.UnknownINODE,
		Attr:         attr,
		FirstCluster: chain[0],
		Size:         uint32(stat.Size),
		Atime:        orNow(stat.Atime, now),
		Ctime:        orNow(stat.Ctime, now),
		Mtime:        orNow(stat.Mtime, now),
	}
	return m.inodes.Register(rec), nil
}

func orNow(t time.Time, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}

// loadDirectoryBytes returns a directory's full raw contents and the
// backing cluster chain (nil for the root, which isn't chained).
func (m *Mount) loadDirectoryBytes(dir fscore.INODE) (data []byte, chain []ClusterID, rec *InodeRecord, err error) {
	rec, err = m.inodes.Get(dir)
	if err != nil {
		return nil, nil, nil, err
	}
	if !rec.IsDir() {
		return nil, nil, nil, fscore.ErrNotADirectory.WithMessage("handle does not refer to a directory")
	}
	if dir == fscore.RootINODE {
		buf := make([]byte, int(m.boot.RootSectors)*block.SectorSize)
		if err := m.cio.ReadClusters(buf, 0, 1); err != nil {
			return nil, nil, nil, err
		}
		return buf, nil, rec, nil
	}
	chain, err = m.alloc.ListChain(rec.FirstCluster)
	if err != nil {
		return nil, nil, nil, err
	}
	buf := make([]byte, len(chain)*int(m.boot.ClusterSize))
	for i, c := range chain {
		if err := m.cio.ReadClusters(buf[i*int(m.boot.ClusterSize):(i+1)*int(m.boot.ClusterSize)], c, 1); err != nil {
			return nil, nil, nil, err
		}
	}
	return buf, chain, rec, nil
}

func (m *Mount) writeDirectoryBytes(dir fscore.INODE, data []byte, chain []ClusterID) error {
	if dir == fscore.RootINODE {
		return m.cio.WriteClusters(data, 0, 1)
	}
	cs := int(m.boot.ClusterSize)
	for i, c := range chain {
		if err := m.cio.WriteClusters(data[i*cs:(i+1)*cs], c, 1); err != nil {
			return err
		}
	}
	return nil
}

// Readdir implements driver.Filesystem. Indices 0/1 are the synthetic "."
// and ".."; the root carries neither physically, so indices >= 2 on every
// other directory must skip the two physical entries the root lacks (spec
// §4.7, §9 Open Questions).
func (m *Mount) Readdir(dir fscore.INODE, index int) (fscore.DirEntry, bool, error) {
	rec, err := m.inodes.Get(dir)
	if err != nil {
		return fscore.DirEntry{}, false, err
	}
	if !rec.IsDir() {
		return fscore.DirEntry{}, false, fscore.ErrNotADirectory.WithMessage("handle does not refer to a directory")
	}

	switch index {
	case 0:
		return fscore.DirEntry{Name: ".", INODE: dir}, true, nil
	case 1:
		return fscore.DirEntry{Name: "..", INODE: rec.Parent}, true, nil
	}

	data, _, _, err := m.loadDirectoryBytes(dir)
	if err != nil {
		return fscore.DirEntry{}, false, err
	}
	entries, err := ParseDirectory(data)
	if err != nil {
		return fscore.DirEntry{}, false, err
	}

	listIndex := index - 2
	if dir != fscore.RootINODE {
		listIndex = index
	}
	if listIndex < 0 || listIndex >= len(entries) {
		return fscore.DirEntry{}, false, nil
	}
	entry := entries[listIndex]

	child := InodeRecord{
		Parent:       dir,
		Attr:         entry.Short.Attr,
		FirstCluster: entry.Short.FirstCluster(),
		Size:         entry.Short.FileSize,
		Ctime:        decodeDateTime(entry.Short.CreateDate, entry.Short.CreateTime),
		Mtime:        decodeDateTime(entry.Short.WriteDate, entry.Short.WriteTime),
		Atime:        decodeDateTime(entry.Short.LastAccessDate, 0),
	}
	handle := m.inodes.Register(child)
	return fscore.DirEntry{Name: entry.Name, INODE: handle}, true, nil
}

const direntsPerSlot = direntSize

// findFreeRun locates the first run of `need` consecutive free (0xE5) or
// past-terminator slots in a directory's raw bytes.
func findFreeRun(data []byte, need int) (start int, ok bool) {
	total := len(data) / direntsPerSlot
	free := 0
	for i := 0; i < total; i++ {
		b := data[i*direntsPerSlot]
		switch {
		case b == direntEnd:
			if free+total-i >= need {
				return i - free, true
			}
			return 0, false
		case b == direntFree:
			free++
			if free >= need {
				return i - need + 1, true
			}
		default:
			free = 0
		}
	}
	return 0, false
}

// Link implements driver.Filesystem.
func (m *Mount) Link(child fscore.INODE, dir fscore.INODE, name string) error {
	childRec, err := m.inodes.Get(child)
	if err != nil {
		return err
	}
	data, chain, _, err := m.loadDirectoryBytes(dir)
	if err != nil {
		return err
	}

	literal := name == "." || name == ".."

	var slots [][]byte
	var shortNameField [8]byte
	var extField [3]byte
	needsLFN := false
	if literal {
		shortNameField, extField = packShortName(name, "")
	} else {
		entries, err := ParseDirectory(data)
		if err != nil {
			return err
		}
		collision := 0
		for {
			base, ext := deriveShortName(name, collision)
			n, e := packShortName(base, ext)
			clash := false
			for _, existing := range entries {
				if existing.Short.Name == n && existing.Short.Ext == e {
					clash = true
					break
				}
			}
			if !clash {
				shortNameField, extField = n, e
				break
			}
			collision++
		}
		// A collision suffix always changes the on-disk name, so the real
		// name can only survive as an LFN chain once one's been applied.
		needsLFN = collision > 0 || needsLongName(name)
	}

	short := ShortEntry{
		Name:           shortNameField,
		Ext:            extField,
		Attr:           childRec.Attr,
		CreateTime:     encodeTime(childRec.Ctime),
		CreateDate:     encodeDate(childRec.Ctime),
		LastAccessDate: encodeDate(childRec.Atime),
		WriteTime:      encodeTime(childRec.Mtime),
		WriteDate:      encodeDate(childRec.Mtime),
		FileSize:       childRec.Size,
	}
	setFirstCluster(&short, childRec.FirstCluster)

	if literal || !needsLFN {
		buf := make([]byte, direntSize)
		encodeShortEntry(buf, short)
		slots = [][]byte{buf}
	} else {
		slots = encodeLFNChain(name, short)
	}

	start, ok := findFreeRun(data, len(slots))
	if !ok {
		if dir == fscore.RootINODE {
			return fscore.ErrNoSpaceOnDevice
		}
		newCluster, err := m.alloc.AppendCluster(chain[len(chain)-1])
		if err != nil {
			return err
		}
		chain = append(chain, newCluster)
		data = append(data, make([]byte, m.boot.ClusterSize)...)
		start, ok = findFreeRun(data, len(slots))
		if !ok {
			return fscore.ErrNoSpaceOnDevice
		}
	}

	for i, slot := range slots {
		copy(data[(start+i)*direntSize:(start+i+1)*direntSize], slot)
	}

	return m.writeDirectoryBytes(dir, data, chain)
}

// Unlink implements driver.Filesystem. index must be >= 2 (spec §4.7).
func (m *Mount) Unlink(dir fscore.INODE, index int) error {
	if index < 2 {
		return fscore.ErrInvalidArgument.WithMessage("index must address a real directory entry")
	}
	data, chain, _, err := m.loadDirectoryBytes(dir)
	if err != nil {
		return err
	}
	entries, err := ParseDirectory(data)
	if err != nil {
		return err
	}
	listIndex := index - 2
	if dir != fscore.RootINODE {
		listIndex = index
	}
	if listIndex < 0 || listIndex >= len(entries) {
		return fscore.ErrNotFound.WithMessage("no such directory entry")
	}
	entry := entries[listIndex]

	runStart := entry.SlotStart * direntSize
	runEnd := (entry.SlotStart + entry.SlotCount) * direntSize
	compacted := make([]byte, len(data))
	n := copy(compacted, data[:runStart])
	copy(compacted[n:], data[runEnd:])

	if err := m.writeDirectoryBytes(dir, compacted, chain); err != nil {
		return err
	}
	if entry.Short.FirstCluster() != 0 {
		return m.alloc.FreeChain(entry.Short.FirstCluster())
	}
	return nil
}

// Fstat implements driver.Filesystem.
func (m *Mount) Fstat(ino fscore.INODE) (fscore.FileStat, error) {
	rec, err := m.inodes.Get(ino)
	if err != nil {
		return fscore.FileStat{}, err
	}
	mode := fscore.ModePerm
	if rec.IsDir() {
		mode |= os.ModeDir
	}
	return fscore.FileStat{
		Size:  int64(rec.Size),
		Mode:  mode,
		Atime: rec.Atime,
		Ctime: rec.Ctime,
		Mtime: rec.Mtime,
	}, nil
}

// Mkdir implements driver.Filesystem.
func (m *Mount) Mkdir(parent fscore.INODE, name string) error {
	child, err := m.Touch(fscore.FileStat{Size: 0, Mode: os.ModeDir | fscore.ModePerm})
	if err != nil {
		return err
	}
	if err := m.Link(child, parent, name); err != nil {
		return err
	}

	childRec, err := m.inodes.Get(child)
	if err != nil {
		return err
	}
	zero := make([]byte, m.boot.ClusterSize)
	if err := m.cio.WriteClusters(zero, childRec.FirstCluster, 1); err != nil {
		return err
	}

	if err := m.Link(child, child, "."); err != nil {
		return err
	}
	return m.Link(parent, child, "..")
}

// Rmdir implements driver.Filesystem.
func (m *Mount) Rmdir(dir fscore.INODE, index int) error {
	entry, found, err := m.Readdir(dir, index)
	if err != nil {
		return err
	}
	if !found {
		return fscore.ErrNotFound.WithMessage("no such directory entry")
	}
	_, hasChildren, err := m.Readdir(entry.INODE, 2)
	if err != nil {
		return err
	}
	if hasChildren {
		return fscore.ErrDirectoryNotEmpty
	}
	return m.Unlink(dir, index)
}
