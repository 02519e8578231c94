package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkfs-go/fscore"
	"github.com/mkfs-go/fscore/block"
	"github.com/mkfs-go/fscore/internal/fixtures"
)

// formatTestVolume creates and mounts a small FAT12 volume in memory,
// following the teacher's compressed-image-fixture style but building the
// image fresh instead of loading one from disk.
func formatTestVolume(t *testing.T, totalBytes int64) (*Mount, *block.Cache) {
	t.Helper()
	stat := fscore.FSStat{
		TotalBytes:      totalBytes,
		BytesPerSector:  512,
		RootEntryCount:  112,
		MediaDescriptor: 0xF0,
	}
	cache := fixtures.BlankCache(uint32(totalBytes / 512))
	fs, err := Hooks.Create(cache, stat)
	require.NoError(t, err)
	m, ok := fs.(*Mount)
	require.True(t, ok)
	return m, cache
}

func TestFormatMountTouchLinkWriteCloseReopenRoundTrip(t *testing.T) {
	m, cache := formatTestVolume(t, 1440*1024)

	ino, err := m.Touch(fscore.FileStat{Size: 100})
	require.NoError(t, err)
	require.NoError(t, m.Link(ino, fscore.RootINODE, "HELLO.TXT"))

	payload := []byte("Hello, world!\n")
	n, err := m.Write(ino, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	require.NoError(t, Hooks.Close(m))

	reopened, err := Hooks.Load(cache, fscore.MountFlagsReadOnly)
	require.NoError(t, err)
	rm := reopened.(*Mount)

	entry, ok, err := rm.Readdir(fscore.RootINODE, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "HELLO.TXT", entry.Name)

	stat, err := rm.Fstat(entry.INODE)
	require.NoError(t, err)
	assert.EqualValues(t, 100, stat.Size)

	buf := make([]byte, len(payload))
	n, err = rm.Read(entry.INODE, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
}

func TestMkdirThenReaddirDotAndDotDot(t *testing.T) {
	m, _ := formatTestVolume(t, 4*1024*1024)

	require.NoError(t, m.Mkdir(fscore.RootINODE, "subdir"))

	entry, ok, err := m.Readdir(fscore.RootINODE, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "subdir", entry.Name)
	subdir := entry.INODE

	dot, ok, err := m.Readdir(subdir, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ".", dot.Name)
	assert.Equal(t, subdir, dot.INODE)

	dotdot, ok, err := m.Readdir(subdir, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "..", dotdot.Name)
	assert.Equal(t, fscore.RootINODE, dotdot.INODE)

	_, ok, err = m.Readdir(subdir, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTouchZeroSizeStillAllocatesOneCluster(t *testing.T) {
	m, _ := formatTestVolume(t, 1440*1024)

	ino, err := m.Touch(fscore.FileStat{Size: 0})
	require.NoError(t, err)

	rec, err := m.inodes.Get(ino)
	require.NoError(t, err)
	assert.NotEqualValues(t, 0, rec.FirstCluster)
}

func TestFstatPermissionBitsAreAlwaysFullRegardlessOfKind(t *testing.T) {
	m, _ := formatTestVolume(t, 1440*1024)

	file, err := m.Touch(fscore.FileStat{Size: 1})
	require.NoError(t, err)
	fileStat, err := m.Fstat(file)
	require.NoError(t, err)
	assert.Equal(t, fscore.ModePerm, fileStat.Mode.Perm())
	assert.False(t, fileStat.Mode.IsDir())

	require.NoError(t, m.Mkdir(fscore.RootINODE, "subdir"))
	entry, ok, err := m.Readdir(fscore.RootINODE, 2)
	require.NoError(t, err)
	require.True(t, ok)
	dirStat, err := m.Fstat(entry.INODE)
	require.NoError(t, err)
	assert.Equal(t, fscore.ModePerm, dirStat.Mode.Perm())
	assert.True(t, dirStat.Mode.IsDir())
}

func TestLinkSkipsLongNameChainWhenShortNameFitsExactly(t *testing.T) {
	m, _ := formatTestVolume(t, 1440*1024)

	ino, err := m.Touch(fscore.FileStat{Size: 1})
	require.NoError(t, err)
	require.NoError(t, m.Link(ino, fscore.RootINODE, "README.TXT"))

	data, _, _, err := m.loadDirectoryBytes(fscore.RootINODE)
	require.NoError(t, err)
	entries, err := ParseDirectory(data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "README.TXT", entries[0].Name)
	assert.Equal(t, 1, entries[0].SlotCount) // fits as a bare short entry, no LFN chain needed
}

func TestLongNameEntryCountsAndChecksum(t *testing.T) {
	m, _ := formatTestVolume(t, 1440*1024)

	ino, err := m.Touch(fscore.FileStat{Size: 10})
	require.NoError(t, err)
	require.NoError(t, m.Link(ino, fscore.RootINODE, "verylongfilename.dat"))

	data, _, _, err := m.loadDirectoryBytes(fscore.RootINODE)
	require.NoError(t, err)
	entries, err := ParseDirectory(data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "verylongfilename.dat", entries[0].Name)
	assert.Equal(t, 3, entries[0].SlotCount) // two LFN entries + one short entry

	want := shortNameChecksum(entries[0].Short.Name, entries[0].Short.Ext)
	for slot := entries[0].SlotStart; slot < entries[0].SlotStart+entries[0].SlotCount-1; slot++ {
		_, _, checksum := decodeLFNEntry(data[slot*direntSize : (slot+1)*direntSize])
		assert.Equal(t, want, checksum)
	}
}

func TestUnlinkThenReaddirShiftsDownAndSkipsRemoved(t *testing.T) {
	m, _ := formatTestVolume(t, 1440*1024)

	names := []string{"A.TXT", "B.TXT", "C.TXT"}
	for _, name := range names {
		ino, err := m.Touch(fscore.FileStat{Size: 1})
		require.NoError(t, err)
		require.NoError(t, m.Link(ino, fscore.RootINODE, name))
	}

	// Unlink "B.TXT" (index 3: 0/1 are "."/".." synthetic, root skips the +2
	// shift since it carries no physical dot entries, so index 2/3/4 map to
	// A/B/C).
	require.NoError(t, m.Unlink(fscore.RootINODE, 3))

	var remaining []string
	for i := 2; ; i++ {
		entry, ok, err := m.Readdir(fscore.RootINODE, i)
		require.NoError(t, err)
		if !ok {
			break
		}
		remaining = append(remaining, entry.Name)
	}
	assert.Equal(t, []string{"A.TXT", "C.TXT"}, remaining)
}

func TestRmdirFailsWhenNotEmpty(t *testing.T) {
	m, _ := formatTestVolume(t, 4*1024*1024)
	require.NoError(t, m.Mkdir(fscore.RootINODE, "subdir"))

	entry, ok, err := m.Readdir(fscore.RootINODE, 2)
	require.NoError(t, err)
	require.True(t, ok)

	ino, err := m.Touch(fscore.FileStat{Size: 1})
	require.NoError(t, err)
	require.NoError(t, m.Link(ino, entry.INODE, "FILE.TXT"))

	err = m.Rmdir(fscore.RootINODE, 2)
	require.ErrorIs(t, err, fscore.ErrDirectoryNotEmpty)
}

func TestAllocateReusesFreedClustersAcrossFiles(t *testing.T) {
	m, _ := formatTestVolume(t, 1440*1024)

	clusterSize := int64(m.boot.ClusterSize)
	makeFile := func(name string, size int64) fscore.INODE {
		ino, err := m.Touch(fscore.FileStat{Size: size})
		require.NoError(t, err)
		require.NoError(t, m.Link(ino, fscore.RootINODE, name))
		return ino
	}

	a := makeFile("A.BIN", clusterSize+1)
	b := makeFile("B.BIN", clusterSize+1)
	_ = makeFile("C.BIN", clusterSize+1)

	recB, err := m.inodes.Get(b)
	require.NoError(t, err)
	freedChain, err := m.alloc.ListChain(recB.FirstCluster)
	require.NoError(t, err)

	// Unlink B via its readdir index (index 3: A=2, B=3, C=4 on the root).
	require.NoError(t, m.Unlink(fscore.RootINODE, 3))

	d := makeFile("D.BIN", clusterSize+1)
	recD, err := m.inodes.Get(d)
	require.NoError(t, err)
	newChain, err := m.alloc.ListChain(recD.FirstCluster)
	require.NoError(t, err)

	assert.Equal(t, freedChain, newChain)
	_ = a
}
