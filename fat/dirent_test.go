package fat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackedDateTimeRoundTrip(t *testing.T) {
	when := time.Date(2024, time.March, 5, 13, 42, 38, 0, time.UTC)

	date := encodeDate(when)
	clock := encodeTime(when)
	decoded := decodeDateTime(date, clock)

	assert.Equal(t, 2024, decoded.Year())
	assert.Equal(t, time.March, decoded.Month())
	assert.Equal(t, 5, decoded.Day())
	assert.Equal(t, 13, decoded.Hour())
	assert.Equal(t, 42, decoded.Minute())
	// Seconds are stored in 2-second units; odd seconds don't survive.
	assert.Equal(t, 38, decoded.Second())
}

func TestDecodeDateUsesThe1980Epoch(t *testing.T) {
	// year field 0 must mean 1980, not 1900.
	year, _, _ := decodeDate(0)
	assert.Equal(t, 1980, year)
}

func TestShortEntryClusterRoundTripPast256(t *testing.T) {
	var e ShortEntry
	setFirstCluster(&e, ClusterID(0x1234))
	assert.EqualValues(t, 0x1234, e.FirstCluster())
	// Regression for the cluster_low & 0xFF bug: clusters >= 256 must survive.
	assert.EqualValues(t, 0x1234, e.ClusterLow)
}

func TestShortNameChecksumMatchesKnownValue(t *testing.T) {
	name, ext := packShortName("HELLO", "TXT")
	sum := shortNameChecksum(name, ext)
	// "HELLO   TXT" under the rotate-right-and-add VFAT checksum.
	assert.Equal(t, uint8(0xF1), sum)
}

func TestEncodeLFNChainBoundaryThirteenChars(t *testing.T) {
	name := "abcdefghijklm" // exactly 13 chars -> one LFN entry
	require.Len(t, name, 13)

	short := ShortEntry{}
	short.Name, short.Ext = packShortName("ABCDEFGH", "ABC")
	slots := encodeLFNChain(name, short)
	assert.Len(t, slots, 2) // one LFN + one short entry

	order, _, checksum := decodeLFNEntry(slots[0])
	assert.Equal(t, uint8(1|lfnLastFlag), order)
	assert.Equal(t, shortNameChecksum(short.Name, short.Ext), checksum)
}

func TestEncodeLFNChainBoundaryFourteenChars(t *testing.T) {
	name := "abcdefghijklmn" // 14 chars -> two LFN entries
	require.Len(t, name, 14)

	short := ShortEntry{}
	short.Name, short.Ext = packShortName("ABCDEFGH", "ABC")
	slots := encodeLFNChain(name, short)
	assert.Len(t, slots, 3) // two LFN + one short entry

	order0, _, _ := decodeLFNEntry(slots[0])
	assert.Equal(t, uint8(2|lfnLastFlag), order0)
	order1, _, _ := decodeLFNEntry(slots[1])
	assert.Equal(t, uint8(1), order1)
}

func TestParseDirectoryReassemblesLongName(t *testing.T) {
	name := "verylongfilename.dat"
	short := ShortEntry{}
	short.Name, short.Ext = packShortName("VERYLO~1", "DAT")
	slots := encodeLFNChain(name, short)

	buf := make([]byte, len(slots)*direntSize+direntSize) // trailing terminator
	for i, s := range slots {
		copy(buf[i*direntSize:], s)
	}

	entries, err := ParseDirectory(buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, name, entries[0].Name)
	assert.Equal(t, len(slots), entries[0].SlotCount)
}

func TestParseDirectorySkipsDeletedEntries(t *testing.T) {
	buf := make([]byte, direntSize*3)
	var a, b ShortEntry
	a.Name, a.Ext = packShortName("AAAAAAAA", "TXT")
	b.Name, b.Ext = packShortName("BBBBBBBB", "TXT")
	encodeShortEntry(buf[0:direntSize], a)
	buf[direntSize] = direntFree
	encodeShortEntry(buf[2*direntSize:3*direntSize], b)

	entries, err := ParseDirectory(buf)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, strings.HasPrefix(entries[0].Name, "AAAAAAAA"))
	assert.True(t, strings.HasPrefix(entries[1].Name, "BBBBBBBB"))
}

func TestDeriveShortNameCollisionSuffix(t *testing.T) {
	base, ext := deriveShortName("verylongfilename.dat", 1)
	assert.Equal(t, "VERYLO~1", base)
	assert.Equal(t, "DAT", ext)
}
