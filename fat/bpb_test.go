package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSector(raw *RawBPB) []byte {
	sector := make([]byte, 512)
	EncodeBPB(sector, raw)
	return sector
}

func baseRawBPB() *RawBPB {
	raw := &RawBPB{
		BytesPerSector:    512,
		SectorsPerCluster: 4,
		ReservedSectors:   1,
		FATCount:          2,
		RootEntryCount:    224,
		MediaDescriptor:   0xF0,
	}
	raw.totalSectors16 = 2880
	raw.sectorsPerFAT16 = 9
	return raw
}

func TestParseBPBDerivesGeometry(t *testing.T) {
	raw := baseRawBPB()
	boot, err := ParseBPB(makeSector(raw))
	require.NoError(t, err)

	assert.EqualValues(t, 2880, boot.TotalSectors)
	assert.EqualValues(t, 9, boot.SectorsPerFAT)
	assert.EqualValues(t, 2048, boot.ClusterSize)
	assert.EqualValues(t, 14, boot.RootSectors)
	assert.EqualValues(t, 19, boot.FirstDataSector)
	assert.EqualValues(t, 12, boot.FATVariant)
}

func TestParseBPBRejectsBadBytesPerSector(t *testing.T) {
	raw := baseRawBPB()
	raw.BytesPerSector = 4096
	_, err := ParseBPB(makeSector(raw))
	require.Error(t, err)
}

func TestParseBPBRejectsNonPowerOfTwoCluster(t *testing.T) {
	raw := baseRawBPB()
	raw.SectorsPerCluster = 3
	_, err := ParseBPB(makeSector(raw))
	require.Error(t, err)
}

func TestParseBPBRejectsTruncatedSector(t *testing.T) {
	_, err := ParseBPB(make([]byte, 10))
	require.Error(t, err)
}

func TestParseBPBRejectsImpossibleGeometry(t *testing.T) {
	raw := baseRawBPB()
	raw.totalSectors16 = 5 // smaller than reserved+FAT+root area
	_, err := ParseBPB(makeSector(raw))
	require.Error(t, err)
}
