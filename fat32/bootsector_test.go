package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rifkyprayoga/usbfat/errors"
	fstesting "github.com/rifkyprayoga/usbfat/testing"
)

func formattedBootSector(t *testing.T) []byte {
	t.Helper()
	image := fstesting.FormatImage(t, fstesting.TestImageBytes, "TESTVOL")
	return image[:BootSectorSize]
}

func TestParseBootSectorDerivedValues(t *testing.T) {
	bs, err := ParseBootSector(formattedBootSector(t))
	require.NoError(t, err)

	assert.Equal(t, 512, bs.BytesPerSector)
	assert.Equal(t, 8, bs.SectorsPerCluster)
	assert.Equal(t, 4096, bs.BytesPerCluster)
	assert.Equal(t, 2, bs.FatCount)
	assert.EqualValues(t, 128, bs.SectorsPerFat)
	assert.EqualValues(t, 131072, bs.TotalSectors)
	assert.EqualValues(t, 16348, bs.TotalDataClusters)
	assert.EqualValues(t, 2, bs.RootDirCluster)
	assert.Equal(t, "TESTVOL", bs.VolumeLabel)

	// Reserved area, then two FATs, then the data area.
	assert.EqualValues(t, 32*512, bs.FatOffset(0))
	assert.EqualValues(t, (32+128)*512, bs.FatOffset(1))
	assert.EqualValues(t, (32+2*128)*512, bs.DataAreaOffset)
	assert.EqualValues(t, bs.DataAreaOffset, bs.ClusterOffset(2))
	assert.EqualValues(t, bs.DataAreaOffset+4096, bs.ClusterOffset(3))
}

func TestParseBootSectorRejectsBadSignature(t *testing.T) {
	sector := formattedBootSector(t)
	sector[510] = 0
	_, err := ParseBootSector(sector)
	assert.ErrorIs(t, err, errors.ErrInvalidFormat)
}

func TestParseBootSectorRejectsOddSectorSize(t *testing.T) {
	sector := formattedBootSector(t)
	sector[11] = 0x01 // 513 bytes per sector
	sector[12] = 0x02
	_, err := ParseBootSector(sector)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}

func TestParseBootSectorRejectsNonPowerOfTwoClusters(t *testing.T) {
	sector := formattedBootSector(t)
	sector[13] = 6
	_, err := ParseBootSector(sector)
	assert.ErrorIs(t, err, errors.ErrInvalidFormat)
}

func TestParseBootSectorRejectsFat16(t *testing.T) {
	sector := formattedBootSector(t)
	// A 16-bit FAT length marks the volume as FAT12/16.
	sector[22] = 0x40
	_, err := ParseBootSector(sector)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}
