package partition_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rifkyprayoga/usbfat/driver"
	"github.com/rifkyprayoga/usbfat/errors"
	"github.com/rifkyprayoga/usbfat/partition"
)

func buildMbr(t *testing.T, entries ...[3]uint32) []byte {
	t.Helper()
	sector := make([]byte, 512)
	for i, e := range entries {
		slot := sector[0x1BE+i*16:]
		slot[4] = byte(e[0])
		binary.LittleEndian.PutUint32(slot[8:], e[1])
		binary.LittleEndian.PutUint32(slot[12:], e[2])
	}
	sector[510] = 0x55
	sector[511] = 0xAA
	return sector
}

func TestParseTableFindsFat32Partitions(t *testing.T) {
	sector := buildMbr(t,
		[3]uint32{0x83, 63, 1000},     // Linux, ignored
		[3]uint32{0x0C, 2048, 100000}, // FAT32 LBA
		[3]uint32{0x0B, 110000, 5000}, // FAT32 CHS-addressed
	)

	table, err := partition.ParseTable(sector)
	require.NoError(t, err)

	assert.False(t, table.Entries[0].IsFat32())
	assert.True(t, table.Entries[1].IsFat32())
	assert.True(t, table.Entries[2].IsFat32())
	assert.True(t, table.Entries[3].IsEmpty())
	assert.EqualValues(t, 2048, table.Entries[1].FirstLBA)
	assert.EqualValues(t, 100000, table.Entries[1].TotalSectors)
}

func TestParseTableRejectsMissingSignature(t *testing.T) {
	sector := make([]byte, 512)
	_, err := partition.ParseTable(sector)
	assert.ErrorIs(t, err, errors.ErrInvalidFormat)
}

func TestParseTableRejectsGpt(t *testing.T) {
	sector := buildMbr(t, [3]uint32{0xEE, 1, 0xFFFFFFFF})
	_, err := partition.ParseTable(sector)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}

func TestPartitionShiftsAllAccesses(t *testing.T) {
	storage := make([]byte, 64*512)
	device := driver.NewByteBlockDevice(storage, 512)

	entry := partition.TableEntry{Type: 0x0C, FirstLBA: 16, TotalSectors: 32}
	part := partition.New(device, &entry)
	require.NoError(t, part.Init())

	assert.Equal(t, 512, part.BlockSize())
	assert.EqualValues(t, 32, part.Blocks())

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, part.Write(512, payload))

	// The write must land one block past the partition start.
	assert.Equal(t, payload, storage[17*512:18*512])

	readBack := make([]byte, 512)
	require.NoError(t, part.Read(512, readBack))
	assert.Equal(t, payload, readBack)
}
