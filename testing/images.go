// Package testing builds throwaway FAT32 images for the package tests, the
// way a formatter would, so every layer can be exercised against an
// in-memory device.
package testing

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rifkyprayoga/usbfat/driver"
)

// Image geometry shared by the package tests: a 64 MiB volume with 512-byte
// sectors and 4 KiB clusters.
const (
	TestImageBytes   = 64 * 1024 * 1024
	TestSectorSize   = 512
	TestClusterSize  = 4096
	reservedSectors  = 32
	fatCopies        = 2
	sectorsPerClust  = TestClusterSize / TestSectorSize
	testVolumeSerial = 0x1234ABCD
)

// FormatImage lays down a fresh FAT32 volume in memory: BPB, FSInfo, two
// FATs with the root chain terminated, and a volume label entry in the
// root directory.
func FormatImage(t *testing.T, totalBytes int, label string) []byte {
	t.Helper()
	require.Zero(t, totalBytes%TestSectorSize, "image size must be sector aligned")

	image := make([]byte, totalBytes)
	totalSectors := uint32(totalBytes / TestSectorSize)

	// Solve for the FAT size: each data cluster needs one 4-byte entry,
	// plus the two reserved ones. A second pass settles the interaction
	// between FAT size and data area size.
	sectorsPerFat := uint32(1)
	for i := 0; i < 2; i++ {
		dataSectors := totalSectors - reservedSectors - fatCopies*sectorsPerFat
		clusters := dataSectors / sectorsPerClust
		sectorsPerFat = (clusters + 2) * 4 / TestSectorSize
		if (clusters+2)*4%TestSectorSize != 0 {
			sectorsPerFat++
		}
	}

	bpb := image[0:TestSectorSize]
	copy(bpb[0:3], []byte{0xEB, 0x58, 0x90})
	copy(bpb[3:11], "MSDOS5.0")
	binary.LittleEndian.PutUint16(bpb[11:], TestSectorSize)
	bpb[13] = sectorsPerClust
	binary.LittleEndian.PutUint16(bpb[14:], reservedSectors)
	bpb[16] = fatCopies
	bpb[21] = 0xF8
	binary.LittleEndian.PutUint32(bpb[32:], totalSectors)
	binary.LittleEndian.PutUint32(bpb[36:], sectorsPerFat)
	binary.LittleEndian.PutUint32(bpb[44:], 2) // root directory cluster
	binary.LittleEndian.PutUint16(bpb[48:], 1) // FSInfo sector
	binary.LittleEndian.PutUint16(bpb[50:], 6) // backup boot sector
	bpb[64] = 0x80
	bpb[66] = 0x29
	binary.LittleEndian.PutUint32(bpb[67:], testVolumeSerial)
	copy(bpb[71:82], padLabel(label))
	copy(bpb[82:90], "FAT32   ")
	bpb[510] = 0x55
	bpb[511] = 0xAA

	dataSectors := totalSectors - reservedSectors - fatCopies*sectorsPerFat
	clusters := dataSectors / sectorsPerClust

	fsInfo := image[TestSectorSize : 2*TestSectorSize]
	binary.LittleEndian.PutUint32(fsInfo[0:], 0x41615252)
	binary.LittleEndian.PutUint32(fsInfo[484:], 0x61417272)
	binary.LittleEndian.PutUint32(fsInfo[488:], clusters-1) // root takes one
	binary.LittleEndian.PutUint32(fsInfo[492:], 3)
	binary.LittleEndian.PutUint32(fsInfo[508:], 0xAA550000)

	for copyIndex := 0; copyIndex < fatCopies; copyIndex++ {
		fatStart := (reservedSectors + uint32(copyIndex)*sectorsPerFat) * TestSectorSize
		fat := image[fatStart:]
		binary.LittleEndian.PutUint32(fat[0:], 0x0FFFFFF8) // media entry
		binary.LittleEndian.PutUint32(fat[4:], 0x0FFFFFFF) // reserved entry
		binary.LittleEndian.PutUint32(fat[8:], 0x0FFFFFFF) // root chain end
	}

	if label != "" {
		rootStart := (reservedSectors + fatCopies*sectorsPerFat) * TestSectorSize
		labelEntry := image[rootStart : rootStart+32]
		copy(labelEntry[0:11], padLabel(label))
		labelEntry[11] = 0x08
	}
	return image
}

func padLabel(label string) []byte {
	padded := []byte("           ")
	copy(padded, label)
	return padded
}

// NewTestDevice formats a default image and wraps it in a RAM block
// device.
func NewTestDevice(t *testing.T, label string) (*driver.ByteBlockDevice, []byte) {
	t.Helper()
	image := FormatImage(t, TestImageBytes, label)
	return driver.NewByteBlockDevice(image, TestSectorSize), image
}

// NewPartitionedTestDevice builds an image with a conventional MBR whose
// single FAT32 partition starts at sector 2048.
func NewPartitionedTestDevice(t *testing.T, label string) (*driver.ByteBlockDevice, []byte) {
	t.Helper()
	const partitionStart = 2048

	volume := FormatImage(t, TestImageBytes, label)
	image := make([]byte, partitionStart*TestSectorSize+len(volume))
	copy(image[partitionStart*TestSectorSize:], volume)

	entry := image[0x1BE : 0x1BE+16]
	entry[4] = 0x0C // FAT32 LBA
	binary.LittleEndian.PutUint32(entry[8:], partitionStart)
	binary.LittleEndian.PutUint32(entry[12:], uint32(len(volume)/TestSectorSize))
	image[510] = 0x55
	image[511] = 0xAA

	return driver.NewByteBlockDevice(image, TestSectorSize), image
}
