package fs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rifkyprayoga/usbfat"
	"github.com/rifkyprayoga/usbfat/driver"
	"github.com/rifkyprayoga/usbfat/errors"
	"github.com/rifkyprayoga/usbfat/fs"
	fstesting "github.com/rifkyprayoga/usbfat/testing"
)

func TestCreateFileSystemFromPartitionedDevice(t *testing.T) {
	device, _ := fstesting.NewPartitionedTestDevice(t, "PARTVOL")

	volume, err := fs.CreateFileSystem(device, usbfat.Config{})
	require.NoError(t, err)

	label, err := volume.VolumeLabel()
	require.NoError(t, err)
	assert.Equal(t, "PARTVOL", label)

	names, err := volume.Root().List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCreateFileSystemFromSuperfloppy(t *testing.T) {
	// No MBR: the boot sector sits at LBA 0, the way many sticks ship.
	device, _ := fstesting.NewTestDevice(t, "FLOPPY")

	volume, err := fs.CreateFileSystem(device, usbfat.Config{})
	require.NoError(t, err)

	label, err := volume.VolumeLabel()
	require.NoError(t, err)
	assert.Equal(t, "FLOPPY", label)
}

func TestCreateFileSystemRejectsGarbage(t *testing.T) {
	device := driver.NewByteBlockDevice(make([]byte, 1024*512), 512)

	_, err := fs.CreateFileSystem(device, usbfat.Config{})
	assert.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidFormat)
}

func TestMutationsSurviveThroughFactoryMount(t *testing.T) {
	device, image := fstesting.NewPartitionedTestDevice(t, "PARTVOL")

	volume, err := fs.CreateFileSystem(device, usbfat.Config{})
	require.NoError(t, err)

	file, err := volume.Root().CreateFile("note.txt")
	require.NoError(t, err)
	require.NoError(t, file.WriteAt(0, []byte("persisted")))
	require.NoError(t, file.Close())

	// A second factory pass over the same image must see the file.
	device2 := driver.NewByteBlockDevice(image, fstesting.TestSectorSize)
	volume2, err := fs.CreateFileSystem(device2, usbfat.Config{})
	require.NoError(t, err)

	found, err := volume2.Root().Search("note.txt")
	require.NoError(t, err)
	require.NotNil(t, found)

	contents := make([]byte, found.Length())
	require.NoError(t, found.ReadAt(0, contents))
	assert.Equal(t, "persisted", string(contents))
}
