package fat32

import (
	"strings"

	"go.uber.org/zap"

	"github.com/rifkyprayoga/usbfat"
	"github.com/rifkyprayoga/usbfat/driver"
	"github.com/rifkyprayoga/usbfat/errors"
)

// FileSystem is one mounted FAT32 volume. All handles rooted at the same
// FileSystem share its device, FAT, and FSInfo; the caller serializes
// access across them.
type FileSystem struct {
	bio    *blockIO
	bs     *BootSector
	info   *FSInfo
	fat    *FAT
	logger *zap.Logger

	root *Directory
}

// Mount parses the boot sector and FSInfo found at byte 0 of the device
// (typically a [github.com/rifkyprayoga/usbfat/partition.Partition]) and
// returns the mounted volume. The device must already be initialized.
func Mount(device driver.BlockDeviceDriver, cfg usbfat.Config) (*FileSystem, error) {
	cfg = cfg.Normalized()
	bio := newBlockIO(device)

	sector := make([]byte, BootSectorSize)
	if err := bio.ReadAt(0, sector); err != nil {
		return nil, err
	}
	bs, err := ParseBootSector(sector)
	if err != nil {
		return nil, err
	}

	info, err := readFSInfo(bio, bs)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{
		bio:    bio,
		bs:     bs,
		info:   info,
		logger: cfg.Logger,
	}
	fs.fat = newFAT(bio, bs, info, cfg.Logger)
	fs.root = &Directory{fs: fs}
	return fs, nil
}

// Root returns the root directory of the volume.
func (fs *FileSystem) Root() usbfat.UsbFile {
	return fs.root
}

// VolumeLabel returns the label from the root directory's label entry, or
// the one recorded in the boot sector when the root has none.
func (fs *FileSystem) VolumeLabel() (string, error) {
	if err := fs.root.init(); err != nil {
		return "", err
	}
	if fs.root.volumeLabel != nil {
		name := fs.root.volumeLabel.ShortNameBytes()
		return strings.TrimRight(string(name[:]), " "), nil
	}
	return fs.bs.VolumeLabel, nil
}

// Capacity returns the size of the data area, in bytes.
func (fs *FileSystem) Capacity() int64 {
	return int64(fs.bs.TotalDataClusters) * int64(fs.bs.BytesPerCluster)
}

// FreeSpace returns the number of unallocated bytes, from the FAT scan.
func (fs *FileSystem) FreeSpace() (int64, error) {
	free, err := fs.fat.FreeClusters()
	if err != nil {
		return 0, err
	}
	return int64(free) * int64(fs.bs.BytesPerCluster), nil
}

// OccupiedSpace returns the number of allocated bytes.
func (fs *FileSystem) OccupiedSpace() (int64, error) {
	free, err := fs.FreeSpace()
	if err != nil {
		return 0, err
	}
	return fs.Capacity() - free, nil
}

// BootSector exposes the parsed volume geometry.
func (fs *FileSystem) BootSector() *BootSector {
	return fs.bs
}

// resolveDirectory checks that a move destination is a directory on this
// same volume.
func (fs *FileSystem) resolveDirectory(handle usbfat.UsbFile) (*Directory, error) {
	dir, ok := handle.(*Directory)
	if !ok {
		if handle != nil && !handle.IsDirectory() {
			return nil, errors.ErrNotADirectory.WithMessage(handle.Name())
		}
		return nil, errors.ErrCrossFileSystem.WithMessage(
			"destination is not a FAT32 directory",
		)
	}
	if dir.fs != fs {
		return nil, errors.ErrCrossFileSystem.WithMessage(
			"destination belongs to a different volume",
		)
	}
	return dir, nil
}
