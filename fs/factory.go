// Package fs detects and mounts the file system on a block device, gluing
// together the partition and fat32 layers.
package fs

import (
	goerrors "errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/rifkyprayoga/usbfat"
	"github.com/rifkyprayoga/usbfat/driver"
	"github.com/rifkyprayoga/usbfat/errors"
	"github.com/rifkyprayoga/usbfat/fat32"
	"github.com/rifkyprayoga/usbfat/partition"
	"github.com/rifkyprayoga/usbfat/scsi"
	"github.com/rifkyprayoga/usbfat/usb"
)

// CreateFileSystem initializes the device, locates a FAT32 volume on it,
// and mounts it. Devices with a partition table are probed slot by slot;
// partitionless ("superfloppy") media are mounted from byte 0.
func CreateFileSystem(device driver.BlockDeviceDriver, cfg usbfat.Config) (*fat32.FileSystem, error) {
	if err := device.Init(); err != nil {
		return nil, err
	}

	table, err := partition.ReadTable(device)
	if err != nil {
		if goerrors.Is(err, errors.ErrInvalidFormat) {
			// No MBR at all. Some sticks are formatted as one big volume
			// with the boot sector at LBA 0.
			return fat32.Mount(partition.Whole(device), cfg)
		}
		return nil, err
	}

	parts := table.Fat32Partitions(device)
	if len(parts) == 0 {
		// A valid boot signature but no FAT32 slot; a superfloppy boot
		// sector also ends in 0x55 0xAA, so try that interpretation.
		return fat32.Mount(partition.Whole(device), cfg)
	}

	var probeErrors *multierror.Error
	for i, part := range parts {
		mounted, err := fat32.Mount(part, cfg)
		if err == nil {
			return mounted, nil
		}
		probeErrors = multierror.Append(probeErrors, fmt.Errorf("partition %d: %w", i, err))
	}
	return nil, errors.ErrUnsupported.WithMessage("no mountable FAT32 volume").
		WrapError(probeErrors.ErrorOrNil())
}

// MountMassStorage builds the SCSI block device over an open bulk pipe
// pair and mounts the file system on it.
func MountMassStorage(comm usb.Communication, cfg usbfat.Config) (*fat32.FileSystem, error) {
	return CreateFileSystem(scsi.NewBlockDevice(comm, cfg), cfg)
}
