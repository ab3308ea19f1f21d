// Package driver defines the block-addressed device abstraction the file
// system layers sit on, plus in-memory and file-backed implementations used
// for testing and for working with disk images directly.
package driver

import (
	"fmt"

	"github.com/rifkyprayoga/usbfat/errors"
)

// BlockDeviceDriver is address-stable block I/O. Offsets are byte offsets
// from the start of the device and must be multiples of the block size, as
// must buffer lengths. [github.com/rifkyprayoga/usbfat/partition.Partition]
// layers a constant byte shift on top of this same interface.
type BlockDeviceDriver interface {
	// Init prepares the device for I/O. It must be called once before the
	// first Read or Write and is idempotent.
	Init() error

	// Read fills buffer with data starting at the given byte offset.
	Read(deviceOffset int64, buffer []byte) error

	// Write stores buffer at the given byte offset.
	Write(deviceOffset int64, buffer []byte) error

	// BlockSize returns the size of an addressable block, in bytes.
	BlockSize() int

	// Blocks returns the total number of blocks on the device.
	Blocks() int64
}

// CheckAccess validates the alignment and bounds rules shared by every
// implementation. It returns nil when the access is legal.
func CheckAccess(dev BlockDeviceDriver, deviceOffset int64, length int) error {
	blockSize := int64(dev.BlockSize())
	if deviceOffset%blockSize != 0 {
		return errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"offset %d is not a multiple of the block size %d",
				deviceOffset,
				blockSize,
			),
		)
	}
	if int64(length)%blockSize != 0 {
		return errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"length %d is not a multiple of the block size %d",
				length,
				blockSize,
			),
		)
	}
	if deviceOffset+int64(length) > dev.Blocks()*blockSize {
		return errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"access of %d bytes at %d runs past the end of the %d-block device",
				length,
				deviceOffset,
				dev.Blocks(),
			),
		)
	}
	return nil
}
