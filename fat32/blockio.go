// Package fat32 implements the FAT32 on-disk format: boot sector, allocation
// table, cluster chains, directory entries with long file names, and the
// mutable file/directory tree on top of them.
package fat32

import (
	"github.com/rifkyprayoga/usbfat/driver"
)

// blockIO adapts the block-aligned device interface to arbitrary byte
// ranges. Unaligned head and tail regions are staged through a scratch
// block; aligned middles go to the device directly.
type blockIO struct {
	device  driver.BlockDeviceDriver
	scratch []byte
}

func newBlockIO(device driver.BlockDeviceDriver) *blockIO {
	return &blockIO{
		device:  device,
		scratch: make([]byte, device.BlockSize()),
	}
}

func (bio *blockIO) blockSize() int64 {
	return int64(bio.device.BlockSize())
}

// ReadAt fills dst from the device starting at the given byte offset, with
// no alignment requirements.
func (bio *blockIO) ReadAt(offset int64, dst []byte) error {
	blockSize := bio.blockSize()

	// Leading partial block.
	if misalignment := offset % blockSize; misalignment != 0 {
		blockStart := offset - misalignment
		if err := bio.device.Read(blockStart, bio.scratch); err != nil {
			return err
		}
		n := copy(dst, bio.scratch[misalignment:])
		dst = dst[n:]
		offset += int64(n)
	}
	if len(dst) == 0 {
		return nil
	}

	// Aligned middle, straight into the caller's buffer.
	if aligned := int64(len(dst)) / blockSize * blockSize; aligned > 0 {
		if err := bio.device.Read(offset, dst[:aligned]); err != nil {
			return err
		}
		dst = dst[aligned:]
		offset += aligned
	}

	// Trailing partial block.
	if len(dst) > 0 {
		if err := bio.device.Read(offset, bio.scratch); err != nil {
			return err
		}
		copy(dst, bio.scratch)
	}
	return nil
}

// WriteAt stores src at the given byte offset. Partial head and tail blocks
// are read back first so the rest of their contents survive.
func (bio *blockIO) WriteAt(offset int64, src []byte) error {
	blockSize := bio.blockSize()

	if misalignment := offset % blockSize; misalignment != 0 {
		blockStart := offset - misalignment
		if err := bio.device.Read(blockStart, bio.scratch); err != nil {
			return err
		}
		n := copy(bio.scratch[misalignment:], src)
		if err := bio.device.Write(blockStart, bio.scratch); err != nil {
			return err
		}
		src = src[n:]
		offset += int64(n)
	}
	if len(src) == 0 {
		return nil
	}

	if aligned := int64(len(src)) / blockSize * blockSize; aligned > 0 {
		if err := bio.device.Write(offset, src[:aligned]); err != nil {
			return err
		}
		src = src[aligned:]
		offset += aligned
	}

	if len(src) > 0 {
		if err := bio.device.Read(offset, bio.scratch); err != nil {
			return err
		}
		copy(bio.scratch, src)
		if err := bio.device.Write(offset, bio.scratch); err != nil {
			return err
		}
	}
	return nil
}
