package driver

import (
	"os"

	"github.com/rifkyprayoga/usbfat/errors"
)

// FileBlockDevice adapts a disk image file into a block device. The fatcli
// tool uses it to run the whole stack against an image instead of real
// hardware.
type FileBlockDevice struct {
	file      *os.File
	blockSize int
	blocks    int64
}

// NewFileBlockDevice wraps an open image file. The file size is fixed at
// wrap time; trailing bytes beyond the last whole block are ignored.
func NewFileBlockDevice(file *os.File, blockSize int) (*FileBlockDevice, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, errors.ErrIOFailed.WrapError(err)
	}
	return &FileBlockDevice{
		file:      file,
		blockSize: blockSize,
		blocks:    info.Size() / int64(blockSize),
	}, nil
}

func (dev *FileBlockDevice) Init() error {
	return nil
}

func (dev *FileBlockDevice) Read(deviceOffset int64, buffer []byte) error {
	if err := CheckAccess(dev, deviceOffset, len(buffer)); err != nil {
		return err
	}
	if _, err := dev.file.ReadAt(buffer, deviceOffset); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

func (dev *FileBlockDevice) Write(deviceOffset int64, buffer []byte) error {
	if err := CheckAccess(dev, deviceOffset, len(buffer)); err != nil {
		return err
	}
	if _, err := dev.file.WriteAt(buffer, deviceOffset); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

func (dev *FileBlockDevice) BlockSize() int {
	return dev.blockSize
}

func (dev *FileBlockDevice) Blocks() int64 {
	return dev.blocks
}
