package driver

import (
	"io"

	"github.com/xaionaro-go/bytesextra"

	"github.com/rifkyprayoga/usbfat/errors"
)

// ByteBlockDevice is a RAM-backed block device over a byte slice. It is the
// in-memory backend the file system is tested against, and doubles as a way
// to mount an image that is already in memory.
type ByteBlockDevice struct {
	stream    io.ReadWriteSeeker
	blockSize int
	blocks    int64
}

// NewByteBlockDevice wraps storage in a block device with the given block
// size. Trailing bytes beyond the last whole block are ignored.
func NewByteBlockDevice(storage []byte, blockSize int) *ByteBlockDevice {
	return &ByteBlockDevice{
		stream:    bytesextra.NewReadWriteSeeker(storage),
		blockSize: blockSize,
		blocks:    int64(len(storage) / blockSize),
	}
}

func (dev *ByteBlockDevice) Init() error {
	return nil
}

func (dev *ByteBlockDevice) Read(deviceOffset int64, buffer []byte) error {
	if err := CheckAccess(dev, deviceOffset, len(buffer)); err != nil {
		return err
	}
	if _, err := dev.stream.Seek(deviceOffset, io.SeekStart); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	if _, err := io.ReadFull(dev.stream, buffer); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

func (dev *ByteBlockDevice) Write(deviceOffset int64, buffer []byte) error {
	if err := CheckAccess(dev, deviceOffset, len(buffer)); err != nil {
		return err
	}
	if _, err := dev.stream.Seek(deviceOffset, io.SeekStart); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	if _, err := dev.stream.Write(buffer); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

func (dev *ByteBlockDevice) BlockSize() int {
	return dev.blockSize
}

func (dev *ByteBlockDevice) Blocks() int64 {
	return dev.blocks
}
