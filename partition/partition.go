package partition

import (
	"github.com/rifkyprayoga/usbfat/driver"
)

// Partition is a byte-shifted view into a block device: every request is
// offset by the partition's first LBA. It implements
// [driver.BlockDeviceDriver], so the file system layer can't tell it apart
// from a whole device.
type Partition struct {
	device driver.BlockDeviceDriver
	offset int64
	blocks int64
}

var _ driver.BlockDeviceDriver = (*Partition)(nil)

// New builds a view over the region an MBR entry describes.
func New(device driver.BlockDeviceDriver, entry *TableEntry) *Partition {
	return &Partition{
		device: device,
		offset: int64(entry.FirstLBA) * int64(device.BlockSize()),
		blocks: int64(entry.TotalSectors),
	}
}

// Whole returns a view over the entire device, used for partitionless
// ("superfloppy") media that carry a boot sector at LBA 0.
func Whole(device driver.BlockDeviceDriver) *Partition {
	return &Partition{
		device: device,
		blocks: device.Blocks(),
	}
}

func (p *Partition) Init() error {
	return p.device.Init()
}

func (p *Partition) Read(deviceOffset int64, buffer []byte) error {
	return p.device.Read(deviceOffset+p.offset, buffer)
}

func (p *Partition) Write(deviceOffset int64, buffer []byte) error {
	return p.device.Write(deviceOffset+p.offset, buffer)
}

func (p *Partition) BlockSize() int {
	return p.device.BlockSize()
}

func (p *Partition) Blocks() int64 {
	return p.blocks
}
