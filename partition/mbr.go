// Package partition parses the Master Boot Record and presents each
// partition as a byte-shifted view of the underlying block device.
package partition

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	"github.com/rifkyprayoga/usbfat/driver"
	"github.com/rifkyprayoga/usbfat/errors"
)

const (
	// tableOffset is where the four partition entries start inside the MBR.
	tableOffset = 0x1BE

	// entrySize is the on-disk size of one partition entry.
	entrySize = 16

	// entryCount is the number of slots in a conventional MBR.
	entryCount = 4

	bootSignature = 0xAA55
)

// Partition type bytes this module mounts as FAT32: plain, LBA-addressed,
// and their hidden variants.
var fat32PartitionTypes = map[uint8]bool{
	0x0B: true,
	0x0C: true,
	0x1B: true,
	0x1C: true,
}

// protectiveGptType marks a protective MBR in front of a GPT disk, which
// this module does not handle.
const protectiveGptType = 0xEE

// TableEntry is one of the four MBR partition slots, decoded. CHS addressing
// is obsolete and ignored; only the LBA fields matter.
type TableEntry struct {
	Status       uint8
	FirstCHS     [3]byte
	Type         uint8
	LastCHS      [3]byte
	FirstLBA     uint32
	TotalSectors uint32
}

// IsEmpty reports whether the slot holds no partition.
func (e *TableEntry) IsEmpty() bool {
	return e.Type == 0 || e.TotalSectors == 0
}

// IsFat32 reports whether the type byte declares a FAT32 partition.
func (e *TableEntry) IsFat32() bool {
	return fat32PartitionTypes[e.Type]
}

// Table is a parsed Master Boot Record.
type Table struct {
	Entries [entryCount]TableEntry
}

// ReadTable reads and parses the MBR from block 0 of the device. A device
// with no valid boot signature yields an error; callers that want the
// partitionless "superfloppy" fallback check for [errors.ErrInvalidFormat].
func ReadTable(device driver.BlockDeviceDriver) (*Table, error) {
	sector := make([]byte, device.BlockSize())
	if err := device.Read(0, sector); err != nil {
		return nil, err
	}
	return ParseTable(sector)
}

// ParseTable decodes an MBR from the first sector of a device.
func ParseTable(sector []byte) (*Table, error) {
	if len(sector) < 512 {
		return nil, errors.ErrInvalidFormat.WithMessage(
			fmt.Sprintf("boot record is %d bytes, want at least 512", len(sector)),
		)
	}
	if binary.LittleEndian.Uint16(sector[510:512]) != bootSignature {
		return nil, errors.ErrInvalidFormat.WithMessage("missing 0x55 0xAA boot signature")
	}

	var table Table
	for i := 0; i < entryCount; i++ {
		start := tableOffset + i*entrySize
		if err := restruct.Unpack(
			sector[start:start+entrySize], binary.LittleEndian, &table.Entries[i],
		); err != nil {
			return nil, errors.ErrInvalidFormat.WrapError(err)
		}
		if table.Entries[i].Type == protectiveGptType {
			return nil, errors.ErrUnsupported.WithMessage("GPT-partitioned device")
		}
	}
	return &table, nil
}

// Fat32Partitions returns views over every slot whose type byte is FAT32,
// in table order.
func (t *Table) Fat32Partitions(device driver.BlockDeviceDriver) []*Partition {
	var parts []*Partition
	for i := range t.Entries {
		entry := &t.Entries[i]
		if entry.IsEmpty() || !entry.IsFat32() {
			continue
		}
		parts = append(parts, New(device, entry))
	}
	return parts
}
