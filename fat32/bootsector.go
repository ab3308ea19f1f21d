package fat32

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/go-restruct/restruct"

	"github.com/rifkyprayoga/usbfat/errors"
)

// BootSectorSize is the number of bytes the BPB parser consumes.
const BootSectorSize = 512

// rawBootSector is the on-disk layout of the FAT32 BIOS parameter block,
// bytes 0 through 89.
type rawBootSector struct {
	JmpBoot               [3]byte
	OemName               [8]byte
	BytesPerSector        uint16
	SectorsPerCluster     uint8
	ReservedSectors       uint16
	FatCount              uint8
	RootEntryCount        uint16
	TotalSectors16        uint16
	Media                 uint8
	SectorsPerFat16       uint16
	SectorsPerTrack       uint16
	Heads                 uint16
	HiddenSectors         uint32
	TotalSectors32        uint32
	SectorsPerFat32       uint32
	Flags                 uint16
	Version               uint16
	RootDirCluster        uint32
	FsInfoSector          uint16
	BackupBootSector      uint16
	Reserved              [12]byte
	DriveNumber           uint8
	Reserved1             uint8
	ExtendedBootSignature uint8
	VolumeID              uint32
	VolumeLabel           [11]byte
	FileSystemType        [8]byte
}

// BootSector is the parsed BPB with the values every other layer derives
// from it computed once. It never touches the device after parsing.
type BootSector struct {
	raw rawBootSector

	// BytesPerSector is 512, 1024, 2048, or 4096.
	BytesPerSector int

	// SectorsPerCluster is a power of two.
	SectorsPerCluster int

	// BytesPerCluster is the allocation unit size.
	BytesPerCluster int

	// FatCount is the number of mirrored allocation tables, usually 2.
	FatCount int

	// SectorsPerFat is the length of a single FAT in sectors.
	SectorsPerFat uint32

	// TotalSectors is the volume size in sectors.
	TotalSectors uint32

	// TotalDataClusters is the number of allocatable clusters, i.e. the
	// highest valid cluster number minus one (clusters start at 2).
	TotalDataClusters uint32

	// RootDirCluster is the first cluster of the root directory.
	RootDirCluster uint32

	// FsInfoOffset is the byte offset of the FSInfo sector within the
	// partition.
	FsInfoOffset int64

	// DataAreaOffset is the byte offset of cluster 2 within the partition.
	DataAreaOffset int64

	// VolumeLabel is the label recorded in the BPB, trailing blanks removed.
	VolumeLabel string
}

// ParseBootSector decodes and validates the BPB found at partition byte 0.
func ParseBootSector(data []byte) (*BootSector, error) {
	if len(data) < BootSectorSize {
		return nil, errors.ErrInvalidFormat.WithMessage(
			fmt.Sprintf("boot sector is %d bytes, want %d", len(data), BootSectorSize),
		)
	}
	if binary.LittleEndian.Uint16(data[510:512]) != 0xAA55 {
		return nil, errors.ErrInvalidFormat.WithMessage("missing 0x55 0xAA signature")
	}

	var raw rawBootSector
	if err := restruct.Unpack(data[:90], binary.LittleEndian, &raw); err != nil {
		return nil, errors.ErrInvalidFormat.WrapError(err)
	}

	switch raw.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, errors.ErrUnsupported.WithMessage(
			fmt.Sprintf("sector size %d", raw.BytesPerSector),
		)
	}
	if raw.SectorsPerCluster == 0 || raw.SectorsPerCluster&(raw.SectorsPerCluster-1) != 0 {
		return nil, errors.ErrInvalidFormat.WithMessage(
			fmt.Sprintf("sectors per cluster %d is not a power of two", raw.SectorsPerCluster),
		)
	}
	if raw.FatCount == 0 {
		return nil, errors.ErrInvalidFormat.WithMessage("zero allocation tables")
	}
	// FAT12/16 volumes put the FAT length in the 16-bit field and carry a
	// fixed root directory; FAT32 uses neither.
	if raw.SectorsPerFat32 == 0 || raw.SectorsPerFat16 != 0 || raw.RootEntryCount != 0 {
		return nil, errors.ErrUnsupported.WithMessage("volume is not FAT32")
	}
	if raw.RootDirCluster < 2 {
		return nil, errors.ErrInvalidFormat.WithMessage(
			fmt.Sprintf("root directory cluster %d is reserved", raw.RootDirCluster),
		)
	}

	totalSectors := raw.TotalSectors32
	if totalSectors == 0 {
		totalSectors = uint32(raw.TotalSectors16)
	}
	fatSectors := uint32(raw.FatCount) * raw.SectorsPerFat32
	metaSectors := uint32(raw.ReservedSectors) + fatSectors
	if totalSectors <= metaSectors {
		return nil, errors.ErrInvalidFormat.WithMessage("no data area after reserved sectors and FATs")
	}

	bs := &BootSector{
		raw:               raw,
		BytesPerSector:    int(raw.BytesPerSector),
		SectorsPerCluster: int(raw.SectorsPerCluster),
		BytesPerCluster:   int(raw.BytesPerSector) * int(raw.SectorsPerCluster),
		FatCount:          int(raw.FatCount),
		SectorsPerFat:     raw.SectorsPerFat32,
		TotalSectors:      totalSectors,
		TotalDataClusters: (totalSectors - metaSectors) / uint32(raw.SectorsPerCluster),
		RootDirCluster:    raw.RootDirCluster,
		FsInfoOffset:      int64(raw.FsInfoSector) * int64(raw.BytesPerSector),
		DataAreaOffset:    int64(metaSectors) * int64(raw.BytesPerSector),
		VolumeLabel:       strings.TrimRight(string(raw.VolumeLabel[:]), " "),
	}
	return bs, nil
}

// FatOffset returns the byte offset of FAT copy index within the partition.
func (bs *BootSector) FatOffset(index int) int64 {
	return (int64(bs.raw.ReservedSectors) + int64(index)*int64(bs.SectorsPerFat)) *
		int64(bs.BytesPerSector)
}

// ClusterOffset returns the byte offset of a data cluster within the
// partition. The caller guarantees cluster >= 2.
func (bs *BootSector) ClusterOffset(cluster uint32) int64 {
	return bs.DataAreaOffset + int64(cluster-2)*int64(bs.BytesPerCluster)
}

// IsValidCluster reports whether cluster addresses an allocatable data
// cluster on this volume.
func (bs *BootSector) IsValidCluster(cluster uint32) bool {
	return cluster >= 2 && cluster < bs.TotalDataClusters+2
}

// VolumeID returns the serial number stamped at format time.
func (bs *BootSector) VolumeID() uint32 {
	return bs.raw.VolumeID
}
