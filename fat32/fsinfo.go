package fat32

import (
	"encoding/binary"

	"github.com/rifkyprayoga/usbfat/errors"
)

// FSInfo sector signatures and field offsets.
const (
	fsInfoLeadSignature   = 0x41615252
	fsInfoStructSignature = 0x61417272
	fsInfoTrailSignature  = 0xAA550000

	fsInfoStructOffset    = 484
	fsInfoFreeCountOffset = 488
	fsInfoNextFreeOffset  = 492
	fsInfoTrailOffset     = 508

	// UnknownClusterHint is the sentinel both FSInfo fields use for "no
	// idea"; a freshly formatted volume often carries it.
	UnknownClusterHint = 0xFFFFFFFF
)

// FSInfo mirrors the two allocation hints FAT32 keeps beside the boot
// sector. They are hints, not authority: the allocator corrects them as it
// learns better, and a mount may recompute them by scanning the FAT.
type FSInfo struct {
	// FreeClusterCount is the advertised number of free clusters, or
	// [UnknownClusterHint].
	FreeClusterCount uint32

	// NextFreeCluster is where an allocator should start scanning, or
	// [UnknownClusterHint].
	NextFreeCluster uint32

	bio    *blockIO
	offset int64
	sector []byte
}

// readFSInfo loads and validates the FSInfo sector named by the boot
// sector.
func readFSInfo(bio *blockIO, bs *BootSector) (*FSInfo, error) {
	sector := make([]byte, bs.BytesPerSector)
	if err := bio.ReadAt(bs.FsInfoOffset, sector); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(sector[0:4]) != fsInfoLeadSignature ||
		binary.LittleEndian.Uint32(sector[fsInfoStructOffset:fsInfoStructOffset+4]) != fsInfoStructSignature ||
		binary.LittleEndian.Uint32(sector[fsInfoTrailOffset:fsInfoTrailOffset+4]) != fsInfoTrailSignature {
		return nil, errors.ErrInvalidFormat.WithMessage("bad FSInfo signatures")
	}

	return &FSInfo{
		FreeClusterCount: binary.LittleEndian.Uint32(sector[fsInfoFreeCountOffset:]),
		NextFreeCluster:  binary.LittleEndian.Uint32(sector[fsInfoNextFreeOffset:]),
		bio:              bio,
		offset:           bs.FsInfoOffset,
		sector:           sector,
	}, nil
}

// Flush writes the current hint values back to the device, leaving the rest
// of the sector untouched.
func (info *FSInfo) Flush() error {
	binary.LittleEndian.PutUint32(info.sector[fsInfoFreeCountOffset:], info.FreeClusterCount)
	binary.LittleEndian.PutUint32(info.sector[fsInfoNextFreeOffset:], info.NextFreeCluster)
	return info.bio.WriteAt(info.offset, info.sector)
}

// hintsStale reports whether the advertised values can't be trusted for
// this volume and should be recomputed from the FAT.
func (info *FSInfo) hintsStale(bs *BootSector) bool {
	if info.FreeClusterCount == UnknownClusterHint || info.NextFreeCluster == UnknownClusterHint {
		return true
	}
	return info.FreeClusterCount > bs.TotalDataClusters ||
		!bs.IsValidCluster(info.NextFreeCluster)
}
