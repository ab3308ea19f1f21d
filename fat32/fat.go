package fat32

import (
	"encoding/binary"
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/rifkyprayoga/usbfat/errors"
)

// FAT32 cluster entry values. Entries are 28 bits wide; the top four bits
// are reserved and must survive rewrites.
const (
	fatEntrySize = 4
	entryMask    = 0x0FFFFFFF

	// FreeCluster marks an unallocated entry.
	FreeCluster = 0x00000000

	// BadCluster marks an unusable cluster. Chains must never reference it.
	BadCluster = 0x0FFFFFF7

	// EndOfChain is the sentinel this module writes to terminate a chain.
	// Anything at or above endOfChainMin reads as end-of-chain.
	EndOfChain    = 0x0FFFFFFF
	endOfChainMin = 0x0FFFFFF8
)

// isEndOfChain reports whether a masked FAT entry terminates its chain.
func isEndOfChain(entry uint32) bool {
	return entry >= endOfChainMin
}

// FAT is the allocation table: a successor pointer per cluster, mirrored
// across FatCount copies. It owns free-cluster accounting, backed by a
// lazily built bitmap, and keeps the FSInfo hints in step with every
// mutation.
type FAT struct {
	bio    *blockIO
	bs     *BootSector
	info   *FSInfo
	logger *zap.Logger

	// freeMap has one bit per cluster number (including the two reserved
	// ones, always clear); set means free. Built on first use by scanning
	// the first FAT copy.
	freeMap      bitmap.Bitmap
	freeMapValid bool
	freeCount    uint32
}

func newFAT(bio *blockIO, bs *BootSector, info *FSInfo, logger *zap.Logger) *FAT {
	return &FAT{
		bio:    bio,
		bs:     bs,
		info:   info,
		logger: logger,
	}
}

// Entry returns the masked successor entry for a cluster.
func (f *FAT) Entry(cluster uint32) (uint32, error) {
	if !f.bs.IsValidCluster(cluster) {
		return 0, errors.ErrInvalidFormat.WithMessage(
			fmt.Sprintf("cluster %d out of range", cluster),
		)
	}
	var raw [fatEntrySize]byte
	offset := f.bs.FatOffset(0) + int64(cluster)*fatEntrySize
	if err := f.bio.ReadAt(offset, raw[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw[:]) & entryMask, nil
}

// setEntry writes a successor entry through to every FAT copy, preserving
// the reserved high bits. Failures on individual copies are aggregated.
func (f *FAT) setEntry(cluster uint32, value uint32) error {
	var raw [fatEntrySize]byte
	entryOffset := int64(cluster) * fatEntrySize

	if err := f.bio.ReadAt(f.bs.FatOffset(0)+entryOffset, raw[:]); err != nil {
		return err
	}
	old := binary.LittleEndian.Uint32(raw[:])
	binary.LittleEndian.PutUint32(raw[:], (old&^entryMask)|(value&entryMask))

	var result *multierror.Error
	for copyIndex := 0; copyIndex < f.bs.FatCount; copyIndex++ {
		offset := f.bs.FatOffset(copyIndex) + entryOffset
		if err := f.bio.WriteAt(offset, raw[:]); err != nil {
			result = multierror.Append(result, fmt.Errorf("FAT copy %d: %w", copyIndex, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

// Chain follows successor links from a start cluster to end-of-chain. A
// reference to a free or bad cluster, or a walk longer than the volume has
// data clusters, is a structural error.
func (f *FAT) Chain(startCluster uint32) ([]uint32, error) {
	if startCluster == 0 {
		return nil, nil
	}

	chain := make([]uint32, 0, 8)
	current := startCluster
	for {
		if uint32(len(chain)) > f.bs.TotalDataClusters {
			return nil, errors.ErrInvalidFormat.WithMessage(
				fmt.Sprintf("cycle in cluster chain starting at %d", startCluster),
			)
		}
		if !f.bs.IsValidCluster(current) {
			return nil, errors.ErrInvalidFormat.WithMessage(
				fmt.Sprintf("chain references reserved cluster %d", current),
			)
		}
		chain = append(chain, current)

		next, err := f.Entry(current)
		if err != nil {
			return nil, err
		}
		switch {
		case isEndOfChain(next):
			return chain, nil
		case next == FreeCluster:
			return nil, errors.ErrInvalidFormat.WithMessage(
				fmt.Sprintf("chain runs into free cluster after %d", current),
			)
		case next == BadCluster:
			return nil, errors.ErrInvalidFormat.WithMessage(
				fmt.Sprintf("chain runs into bad cluster after %d", current),
			)
		}
		current = next
	}
}

// Alloc appends count free clusters to chain and returns the grown chain.
// An empty chain starts a new one. The linkage is written through before
// the method returns; on success the FSInfo hints are updated and flushed.
func (f *FAT) Alloc(chain []uint32, count int) ([]uint32, error) {
	if count <= 0 {
		return chain, nil
	}
	if err := f.ensureFreeMap(); err != nil {
		return nil, err
	}
	if uint32(count) > f.freeCount {
		return nil, errors.ErrNoSpace.WithMessage(
			fmt.Sprintf("need %d clusters, %d free", count, f.freeCount),
		)
	}

	fresh, err := f.takeFreeClusters(count)
	if err != nil {
		return nil, err
	}

	// Link the tail of the old chain into the new clusters, then terminate.
	previous := uint32(0)
	if len(chain) > 0 {
		previous = chain[len(chain)-1]
	}
	for _, cluster := range fresh {
		if previous != 0 {
			if err := f.setEntry(previous, cluster); err != nil {
				return nil, err
			}
		}
		previous = cluster
	}
	if err := f.setEntry(previous, EndOfChain); err != nil {
		return nil, err
	}

	f.freeCount -= uint32(count)
	f.info.FreeClusterCount = f.freeCount
	f.info.NextFreeCluster = fresh[len(fresh)-1]
	if err := f.info.Flush(); err != nil {
		return nil, err
	}
	return append(chain, fresh...), nil
}

// Free releases the last count clusters of chain and returns the shortened
// chain. Freed entries are zeroed in every FAT copy and the new tail is
// re-terminated.
func (f *FAT) Free(chain []uint32, count int) ([]uint32, error) {
	if count <= 0 {
		return chain, nil
	}
	if count > len(chain) {
		return nil, errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("cannot free %d clusters of a %d-cluster chain", count, len(chain)),
		)
	}
	if err := f.ensureFreeMap(); err != nil {
		return nil, err
	}

	keep := len(chain) - count
	for _, cluster := range chain[keep:] {
		if err := f.setEntry(cluster, FreeCluster); err != nil {
			return nil, err
		}
		f.freeMap.Set(int(cluster), true)
	}
	if keep > 0 {
		if err := f.setEntry(chain[keep-1], EndOfChain); err != nil {
			return nil, err
		}
	}

	f.freeCount += uint32(count)
	f.info.FreeClusterCount = f.freeCount
	f.info.NextFreeCluster = chain[keep]
	if err := f.info.Flush(); err != nil {
		return nil, err
	}
	return chain[:keep], nil
}

// FreeClusters returns the number of free clusters, scanning the FAT on
// first use.
func (f *FAT) FreeClusters() (uint32, error) {
	if err := f.ensureFreeMap(); err != nil {
		return 0, err
	}
	return f.freeCount, nil
}

// takeFreeClusters picks count clusters from the free map, scanning forward
// from the FSInfo hint and wrapping once. The picked bits are cleared.
func (f *FAT) takeFreeClusters(count int) ([]uint32, error) {
	maxCluster := f.bs.TotalDataClusters + 2

	start := f.info.NextFreeCluster
	if !f.bs.IsValidCluster(start) {
		start = 2
	}

	picked := make([]uint32, 0, count)
	cluster := start
	for scanned := uint32(0); scanned < f.bs.TotalDataClusters; scanned++ {
		if f.freeMap.Get(int(cluster)) {
			f.freeMap.Set(int(cluster), false)
			picked = append(picked, cluster)
			if len(picked) == count {
				return picked, nil
			}
		}
		cluster++
		if cluster >= maxCluster {
			cluster = 2
		}
	}

	// The free count promised enough space but the scan came up short; put
	// the picks back and report corruption rather than inventing clusters.
	for _, c := range picked {
		f.freeMap.Set(int(c), true)
	}
	return nil, errors.ErrInvalidFormat.WithMessage(
		"free-cluster accounting disagrees with the FAT",
	)
}

// ensureFreeMap builds the free bitmap by scanning the first FAT copy, one
// sector at a time. It also refreshes the FSInfo hints when they look
// stale.
func (f *FAT) ensureFreeMap() error {
	if f.freeMapValid {
		return nil
	}

	maxCluster := f.bs.TotalDataClusters + 2
	f.freeMap = bitmap.NewSlice(int(maxCluster))
	f.freeCount = 0

	sector := make([]byte, f.bs.BytesPerSector)
	entriesPerSector := uint32(f.bs.BytesPerSector / fatEntrySize)

	for cluster := uint32(2); cluster < maxCluster; {
		sectorIndex := int64(cluster * fatEntrySize / uint32(f.bs.BytesPerSector))
		offset := f.bs.FatOffset(0) + sectorIndex*int64(f.bs.BytesPerSector)
		if err := f.bio.ReadAt(offset, sector); err != nil {
			return err
		}

		first := uint32(sectorIndex) * entriesPerSector
		for ; cluster < maxCluster && cluster < first+entriesPerSector; cluster++ {
			entry := binary.LittleEndian.Uint32(sector[(cluster-first)*fatEntrySize:]) & entryMask
			if entry == FreeCluster {
				f.freeMap.Set(int(cluster), true)
				f.freeCount++
			}
		}
	}
	f.freeMapValid = true

	if f.info.hintsStale(f.bs) || f.info.FreeClusterCount != f.freeCount {
		f.logger.Info(
			"FSInfo hints recomputed from FAT scan",
			zap.Uint32("advertised", f.info.FreeClusterCount),
			zap.Uint32("actual", f.freeCount),
		)
		f.info.FreeClusterCount = f.freeCount
		if !f.bs.IsValidCluster(f.info.NextFreeCluster) {
			f.info.NextFreeCluster = 2
		}
	}
	return nil
}
