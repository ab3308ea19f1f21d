package fat32

import (
	"fmt"

	"github.com/rifkyprayoga/usbfat/errors"
)

// ClusterChain presents the non-contiguous clusters of one file or
// directory as a single logical byte range. It caches the resolved cluster
// list; the FAT stays authoritative for everything else.
type ClusterChain struct {
	fat      *FAT
	bio      *blockIO
	bs       *BootSector
	clusters []uint32
}

// newClusterChain resolves the chain starting at startCluster. A start of 0
// yields an empty chain, the state of a zero-length file.
func newClusterChain(fat *FAT, bio *blockIO, bs *BootSector, startCluster uint32) (*ClusterChain, error) {
	clusters, err := fat.Chain(startCluster)
	if err != nil {
		return nil, err
	}
	return &ClusterChain{
		fat:      fat,
		bio:      bio,
		bs:       bs,
		clusters: clusters,
	}, nil
}

// FirstCluster returns the chain's start cluster, or 0 for an empty chain.
// Directory entries record this value.
func (chain *ClusterChain) FirstCluster() uint32 {
	if len(chain.clusters) == 0 {
		return 0
	}
	return chain.clusters[0]
}

// Clusters returns how many clusters the chain currently holds.
func (chain *ClusterChain) Clusters() int {
	return len(chain.clusters)
}

// CapacityBytes returns the byte capacity of the allocated clusters.
func (chain *ClusterChain) CapacityBytes() int64 {
	return int64(len(chain.clusters)) * int64(chain.bs.BytesPerCluster)
}

// SetLength grows or shrinks the chain to hold at least newLength bytes.
// Growth consumes free clusters; shrinking releases them from the tail.
func (chain *ClusterChain) SetLength(newLength int64) error {
	if newLength < 0 {
		return errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("negative length %d", newLength),
		)
	}
	bytesPerCluster := int64(chain.bs.BytesPerCluster)
	required := int((newLength + bytesPerCluster - 1) / bytesPerCluster)

	var err error
	switch current := len(chain.clusters); {
	case required > current:
		chain.clusters, err = chain.fat.Alloc(chain.clusters, required-current)
	case required < current:
		chain.clusters, err = chain.fat.Free(chain.clusters, current-required)
	}
	return err
}

// Read fills dst starting at the logical byte offset.
func (chain *ClusterChain) Read(offset int64, dst []byte) error {
	return chain.forEachRun(offset, len(dst), func(deviceOffset int64, start, length int) error {
		return chain.bio.ReadAt(deviceOffset, dst[start:start+length])
	})
}

// Write stores src starting at the logical byte offset. The chain must
// already be long enough; growing is [SetLength]'s job.
func (chain *ClusterChain) Write(offset int64, src []byte) error {
	return chain.forEachRun(offset, len(src), func(deviceOffset int64, start, length int) error {
		return chain.bio.WriteAt(deviceOffset, src[start:start+length])
	})
}

// forEachRun splits a logical range into per-cluster runs and hands each to
// the callback with its absolute device offset.
func (chain *ClusterChain) forEachRun(
	offset int64,
	length int,
	access func(deviceOffset int64, bufferStart, runLength int) error,
) error {
	if offset < 0 || offset+int64(length) > chain.CapacityBytes() {
		return errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"access of %d bytes at %d outside the %d-byte chain",
				length,
				offset,
				chain.CapacityBytes(),
			),
		)
	}

	bytesPerCluster := int64(chain.bs.BytesPerCluster)
	done := 0
	for done < length {
		clusterIndex := (offset + int64(done)) / bytesPerCluster
		withinCluster := (offset + int64(done)) % bytesPerCluster

		runLength := int(bytesPerCluster - withinCluster)
		if remaining := length - done; runLength > remaining {
			runLength = remaining
		}

		cluster := chain.clusters[clusterIndex]
		deviceOffset := chain.bs.ClusterOffset(cluster) + withinCluster
		if err := access(deviceOffset, done, runLength); err != nil {
			return err
		}
		done += runLength
	}
	return nil
}
