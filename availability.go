package assetregistry

import (
	"math"

	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

// ChunkLocation is where a chunk can be read from, best first.
type ChunkLocation int

const (
	ChunkLocalFast ChunkLocation = iota
	ChunkLocalSlow
	ChunkNotAvailable
	ChunkDoesNotExist
)

func (l ChunkLocation) String() string {
	switch l {
	case ChunkLocalFast:
		return "LocalFast"
	case ChunkLocalSlow:
		return "LocalSlow"
	case ChunkNotAvailable:
		return "NotAvailable"
	case ChunkDoesNotExist:
		return "DoesNotExist"
	}
	return "Unknown"
}

type AssetAvailability int

const (
	AvailabilityLocalFast AssetAvailability = iota
	AvailabilityLocalSlow
	AvailabilityNotAvailable
	AvailabilityDoesNotExist
)

func (a AssetAvailability) String() string {
	return ChunkLocation(a).String()
}

type ProgressReportingType int

const (
	ProgressETA ProgressReportingType = iota
	ProgressPercentageComplete
)

// ChunkInstaller answers where the chunks of a build are and how far their
// installation has come.
type ChunkInstaller interface {
	ChunkLocation(chunkID int32) ChunkLocation
	// ChunkProgress reports an ETA in seconds or a percentage in 0..100.
	ChunkProgress(chunkID int32, kind ProgressReportingType) float64
	ProgressReportingTypeSupported(kind ProgressReportingType) bool
	PrioritizeChunk(chunkID int32) error
}

// GetAssetAvailability returns the best location among the chunks of a.
// Records without chunks do not exist in any chunk.
func (r *AssetRegistry) GetAssetAvailability(a types.AssetData) AssetAvailability {
	if r.chunks == nil {
		return AvailabilityLocalFast
	}
	if len(a.ChunkIDs) == 0 {
		return AvailabilityDoesNotExist
	}
	best := ChunkDoesNotExist
	for _, id := range a.ChunkIDs {
		loc := r.chunks.ChunkLocation(id)
		if loc < best {
			best = loc
		}
		if best == ChunkLocalFast {
			break
		}
	}
	return AssetAvailability(best)
}

// GetAssetAvailabilityProgress returns the least finished chunk of a:
// the longest ETA, or the lowest percentage.
func (r *AssetRegistry) GetAssetAvailabilityProgress(a types.AssetData, kind ProgressReportingType) float64 {
	if r.chunks == nil {
		if kind == ProgressPercentageComplete {
			return 100
		}
		return 0
	}
	if len(a.ChunkIDs) == 0 {
		return 0
	}

	isPercentage := kind == ProgressPercentageComplete
	best := float64(math.MaxFloat32)
	if !isPercentage {
		best = 0
	}
	for _, id := range a.ChunkIDs {
		progress := r.chunks.ChunkProgress(id, kind)
		if isPercentage {
			if progress < best {
				best = progress
			}
		} else if progress > best {
			best = progress
		}
	}
	return best
}

func (r *AssetRegistry) GetAssetAvailabilityProgressTypeSupported(kind ProgressReportingType) bool {
	if r.chunks == nil {
		return false
	}
	return r.chunks.ProgressReportingTypeSupported(kind)
}

// PrioritizeAssetInstall moves the first chunk of a to the front of the
// install queue.
func (r *AssetRegistry) PrioritizeAssetInstall(a types.AssetData) error {
	if r.chunks == nil || len(a.ChunkIDs) == 0 {
		return nil
	}
	if err := r.chunks.PrioritizeChunk(a.ChunkIDs[0]); err != nil {
		r.log.WithFields(logrus.Fields{"objectPath": a.ObjectPath(), "chunk": a.ChunkIDs[0]}).Warnf("Prioritizing install failed: %v", err)
		return err
	}
	return nil
}
