package assetregistry

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/i5heu/asset-registry/internal/pathTree"
	"github.com/sirupsen/logrus"
)

// Save writes the index with the configured serialization options.
func (r *AssetRegistry) Save(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Save(w, r.serializationOptions)
}

// SaveToFile writes the index to path, compressed with xz or zstd when
// path ends in ".xz" or ".zst".
func (r *AssetRegistry) SaveToFile(path string) error {
	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.state.SaveFile(path, r.serializationOptions); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	fields := logrus.Fields{
		"path":     path,
		"assets":   r.state.NumAssets(),
		"duration": time.Since(start),
	}
	if info, err := os.Stat(path); err == nil {
		fields["size"] = humanize.IBytes(uint64(info.Size()))
	}
	r.log.WithFields(fields).Info("Asset registry saved")
	return nil
}

// Load replaces the index with a saved one. On error the index is left
// as it was.
func (r *AssetRegistry) Load(src io.Reader) error {
	var err error
	r.mutate(func() {
		if err = r.state.Load(src); err != nil {
			return
		}
		r.afterLoadLocked()
	})
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	return nil
}

func (r *AssetRegistry) LoadFromFile(path string) error {
	var err error
	r.mutate(func() {
		if err = r.state.LoadFile(path); err != nil {
			return
		}
		r.afterLoadLocked()
	})
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	r.log.WithFields(logrus.Fields{"path": path}).Info("Asset registry loaded")
	return nil
}

// afterLoadLocked rebuilds what is derived from the records. Cached paths
// are replaced by the loaded ones plus the mount roots, and classes declared
// by packages the loaded index does not hold are dropped.
func (r *AssetRegistry) afterLoadLocked() {
	loaded := pathTree.New()
	for _, root := range r.mounts.Roots() {
		loaded.CachePath(root)
	}
	for _, p := range r.state.PackagePaths() {
		loaded.CachePath(p)
	}
	for _, p := range r.paths.AllPaths() {
		if !loaded.Contains(p) {
			r.emitLocked(Event{Kind: EventPathRemoved, Path: p})
		}
	}
	for _, p := range loaded.AllPaths() {
		if !r.paths.Contains(p) {
			r.emitLocked(Event{Kind: EventPathAdded, Path: p})
		}
	}
	r.paths = loaded

	for pkg := range r.packageClasses {
		if !r.state.HasPackage(pkg) {
			r.forgetDeclaredClassesLocked(pkg)
		}
	}
	r.rebuildGeneratedClassesLocked()
	clear(r.updatedOnLoad)
}

// InitializeTemporaryState fills dst with a filtered copy of the index.
// With refresh, only records already in dst get their tags refreshed.
func (r *AssetRegistry) InitializeTemporaryState(dst *State, options SerializationOptions, refresh bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dst.InitializeFromExisting(r.state, options, refresh)
}

// PruneAssetData drops every record outside required (when non-empty) or
// inside removed, and with filterNoTags every record without tags.
func (r *AssetRegistry) PruneAssetData(required, removed []string, filterNoTags bool) {
	r.mutate(func() {
		r.state.PruneAssetData(toSet(required), toSet(removed), filterNoTags)
		r.rebuildGeneratedClassesLocked()
	})
}
