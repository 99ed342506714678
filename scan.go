package assetregistry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/i5heu/asset-registry/internal/assetGatherer"
	"github.com/i5heu/asset-registry/internal/dirWatcher"
	"github.com/i5heu/asset-registry/pkg/packageName"
	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

// SearchAllAssets searches every mounted root. A synchronous search blocks
// until everything is decoded and merged; otherwise the roots are queued on
// the background gatherer and merged by later ticks.
func (r *AssetRegistry) SearchAllAssets(ctx context.Context, synchronous bool) error {
	if r.closed.Load() {
		return ErrClosed
	}
	roots := r.mounts.Roots()

	r.mu.Lock()
	r.fullSearchStart = time.Now()
	r.mu.Unlock()

	if synchronous {
		if _, _, err := r.scanPathsAndFiles(ctx, roots, nil, false, true); err != nil {
			return err
		}
		r.Tick(ctx, -1)
		return nil
	}

	pool, err := r.running()
	if err != nil {
		return err
	}

	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.background != nil {
		for _, root := range roots {
			r.background.AddPathToSearch(root)
		}
		return nil
	}
	g, err := assetGatherer.New(assetGatherer.Config{
		Paths:           roots,
		Mounts:          r.mounts,
		Cache:           r.cache,
		IsPrimary:       r.settings.IsPrimary,
		ExcludePatterns: r.settings.ExcludePatterns,
		WorkerPool:      pool,
		BatchSize:       r.settings.BatchSize,
		Logger:          r.log,
		Metrics:         r.metrics,
	})
	if err != nil {
		return fmt.Errorf("create background gatherer: %w", err)
	}
	if err := g.Start(r.runCtx); err != nil {
		return fmt.Errorf("start background gatherer: %w", err)
	}
	r.background = g
	r.log.WithFields(logrus.Fields{"roots": roots}).Info("Background asset search started")
	return nil
}

// markScannedLocked drops the paths and files that an earlier synchronous
// scan already covered, unless force is set, and records the rest.
func (r *AssetRegistry) markScannedLocked(paths, files []string, force bool) ([]string, []string) {
	var outPaths, outFiles []string
	for _, p := range paths {
		key := strings.TrimSuffix(p, "/") + "/"
		covered := false
		for _, s := range r.scannedPaths {
			if strings.HasPrefix(key, s) {
				covered = true
				break
			}
		}
		if covered && !force {
			continue
		}
		if !covered {
			r.scannedPaths = append(r.scannedPaths, key)
		}
		outPaths = append(outPaths, p)
	}
	for _, f := range files {
		if _, seen := r.scannedFiles[f]; seen && !force {
			continue
		}
		r.scannedFiles[f] = struct{}{}
		outFiles = append(outFiles, f)
	}
	return outPaths, outFiles
}

// scanPathsAndFiles decodes paths and files on the calling goroutine and
// merges the results right away. It returns the object paths of the
// assets found and the package paths discovered.
func (r *AssetRegistry) scanPathsAndFiles(ctx context.Context, paths, files []string, force, useCache bool) ([]string, []string, error) {
	if r.closed.Load() {
		return nil, nil, ErrClosed
	}

	r.mu.Lock()
	paths, files = r.markScannedLocked(paths, files, force)
	r.mu.Unlock()
	if len(paths) == 0 && len(files) == 0 {
		return nil, nil, nil
	}

	r.lifeMu.RLock()
	pool, cache, background := r.pool, r.cache, r.background
	r.lifeMu.RUnlock()
	if !useCache {
		cache = nil
	}

	g, err := assetGatherer.New(assetGatherer.Config{
		Paths:           paths,
		Files:           files,
		Mounts:          r.mounts,
		Cache:           cache,
		IsPrimary:       r.settings.IsPrimary && background == nil,
		ExcludePatterns: r.settings.ExcludePatterns,
		WorkerPool:      pool,
		BatchSize:       r.settings.BatchSize,
		Logger:          r.log,
		Metrics:         r.metrics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create gatherer: %w", err)
	}
	defer g.Stop()

	if err := g.EnsureCompletion(ctx); err != nil {
		return nil, nil, err
	}
	var res assetGatherer.Results
	g.GetAndTrimSearchResults(&res)

	foundAssets := make([]string, 0, res.Assets.Len())
	for _, a := range res.Assets.Items() {
		foundAssets = append(foundAssets, a.ObjectPath())
	}
	foundPaths := append([]string(nil), res.Paths.Items()...)

	r.mu.Lock()
	r.mergeAssetsLocked(&res.Assets, time.Time{})
	r.mergePathsLocked(&res.Paths, time.Time{})
	r.mergeDependenciesLocked(&res.Dependencies, time.Time{})
	r.mu.Unlock()
	r.dispatchEvents()

	for {
		name, ok := res.CookedPackageNamesWithoutAssetData.Pop()
		if !ok {
			break
		}
		r.loadPackage(ctx, name)
	}

	r.mutate(func() {
		if r.initialSearchCompleted && r.settings.UpdateDiskCacheAfterLoad {
			r.processLoadedAssetsLocked(time.Time{})
		}
	})

	r.log.WithFields(logrus.Fields{
		"paths":  len(paths),
		"files":  len(files),
		"assets": len(foundAssets),
	}).Debug("Synchronous scan finished")
	return foundAssets, foundPaths, nil
}

// ScanPathsSynchronous scans long package paths and returns the object
// paths of the assets found. Paths covered by an earlier synchronous scan
// are skipped unless force is set.
func (r *AssetRegistry) ScanPathsSynchronous(ctx context.Context, paths []string, force bool) ([]string, error) {
	found, _, err := r.scanPathsAndFiles(ctx, paths, nil, force, true)
	return found, err
}

// ScanFilesSynchronous scans content files and returns the object paths of
// the assets found.
func (r *AssetRegistry) ScanFilesSynchronous(ctx context.Context, files []string, force bool) ([]string, error) {
	found, _, err := r.scanPathsAndFiles(ctx, nil, files, force, true)
	return found, err
}

// ScanModifiedAssetFiles rescans changed files bypassing the scan cache and
// removes the records of assets those files no longer contain.
func (r *AssetRegistry) ScanModifiedAssetFiles(ctx context.Context, files []string) error {
	packages := make(map[string][]string, len(files))
	r.mutate(func() {
		for _, f := range files {
			name, err := r.mounts.FilenameToLongPackageName(f)
			if err != nil {
				r.log.WithFields(logrus.Fields{"file": f}).Debugf("Skipping modified file: %v", err)
				continue
			}
			delete(r.emptyPackages, name)
			var existing []string
			for _, a := range r.state.GetAssetsByPackageName(name) {
				existing = append(existing, a.ObjectPath())
			}
			packages[name] = existing
		}
	})
	if cache := r.currentCache(); cache != nil {
		for _, f := range files {
			if err := cache.Forget(f); err != nil {
				r.log.WithFields(logrus.Fields{"file": f}).Debugf("Forgetting cached scan failed: %v", err)
			}
		}
	}

	found, _, err := r.scanPathsAndFiles(ctx, nil, files, true, false)
	if err != nil {
		return err
	}

	present := toSet(found)
	r.mutate(func() {
		for _, before := range packages {
			for _, objectPath := range before {
				if _, ok := present[objectPath]; ok {
					continue
				}
				if h, ok := r.state.Lookup(objectPath); ok {
					r.removeAssetDataLocked(h, false)
				}
			}
		}
	})
	return nil
}

// PrioritizeSearchPath moves pending work below path to the front of the
// background search and of the results waiting to be merged.
func (r *AssetRegistry) PrioritizeSearchPath(path string) {
	if bg := r.backgroundGatherer(); bg != nil {
		bg.PrioritizeSearchPath(path)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results.Assets.Prioritize(func(a types.AssetData) bool {
		return packageName.IsChildPath(a.PackagePath, path)
	})
}

// OnContentPathMounted mounts dir at assetPath and searches it, in the
// background when a background search exists and synchronously otherwise.
func (r *AssetRegistry) OnContentPathMounted(ctx context.Context, assetPath, dir string) error {
	mount, err := r.mounts.Mount(assetPath, dir)
	if err != nil {
		return fmt.Errorf("mount %s: %w", assetPath, err)
	}
	root := strings.TrimSuffix(mount.Root, "/")
	r.log.WithFields(logrus.Fields{"root": root, "dir": mount.Dir}).Info("Content path mounted")

	r.mutate(func() { r.addAssetPathLocked(root) })

	r.lifeMu.RLock()
	watcher, bg := r.watcher, r.background
	r.lifeMu.RUnlock()
	if watcher != nil {
		if err := watcher.AddRoot(mount.Dir); err != nil {
			r.log.WithFields(logrus.Fields{"dir": mount.Dir}).Warnf("Cannot watch content directory: %v", err)
		}
	}

	if !r.started.Load() {
		return nil
	}
	if bg != nil {
		bg.AddPathToSearch(root)
		return nil
	}
	_, err = r.ScanPathsSynchronous(ctx, []string{root}, true)
	return err
}

// OnContentPathDismounted removes every record below assetPath together
// with the cached paths and unmounts it. It reports whether assetPath was
// mounted.
func (r *AssetRegistry) OnContentPathDismounted(assetPath string) bool {
	mount, ok := r.mounts.Unmount(assetPath)
	if !ok {
		return false
	}
	root := strings.TrimSuffix(mount.Root, "/")

	r.mutate(func() {
		for _, name := range r.state.PackageNames() {
			if packageName.IsChildPath(name, root) {
				r.removePackageDataLocked(name)
			}
		}
		r.removeAssetPathLocked(root, true)

		kept := r.scannedPaths[:0]
		for _, s := range r.scannedPaths {
			if !strings.HasPrefix(s, root+"/") {
				kept = append(kept, s)
			}
		}
		r.scannedPaths = kept
		for f := range r.scannedFiles {
			if strings.HasPrefix(f, mount.Dir) {
				delete(r.scannedFiles, f)
			}
		}
	})

	r.lifeMu.RLock()
	watcher := r.watcher
	r.lifeMu.RUnlock()
	if watcher != nil {
		watcher.RemoveRoot(mount.Dir)
	}
	r.log.WithFields(logrus.Fields{"root": root}).Info("Content path dismounted")
	return true
}

// collapseFileChanges turns a Removed that is followed later in the batch
// by an Added of the same file into a single Modified at the Added's place.
// Each Added pairs with the latest unpaired Removed before it.
func collapseFileChanges(changes []dirWatcher.FileChange) []dirWatcher.FileChange {
	out := make([]dirWatcher.FileChange, 0, len(changes))
	dropped := make([]bool, 0, len(changes))
	unpaired := make(map[string][]int)
	for _, c := range changes {
		switch c.Action {
		case dirWatcher.Removed:
			unpaired[c.Filename] = append(unpaired[c.Filename], len(out))
		case dirWatcher.Added:
			if removed := unpaired[c.Filename]; len(removed) > 0 {
				dropped[removed[len(removed)-1]] = true
				unpaired[c.Filename] = removed[:len(removed)-1]
				c.Action = dirWatcher.Modified
			}
		}
		out = append(out, c)
		dropped = append(dropped, false)
	}

	collapsed := out[:0]
	for i, c := range out {
		if !dropped[i] {
			collapsed = append(collapsed, c)
		}
	}
	return collapsed
}

// OnDirectoryChanged applies a batch of file changes. Removed files drop
// their package at once, added files are queued for decoding and modified
// files are rescanned synchronously.
func (r *AssetRegistry) OnDirectoryChanged(ctx context.Context, changes []dirWatcher.FileChange) error {
	var added, modified []string
	cache := r.currentCache()

	r.mu.Lock()
	for _, c := range collapseFileChanges(changes) {
		if !packageName.IsPackageExtension(filepath.Ext(c.Filename)) {
			continue
		}
		name, err := r.mounts.FilenameToLongPackageName(c.Filename)
		if err != nil {
			r.log.WithFields(logrus.Fields{"file": c.Filename}).Debugf("Ignoring change outside mounted content: %v", err)
			continue
		}

		switch c.Action {
		case dirWatcher.Added:
			delete(r.emptyPackages, name)
			added = append(added, c.Filename)
		case dirWatcher.Modified:
			delete(r.emptyPackages, name)
			modified = append(modified, c.Filename)
		case dirWatcher.Removed:
			r.removePackageDataLocked(name)
			delete(r.scannedFiles, c.Filename)
			if cache != nil {
				if err := cache.Forget(c.Filename); err != nil {
					r.log.WithFields(logrus.Fields{"file": c.Filename}).Debugf("Forgetting cached scan failed: %v", err)
				}
			}
		}
	}
	r.mu.Unlock()
	r.dispatchEvents()

	var errs error
	if len(added) > 0 {
		errs = errors.Join(errs, r.addFilesToSearch(ctx, added))
	}
	if len(modified) > 0 {
		errs = errors.Join(errs, r.ScanModifiedAssetFiles(ctx, modified))
	}
	return errs
}

func (r *AssetRegistry) addFilesToSearch(ctx context.Context, files []string) error {
	if bg := r.backgroundGatherer(); bg != nil {
		bg.AddFilesToSearch(files)
		return nil
	}
	_, err := r.ScanFilesSynchronous(ctx, files, true)
	return err
}
