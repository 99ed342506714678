package assetregistry

import (
	"context"
	"slices"
	"time"

	"github.com/i5heu/asset-registry/internal/assetGatherer"
	"github.com/i5heu/asset-registry/internal/packageReader"
	"github.com/i5heu/asset-registry/internal/registryState"
	"github.com/i5heu/asset-registry/pkg/packageName"
	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

// ContentLoader fully loads a package on demand and returns its assets. It
// serves packages whose files carry no registry data.
type ContentLoader interface {
	LoadPackage(ctx context.Context, packageName string) ([]types.RegistryObject, error)
}

// DirtyReporter may be implemented by a RegistryObject whose package has
// unsaved changes. Dirty objects are not used to refresh cached records.
type DirtyReporter interface {
	IsDirty() bool
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

// progressLocked counts records whose dependencies are still queued as not
// yet processed. Dependency results can arrive ahead of their assets.
func (r *AssetRegistry) progressLocked(status assetGatherer.Status) Progress {
	numAssets := r.state.NumAssets()
	pendingDeps := r.results.Dependencies.Len()
	return Progress{
		NumTotalAssets:           numAssets + r.results.Assets.Len() + pendingDeps + status.NumFilesToSearch,
		NumAssetsProcessed:       max(numAssets-pendingDeps, 0),
		NumAssetsPendingDataLoad: status.NumFilesToSearch + pendingDeps,
		IsDiscoveringAssetFiles:  status.IsDiscoveringFiles,
	}
}

// Tick merges background search results into the registry. A negative
// budget drains everything; otherwise each result stream stops once budget
// is spent and the rest waits for the next Tick.
func (r *AssetRegistry) Tick(ctx context.Context, budget time.Duration) {
	start := time.Now()
	var deadline time.Time
	if budget >= 0 {
		deadline = start.Add(budget)
	}

	var status assetGatherer.Status
	bg := r.backgroundGatherer()

	r.mu.Lock()
	if bg != nil {
		status = bg.GetAndTrimSearchResults(&r.results)
	}
	for _, d := range r.results.SearchTimes {
		r.log.WithFields(logrus.Fields{"duration": d}).Debug("Background search completed")
	}
	r.results.SearchTimes = nil

	hadAssets := r.results.Assets.Len() > 0 || r.results.Dependencies.Len() > 0
	r.mergePathsLocked(&r.results.Paths, deadline)
	r.mergeAssetsLocked(&r.results.Assets, deadline)
	r.mergeDependenciesLocked(&r.results.Dependencies, deadline)
	r.mu.Unlock()
	r.dispatchEvents()

	r.loadCookedPackages(ctx, deadline)

	r.mutate(func() {
		if status.IsSearching || hadAssets {
			r.emitLocked(Event{Kind: EventProgress, Progress: r.progressLocked(status)})
		}

		idle := status.NumFilesToSearch == 0 && status.NumPathsToSearch == 0 && !status.IsSearching && r.results.Len() == 0
		if idle {
			if !r.initialSearchCompleted {
				// nothing to complete before the first full search
				if !r.fullSearchStart.IsZero() {
					r.initialSearchCompleted = true
					r.log.WithFields(logrus.Fields{
						"assets":   r.state.NumAssets(),
						"duration": time.Since(r.fullSearchStart),
					}).Info("Asset discovery search completed")
					r.emitLocked(Event{Kind: EventFilesLoaded})
				}
			} else if r.settings.UpdateDiskCacheAfterLoad {
				r.processLoadedAssetsLocked(deadline)
			}
		}

		r.metrics.RegistryAssets.Set(float64(r.state.NumAssets()))
		r.metrics.DependsNodes.Set(float64(r.state.NumDependsNodes()))
	})
	r.metrics.TickDuration.Observe(time.Since(start).Seconds())
}

func (r *AssetRegistry) mergePathsLocked(results *assetGatherer.GatherResults[string], deadline time.Time) {
	for {
		path, ok := results.Pop()
		if !ok {
			break
		}
		r.addAssetPathLocked(path)
		if expired(deadline) {
			break
		}
	}
	results.Trim()
}

// mergeAssetsLocked updates records that already exist by object path and
// adds the rest. Packages emptied in memory are not resurrected.
func (r *AssetRegistry) mergeAssetsLocked(results *assetGatherer.GatherResults[types.AssetData], deadline time.Time) {
	for {
		a, ok := results.Pop()
		if !ok {
			break
		}
		if _, empty := r.emptyPackages[a.PackageName]; empty {
			r.log.WithFields(logrus.Fields{"objectPath": a.ObjectPath()}).Debug("Skipping asset of emptied package")
		} else if h, exists := r.state.Lookup(a.ObjectPath()); exists {
			r.updateAssetDataLocked(h, a)
		} else {
			r.addAssetDataLocked(a)
		}
		r.addAssetPathLocked(a.PackagePath)

		if expired(deadline) {
			break
		}
	}
	results.Trim()
}

func (r *AssetRegistry) mergeDependenciesLocked(results *assetGatherer.GatherResults[packageReader.DependencyData], deadline time.Time) {
	for {
		d, ok := results.Pop()
		if !ok {
			break
		}
		r.mergeDependencyDataLocked(d)
		if expired(deadline) {
			break
		}
	}
	results.Trim()
}

// mergeDependencyDataLocked replaces the decoded edges of one package.
// Manage edges are not decoded from files and survive the replacement.
func (r *AssetRegistry) mergeDependencyDataLocked(d packageReader.DependencyData) {
	r.state.SetPackageData(d.PackageName, d.PackageData)

	graph := r.state.Graph()
	node := r.state.CreateOrFindDependsNode(types.PackageIdentifier(d.PackageName))
	graph.ClearDependencies(node, types.DependencyHard|types.DependencySoft|types.DependencySearchableName)

	seen := make(map[string]struct{}, len(d.ImportedPackages)+len(d.SoftPackageReferences))
	for _, imported := range d.ImportedPackages {
		if _, skip := r.scriptPackagesToSkip[imported]; skip {
			continue
		}
		if _, dup := seen[imported]; dup || imported == d.PackageName {
			continue
		}
		seen[imported] = struct{}{}
		graph.AddDependency(node, r.state.CreateOrFindDependsNode(types.PackageIdentifier(imported)), types.DependencyHard)
	}
	for _, soft := range d.SoftPackageReferences {
		if _, dup := seen[soft]; dup || soft == d.PackageName {
			continue
		}
		seen[soft] = struct{}{}
		graph.AddDependency(node, r.state.CreateOrFindDependsNode(types.PackageIdentifier(soft)), types.DependencySoft)
	}
	for _, ref := range d.SearchableNames {
		for _, name := range ref.Names {
			id := types.AssetIdentifier{PackageName: ref.Object.PackageName, ObjectName: ref.Object.ObjectName, ValueName: name}
			graph.AddDependency(node, r.state.CreateOrFindDependsNode(id), types.DependencySearchableName)
		}
	}

	r.forgetDeclaredClassesLocked(d.PackageName)
	for _, link := range d.ClassHierarchy {
		if link.Class == "" {
			continue
		}
		r.declaredClasses[link.Class] = link.Parent
		r.packageClasses[d.PackageName] = append(r.packageClasses[d.PackageName], link.Class)
	}
}

func (r *AssetRegistry) forgetDeclaredClassesLocked(pkg string) {
	for _, class := range r.packageClasses[pkg] {
		delete(r.declaredClasses, class)
	}
	delete(r.packageClasses, pkg)
}

// loadCookedPackages hands packages without registry data to the content
// loader, outside the registry lock.
func (r *AssetRegistry) loadCookedPackages(ctx context.Context, deadline time.Time) {
	for {
		r.mu.Lock()
		name, ok := r.results.CookedPackageNamesWithoutAssetData.Pop()
		if !ok {
			r.results.CookedPackageNamesWithoutAssetData.Trim()
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		r.loadPackage(ctx, name)

		if expired(deadline) {
			r.mu.Lock()
			r.results.CookedPackageNamesWithoutAssetData.Trim()
			r.mu.Unlock()
			return
		}
	}
}

func (r *AssetRegistry) loadPackage(ctx context.Context, name string) {
	fields := logrus.Fields{"package": name}
	if r.loader == nil {
		r.log.WithFields(fields).Warn("Package has no registry data and no content loader is configured")
		return
	}
	objects, err := r.loader.LoadPackage(ctx, name)
	if err != nil {
		r.log.WithFields(fields).Warnf("Loading package failed: %v", err)
		return
	}
	r.mutate(func() {
		for _, obj := range objects {
			r.registerLoadedObjectLocked(obj)
		}
	})
}

// registerLoadedObjectLocked records obj as loaded and adds or refreshes
// its record.
func (r *AssetRegistry) registerLoadedObjectLocked(obj types.RegistryObject) {
	a := types.AssetDataFromObject(obj)
	r.inMemory[a.ObjectPath()] = obj
	if h, ok := r.state.Lookup(a.ObjectPath()); ok {
		r.updateAssetDataLocked(h, a)
	} else {
		r.addAssetDataLocked(a)
	}
	r.addAssetPathLocked(a.PackagePath)
}

// processLoadedAssetsLocked refreshes the tags of cached records from
// objects loaded since. A zero deadline flushes everything and retries the
// objects that had no record last time.
func (r *AssetRegistry) processLoadedAssetsLocked(deadline time.Time) {
	flush := deadline.IsZero()
	if flush {
		r.loadedToProcess = append(r.loadedToProcess, r.loadedWithoutCachedData...)
		r.loadedWithoutCachedData = nil
	}

	i := 0
	for i < len(r.loadedToProcess) {
		obj := r.loadedToProcess[i]
		i++

		objectPath := packageName.ObjectPath(obj.PackageName(), obj.ObjectName())
		if _, done := r.updatedOnLoad[objectPath]; done {
			continue
		}
		if d, ok := obj.(DirtyReporter); ok && d.IsDirty() {
			continue
		}
		h, ok := r.state.Lookup(objectPath)
		if !ok {
			r.loadedWithoutCachedData = append(r.loadedWithoutCachedData, obj)
			continue
		}
		r.updatedOnLoad[objectPath] = struct{}{}

		fresh := types.AssetDataFromObject(obj)
		cached, _ := r.state.Get(h)
		if !fresh.Tags.Equal(cached.Tags) {
			cached.Tags = fresh.Tags
			r.updateAssetDataLocked(h, cached)
		}

		if expired(deadline) {
			break
		}
	}
	r.loadedToProcess = slices.Delete(r.loadedToProcess, 0, i)
}

func (r *AssetRegistry) addAssetPathLocked(path string) bool {
	added := r.paths.CachePath(path)
	for _, p := range added {
		r.emitLocked(Event{Kind: EventPathAdded, Path: p})
	}
	return len(added) > 0
}

// removeAssetPathLocked drops path and its sub paths. Unless force is set
// it fails while any asset lives below path.
func (r *AssetRegistry) removeAssetPathLocked(path string, force bool) bool {
	if !force && r.hasAssetsLocked(path, true) {
		return false
	}
	removed := r.paths.RemovePath(path)
	for _, p := range removed {
		r.emitLocked(Event{Kind: EventPathRemoved, Path: p})
	}
	return len(removed) > 0
}

func exportTextPathToObjectName(exportText string) string {
	return packageName.ObjectPathToObjectName(packageName.ExportTextPathToObjectPath(exportText))
}

// generatedClass returns the class a generator record produces and the
// class it derives from.
func (r *AssetRegistry) generatedClass(a types.AssetData) (class, parent string) {
	if _, ok := r.classGenerators[a.AssetClass]; !ok {
		return "", ""
	}
	if gen, ok := a.TagValue(types.TagGeneratedClass); ok && gen != "" {
		class = exportTextPathToObjectName(gen)
	}
	if p, ok := a.TagValue(types.TagParentClass); ok && p != "" {
		parent = exportTextPathToObjectName(p)
	}
	return class, parent
}

func (r *AssetRegistry) cacheGeneratedClassLocked(a types.AssetData) {
	if class, parent := r.generatedClass(a); class != "" && parent != "" {
		r.generatedClasses[class] = parent
	}
}

func (r *AssetRegistry) forgetGeneratedClassLocked(a types.AssetData) {
	if class, _ := r.generatedClass(a); class != "" {
		delete(r.generatedClasses, class)
	}
}

func (r *AssetRegistry) rebuildGeneratedClassesLocked() {
	clear(r.generatedClasses)
	r.state.Range(func(_ registryState.Handle, a types.AssetData) bool {
		r.cacheGeneratedClassLocked(a)
		return true
	})
}

func (r *AssetRegistry) addAssetDataLocked(a types.AssetData) bool {
	if _, ok := r.state.AddAssetData(a); !ok {
		return false
	}
	r.emitLocked(Event{Kind: EventAssetAdded, Asset: a})
	r.cacheGeneratedClassLocked(a)
	return true
}

func (r *AssetRegistry) updateAssetDataLocked(h registryState.Handle, a types.AssetData) bool {
	old, ok := r.state.Get(h)
	if !ok {
		return false
	}
	if !r.state.UpdateAssetData(h, a) {
		return false
	}
	r.forgetGeneratedClassLocked(old)
	r.cacheGeneratedClassLocked(a)
	return true
}

func (r *AssetRegistry) removeAssetDataLocked(h registryState.Handle, removeDependencyData bool) bool {
	a, ok := r.state.Get(h)
	if !ok {
		return false
	}
	r.emitLocked(Event{Kind: EventAssetRemoved, Asset: a})
	r.forgetGeneratedClassLocked(a)
	return r.state.RemoveAssetData(h, removeDependencyData)
}

// removePackageDataLocked removes every record of a package together with
// its dependency node and package data.
func (r *AssetRegistry) removePackageDataLocked(name string) {
	for _, h := range slices.Clone(r.state.HandlesByPackageName(name)) {
		r.removeAssetDataLocked(h, true)
	}
	r.state.RemovePackageData(name)
	r.forgetDeclaredClassesLocked(name)

	if node := r.state.FindDependsNode(types.PackageIdentifier(name)); node != nil {
		r.state.Graph().ClearDependencies(node, types.DependencyHard|types.DependencySoft|types.DependencySearchableName)
		if !node.IsConnected() {
			r.state.RemoveDependsNode(node.Identifier())
		}
	}
}
