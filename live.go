package assetregistry

import (
	"slices"
	"time"

	"github.com/i5heu/asset-registry/pkg/packageName"
	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

func objectPathOf(obj types.RegistryObject) string {
	return packageName.ObjectPath(obj.PackageName(), obj.ObjectName())
}

// packageInMemoryLocked reports whether any in-memory object lives in pkg.
func (r *AssetRegistry) packageInMemoryLocked(pkg string) bool {
	for _, obj := range r.inMemory {
		if obj.PackageName() == pkg {
			return true
		}
	}
	return false
}

func (r *AssetRegistry) markEmptyIfUnusedLocked(pkg string) {
	if !r.state.HasPackage(pkg) && !r.packageInMemoryLocked(pkg) {
		r.emptyPackages[pkg] = struct{}{}
	}
}

// AssetCreated registers an object that was created in memory and has not
// been saved yet.
func (r *AssetRegistry) AssetCreated(obj types.RegistryObject) {
	r.mutate(func() {
		a := types.AssetDataFromObject(obj)
		a.PackageFlags |= types.FlagNewlyCreated
		objectPath := a.ObjectPath()

		delete(r.emptyPackages, a.PackageName)
		r.inMemory[objectPath] = obj

		if h, ok := r.state.Lookup(objectPath); ok {
			r.updateAssetDataLocked(h, a)
			r.emitLocked(Event{Kind: EventAssetAdded, Asset: a})
		} else {
			r.addAssetDataLocked(a)
		}
		r.addAssetPathLocked(a.PackagePath)
		r.emitLocked(Event{Kind: EventInMemoryAssetCreated, Asset: a, Object: obj})
	})
}

// AssetDeleted forgets an object deleted in memory. A package left without
// any object is remembered as empty so later disk results for it are
// ignored.
func (r *AssetRegistry) AssetDeleted(obj types.RegistryObject) {
	r.mutate(func() {
		objectPath := objectPathOf(obj)
		delete(r.inMemory, objectPath)

		var a types.AssetData
		if h, ok := r.state.Lookup(objectPath); ok {
			a, _ = r.state.Get(h)
			r.removeAssetDataLocked(h, false)
		} else {
			a = types.AssetDataFromObject(obj)
		}
		r.markEmptyIfUnusedLocked(obj.PackageName())
		r.emitLocked(Event{Kind: EventInMemoryAssetDeleted, Asset: a, Object: obj})
	})
}

// AssetRenamed moves the record at oldObjectPath to the object's current
// name.
func (r *AssetRegistry) AssetRenamed(obj types.RegistryObject, oldObjectPath string) {
	r.mutate(func() {
		a := types.AssetDataFromObject(obj)
		delete(r.inMemory, oldObjectPath)
		r.inMemory[a.ObjectPath()] = obj
		delete(r.emptyPackages, a.PackageName)

		if h, ok := r.state.Lookup(oldObjectPath); ok {
			if old, found := r.state.Get(h); found {
				a.PackageFlags |= old.PackageFlags & types.FlagNewlyCreated
			}
			if !r.updateAssetDataLocked(h, a) {
				return
			}
		} else if _, exists := r.state.Lookup(a.ObjectPath()); !exists {
			r.addAssetDataLocked(a)
		}
		r.addAssetPathLocked(a.PackagePath)

		oldPackage := packageName.ObjectPathToPackageName(oldObjectPath)
		if oldPackage != a.PackageName {
			r.markEmptyIfUnusedLocked(oldPackage)
		}
		r.emitLocked(Event{Kind: EventAssetRenamed, Asset: a, OldObjectPath: oldObjectPath})
	})
}

// PackageDeleted removes every record of the package and its dependency
// data.
func (r *AssetRegistry) PackageDeleted(name string) {
	r.mutate(func() {
		r.removePackageDataLocked(name)
		for path, obj := range r.inMemory {
			if obj.PackageName() == name {
				delete(r.inMemory, path)
			}
		}
		r.emptyPackages[name] = struct{}{}
	})
}

// OnAssetLoaded tells the registry that obj finished loading. Its tags are
// compared against the cached record on a later idle tick.
func (r *AssetRegistry) OnAssetLoaded(obj types.RegistryObject) {
	r.mutate(func() {
		r.inMemory[objectPathOf(obj)] = obj
		if r.settings.UpdateDiskCacheAfterLoad {
			r.loadedToProcess = append(r.loadedToProcess, obj)
		}
	})
}

func (r *AssetRegistry) OnAssetUnloaded(obj types.RegistryObject) {
	r.mutate(func() {
		objectPath := objectPathOf(obj)
		delete(r.inMemory, objectPath)
		unloaded := func(o types.RegistryObject) bool { return objectPathOf(o) == objectPath }
		r.loadedToProcess = slices.DeleteFunc(r.loadedToProcess, unloaded)
		r.loadedWithoutCachedData = slices.DeleteFunc(r.loadedWithoutCachedData, unloaded)
	})
}

// ProcessLoadedAssets refreshes cached records from every loaded object
// right away, including objects that had no record on earlier attempts.
func (r *AssetRegistry) ProcessLoadedAssets() {
	r.mutate(func() {
		clear(r.updatedOnLoad)
		r.processLoadedAssetsLocked(time.Time{})
	})
}

// SearchableNameEditor edits one searchable name reference and reports
// whether it handled it.
type SearchableNameEditor func(types.AssetIdentifier) bool

// OnEditSearchableName registers fn for the searchable names of objectName
// in pkg. An empty objectName registers fn for the whole package. The
// returned function removes the registration.
func (r *AssetRegistry) OnEditSearchableName(pkg, objectName string, fn SearchableNameEditor) (unregister func()) {
	key := types.AssetIdentifier{PackageName: pkg, ObjectName: objectName}
	r.mu.Lock()
	r.searchableNameEditors[key] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.searchableNameEditors, key)
		r.mu.Unlock()
	}
}

// EditSearchableName hands id to the registered editors, most specific
// first, until one handles it.
func (r *AssetRegistry) EditSearchableName(id types.AssetIdentifier) bool {
	r.mu.Lock()
	keys := make([]types.AssetIdentifier, 0, len(r.searchableNameEditors))
	for key := range r.searchableNameEditors {
		if key.PackageName != id.PackageName {
			continue
		}
		if key.ObjectName != "" && key.ObjectName != id.ObjectName {
			continue
		}
		if key.ValueName != "" && key.ValueName != id.ValueName {
			continue
		}
		keys = append(keys, key)
	}
	// package wide editors sort first, so walk backwards
	slices.SortFunc(keys, types.CompareIdentifiers)
	editors := make([]SearchableNameEditor, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		editors = append(editors, r.searchableNameEditors[keys[i]])
	}
	r.mu.Unlock()

	for _, edit := range editors {
		if edit(id) {
			return true
		}
	}
	r.log.WithFields(logrus.Fields{"name": id.String()}).Debug("No editor handled searchable name")
	return false
}
