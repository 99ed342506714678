package assetregistry

import (
	"slices"
	"sort"

	"github.com/i5heu/asset-registry/pkg/packageName"
	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

// excludedPackagesLocked returns the packages whose disk records a query
// skips: packages emptied in memory and, unless onDiskOnly, packages whose
// objects are answered from memory instead.
func (r *AssetRegistry) excludedPackagesLocked(onDiskOnly bool) map[string]struct{} {
	excluded := make(map[string]struct{}, len(r.emptyPackages))
	for pkg := range r.emptyPackages {
		excluded[pkg] = struct{}{}
	}
	if !onDiskOnly {
		for _, obj := range r.inMemory {
			excluded[obj.PackageName()] = struct{}{}
		}
	}
	return excluded
}

func (r *AssetRegistry) inMemoryAssetsLocked(keep func(types.AssetData) bool) []types.AssetData {
	var out []types.AssetData
	for _, obj := range r.inMemory {
		a := types.AssetDataFromObject(obj)
		if keep == nil || keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func dropNewlyCreated(assets []types.AssetData) []types.AssetData {
	return slices.DeleteFunc(assets, func(a types.AssetData) bool {
		return a.PackageFlags.Has(types.FlagNewlyCreated)
	})
}

func sortByObjectPath(assets []types.AssetData) {
	sort.Slice(assets, func(i, j int) bool { return assets[i].ObjectPath() < assets[j].ObjectPath() })
}

// GetAssets returns the records matching filter, sorted by object path.
// Recursive paths and classes are expanded first. An empty or invalid
// filter yields (nil, false).
func (r *AssetRegistry) GetAssets(filter types.Filter) ([]types.AssetData, bool) {
	if filter.IsEmpty() || !filter.IsValid(true) {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	expanded := r.expandRecursiveFilterLocked(filter)
	if len(filter.ClassNames) > 0 && len(expanded.ClassNames) == 0 {
		// every requested class was excluded
		return []types.AssetData{}, true
	}
	out, ok := r.state.GetAssets(expanded, r.excludedPackagesLocked(filter.IncludeOnlyOnDiskAssets))
	if !ok {
		return nil, false
	}
	if filter.IncludeOnlyOnDiskAssets {
		out = dropNewlyCreated(out)
	} else {
		out = append(out, r.inMemoryAssetsLocked(func(a types.AssetData) bool {
			return assetPassesFilter(a, expanded)
		})...)
	}
	sortByObjectPath(out)
	return out, true
}

func (r *AssetRegistry) GetAssetsByPackageName(name string, onDiskOnly bool) []types.AssetData {
	out, _ := r.GetAssets(types.Filter{PackageNames: []string{name}, IncludeOnlyOnDiskAssets: onDiskOnly})
	return out
}

func (r *AssetRegistry) GetAssetsByPath(path string, recursive, onDiskOnly bool) []types.AssetData {
	out, _ := r.GetAssets(types.Filter{
		PackagePaths:            []string{path},
		RecursivePaths:          recursive,
		IncludeOnlyOnDiskAssets: onDiskOnly,
	})
	return out
}

func (r *AssetRegistry) GetAssetsByClass(class string, searchSubClasses bool) []types.AssetData {
	out, _ := r.GetAssets(types.Filter{ClassNames: []string{class}, RecursiveClasses: searchSubClasses})
	return out
}

// GetAssetsByTagValues returns records carrying any of the tag=value pairs.
func (r *AssetRegistry) GetAssetsByTagValues(tags map[string]string) []types.AssetData {
	var f types.Filter
	for tag, value := range tags {
		f = f.WithTag(tag, value)
	}
	out, _ := r.GetAssets(f)
	return out
}

// GetAssetByObjectPath returns the record of one object.
func (r *AssetRegistry) GetAssetByObjectPath(objectPath string, onDiskOnly bool) (types.AssetData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getAssetByObjectPathLocked(objectPath, onDiskOnly)
}

func (r *AssetRegistry) getAssetByObjectPathLocked(objectPath string, onDiskOnly bool) (types.AssetData, bool) {
	if !onDiskOnly {
		if obj, ok := r.inMemory[objectPath]; ok {
			return types.AssetDataFromObject(obj), true
		}
	}
	if _, empty := r.emptyPackages[packageName.ObjectPathToPackageName(objectPath)]; empty {
		return types.AssetData{}, false
	}
	a, ok := r.state.GetAssetByObjectPath(objectPath)
	if !ok || (onDiskOnly && a.PackageFlags.Has(types.FlagNewlyCreated)) {
		return types.AssetData{}, false
	}
	return a, true
}

// GetAllAssets returns every record, sorted by object path.
func (r *AssetRegistry) GetAllAssets(onDiskOnly bool) []types.AssetData {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.state.GetAllAssets(r.excludedPackagesLocked(onDiskOnly))
	if onDiskOnly {
		out = dropNewlyCreated(out)
	} else {
		out = append(out, r.inMemoryAssetsLocked(nil)...)
	}
	sortByObjectPath(out)
	return out
}

// NumAssets counts the records in the index.
func (r *AssetRegistry) NumAssets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.NumAssets()
}

// ExpandRecursiveFilter turns recursive path and class filters into flat
// lists. The result is never recursive.
func (r *AssetRegistry) ExpandRecursiveFilter(filter types.Filter) types.Filter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expandRecursiveFilterLocked(filter)
}

func appendUnique(dst []string, seen map[string]struct{}, values ...string) []string {
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

func (r *AssetRegistry) expandRecursiveFilterLocked(filter types.Filter) types.Filter {
	out := filter
	out.PackageNames = slices.Clone(filter.PackageNames)
	out.ObjectPaths = slices.Clone(filter.ObjectPaths)
	out.TagsAndValues = slices.Clone(filter.TagsAndValues)

	if filter.RecursivePaths {
		seen := make(map[string]struct{})
		var paths []string
		for _, p := range filter.PackagePaths {
			paths = appendUnique(paths, seen, p)
			paths = appendUnique(paths, seen, r.paths.SubPaths(p, true)...)
		}
		out.PackagePaths = paths
	} else {
		out.PackagePaths = slices.Clone(filter.PackagePaths)
	}

	if filter.RecursiveClasses {
		out.ClassNames = r.derivedClassNamesLocked(filter.ClassNames, toSet(filter.RecursiveClassesExclusionSet))
	} else {
		out.ClassNames = slices.Clone(filter.ClassNames)
	}

	out.RecursivePaths = false
	out.RecursiveClasses = false
	out.RecursiveClassesExclusionSet = nil
	return out
}

// assetPassesFilter checks a against a flat filter. An empty filter passes
// everything.
func assetPassesFilter(a types.AssetData, f types.Filter) bool {
	if len(f.PackageNames) > 0 && !slices.Contains(f.PackageNames, a.PackageName) {
		return false
	}
	if len(f.PackagePaths) > 0 && !slices.Contains(f.PackagePaths, a.PackagePath) {
		return false
	}
	if len(f.ObjectPaths) > 0 && !slices.Contains(f.ObjectPaths, a.ObjectPath()) {
		return false
	}
	if len(f.ClassNames) > 0 && !slices.Contains(f.ClassNames, a.AssetClass) {
		return false
	}
	if len(f.TagsAndValues) > 0 {
		matched := false
		for _, tv := range f.TagsAndValues {
			if value, ok := a.Tags.Get(tv.Tag); ok && tv.Matches(value) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.IncludeOnlyOnDiskAssets && a.PackageFlags.Has(types.FlagNewlyCreated) {
		return false
	}
	return true
}

// RunAssetsThroughFilter returns the assets that pass filter, keeping
// their order.
func (r *AssetRegistry) RunAssetsThroughFilter(assets []types.AssetData, filter types.Filter) []types.AssetData {
	if filter.IsEmpty() && !filter.IncludeOnlyOnDiskAssets {
		return assets
	}
	flat := r.ExpandRecursiveFilter(filter)
	out := make([]types.AssetData, 0, len(assets))
	for _, a := range assets {
		if assetPassesFilter(a, flat) {
			out = append(out, a)
		}
	}
	return out
}

// RegisterClass adds a compiled-in class to the hierarchy.
func (r *AssetRegistry) RegisterClass(name, parent string, interfaces ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nativeClasses[name] = nativeClass{parent: parent, interfaces: slices.Clone(interfaces)}
}

func (r *AssetRegistry) UnregisterClass(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nativeClasses, name)
}

// parentClassLocked looks class up among native, generated and decoded
// classes, in that order.
func (r *AssetRegistry) parentClassLocked(class string) (string, bool) {
	if c, ok := r.nativeClasses[class]; ok {
		return c.parent, true
	}
	if p, ok := r.generatedClasses[class]; ok {
		return p, true
	}
	p, ok := r.declaredClasses[class]
	return p, ok
}

// GetAncestorClassNames returns the parents of class, nearest first. It
// reports false for an unknown class.
func (r *AssetRegistry) GetAncestorClassNames(class string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent, ok := r.parentClassLocked(class)
	if !ok {
		return nil, false
	}
	var out []string
	seen := map[string]struct{}{class: {}}
	for parent != "" {
		if _, loop := seen[parent]; loop {
			r.log.WithFields(logrus.Fields{"class": class, "parent": parent}).Warn("Class hierarchy contains a cycle")
			break
		}
		seen[parent] = struct{}{}
		out = append(out, parent)
		parent, _ = r.parentClassLocked(parent)
	}
	return out, true
}

// GetDerivedClassNames returns classes together with every class derived
// from them, skipping excluded classes and everything below them.
func (r *AssetRegistry) GetDerivedClassNames(classes []string, excluded []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.derivedClassNamesLocked(classes, toSet(excluded))
}

func (r *AssetRegistry) derivedClassNamesLocked(classes []string, excluded map[string]struct{}) []string {
	children := make(map[string][]string)
	for name, c := range r.nativeClasses {
		if c.parent != "" {
			children[c.parent] = append(children[c.parent], name)
		}
		for _, iface := range c.interfaces {
			children[iface] = append(children[iface], name)
		}
	}
	for _, cached := range []map[string]string{r.generatedClasses, r.declaredClasses} {
		for name, parent := range cached {
			if _, native := r.nativeClasses[name]; native || parent == "" {
				continue
			}
			children[parent] = append(children[parent], name)
		}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, class := range classes {
		r.getSubClassesLocked(class, children, excluded, seen, &out)
	}
	sort.Strings(out)
	return out
}

func (r *AssetRegistry) getSubClassesLocked(class string, children map[string][]string, excluded, seen map[string]struct{}, out *[]string) {
	if _, skip := excluded[class]; skip {
		return
	}
	if _, visited := seen[class]; visited {
		return
	}
	seen[class] = struct{}{}
	*out = append(*out, class)
	for _, child := range children[class] {
		r.getSubClassesLocked(child, children, excluded, seen, out)
	}
}

// HasAssets reports whether path, or with recursive any path below it,
// holds a record.
func (r *AssetRegistry) HasAssets(path string, recursive bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasAssetsLocked(path, recursive)
}

func (r *AssetRegistry) hasAssetsLocked(path string, recursive bool) bool {
	if r.state.HasAssetsInPath(path) {
		return true
	}
	if !recursive {
		return false
	}
	for _, sub := range r.paths.SubPaths(path, true) {
		if r.state.HasAssetsInPath(sub) {
			return true
		}
	}
	return false
}

// AddPath caches path and its parents. It reports whether anything was
// added.
func (r *AssetRegistry) AddPath(path string) bool {
	var added bool
	r.mutate(func() { added = r.addAssetPathLocked(path) })
	return added
}

// RemovePath forgets path and everything below it. It fails while assets
// remain below path.
func (r *AssetRegistry) RemovePath(path string) bool {
	var removed bool
	r.mutate(func() { removed = r.removeAssetPathLocked(path, false) })
	return removed
}

func (r *AssetRegistry) GetAllCachedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paths.AllPaths()
}

func (r *AssetRegistry) GetSubPaths(base string, recursive bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paths.SubPaths(base, recursive)
}

// GetDependencies lists what id depends on through kinds. It reports false
// when id has no graph node.
func (r *AssetRegistry) GetDependencies(id types.AssetIdentifier, kinds types.DependencyType) ([]types.AssetIdentifier, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.GetDependencies(id, kinds)
}

func (r *AssetRegistry) GetReferencers(id types.AssetIdentifier, kinds types.DependencyType) ([]types.AssetIdentifier, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.GetReferencers(id, kinds)
}

func packageNames(ids []types.AssetIdentifier) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id.IsPackage() {
			out = appendUnique(out, seen, id.PackageName)
		}
	}
	return out
}

// GetPackageDependencies returns the packages name depends on.
func (r *AssetRegistry) GetPackageDependencies(name string, kinds types.DependencyType) ([]string, bool) {
	ids, ok := r.GetDependencies(types.PackageIdentifier(name), kinds)
	return packageNames(ids), ok
}

// GetPackageReferencers returns the packages that depend on name.
func (r *AssetRegistry) GetPackageReferencers(name string, kinds types.DependencyType) ([]string, bool) {
	ids, ok := r.GetReferencers(types.PackageIdentifier(name), kinds)
	return packageNames(ids), ok
}

func (r *AssetRegistry) GetPackageData(name string) (types.PackageData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.GetPackageData(name)
}

// GetRedirectedObjectPath follows redirector records to the object they
// point at. A redirector cycle ends at the first repeated path.
func (r *AssetRegistry) GetRedirectedObjectPath(objectPath string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	redirected := objectPath
	seen := map[string]struct{}{objectPath: {}}
	for {
		a, ok := r.getAssetByObjectPathLocked(redirected, false)
		if !ok || !a.IsRedirector() {
			return redirected
		}
		dest, ok := a.TagValue(types.TagDestinationObject)
		if !ok || dest == "" {
			return redirected
		}
		redirected = packageName.ExportTextPathToObjectPath(dest)
		if _, loop := seen[redirected]; loop {
			r.log.WithFields(logrus.Fields{"objectPath": objectPath}).Warn("Redirector chain contains a cycle")
			return redirected
		}
		seen[redirected] = struct{}{}
	}
}

// ResolveRedirector follows redirector packages in the dependency graph
// starting at id.
func (r *AssetRegistry) ResolveRedirector(id types.AssetIdentifier) (types.AssetIdentifier, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ResolveRedirector(id)
}
