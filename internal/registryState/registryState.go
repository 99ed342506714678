// Package registryState is the indexed store behind the registry. Records
// live in an arena addressed by generation checked handles; every secondary
// index stores handles, never pointers. A State is not safe for concurrent
// mutation, the owner serializes writers.
package registryState

import (
	"fmt"
	"slices"
	"sort"

	"github.com/i5heu/asset-registry/internal/dependsGraph"
	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

// Handle addresses one record. A handle stays valid until its record is
// removed, updates keep it stable.
type Handle struct {
	index      uint32
	generation uint32
}

func (h Handle) IsValid() bool { return h.generation != 0 }

type slot struct {
	data       types.AssetData
	generation uint32
	live       bool
}

type State struct {
	log *logrus.Logger

	slots     []slot
	free      []uint32
	numAssets int

	byObjectPath  map[string]Handle
	byPackageName map[string][]Handle
	byPath        map[string][]Handle
	byClass       map[string][]Handle
	byTag         map[string][]Handle

	graph       *dependsGraph.Graph
	packageData map[string]*types.PackageData
}

func New(log *logrus.Logger) *State {
	if log == nil {
		log = logging.New()
	}
	s := &State{log: log}
	s.Reset()
	return s
}

// Reset drops every record, node and package entry.
func (s *State) Reset() {
	s.slots = nil
	s.free = nil
	s.numAssets = 0
	s.byObjectPath = make(map[string]Handle)
	s.byPackageName = make(map[string][]Handle)
	s.byPath = make(map[string][]Handle)
	s.byClass = make(map[string][]Handle)
	s.byTag = make(map[string][]Handle)
	s.graph = dependsGraph.New()
	s.packageData = make(map[string]*types.PackageData)
}

func (s *State) NumAssets() int { return s.numAssets }

func (s *State) slotFor(h Handle) *slot {
	if !h.IsValid() || int(h.index) >= len(s.slots) {
		return nil
	}
	sl := &s.slots[h.index]
	if !sl.live || sl.generation != h.generation {
		return nil
	}
	return sl
}

// Get returns the record behind h. The returned ChunkIDs must not be modified.
func (s *State) Get(h Handle) (types.AssetData, bool) {
	sl := s.slotFor(h)
	if sl == nil {
		return types.AssetData{}, false
	}
	return sl.data, true
}

func (s *State) Lookup(objectPath string) (Handle, bool) {
	h, ok := s.byObjectPath[objectPath]
	return h, ok
}

func (s *State) GetAssetByObjectPath(objectPath string) (types.AssetData, bool) {
	h, ok := s.byObjectPath[objectPath]
	if !ok {
		return types.AssetData{}, false
	}
	return s.Get(h)
}

func (s *State) allocate(a types.AssetData) Handle {
	var index uint32
	if n := len(s.free); n > 0 {
		index = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		index = uint32(len(s.slots))
		s.slots = append(s.slots, slot{})
	}
	sl := &s.slots[index]
	sl.generation++
	if sl.generation == 0 {
		sl.generation = 1
	}
	sl.live = true
	sl.data = a
	return Handle{index: index, generation: sl.generation}
}

func (s *State) release(h Handle) {
	sl := &s.slots[h.index]
	sl.live = false
	sl.data = types.AssetData{}
	s.free = append(s.free, h.index)
}

// AddAssetData inserts a copy of a. A record with the same object path is
// left in place and the add reports false.
func (s *State) AddAssetData(a types.AssetData) (Handle, bool) {
	objectPath := a.ObjectPath()
	if existing, ok := s.byObjectPath[objectPath]; ok {
		s.log.WithFields(logrus.Fields{"objectPath": objectPath}).Error("Duplicate asset added to registry state, ignoring")
		return existing, false
	}
	h := s.allocate(a.Clone())
	s.numAssets++
	s.byObjectPath[objectPath] = h
	s.byPackageName[a.PackageName] = append(s.byPackageName[a.PackageName], h)
	s.byPath[a.PackagePath] = append(s.byPath[a.PackagePath], h)
	s.byClass[a.AssetClass] = append(s.byClass[a.AssetClass], h)
	for _, key := range a.Tags.Keys() {
		s.byTag[key] = append(s.byTag[key], h)
	}
	return h, true
}

func removeFromBucket(index map[string][]Handle, key string, h Handle) {
	bucket := index[key]
	i := slices.Index(bucket, h)
	if i < 0 {
		return
	}
	bucket = slices.Delete(bucket, i, i+1)
	if len(bucket) == 0 {
		delete(index, key)
		return
	}
	index[key] = bucket
}

// UpdateAssetData replaces the record behind h with a. Only indexes whose
// key changed are touched, so an update of tag values alone leaves bucket
// membership untouched. A package left without records by the move loses
// its graph node and package data.
func (s *State) UpdateAssetData(h Handle, a types.AssetData) bool {
	sl := s.slotFor(h)
	if sl == nil {
		s.log.WithFields(logrus.Fields{"objectPath": a.ObjectPath()}).Error("Update of unknown asset handle, ignoring")
		return false
	}
	old := sl.data

	oldPath, newPath := old.ObjectPath(), a.ObjectPath()
	if oldPath != newPath {
		if other, taken := s.byObjectPath[newPath]; taken && other != h {
			s.log.WithFields(logrus.Fields{"from": oldPath, "to": newPath}).Error("Update would collide with existing asset, ignoring")
			return false
		}
		delete(s.byObjectPath, oldPath)
		s.byObjectPath[newPath] = h
	}
	if old.PackageName != a.PackageName {
		removeFromBucket(s.byPackageName, old.PackageName, h)
		s.byPackageName[a.PackageName] = append(s.byPackageName[a.PackageName], h)
	}
	if old.PackagePath != a.PackagePath {
		removeFromBucket(s.byPath, old.PackagePath, h)
		s.byPath[a.PackagePath] = append(s.byPath[a.PackagePath], h)
	}
	if old.AssetClass != a.AssetClass {
		removeFromBucket(s.byClass, old.AssetClass, h)
		s.byClass[a.AssetClass] = append(s.byClass[a.AssetClass], h)
	}
	if !old.Tags.SameKeys(a.Tags) {
		for _, key := range old.Tags.Keys() {
			if !a.Tags.Contains(key) {
				removeFromBucket(s.byTag, key, h)
			}
		}
		for _, key := range a.Tags.Keys() {
			if !old.Tags.Contains(key) {
				s.byTag[key] = append(s.byTag[key], h)
			}
		}
	}
	sl.data = a.Clone()
	if old.PackageName != a.PackageName {
		s.releasePackageIfEmpty(old.PackageName)
	}
	return true
}

// releasePackageIfEmpty drops the graph node and package data of a package
// that has no records left.
func (s *State) releasePackageIfEmpty(name string) {
	if len(s.byPackageName[name]) > 0 {
		return
	}
	s.graph.RemoveNode(types.PackageIdentifier(name))
	delete(s.packageData, name)
}

// RemoveAssetData removes the record behind h. When it was the last record
// of its package and removeDependencyData is set, the package's graph node
// and package data go with it.
func (s *State) RemoveAssetData(h Handle, removeDependencyData bool) bool {
	sl := s.slotFor(h)
	if sl == nil {
		return false
	}
	a := sl.data
	delete(s.byObjectPath, a.ObjectPath())
	removeFromBucket(s.byPackageName, a.PackageName, h)
	removeFromBucket(s.byPath, a.PackagePath, h)
	removeFromBucket(s.byClass, a.AssetClass, h)
	for _, key := range a.Tags.Keys() {
		removeFromBucket(s.byTag, key, h)
	}
	s.release(h)
	s.numAssets--

	if removeDependencyData {
		s.releasePackageIfEmpty(a.PackageName)
	}
	return true
}

func (s *State) resolve(handles []Handle) []types.AssetData {
	out := make([]types.AssetData, 0, len(handles))
	for _, h := range handles {
		if sl := s.slotFor(h); sl != nil {
			out = append(out, sl.data)
		}
	}
	return out
}

// HandlesByPackageName returns a copy of the package bucket.
func (s *State) HandlesByPackageName(name string) []Handle {
	return slices.Clone(s.byPackageName[name])
}

func (s *State) GetAssetsByPackageName(name string) []types.AssetData {
	return s.resolve(s.byPackageName[name])
}

func (s *State) GetAssetsByPath(path string) []types.AssetData {
	return s.resolve(s.byPath[path])
}

func (s *State) GetAssetsByClassName(class string) []types.AssetData {
	return s.resolve(s.byClass[class])
}

func (s *State) GetAssetsByTagName(tag string) []types.AssetData {
	return s.resolve(s.byTag[tag])
}

func (s *State) HasPackage(name string) bool {
	return len(s.byPackageName[name]) > 0
}

func (s *State) HasAssetsInPath(path string) bool {
	return len(s.byPath[path]) > 0
}

// PackagePaths lists every path that holds at least one record.
func (s *State) PackagePaths() []string {
	out := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PackageNames lists every package that holds at least one record.
func (s *State) PackageNames() []string {
	out := make([]string, 0, len(s.byPackageName))
	for p := range s.byPackageName {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Range visits live records in arena order until fn returns false.
func (s *State) Range(fn func(Handle, types.AssetData) bool) {
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.live {
			continue
		}
		if !fn(Handle{index: uint32(i), generation: sl.generation}, sl.data) {
			return
		}
	}
}

// GetAllAssets returns every record outside excludedPackages, sorted by object path.
func (s *State) GetAllAssets(excludedPackages map[string]struct{}) []types.AssetData {
	out := make([]types.AssetData, 0, s.numAssets)
	s.Range(func(_ Handle, a types.AssetData) bool {
		if _, skip := excludedPackages[a.PackageName]; !skip {
			out = append(out, a)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectPath() < out[j].ObjectPath() })
	return out
}

// Validate cross checks every index against the records.
func (s *State) Validate() error {
	count := 0
	var err error
	expect := func(index map[string][]Handle, name, key string, h Handle) {
		if err == nil && !slices.Contains(index[key], h) {
			err = fmt.Errorf("registryState: %s index misses %q", name, key)
		}
	}
	s.Range(func(h Handle, a types.AssetData) bool {
		count++
		if s.byObjectPath[a.ObjectPath()] != h {
			err = fmt.Errorf("registryState: object path index misses %s", a.ObjectPath())
			return false
		}
		expect(s.byPackageName, "package", a.PackageName, h)
		expect(s.byPath, "path", a.PackagePath, h)
		expect(s.byClass, "class", a.AssetClass, h)
		for _, key := range a.Tags.Keys() {
			expect(s.byTag, "tag", key, h)
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	if count != s.numAssets || count != len(s.byObjectPath) {
		return fmt.Errorf("registryState: %d live records, counter %d, object paths %d", count, s.numAssets, len(s.byObjectPath))
	}
	total := 0
	for _, index := range []map[string][]Handle{s.byPackageName, s.byPath, s.byClass} {
		total = 0
		for _, bucket := range index {
			total += len(bucket)
		}
		if total != count {
			return fmt.Errorf("registryState: index holds %d handles for %d records", total, count)
		}
	}
	return s.graph.Validate()
}
