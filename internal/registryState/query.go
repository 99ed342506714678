package registryState

import (
	"sort"

	"github.com/i5heu/asset-registry/pkg/types"
)

type keyedHandle struct {
	key string
	h   Handle
}

// sortedSet dedups handles and orders them by object path.
func (s *State) sortedSet(handles []Handle) []keyedHandle {
	seen := make(map[Handle]struct{}, len(handles))
	out := make([]keyedHandle, 0, len(handles))
	for _, h := range handles {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		if sl := s.slotFor(h); sl != nil {
			out = append(out, keyedHandle{key: sl.data.ObjectPath(), h: h})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func intersectSorted(a, b []keyedHandle) []keyedHandle {
	out := a[:0:0]
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i].key < b[j].key:
			i++
		case a[i].key > b[j].key:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func (s *State) union(index map[string][]Handle, keys []string) []Handle {
	var out []Handle
	for _, key := range keys {
		out = append(out, index[key]...)
	}
	return out
}

// GetAssets returns the records matching a non recursive filter, ordered by
// object path. An empty or invalid filter yields (nil, false).
func (s *State) GetAssets(filter types.Filter, excludedPackages map[string]struct{}) ([]types.AssetData, bool) {
	if filter.IsEmpty() || !filter.IsValid(false) {
		return nil, false
	}

	var dims [][]keyedHandle
	if len(filter.PackageNames) > 0 {
		dims = append(dims, s.sortedSet(s.union(s.byPackageName, filter.PackageNames)))
	}
	if len(filter.PackagePaths) > 0 {
		dims = append(dims, s.sortedSet(s.union(s.byPath, filter.PackagePaths)))
	}
	if len(filter.ObjectPaths) > 0 {
		var handles []Handle
		for _, p := range filter.ObjectPaths {
			if h, ok := s.byObjectPath[p]; ok {
				handles = append(handles, h)
			}
		}
		dims = append(dims, s.sortedSet(handles))
	}
	if len(filter.ClassNames) > 0 {
		dims = append(dims, s.sortedSet(s.union(s.byClass, filter.ClassNames)))
	}
	if len(filter.TagsAndValues) > 0 {
		var handles []Handle
		for _, tv := range filter.TagsAndValues {
			for _, h := range s.byTag[tv.Tag] {
				sl := s.slotFor(h)
				if sl == nil {
					continue
				}
				if value, ok := sl.data.Tags.Get(tv.Tag); ok && tv.Matches(value) {
					handles = append(handles, h)
				}
			}
		}
		dims = append(dims, s.sortedSet(handles))
	}

	// smallest first keeps the merge cheap
	sort.SliceStable(dims, func(i, j int) bool { return len(dims[i]) < len(dims[j]) })
	result := dims[0]
	for _, dim := range dims[1:] {
		if len(result) == 0 {
			break
		}
		result = intersectSorted(result, dim)
	}

	out := make([]types.AssetData, 0, len(result))
	for _, kh := range result {
		a := s.slots[kh.h.index].data
		if _, skip := excludedPackages[a.PackageName]; skip {
			continue
		}
		out = append(out, a)
	}
	return out, true
}
