// Package pathTree caches the set of known package paths ("/Game/Maps") as
// a tree so recursive path lookups do not scan every record.
package pathTree

import (
	"sort"
	"strings"

	"github.com/i5heu/asset-registry/pkg/packageName"
)

type PathTree struct {
	children map[string]map[string]struct{}
}

func New() *PathTree {
	return &PathTree{children: map[string]map[string]struct{}{"": {}}}
}

func normalize(path string) string {
	return strings.TrimSuffix(path, "/")
}

func (t *PathTree) Reset() {
	t.children = map[string]map[string]struct{}{"": {}}
}

// Len returns the number of cached paths.
func (t *PathTree) Len() int { return len(t.children) - 1 }

func (t *PathTree) Contains(path string) bool {
	path = normalize(path)
	if path == "" {
		return false
	}
	_, ok := t.children[path]
	return ok
}

// CachePath adds path and every missing parent. It returns the paths that
// were not known before, parents first.
func (t *PathTree) CachePath(path string) []string {
	path = normalize(path)
	if path == "" || !strings.HasPrefix(path, "/") {
		return nil
	}
	var added []string
	for p := path; p != ""; p = packageName.ParentPath(p) {
		if _, ok := t.children[p]; ok {
			break
		}
		t.children[p] = map[string]struct{}{}
		added = append(added, p)
	}
	for _, p := range added {
		t.children[packageName.ParentPath(p)][p] = struct{}{}
	}
	// reverse so parents come first
	for i, j := 0, len(added)-1; i < j; i, j = i+1, j-1 {
		added[i], added[j] = added[j], added[i]
	}
	return added
}

// RemovePath drops path and its whole subtree, returning the removed paths.
func (t *PathTree) RemovePath(path string) []string {
	path = normalize(path)
	if _, ok := t.children[path]; !ok || path == "" {
		return nil
	}
	var removed []string
	t.walk(path, func(p string) bool {
		removed = append(removed, p)
		return true
	})
	for _, p := range removed {
		delete(t.children, p)
	}
	delete(t.children[packageName.ParentPath(path)], path)
	sort.Strings(removed)
	return removed
}

// walk visits path and its descendants depth first.
func (t *PathTree) walk(path string, fn func(string) bool) bool {
	if !fn(path) {
		return false
	}
	for child := range t.children[path] {
		if !t.walk(child, fn) {
			return false
		}
	}
	return true
}

// SubPaths returns the children of base, or every descendant when recursive.
// Passing "" lists mount roots.
func (t *PathTree) SubPaths(base string, recursive bool) []string {
	base = normalize(base)
	kids, ok := t.children[base]
	if !ok {
		return nil
	}
	var out []string
	for child := range kids {
		if recursive {
			t.walk(child, func(p string) bool {
				out = append(out, p)
				return true
			})
		} else {
			out = append(out, child)
		}
	}
	sort.Strings(out)
	return out
}

// AllPaths lists every cached path in sorted order.
func (t *PathTree) AllPaths() []string {
	return t.SubPaths("", true)
}
