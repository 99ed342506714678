package registryState

import (
	"sort"

	"github.com/i5heu/asset-registry/internal/dependsGraph"
	"github.com/i5heu/asset-registry/pkg/types"
)

func (s *State) Graph() *dependsGraph.Graph { return s.graph }

func (s *State) FindDependsNode(id types.AssetIdentifier) *dependsGraph.Node {
	return s.graph.Find(id)
}

func (s *State) CreateOrFindDependsNode(id types.AssetIdentifier) *dependsGraph.Node {
	return s.graph.FindOrCreate(id)
}

func (s *State) RemoveDependsNode(id types.AssetIdentifier) bool {
	return s.graph.RemoveNode(id)
}

func (s *State) NumDependsNodes() int { return s.graph.Len() }

// GetDependencies lists the direct dependencies of id for the selected kinds.
// The bool is false when id has no node.
func (s *State) GetDependencies(id types.AssetIdentifier, kinds types.DependencyType) ([]types.AssetIdentifier, bool) {
	n := s.graph.Find(id)
	if n == nil {
		return nil, false
	}
	return dependsGraph.Identifiers(n.Dependencies(kinds)), true
}

func (s *State) GetReferencers(id types.AssetIdentifier, kinds types.DependencyType) ([]types.AssetIdentifier, bool) {
	n := s.graph.Find(id)
	if n == nil {
		return nil, false
	}
	return dependsGraph.Identifiers(n.Referencers(kinds)), true
}

// IsRedirectorPackage reports whether any record of the package is a redirector.
func (s *State) IsRedirectorPackage(name string) bool {
	for _, h := range s.byPackageName[name] {
		if sl := s.slotFor(h); sl != nil && sl.data.IsRedirector() {
			return true
		}
	}
	return false
}

// ResolveRedirector follows redirector packages from id to the first
// package that is not a redirector.
func (s *State) ResolveRedirector(id types.AssetIdentifier) (types.AssetIdentifier, bool) {
	n := s.graph.Find(id)
	if n == nil {
		return id, false
	}
	allowed := func(pkg string) bool { return s.HasPackage(pkg) && !s.IsRedirectorPackage(pkg) }
	return s.graph.ResolveRedirector(n, allowed, s).Identifier(), true
}

func (s *State) GetPackageData(name string) (types.PackageData, bool) {
	pd, ok := s.packageData[name]
	if !ok {
		return types.PackageData{}, false
	}
	return *pd, true
}

// CreateOrGetPackageData returns the package's entry, creating it on first use.
// The pointer stays owned by the state.
func (s *State) CreateOrGetPackageData(name string) *types.PackageData {
	if pd, ok := s.packageData[name]; ok {
		return pd
	}
	pd := &types.PackageData{}
	s.packageData[name] = pd
	return pd
}

func (s *State) SetPackageData(name string, data types.PackageData) {
	*s.CreateOrGetPackageData(name) = data
}

func (s *State) RemovePackageData(name string) bool {
	if _, ok := s.packageData[name]; !ok {
		return false
	}
	delete(s.packageData, name)
	return true
}

func (s *State) NumPackageData() int { return len(s.packageData) }

// PackageDataNames lists packages with package data, sorted.
func (s *State) PackageDataNames() []string {
	out := make([]string, 0, len(s.packageData))
	for name := range s.packageData {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
