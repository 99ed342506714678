package registryState

import (
	"github.com/i5heu/asset-registry/internal/dependsGraph"
	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

func (s *State) keepPackageNode(n *dependsGraph.Node) bool {
	id := n.Identifier()
	return id.IsPackage() && s.HasPackage(id.PackageName)
}

// PruneAssetData removes records outside required (when non-empty), inside
// removed, or without tags when filterNoTags is set. Dependency data of
// pruned records stays; afterwards nodes left without any connection are
// dropped, except nodes of packages that still hold records.
func (s *State) PruneAssetData(required, removed map[string]struct{}, filterNoTags bool) {
	var doomed []Handle
	touched := make(map[string]struct{})
	s.Range(func(h Handle, a types.AssetData) bool {
		_, isRequired := required[a.PackageName]
		_, isRemoved := removed[a.PackageName]
		if (len(required) > 0 && !isRequired) || isRemoved || (filterNoTags && a.Tags.Len() == 0) {
			doomed = append(doomed, h)
			touched[a.PackageName] = struct{}{}
		}
		return true
	})
	for _, h := range doomed {
		s.RemoveAssetData(h, false)
	}
	for name := range touched {
		if !s.HasPackage(name) {
			delete(s.packageData, name)
		}
	}
	nodes := s.graph.RemoveUnconnected(s.keepPackageNode)
	s.log.WithFields(logrus.Fields{
		"assets": len(doomed),
		"nodes":  nodes,
	}).Debug("Pruned registry state")
}

// InitializeFromExisting copies src into s through options. Without refresh
// s is rebuilt from scratch. With refresh only records already in s are
// touched and only their tags are replaced when they differ.
func (s *State) InitializeFromExisting(src *State, options SerializationOptions, refresh bool) {
	if !refresh {
		s.Reset()
	}

	src.Range(func(_ Handle, a types.AssetData) bool {
		if options.FilterAssetDataWithNoTags && a.Tags.Len() == 0 {
			return true
		}
		tags := options.FilterTags(a.AssetClass, a.Tags)
		if refresh {
			h, ok := s.byObjectPath[a.ObjectPath()]
			if !ok {
				return true
			}
			existing, _ := s.Get(h)
			if !existing.Tags.Equal(tags) {
				existing.Tags = tags
				s.UpdateAssetData(h, existing)
			}
			return true
		}
		a.Tags = tags
		s.AddAssetData(a)
		return true
	})

	if !refresh {
		kinds := options.DependencyKinds()
		if kinds != types.DependencyNone {
			for _, srcNode := range src.graph.Nodes() {
				node := s.graph.FindOrCreate(srcNode.Identifier())
				for _, kind := range types.DependencyKinds {
					if !kinds.Has(kind) {
						continue
					}
					for _, dep := range srcNode.Dependencies(kind) {
						s.graph.AddDependency(node, s.graph.FindOrCreate(dep.Identifier()), kind)
					}
				}
			}
			s.graph.RemoveUnconnected(s.keepPackageNode)
		}
	}

	if options.SerializePackageData {
		for name, pd := range src.packageData {
			if s.HasPackage(name) {
				s.SetPackageData(name, *pd)
			}
		}
	}
}
