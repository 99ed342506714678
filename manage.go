package assetregistry

import (
	"github.com/i5heu/asset-registry/internal/dependsGraph"
	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

// SetManagerFlags describes the edge a ShouldSetManagerFunc decides on.
type SetManagerFlags struct {
	// IsDirectSet is true for the explicit pairs and false for nodes
	// reached by recursion.
	IsDirectSet bool
	// TargetHasExistingManager is true when the target was managed before
	// this call and those edges were not cleared.
	TargetHasExistingManager bool
	// TargetHasDirectManager is true when the target is explicitly managed
	// by some manager and this edge is not that explicit one.
	TargetHasDirectManager bool
}

type SetManagerResult int

const (
	DoNotSet SetManagerResult = iota
	SetButDoNotRecurse
	SetAndRecurse
)

// ShouldSetManagerFunc decides whether manager manages target, reached
// from source through an edge of kind. kind is a single edge kind, or
// DependencyManage for the explicit pairs. When source reaches target
// through several kinds, the first in storage order is passed.
type ShouldSetManagerFunc func(manager, source, target types.AssetIdentifier, kind types.DependencyType, flags SetManagerFlags) SetManagerResult

// ManagerPair states that Manager explicitly manages Managed.
type ManagerPair struct {
	Manager types.AssetIdentifier
	Managed types.AssetIdentifier
}

func defaultShouldSetManager(_, _, _ types.AssetIdentifier, _ types.DependencyType, _ SetManagerFlags) SetManagerResult {
	return SetButDoNotRecurse
}

type manageVisit struct {
	source *dependsGraph.Node
	target *dependsGraph.Node
	kind   types.DependencyType
}

// SetManageReferences writes Manage edges from each manager to its
// explicitly managed nodes and, when shouldSet asks for it, on through
// their dependencies of recurseKinds. A nil shouldSet sets every explicit
// pair without recursing.
func (r *AssetRegistry) SetManageReferences(pairs []ManagerPair, clearExisting bool, recurseKinds types.DependencyType, shouldSet ShouldSetManagerFunc) {
	if shouldSet == nil {
		shouldSet = defaultShouldSetManager
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	graph := r.state.Graph()
	existing := make(map[*dependsGraph.Node]struct{})
	for _, n := range graph.Nodes() {
		if len(n.Referencers(types.DependencyManage)) > 0 {
			existing[n] = struct{}{}
		}
	}
	if clearExisting {
		for n := range existing {
			graph.RemoveManageReferencesToNode(n)
		}
		existing = make(map[*dependsGraph.Node]struct{})
	}

	explicit := make(map[*dependsGraph.Node][]*dependsGraph.Node)
	var managers []*dependsGraph.Node
	managed := make(map[*dependsGraph.Node][]*dependsGraph.Node)
	for _, p := range pairs {
		target := r.state.FindDependsNode(p.Managed)
		if target == nil {
			r.log.WithFields(logrus.Fields{
				"manager": p.Manager.String(),
				"managed": p.Managed.String(),
			}).Error("Managed asset has no dependency node, skipping")
			continue
		}
		manager := r.state.CreateOrFindDependsNode(p.Manager)
		if _, ok := managed[manager]; !ok {
			managers = append(managers, manager)
		}
		managed[manager] = append(managed[manager], target)
		explicit[target] = append(explicit[target], manager)
	}

	edges := 0
	for _, manager := range managers {
		visited := make(map[*dependsGraph.Node]struct{})
		var stack []manageVisit
		for _, target := range managed[manager] {
			stack = append(stack, manageVisit{source: manager, target: target, kind: types.DependencyManage})
		}

		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, seen := visited[v.target]; seen {
				continue
			}
			visited[v.target] = struct{}{}

			_, hadManager := existing[v.target]
			_, hasExplicit := explicit[v.target]
			flags := SetManagerFlags{
				IsDirectSet:              v.source == manager,
				TargetHasExistingManager: hadManager,
				TargetHasDirectManager:   hasExplicit && v.source != manager,
			}
			result := shouldSet(manager.Identifier(), v.source.Identifier(), v.target.Identifier(), v.kind, flags)
			if result == DoNotSet {
				continue
			}
			if result == SetAndRecurse && recurseKinds != types.DependencyNone {
				for _, dep := range v.target.Dependencies(recurseKinds) {
					if _, seen := visited[dep]; !seen {
						stack = append(stack, manageVisit{source: v.target, target: dep, kind: (v.target.DependencyKindsTo(dep) & recurseKinds).First()})
					}
				}
			}
			if v.target != manager {
				graph.AddDependency(manager, v.target, types.DependencyManage)
				edges++
			}
		}
	}
	r.log.WithFields(logrus.Fields{"managers": len(managers), "edges": edges}).Debug("Manage references set")
}

// SetPrimaryAssetIDForObjectPath stores id in the tags of the record at
// objectPath. It reports false when there is no such record.
func (r *AssetRegistry) SetPrimaryAssetIDForObjectPath(id types.PrimaryAssetID, objectPath string) bool {
	var ok bool
	r.mutate(func() {
		h, found := r.state.Lookup(objectPath)
		if !found {
			return
		}
		a, _ := r.state.Get(h)
		a.Tags = a.Tags.With(types.TagPrimaryAssetType, id.Type).With(types.TagPrimaryAssetName, id.Name)
		ok = r.updateAssetDataLocked(h, a)
	})
	return ok
}
