package dependsGraph

import (
	"sort"

	"github.com/i5heu/asset-registry/pkg/types"
)

const numKinds = len(types.DependencyKinds)

func kindSlot(kind types.DependencyType) int {
	switch kind {
	case types.DependencyHard:
		return 0
	case types.DependencySoft:
		return 1
	case types.DependencySearchableName:
		return 2
	case types.DependencyManage:
		return 3
	}
	return -1
}

type nodeSet map[*Node]struct{}

// Node is one vertex of the graph. Edges are only changed through Graph so
// the forward and referencer sides never disagree.
type Node struct {
	id          types.AssetIdentifier
	deps        [numKinds]nodeSet
	referencers nodeSet
}

func newNode(id types.AssetIdentifier) *Node {
	return &Node{id: id, referencers: nodeSet{}}
}

func (n *Node) Identifier() types.AssetIdentifier { return n.id }

func (n *Node) NumDependencies(kinds types.DependencyType) int {
	total := 0
	for i, kind := range types.DependencyKinds {
		if kinds.Has(kind) {
			total += len(n.deps[i])
		}
	}
	return total
}

func (n *Node) NumReferencers() int { return len(n.referencers) }

// ConnectionCount counts forward edges of every kind plus referencers.
func (n *Node) ConnectionCount() int {
	return n.NumDependencies(types.DependencyAll) + len(n.referencers)
}

func (n *Node) IsConnected() bool { return n.ConnectionCount() > 0 }

// HasDependency reports whether n has an edge of any kind in kinds to dep.
func (n *Node) HasDependency(dep *Node, kinds types.DependencyType) bool {
	for i, kind := range types.DependencyKinds {
		if !kinds.Has(kind) {
			continue
		}
		if _, ok := n.deps[i][dep]; ok {
			return true
		}
	}
	return false
}

// DependencyKindsTo returns the edge kinds from n to dep.
func (n *Node) DependencyKindsTo(dep *Node) types.DependencyType {
	var out types.DependencyType
	for i, kind := range types.DependencyKinds {
		if _, ok := n.deps[i][dep]; ok {
			out |= kind
		}
	}
	return out
}

// Dependencies returns the distinct targets of the selected edge kinds,
// sorted by identifier.
func (n *Node) Dependencies(kinds types.DependencyType) []*Node {
	seen := make(nodeSet)
	for i, kind := range types.DependencyKinds {
		if !kinds.Has(kind) {
			continue
		}
		for dep := range n.deps[i] {
			seen[dep] = struct{}{}
		}
	}
	return sortedNodes(seen)
}

// Referencers returns nodes with an edge of a selected kind to n.
func (n *Node) Referencers(kinds types.DependencyType) []*Node {
	if kinds == types.DependencyAll {
		return sortedNodes(n.referencers)
	}
	matching := make(nodeSet)
	for ref := range n.referencers {
		if ref.HasDependency(n, kinds) {
			matching[ref] = struct{}{}
		}
	}
	return sortedNodes(matching)
}

func sortedNodes(set nodeSet) []*Node {
	out := make([]*Node, 0, len(set))
	for node := range set {
		out = append(out, node)
	}
	sortNodes(out)
	return out
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return types.CompareIdentifiers(nodes[i].id, nodes[j].id) < 0
	})
}

// Identifiers maps nodes to their identifiers.
func Identifiers(nodes []*Node) []types.AssetIdentifier {
	out := make([]types.AssetIdentifier, len(nodes))
	for i, node := range nodes {
		out[i] = node.id
	}
	return out
}
