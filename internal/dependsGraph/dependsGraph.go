// Package dependsGraph holds the directed dependency graph of the registry.
// Every forward edge A->B of any kind, Manage included, is mirrored by
// A being in B's referencer set, and only this package's mutators touch
// either side.
package dependsGraph

import (
	"fmt"

	"github.com/i5heu/asset-registry/pkg/types"
)

type Graph struct {
	nodes map[types.AssetIdentifier]*Node
}

func New() *Graph {
	return &Graph{nodes: make(map[types.AssetIdentifier]*Node)}
}

func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) Reset() {
	g.nodes = make(map[types.AssetIdentifier]*Node)
}

func (g *Graph) Find(id types.AssetIdentifier) *Node {
	return g.nodes[id]
}

func (g *Graph) FindOrCreate(id types.AssetIdentifier) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := newNode(id)
	g.nodes[id] = n
	return n
}

// Nodes returns every node sorted by identifier.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sortNodes(out)
	return out
}

// AddDependency adds a single kind edge from -> to. It is idempotent.
func (g *Graph) AddDependency(from, to *Node, kind types.DependencyType) {
	slot := kindSlot(kind)
	if slot < 0 || from == nil || to == nil {
		return
	}
	if from.deps[slot] == nil {
		from.deps[slot] = make(nodeSet)
	}
	from.deps[slot][to] = struct{}{}
	to.referencers[from] = struct{}{}
}

// RemoveDependency removes the kind edge from -> to. The referencer entry
// goes away only when no kind of edge remains between the pair.
func (g *Graph) RemoveDependency(from, to *Node, kind types.DependencyType) {
	slot := kindSlot(kind)
	if slot < 0 || from == nil || to == nil {
		return
	}
	delete(from.deps[slot], to)
	if !from.HasDependency(to, types.DependencyAll) {
		delete(to.referencers, from)
	}
}

// ClearDependencies drops every outgoing edge of n of the selected kinds.
func (g *Graph) ClearDependencies(n *Node, kinds types.DependencyType) {
	for i, kind := range types.DependencyKinds {
		if !kinds.Has(kind) {
			continue
		}
		targets := n.deps[i]
		n.deps[i] = nil
		for dep := range targets {
			if !n.HasDependency(dep, types.DependencyAll) {
				delete(dep.referencers, n)
			}
		}
	}
}

// RemoveManageReferencesToNode drops every Manage edge pointing at n and
// leaves the other kinds alone.
func (g *Graph) RemoveManageReferencesToNode(n *Node) {
	for ref := range n.referencers {
		g.RemoveDependency(ref, n, types.DependencyManage)
	}
}

// RemoveNode detaches the node from all neighbors and deletes it.
func (g *Graph) RemoveNode(id types.AssetIdentifier) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	g.ClearDependencies(n, types.DependencyAll)
	for ref := range n.referencers {
		for i := range ref.deps {
			delete(ref.deps[i], n)
		}
	}
	n.referencers = nodeSet{}
	delete(g.nodes, id)
	return true
}

// RemoveUnconnected deletes nodes with no edges in either direction unless
// keep says otherwise, and returns how many were removed.
func (g *Graph) RemoveUnconnected(keep func(*Node) bool) int {
	removed := 0
	for id, n := range g.nodes {
		if n.IsConnected() || (keep != nil && keep(n)) {
			continue
		}
		delete(g.nodes, id)
		removed++
	}
	return removed
}

// Validate checks the forward/referencer mirror for every node.
func (g *Graph) Validate() error {
	for _, n := range g.nodes {
		for i := range n.deps {
			for dep := range n.deps[i] {
				if g.nodes[dep.id] != dep {
					return fmt.Errorf("dependsGraph: %s depends on detached node %s", n.id, dep.id)
				}
				if _, ok := dep.referencers[n]; !ok {
					return fmt.Errorf("dependsGraph: %s -> %s lacks referencer entry", n.id, dep.id)
				}
			}
		}
		for ref := range n.referencers {
			if g.nodes[ref.id] != ref {
				return fmt.Errorf("dependsGraph: %s referenced by detached node %s", n.id, ref.id)
			}
			if !ref.HasDependency(n, types.DependencyAll) {
				return fmt.Errorf("dependsGraph: referencer %s of %s has no edge", ref.id, n.id)
			}
		}
	}
	return nil
}

// PackageLookup answers the questions redirector resolution asks about packages.
type PackageLookup interface {
	HasPackage(name string) bool
	IsRedirectorPackage(name string) bool
}

// ResolveRedirector follows hard dependencies of redirector packages until it
// reaches a node whose package is allowed. Unknown or non-redirector packages
// end the walk at themselves. Cycles and chains longer than the graph end at
// the last visited node.
func (g *Graph) ResolveRedirector(start *Node, allowed func(packageName string) bool, lookup PackageLookup) *Node {
	if start == nil {
		return nil
	}
	current := start
	visited := make(nodeSet)
	for steps := 0; steps <= len(g.nodes); steps++ {
		if _, seen := visited[current]; seen {
			return current
		}
		visited[current] = struct{}{}

		pkg := current.id.PackageName
		if !lookup.HasPackage(pkg) || !lookup.IsRedirectorPackage(pkg) {
			return current
		}

		var next *Node
		for _, dep := range current.Dependencies(types.DependencyHard) {
			if allowed(dep.id.PackageName) {
				return dep
			}
			if lookup.HasPackage(dep.id.PackageName) {
				next = dep
			}
		}
		if next == nil {
			return current
		}
		current = next
	}
	return current
}
