package registryState

import (
	"errors"
	"fmt"
	"io"

	"github.com/i5heu/asset-registry/internal/binaryCoder"
	"github.com/i5heu/asset-registry/internal/dependsGraph"
	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

const (
	VersionInitial     = 1
	VersionContentHash = 2
	VersionLatest      = VersionContentHash
)

const (
	sectionDependencies uint64 = 1 << iota
	sectionSearchableNames
	sectionManage
	sectionPackageData
)

var (
	ErrUnsupportedVersion = errors.New("registryState: unsupported registry version")
	ErrCorrupt            = errors.New("registryState: corrupt registry archive")
)

// edge kinds in the order the dependency section stores them
var savedKinds = [...]types.DependencyType{
	types.DependencyHard, types.DependencySoft, types.DependencySearchableName, types.DependencyManage,
}

type savedGraph struct {
	nodes []*dependsGraph.Node
	index map[*dependsGraph.Node]int
	edges [][len(savedKinds)][]int
	refs  [][]int
}

func (s *State) collectGraph(options SerializationOptions) savedGraph {
	kinds := options.DependencyKinds()
	resolve := func(n *dependsGraph.Node) *dependsGraph.Node { return n }
	if options.ResolveRedirectors {
		allowed := func(pkg string) bool { return s.HasPackage(pkg) && !s.IsRedirectorPackage(pkg) }
		resolve = func(n *dependsGraph.Node) *dependsGraph.Node {
			return s.graph.ResolveRedirector(n, allowed, s)
		}
	}

	all := s.graph.Nodes()
	type edge struct {
		from, to *dependsGraph.Node
		slot     int
	}
	var edges []edge
	used := make(map[*dependsGraph.Node]bool)
	for _, n := range all {
		if n.Identifier().IsPackage() {
			used[n] = true
		}
		for slot, kind := range savedKinds {
			if !kinds.Has(kind) {
				continue
			}
			for _, dep := range n.Dependencies(kind) {
				if kind == types.DependencyHard || kind == types.DependencySoft {
					dep = resolve(dep)
				}
				edges = append(edges, edge{from: n, to: dep, slot: slot})
				used[n] = true
				used[dep] = true
			}
		}
	}

	g := savedGraph{index: make(map[*dependsGraph.Node]int)}
	for _, n := range all {
		if used[n] {
			g.index[n] = len(g.nodes)
			g.nodes = append(g.nodes, n)
		}
	}
	g.edges = make([][len(savedKinds)][]int, len(g.nodes))
	g.refs = make([][]int, len(g.nodes))
	seen := make(map[[3]int]bool)
	refSeen := make(map[[2]int]bool)
	for _, e := range edges {
		from, to := g.index[e.from], g.index[e.to]
		if seen[[3]int{from, to, e.slot}] {
			continue
		}
		seen[[3]int{from, to, e.slot}] = true
		g.edges[from][e.slot] = append(g.edges[from][e.slot], to)
		if !refSeen[[2]int{to, from}] {
			refSeen[[2]int{to, from}] = true
			g.refs[to] = append(g.refs[to], from)
		}
	}
	return g
}

// Save writes the state in the registry archive format.
func (s *State) Save(w io.Writer, options SerializationOptions) error {
	names := binaryCoder.NewNameTable()
	assets := s.GetAllAssets(nil)
	for i := range assets {
		a := &assets[i]
		a.Tags = options.FilterTags(a.AssetClass, a.Tags)
		names.Add(a.PackageName)
		names.Add(a.PackagePath)
		names.Add(a.AssetName)
		names.Add(a.AssetClass)
		for _, key := range a.Tags.Keys() {
			names.Add(key)
		}
	}

	var sections uint64
	var graph savedGraph
	if options.SerializeDependencies {
		sections |= sectionDependencies
		if options.SerializeSearchableNameDependencies {
			sections |= sectionSearchableNames
		}
		if options.SerializeManageDependencies {
			sections |= sectionManage
		}
		graph = s.collectGraph(options)
		for _, n := range graph.nodes {
			id := n.Identifier()
			names.Add(id.PackageName)
			names.Add(id.ObjectName)
			names.Add(id.ValueName)
		}
	}
	var packages []string
	if options.SerializePackageData {
		sections |= sectionPackageData
		packages = s.PackageDataNames()
		for _, name := range packages {
			names.Add(name)
		}
	}

	out := binaryCoder.NewWriter()
	out.WriteUvarint(VersionLatest)
	out.WriteUvarint(sections)
	names.Write(out)

	out.WriteCount(len(assets))
	for _, a := range assets {
		out.WriteName(names, a.PackageName)
		out.WriteName(names, a.PackagePath)
		out.WriteName(names, a.AssetName)
		out.WriteName(names, a.AssetClass)
		out.WriteCount(a.Tags.Len())
		a.Tags.Range(func(key, value string) bool {
			out.WriteName(names, key)
			out.WriteString(value)
			return true
		})
		out.WriteCount(len(a.ChunkIDs))
		for _, id := range a.ChunkIDs {
			out.WriteVarint(int64(id))
		}
		out.WriteUvarint(uint64(a.PackageFlags))
	}

	if sections&sectionDependencies != 0 {
		out.WriteCount(len(graph.nodes))
		for _, n := range graph.nodes {
			id := n.Identifier()
			out.WriteName(names, id.PackageName)
			out.WriteName(names, id.ObjectName)
			out.WriteName(names, id.ValueName)
		}
		for i := range graph.nodes {
			// disabled kinds were never collected and go out as zero counts
			for slot := range savedKinds {
				out.WriteCount(len(graph.edges[i][slot]))
				for _, dep := range graph.edges[i][slot] {
					out.WriteUvarint(uint64(dep))
				}
			}
			out.WriteCount(len(graph.refs[i]))
			for _, ref := range graph.refs[i] {
				out.WriteUvarint(uint64(ref))
			}
		}
	}

	if sections&sectionPackageData != 0 {
		out.WriteCount(len(packages))
		for _, name := range packages {
			pd := s.packageData[name]
			out.WriteName(names, name)
			out.WriteVarint(pd.DiskSize)
			out.WriteGUID(pd.PackageGUID)
			out.WriteRaw(pd.ContentHash[:])
		}
	}

	if _, err := w.Write(out.Bytes()); err != nil {
		return fmt.Errorf("write registry archive: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"assets":   len(assets),
		"nodes":    len(graph.nodes),
		"packages": len(packages),
		"bytes":    out.Len(),
	}).Debug("Saved registry state")
	return nil
}

// Load replaces the state with an archive written by Save. On any error the
// state is left as it was.
func (s *State) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read registry archive: %w", err)
	}
	tmp, err := decodeState(data, s.log)
	if err != nil {
		return err
	}
	*s = *tmp
	return nil
}

func decodeState(data []byte, log *logrus.Logger) (*State, error) {
	in := binaryCoder.NewReader(data)
	version := in.ReadUvarint()
	if in.Failed() {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, in.Err())
	}
	if version < VersionInitial || version > VersionLatest {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	sections := in.ReadUvarint()
	names := binaryCoder.ReadNameTable(in)

	st := New(log)
	numAssets := in.ReadCount(6)
	for i := 0; i < numAssets && !in.Failed(); i++ {
		var a types.AssetData
		a.PackageName = in.ReadName(names)
		a.PackagePath = in.ReadName(names)
		a.AssetName = in.ReadName(names)
		a.AssetClass = in.ReadName(names)
		numTags := in.ReadCount(2)
		tags := make(map[string]string, numTags)
		for t := 0; t < numTags && !in.Failed(); t++ {
			key := in.ReadName(names)
			tags[key] = in.ReadString()
		}
		a.Tags = types.NewTagMap(tags)
		numChunks := in.ReadCount(1)
		if numChunks > 0 {
			a.ChunkIDs = make([]int32, 0, numChunks)
		}
		for c := 0; c < numChunks && !in.Failed(); c++ {
			a.ChunkIDs = append(a.ChunkIDs, int32(in.ReadVarint()))
		}
		a.PackageFlags = types.PackageFlags(in.ReadUvarint())
		if in.Failed() {
			break
		}
		if !a.IsValid() {
			in.Fail(fmt.Errorf("%w: invalid asset record %q", ErrCorrupt, a.ObjectPath()))
			break
		}
		if _, added := st.AddAssetData(a); !added {
			in.Fail(fmt.Errorf("%w: duplicate asset %q", ErrCorrupt, a.ObjectPath()))
		}
	}

	if sections&sectionDependencies != 0 && !in.Failed() {
		numNodes := in.ReadCount(3)
		nodes := make([]*dependsGraph.Node, 0, numNodes)
		for i := 0; i < numNodes && !in.Failed(); i++ {
			id := types.AssetIdentifier{
				PackageName: in.ReadName(names),
				ObjectName:  in.ReadName(names),
				ValueName:   in.ReadName(names),
			}
			if st.graph.Find(id) != nil {
				in.Fail(fmt.Errorf("%w: duplicate node %s", ErrCorrupt, id))
				break
			}
			nodes = append(nodes, st.graph.FindOrCreate(id))
		}
		for i := 0; i < len(nodes) && !in.Failed(); i++ {
			for _, kind := range savedKinds {
				count := in.ReadCount(1)
				for e := 0; e < count && !in.Failed(); e++ {
					dep := in.ReadIndex(len(nodes))
					if !in.Failed() {
						st.graph.AddDependency(nodes[i], nodes[dep], kind)
					}
				}
			}
			// referencers are rebuilt from the edges, the stored list only gets validated
			count := in.ReadCount(1)
			for e := 0; e < count && !in.Failed(); e++ {
				in.ReadIndex(len(nodes))
			}
		}
	}

	if sections&sectionPackageData != 0 && !in.Failed() {
		numPackages := in.ReadCount(18)
		for i := 0; i < numPackages && !in.Failed(); i++ {
			name := in.ReadName(names)
			var pd types.PackageData
			pd.DiskSize = in.ReadVarint()
			pd.PackageGUID = in.ReadGUID()
			if version >= VersionContentHash {
				copy(pd.ContentHash[:], in.ReadRaw(len(pd.ContentHash)))
			}
			if !in.Failed() {
				st.SetPackageData(name, pd)
			}
		}
	}

	if in.Failed() {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, in.Err())
	}
	if in.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, in.Remaining())
	}
	log.WithFields(logrus.Fields{
		"assets":   st.NumAssets(),
		"nodes":    st.graph.Len(),
		"packages": st.NumPackageData(),
	}).Debug("Loaded registry state")
	return st, nil
}
