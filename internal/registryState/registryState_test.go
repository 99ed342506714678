package registryState

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/i5heu/asset-registry/internal/binaryCoder"
	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState() *State { return New(logging.Discard()) }

func asset(pkg, name, class string, kv ...string) types.AssetData {
	return types.NewAssetData(pkg, name, class, types.TagMapOf(kv...), nil, 0)
}

func objectPaths(assets []types.AssetData) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.ObjectPath()
	}
	return out
}

func pkgID(name string) types.AssetIdentifier { return types.PackageIdentifier(name) }

func link(s *State, from, to string, kind types.DependencyType) {
	s.graph.AddDependency(s.CreateOrFindDependsNode(pkgID(from)), s.CreateOrFindDependsNode(pkgID(to)), kind)
}

func TestAddAssetDataPopulatesEveryIndex(t *testing.T) {
	s := newState()
	a := asset("/Game/Foo", "Foo", "StaticMesh", "Color", "Red", "LODs", "3")
	h, ok := s.AddAssetData(a)
	require.True(t, ok)
	require.NoError(t, s.Validate())

	assert.Equal(t, []types.AssetData{a}, s.GetAssetsByPackageName("/Game/Foo"))
	assert.Equal(t, []types.AssetData{a}, s.GetAssetsByPath("/Game"))
	assert.Equal(t, []types.AssetData{a}, s.GetAssetsByClassName("StaticMesh"))
	assert.Equal(t, []types.AssetData{a}, s.GetAssetsByTagName("Color"))
	assert.Equal(t, []types.AssetData{a}, s.GetAssetsByTagName("LODs"))

	for _, f := range []types.Filter{
		{PackageNames: []string{"/Game/Foo"}},
		{PackagePaths: []string{"/Game"}},
		{ObjectPaths: []string{"/Game/Foo.Foo"}},
		{ClassNames: []string{"StaticMesh"}},
		types.Filter{}.WithTag("LODs", "3"),
	} {
		got, ok := s.GetAssets(f, nil)
		require.True(t, ok)
		assert.Equal(t, []string{"/Game/Foo.Foo"}, objectPaths(got))
	}

	dup, added := s.AddAssetData(asset("/Game/Foo", "Foo", "Texture"))
	assert.False(t, added)
	assert.Equal(t, h, dup)
	assert.Equal(t, 1, s.NumAssets())
}

func TestUpdateTagValuesKeepsBuckets(t *testing.T) {
	s := newState()
	h, _ := s.AddAssetData(asset("/Game/Foo", "Foo", "StaticMesh", "Color", "Red"))
	before := s.HandlesByPackageName("/Game/Foo")
	colorBucket := append([]Handle(nil), s.byTag["Color"]...)

	require.True(t, s.UpdateAssetData(h, asset("/Game/Foo", "Foo", "StaticMesh", "Color", "Blue")))
	require.NoError(t, s.Validate())

	assert.Equal(t, before, s.HandlesByPackageName("/Game/Foo"))
	assert.Equal(t, colorBucket, s.byTag["Color"])
	got, ok := s.Get(h)
	require.True(t, ok)
	v, _ := got.TagValue("Color")
	assert.Equal(t, "Blue", v)
}

func TestUpdateRehomesChangedKeys(t *testing.T) {
	s := newState()
	h, _ := s.AddAssetData(asset("/Game/Foo", "Foo", "StaticMesh", "Color", "Red"))
	require.True(t, s.UpdateAssetData(h, asset("/Game/Props/Foo", "Foo", "SkeletalMesh", "Size", "L")))
	require.NoError(t, s.Validate())

	assert.Empty(t, s.GetAssetsByClassName("StaticMesh"))
	assert.Empty(t, s.GetAssetsByTagName("Color"))
	assert.Empty(t, s.GetAssetsByPath("/Game"))
	assert.Len(t, s.GetAssetsByPath("/Game/Props"), 1)
	_, found := s.GetAssetByObjectPath("/Game/Foo.Foo")
	assert.False(t, found)
	h2, found := s.Lookup("/Game/Props/Foo.Foo")
	assert.True(t, found)
	assert.Equal(t, h, h2)
}

func TestUpdateMovingLastRecordReleasesOldPackage(t *testing.T) {
	s := newState()
	h, _ := s.AddAssetData(asset("/Game/Foo", "Foo", "StaticMesh"))
	s.AddAssetData(asset("/Game/Bar", "Bar", "StaticMesh"))
	link(s, "/Game/Bar", "/Game/Foo", types.DependencyHard)
	s.SetPackageData("/Game/Foo", types.PackageData{DiskSize: 10})

	require.True(t, s.UpdateAssetData(h, asset("/Game/Props/Foo", "Foo", "StaticMesh")))
	require.NoError(t, s.Validate())

	assert.Nil(t, s.FindDependsNode(pkgID("/Game/Foo")))
	_, hasData := s.GetPackageData("/Game/Foo")
	assert.False(t, hasData)
	deps, ok := s.GetDependencies(pkgID("/Game/Bar"), types.DependencyAll)
	assert.True(t, ok)
	assert.Empty(t, deps)
}

func TestUpdateKeepsOldPackageWithSiblings(t *testing.T) {
	s := newState()
	h, _ := s.AddAssetData(asset("/Game/Foo", "Foo", "StaticMesh"))
	s.AddAssetData(asset("/Game/Foo", "Foo_Extra", "Material"))
	s.SetPackageData("/Game/Foo", types.PackageData{DiskSize: 10})
	s.CreateOrFindDependsNode(pkgID("/Game/Foo"))

	require.True(t, s.UpdateAssetData(h, asset("/Game/Props/Foo", "Foo", "StaticMesh")))
	assert.NotNil(t, s.FindDependsNode(pkgID("/Game/Foo")))
	_, hasData := s.GetPackageData("/Game/Foo")
	assert.True(t, hasData)
}

func TestRemoveAssetDataDropsPackageNodeWithLastRecord(t *testing.T) {
	s := newState()
	h1, _ := s.AddAssetData(asset("/Game/Foo", "Foo", "StaticMesh"))
	h2, _ := s.AddAssetData(asset("/Game/Foo", "Foo_Extra", "Material"))
	s.AddAssetData(asset("/Game/Bar", "Bar", "StaticMesh"))
	link(s, "/Game/Bar", "/Game/Foo", types.DependencyHard)
	s.SetPackageData("/Game/Foo", types.PackageData{DiskSize: 10})

	require.True(t, s.RemoveAssetData(h1, true))
	_, found := s.GetAssetByObjectPath("/Game/Foo.Foo")
	assert.False(t, found)
	assert.NotNil(t, s.FindDependsNode(pkgID("/Game/Foo")), "sibling record still present")

	require.True(t, s.RemoveAssetData(h2, true))
	assert.Nil(t, s.FindDependsNode(pkgID("/Game/Foo")))
	_, hasData := s.GetPackageData("/Game/Foo")
	assert.False(t, hasData)
	assert.False(t, s.RemoveAssetData(h2, true), "stale handle")
	require.NoError(t, s.Validate())

	deps, ok := s.GetDependencies(pkgID("/Game/Bar"), types.DependencyAll)
	assert.True(t, ok)
	assert.Empty(t, deps)
}

func TestHandlesAreGenerationChecked(t *testing.T) {
	s := newState()
	h, _ := s.AddAssetData(asset("/Game/A", "A", "Texture"))
	s.RemoveAssetData(h, false)
	h2, _ := s.AddAssetData(asset("/Game/B", "B", "Texture"))
	assert.Equal(t, h.index, h2.index)
	_, ok := s.Get(h)
	assert.False(t, ok)
	_, ok = s.Get(h2)
	assert.True(t, ok)
}

func TestGetAssetsIntersectsDimensions(t *testing.T) {
	s := newState()
	s.AddAssetData(asset("/Game/Meshes/Rock", "Rock", "StaticMesh", "Color", "Grey"))
	s.AddAssetData(asset("/Game/Meshes/Tree", "Tree", "StaticMesh", "Color", "Green"))
	s.AddAssetData(asset("/Game/Meshes/Hero", "Hero", "SkeletalMesh", "Color", "Red"))
	s.AddAssetData(asset("/Game/Props/Crate", "Crate", "StaticMesh", "Color", "Red"))
	s.AddAssetData(asset("/Game/Props/Lamp", "Lamp", "Light"))

	byPath, _ := s.GetAssets(types.Filter{PackagePaths: []string{"/Game/Meshes"}}, nil)
	byClass, _ := s.GetAssets(types.Filter{ClassNames: []string{"StaticMesh"}}, nil)
	byTags, _ := s.GetAssets(types.Filter{}.WithTag("Color", "Red").WithTag("Color", "Grey"), nil)

	both, ok := s.GetAssets(types.Filter{PackagePaths: []string{"/Game/Meshes"}, ClassNames: []string{"StaticMesh"}}, nil)
	require.True(t, ok)
	assert.Equal(t, intersect(objectPaths(byPath), objectPaths(byClass)), objectPaths(both))
	assert.Equal(t, []string{"/Game/Meshes/Rock.Rock", "/Game/Meshes/Tree.Tree"}, objectPaths(both))

	classAndTag, ok := s.GetAssets(types.Filter{ClassNames: []string{"StaticMesh"}}.WithTag("Color", "Red").WithTag("Color", "Grey"), nil)
	require.True(t, ok)
	assert.Equal(t, intersect(objectPaths(byClass), objectPaths(byTags)), objectPaths(classAndTag))
	assert.Equal(t, []string{"/Game/Meshes/Rock.Rock", "/Game/Props/Crate.Crate"}, objectPaths(classAndTag))

	excluded, _ := s.GetAssets(types.Filter{ClassNames: []string{"StaticMesh"}}, map[string]struct{}{"/Game/Props/Crate": {}})
	assert.NotContains(t, objectPaths(excluded), "/Game/Props/Crate.Crate")

	anyColor, _ := s.GetAssets(types.Filter{TagsAndValues: []types.TagValue{{Tag: "Color", AnyValue: true}}}, nil)
	assert.Len(t, anyColor, 4)
}

func intersect(a, b []string) []string {
	in := map[string]bool{}
	for _, x := range b {
		in[x] = true
	}
	var out []string
	for _, x := range a {
		if in[x] {
			out = append(out, x)
		}
	}
	return out
}

func TestGetAssetsRejectsMisuse(t *testing.T) {
	s := newState()
	s.AddAssetData(asset("/Game/Foo", "Foo", "StaticMesh"))

	for name, f := range map[string]types.Filter{
		"empty":          {},
		"empty name":     {ClassNames: []string{"StaticMesh", ""}},
		"empty tag":      types.Filter{}.WithTag("", "x"),
		"recursive path": {PackagePaths: []string{"/Game"}, RecursivePaths: true},
	} {
		got, ok := s.GetAssets(f, nil)
		assert.False(t, ok, name)
		assert.Nil(t, got, name)
	}
}

func TestConcreteScenario(t *testing.T) {
	s := newState()
	guid := uuid.New()
	s.SetPackageData("/Game/Foo", types.PackageData{DiskSize: 100, PackageGUID: guid})
	s.AddAssetData(asset("/Game/Foo", "Foo", "StaticMesh", "Color", "Red"))

	red, ok := s.GetAssets(types.Filter{ClassNames: []string{"StaticMesh"}}.WithTag("Color", "Red"), nil)
	require.True(t, ok)
	require.Len(t, red, 1)
	assert.Equal(t, "/Game/Foo", red[0].PackageName)
	assert.Equal(t, "/Game", red[0].PackagePath)
	assert.Equal(t, "Foo", red[0].AssetName)

	blue, ok := s.GetAssets(types.Filter{}.WithTag("Color", "Blue"), nil)
	require.True(t, ok)
	assert.Empty(t, blue)

	pd, ok := s.GetPackageData("/Game/Foo")
	require.True(t, ok)
	assert.Equal(t, int64(100), pd.DiskSize)
	assert.Equal(t, guid, pd.PackageGUID)
}

func populated(t *testing.T) *State {
	t.Helper()
	s := newState()
	s.AddAssetData(types.NewAssetData("/Game/A", "A", "Blueprint", types.TagMapOf("ParentClass", "Actor"), []int32{1, 2}, types.FlagFilterEditorOnly))
	s.AddAssetData(asset("/Game/B", "B", "StaticMesh", "Color", "Red"))
	s.AddAssetData(asset("/Game/C", "C", "Texture"))
	link(s, "/Game/A", "/Game/B", types.DependencyHard)
	link(s, "/Game/A", "/Game/C", types.DependencySoft)
	link(s, "/Game/B", "/Game/C", types.DependencyHard)

	name := types.AssetIdentifier{PackageName: "/Game/C", ObjectName: "C", ValueName: "RowName"}
	s.graph.AddDependency(s.CreateOrFindDependsNode(pkgID("/Game/A")), s.CreateOrFindDependsNode(name), types.DependencySearchableName)
	manager := types.AssetIdentifier{PackageName: "PrimaryAssetId", ObjectName: "Map:Arena"}
	s.graph.AddDependency(s.CreateOrFindDependsNode(manager), s.CreateOrFindDependsNode(pkgID("/Game/B")), types.DependencyManage)

	s.SetPackageData("/Game/A", types.PackageData{DiskSize: 10, PackageGUID: uuid.New()})
	s.SetPackageData("/Game/B", types.PackageData{DiskSize: 20})
	require.NoError(t, s.Validate())
	return s
}

type edgeSet map[[3]string]bool

func edges(s *State) edgeSet {
	out := edgeSet{}
	for _, n := range s.graph.Nodes() {
		for _, kind := range types.DependencyKinds {
			for _, dep := range n.Dependencies(kind) {
				out[[3]string{n.Identifier().String(), kind.String(), dep.Identifier().String()}] = true
			}
		}
	}
	return out
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src := populated(t)
	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf, FullOptions()))

	dst := newState()
	require.NoError(t, dst.Load(&buf))
	require.NoError(t, dst.Validate())

	assert.Equal(t, src.GetAllAssets(nil), dst.GetAllAssets(nil))
	assert.Equal(t, edges(src), edges(dst))
	for _, name := range src.PackageDataNames() {
		want, _ := src.GetPackageData(name)
		got, ok := dst.GetPackageData(name)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestSaveWithoutDependencies(t *testing.T) {
	src := populated(t)
	opts := FullOptions()
	opts.SerializeDependencies = false

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf, opts))
	dst := newState()
	require.NoError(t, dst.Load(&buf))

	assert.Equal(t, 0, dst.NumDependsNodes())
	assert.Equal(t, src.GetAllAssets(nil), dst.GetAllAssets(nil))
}

func TestSaveWithoutNameAndManageEdges(t *testing.T) {
	src := populated(t)
	opts := FullOptions()
	opts.SerializeSearchableNameDependencies = false
	opts.SerializeManageDependencies = false

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf, opts))
	dst := newState()
	require.NoError(t, dst.Load(&buf))
	require.NoError(t, dst.Validate())

	for e := range edges(dst) {
		assert.NotEqual(t, "SearchableName", e[1])
		assert.NotEqual(t, "Manage", e[1])
	}
	assert.Len(t, edges(dst), 3)
}

func TestLoadRejectsOutOfRangeIndex(t *testing.T) {
	w := binaryCoder.NewWriter()
	w.WriteUvarint(VersionLatest)
	w.WriteUvarint(0)
	names := binaryCoder.NewNameTable()
	names.Add("/Game/A")
	names.Write(w)
	w.WriteCount(1)
	w.WriteUvarint(1)
	w.WriteUvarint(42)
	w.WriteUvarint(1)
	w.WriteUvarint(1)
	w.WriteCount(0)
	w.WriteCount(0)
	w.WriteUvarint(0)

	dst := populated(t)
	before := dst.GetAllAssets(nil)
	err := dst.Load(bytes.NewReader(w.Bytes()))
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "index out of range")
	assert.Equal(t, before, dst.GetAllAssets(nil), "failed load leaves state untouched")
}

func TestLoadRejectsFutureVersion(t *testing.T) {
	w := binaryCoder.NewWriter()
	w.WriteUvarint(VersionLatest + 1)
	err := newState().Load(bytes.NewReader(w.Bytes()))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestSaveFileCompressed(t *testing.T) {
	src := populated(t)
	dir := t.TempDir()
	for _, name := range []string{"registry.bin", "registry.bin.xz", "registry.bin.zst"} {
		path := filepath.Join(dir, name)
		require.NoError(t, src.SaveFile(path, FullOptions()))
		dst := newState()
		require.NoError(t, dst.LoadFile(path))
		assert.Equal(t, src.GetAllAssets(nil), dst.GetAllAssets(nil), name)
		assert.Equal(t, edges(src), edges(dst), name)
	}
}

func TestPruneAssetData(t *testing.T) {
	s := populated(t)
	s.PruneAssetData(map[string]struct{}{"/Game/A": {}}, nil, false)
	require.NoError(t, s.Validate())

	assert.Equal(t, []string{"/Game/A.A"}, objectPaths(s.GetAllAssets(nil)))
	assert.NotNil(t, s.FindDependsNode(pkgID("/Game/B")), "B keeps its referencer A")
	assert.NotNil(t, s.FindDependsNode(pkgID("/Game/C")))
	_, hasB := s.GetPackageData("/Game/B")
	assert.False(t, hasB)
	_, hasA := s.GetPackageData("/Game/A")
	assert.True(t, hasA)

	s.PruneAssetData(nil, map[string]struct{}{"/Game/A": {}}, false)
	assert.Equal(t, 0, s.NumAssets())
	assert.NotNil(t, s.FindDependsNode(pkgID("/Game/A")), "edges survive record pruning")
}

func TestPruneRemovesOnlyUnconnectedNodes(t *testing.T) {
	s := newState()
	s.AddAssetData(asset("/Game/Keep", "Keep", "Texture", "Size", "1"))
	s.AddAssetData(asset("/Game/Lonely", "Lonely", "Texture"))
	s.CreateOrFindDependsNode(pkgID("/Game/Keep"))
	s.CreateOrFindDependsNode(pkgID("/Game/Lonely"))
	s.CreateOrFindDependsNode(pkgID("/Game/Ghost"))

	s.PruneAssetData(nil, nil, true)
	assert.Equal(t, []string{"/Game/Keep.Keep"}, objectPaths(s.GetAllAssets(nil)))
	assert.NotNil(t, s.FindDependsNode(pkgID("/Game/Keep")))
	assert.Nil(t, s.FindDependsNode(pkgID("/Game/Lonely")))
	assert.Nil(t, s.FindDependsNode(pkgID("/Game/Ghost")))
}

func TestInitializeFromExistingFiltersTags(t *testing.T) {
	src := newState()
	src.AddAssetData(asset("/Game/A", "A", "StaticMesh", "Color", "Red", "Secret", "x", "LODs", "2"))
	src.AddAssetData(asset("/Game/B", "B", "Texture", "Secret", "y"))
	src.AddAssetData(asset("/Game/Empty", "Empty", "Texture"))

	opts := FullOptions()
	opts.FilterAssetDataWithNoTags = true
	opts.AddTagFilter(Wildcard, "Secret")
	opts.AddTagFilter("StaticMesh", "LODs")

	dst := newState()
	dst.InitializeFromExisting(src, opts, false)
	a, ok := dst.GetAssetByObjectPath("/Game/A.A")
	require.True(t, ok)
	assert.Equal(t, []string{"Color"}, a.Tags.Keys())
	b, ok := dst.GetAssetByObjectPath("/Game/B.B")
	require.True(t, ok)
	assert.Equal(t, 0, b.Tags.Len())
	_, ok = dst.GetAssetByObjectPath("/Game/Empty.Empty")
	assert.False(t, ok)

	allow := FullOptions()
	allow.UseTagAllowList = true
	allow.AddTagFilter("StaticMesh", Wildcard)
	dst2 := newState()
	dst2.InitializeFromExisting(src, allow, false)
	a2, _ := dst2.GetAssetByObjectPath("/Game/A.A")
	b2, _ := dst2.GetAssetByObjectPath("/Game/B.B")
	assert.Equal(t, 3, a2.Tags.Len())
	assert.Equal(t, 0, b2.Tags.Len())
}

func TestInitializeFromExistingRefreshKeepsHandles(t *testing.T) {
	src := newState()
	src.AddAssetData(asset("/Game/A", "A", "StaticMesh", "Color", "Blue"))
	src.AddAssetData(asset("/Game/New", "New", "StaticMesh"))

	dst := newState()
	h, _ := dst.AddAssetData(asset("/Game/A", "A", "StaticMesh", "Color", "Red"))
	dst.InitializeFromExisting(src, FullOptions(), true)

	got, ok := dst.Get(h)
	require.True(t, ok)
	v, _ := got.TagValue("Color")
	assert.Equal(t, "Blue", v)
	_, ok = dst.GetAssetByObjectPath("/Game/New.New")
	assert.False(t, ok, "refresh never adds")
}

func TestResolveRedirectorThroughState(t *testing.T) {
	s := newState()
	s.AddAssetData(asset("/Game/Old", "Old", types.ClassRedirector))
	s.AddAssetData(asset("/Game/Older", "Older", types.ClassRedirector))
	s.AddAssetData(asset("/Game/Real", "Real", "StaticMesh"))
	s.AddAssetData(asset("/Game/User", "User", "Blueprint"))
	link(s, "/Game/User", "/Game/Older", types.DependencyHard)
	link(s, "/Game/Older", "/Game/Old", types.DependencyHard)
	link(s, "/Game/Old", "/Game/Real", types.DependencyHard)

	got, ok := s.ResolveRedirector(pkgID("/Game/Older"))
	require.True(t, ok)
	assert.Equal(t, pkgID("/Game/Real"), got)

	opts := FullOptions()
	opts.ResolveRedirectors = true
	var buf bytes.Buffer
	require.NoError(t, s.Save(&buf, opts))
	dst := newState()
	require.NoError(t, dst.Load(&buf))
	deps, _ := dst.GetDependencies(pkgID("/Game/User"), types.DependencyHard)
	assert.Equal(t, []types.AssetIdentifier{pkgID("/Game/Real")}, deps)
}
