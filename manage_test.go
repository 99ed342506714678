package assetregistry

import (
	"testing"

	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	managerOne = types.AssetIdentifier{PackageName: "/Game/Labels/One", ObjectName: "One"}
	managerTwo = types.AssetIdentifier{PackageName: "/Game/Labels/Two", ObjectName: "Two"}
	arena      = types.PackageIdentifier("/Game/Arena")
	rock       = types.PackageIdentifier("/Game/Rock")
	common     = types.PackageIdentifier("/Game/Shared/Common")
)

func newManageFixture(t *testing.T) *AssetRegistry {
	t.Helper()
	r, root := newRegistry(t, nil)
	writeAsset(t, root, "Arena.umap", "World", types.TagMap{}, "/Game/Rock")
	writeAsset(t, root, "Rock.uasset", "StaticMesh", types.TagMap{}, "/Game/Shared/Common")
	searchSync(t, r)
	return r
}

func managedBy(t *testing.T, r *AssetRegistry, manager types.AssetIdentifier) []types.AssetIdentifier {
	t.Helper()
	ids, ok := r.GetDependencies(manager, types.DependencyManage)
	require.True(t, ok)
	return ids
}

func recurseAlways(_, _, _ types.AssetIdentifier, _ types.DependencyType, _ SetManagerFlags) SetManagerResult {
	return SetAndRecurse
}

func TestSetManageReferencesRecurses(t *testing.T) {
	r := newManageFixture(t)

	r.SetManageReferences([]ManagerPair{{Manager: managerOne, Managed: arena}}, false, types.DependencyHard, recurseAlways)
	assert.ElementsMatch(t, []types.AssetIdentifier{arena, rock, common}, managedBy(t, r, managerOne))

	refs, ok := r.GetReferencers(common, types.DependencyManage)
	require.True(t, ok)
	assert.Equal(t, []types.AssetIdentifier{managerOne}, refs)

	// decoded edges survive the manage pass
	deps, _ := r.GetPackageDependencies("/Game/Arena", types.DependencyHard)
	assert.Equal(t, []string{"/Game/Rock"}, deps)
}

func TestSetManageReferencesDefaultDoesNotRecurse(t *testing.T) {
	r := newManageFixture(t)

	r.SetManageReferences([]ManagerPair{{Manager: managerOne, Managed: arena}}, false, types.DependencyHard, nil)
	assert.Equal(t, []types.AssetIdentifier{arena}, managedBy(t, r, managerOne))
}

func TestSetManageReferencesClearExisting(t *testing.T) {
	r := newManageFixture(t)
	r.SetManageReferences([]ManagerPair{{Manager: managerOne, Managed: arena}}, false, types.DependencyHard, recurseAlways)

	seen := make(map[types.AssetIdentifier]SetManagerFlags)
	r.SetManageReferences([]ManagerPair{{Manager: managerTwo, Managed: arena}}, true, types.DependencyHard,
		func(_, _, target types.AssetIdentifier, _ types.DependencyType, flags SetManagerFlags) SetManagerResult {
			seen[target] = flags
			return SetButDoNotRecurse
		})

	require.Contains(t, seen, arena)
	assert.True(t, seen[arena].IsDirectSet)
	assert.False(t, seen[arena].TargetHasExistingManager)
	assert.False(t, seen[arena].TargetHasDirectManager)

	assert.Empty(t, managedBy(t, r, managerOne))
	assert.Equal(t, []types.AssetIdentifier{arena}, managedBy(t, r, managerTwo))
}

func firstWriterWins(_, _, _ types.AssetIdentifier, _ types.DependencyType, flags SetManagerFlags) SetManagerResult {
	if flags.TargetHasExistingManager && !flags.IsDirectSet {
		return DoNotSet
	}
	return SetAndRecurse
}

func TestSetManageReferencesExistingManagers(t *testing.T) {
	r := newManageFixture(t)
	r.SetManageReferences([]ManagerPair{{Manager: managerOne, Managed: arena}}, false, types.DependencyHard, recurseAlways)

	r.SetManageReferences([]ManagerPair{{Manager: managerTwo, Managed: arena}}, false, types.DependencyHard, firstWriterWins)
	assert.Equal(t, []types.AssetIdentifier{arena}, managedBy(t, r, managerTwo))
	assert.ElementsMatch(t, []types.AssetIdentifier{arena, rock, common}, managedBy(t, r, managerOne))

	// cleared edges no longer count as existing managers
	r.SetManageReferences([]ManagerPair{{Manager: managerTwo, Managed: arena}}, true, types.DependencyHard, firstWriterWins)
	assert.ElementsMatch(t, []types.AssetIdentifier{arena, rock, common}, managedBy(t, r, managerTwo))
	assert.Empty(t, managedBy(t, r, managerOne))

	refs, ok := r.GetReferencers(rock, types.DependencyManage)
	require.True(t, ok)
	assert.Equal(t, []types.AssetIdentifier{managerTwo}, refs)
}

func TestSetManageReferencesPassesSingleKind(t *testing.T) {
	r := newManageFixture(t)
	graph := r.state.Graph()
	graph.AddDependency(r.state.FindDependsNode(arena), r.state.FindDependsNode(rock), types.DependencySoft)

	kinds := make(map[types.AssetIdentifier]types.DependencyType)
	r.SetManageReferences([]ManagerPair{{Manager: managerOne, Managed: arena}}, false, types.DependencyPackages,
		func(_, _, target types.AssetIdentifier, kind types.DependencyType, _ SetManagerFlags) SetManagerResult {
			kinds[target] = kind
			return SetAndRecurse
		})

	assert.Equal(t, map[types.AssetIdentifier]types.DependencyType{
		arena:  types.DependencyManage,
		rock:   types.DependencyHard,
		common: types.DependencyHard,
	}, kinds)
}

func TestSetManageReferencesStopsAtDirectManagers(t *testing.T) {
	r := newManageFixture(t)

	r.SetManageReferences([]ManagerPair{
		{Manager: managerOne, Managed: arena},
		{Manager: managerTwo, Managed: rock},
	}, false, types.DependencyHard,
		func(_, _, _ types.AssetIdentifier, _ types.DependencyType, flags SetManagerFlags) SetManagerResult {
			if flags.TargetHasDirectManager {
				return DoNotSet
			}
			return SetAndRecurse
		})

	assert.Equal(t, []types.AssetIdentifier{arena}, managedBy(t, r, managerOne))
	assert.ElementsMatch(t, []types.AssetIdentifier{common, rock}, managedBy(t, r, managerTwo))
}

func TestSetManageReferencesSkipsUnknownTargets(t *testing.T) {
	r := newManageFixture(t)

	r.SetManageReferences([]ManagerPair{{Manager: managerOne, Managed: types.PackageIdentifier("/Game/Nowhere")}}, false, types.DependencyHard, nil)
	_, ok := r.GetDependencies(managerOne, types.DependencyManage)
	assert.False(t, ok)
}

func TestSetPrimaryAssetIDForObjectPath(t *testing.T) {
	r := newManageFixture(t)
	id := types.PrimaryAssetID{Type: "Map", Name: "Arena"}

	assert.True(t, r.SetPrimaryAssetIDForObjectPath(id, "/Game/Arena.Arena"))
	a, ok := r.GetAssetByObjectPath("/Game/Arena.Arena", true)
	require.True(t, ok)
	got, ok := a.PrimaryAssetID()
	require.True(t, ok)
	assert.Equal(t, id, got)

	assert.False(t, r.SetPrimaryAssetIDForObjectPath(id, "/Game/Missing.Missing"))
}
