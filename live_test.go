package assetregistry

import (
	"context"
	"testing"

	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeletedPackagesAreNotResurrected(t *testing.T) {
	r, root := newRegistry(t, nil)
	writeAsset(t, root, "Meshes/Rock.uasset", "StaticMesh", types.TagMapOf("Color", "Grey"))
	searchSync(t, r)
	events := record(r)

	rock := &fakeObject{pkg: "/Game/Meshes/Rock", name: "Rock", class: "StaticMesh"}
	r.AssetDeleted(rock)
	_, ok := r.GetAssetByObjectPath("/Game/Meshes/Rock.Rock", false)
	assert.False(t, ok)
	assert.Equal(t, 1, events.count(EventAssetRemoved))
	assert.Equal(t, 1, events.count(EventInMemoryAssetDeleted))

	_, err := r.ScanPathsSynchronous(context.Background(), []string{"/Game"}, true)
	require.NoError(t, err)
	_, ok = r.GetAssetByObjectPath("/Game/Meshes/Rock.Rock", false)
	assert.False(t, ok)
	assert.Empty(t, r.GetAllAssets(true))

	r.AssetCreated(rock)
	_, ok = r.GetAssetByObjectPath("/Game/Meshes/Rock.Rock", false)
	assert.True(t, ok)
}

func TestInMemoryAssetsAndOnDiskFilter(t *testing.T) {
	r, _ := newRegistry(t, nil)
	events := record(r)

	door := &fakeObject{pkg: "/Game/Props/Door", name: "Door", class: "StaticMesh", tags: map[string]string{"Color": "Red", "Empty": ""}}
	r.AssetCreated(door)
	assert.Equal(t, 1, events.count(EventAssetAdded))
	assert.Equal(t, 1, events.count(EventInMemoryAssetCreated))

	a, ok := r.GetAssetByObjectPath("/Game/Props/Door.Door", false)
	require.True(t, ok)
	assert.Equal(t, []string{"Color"}, a.Tags.Keys())

	_, ok = r.GetAssetByObjectPath("/Game/Props/Door.Door", true)
	assert.False(t, ok)

	f := types.Filter{ClassNames: []string{"StaticMesh"}}
	got, ok := r.GetAssets(f)
	require.True(t, ok)
	assert.Equal(t, []string{"/Game/Props/Door.Door"}, objectPaths(got))

	f.IncludeOnlyOnDiskAssets = true
	got, ok = r.GetAssets(f)
	require.True(t, ok)
	assert.Empty(t, got)

	assert.Contains(t, r.GetAllCachedPaths(), "/Game/Props")
}

func TestAssetRenamed(t *testing.T) {
	r, _ := newRegistry(t, nil)
	obj := &fakeObject{pkg: "/Game/Props/Door", name: "Door", class: "StaticMesh"}
	r.AssetCreated(obj)
	events := record(r)

	obj.pkg, obj.name = "/Game/Moved/Gate", "Gate"
	r.AssetRenamed(obj, "/Game/Props/Door.Door")

	renamed := events.ofKind(EventAssetRenamed)
	require.Len(t, renamed, 1)
	assert.Equal(t, "/Game/Props/Door.Door", renamed[0].OldObjectPath)
	assert.Equal(t, "/Game/Moved/Gate.Gate", renamed[0].Asset.ObjectPath())

	assert.Equal(t, []string{"/Game/Moved/Gate.Gate"}, objectPaths(r.GetAllAssets(false)))
	moved, ok := r.GetAssetByObjectPath("/Game/Moved/Gate.Gate", false)
	require.True(t, ok)
	assert.Equal(t, "/Game/Moved", moved.PackagePath)
	assert.Contains(t, r.GetAllCachedPaths(), "/Game/Moved")
	require.NoError(t, r.Validate())
}

func TestPackageDeleted(t *testing.T) {
	r, root := newRegistry(t, nil)
	writeAsset(t, root, "Meshes/Rock.uasset", "StaticMesh", types.TagMap{}, "/Game/Shared/Common")
	searchSync(t, r)

	r.PackageDeleted("/Game/Meshes/Rock")
	assert.Empty(t, r.GetAllAssets(false))
	_, ok := r.GetPackageData("/Game/Meshes/Rock")
	assert.False(t, ok)
	refs, _ := r.GetPackageReferencers("/Game/Shared/Common", types.DependencyAll)
	assert.Empty(t, refs)
}

func TestLoadedAssetsRefreshTags(t *testing.T) {
	r, root := newRegistry(t, nil)
	writeAsset(t, root, "Rock.uasset", "StaticMesh", types.TagMapOf("Color", "Grey"))
	writeAsset(t, root, "Oak.uasset", "StaticMesh", types.TagMapOf("Color", "Green"))
	searchSync(t, r)

	r.OnAssetLoaded(&fakeObject{pkg: "/Game/Rock", name: "Rock", class: "StaticMesh", tags: map[string]string{"Color": "Black"}})
	r.OnAssetLoaded(&fakeObject{pkg: "/Game/Oak", name: "Oak", class: "StaticMesh", tags: map[string]string{"Color": "White"}, dirty: true})
	r.OnAssetLoaded(&fakeObject{pkg: "/Game/Ghost", name: "Ghost", class: "StaticMesh"})
	r.Tick(context.Background(), -1)

	rock, ok := r.GetAssetByObjectPath("/Game/Rock.Rock", true)
	require.True(t, ok)
	color, _ := rock.TagValue("Color")
	assert.Equal(t, "Black", color)

	oak, ok := r.GetAssetByObjectPath("/Game/Oak.Oak", true)
	require.True(t, ok)
	color, _ = oak.TagValue("Color")
	assert.Equal(t, "Green", color)

	r.mu.Lock()
	assert.Len(t, r.loadedWithoutCachedData, 1)
	r.mu.Unlock()

	r.OnAssetUnloaded(&fakeObject{pkg: "/Game/Ghost", name: "Ghost"})
	r.mu.Lock()
	assert.Empty(t, r.loadedWithoutCachedData)
	r.mu.Unlock()
}

func TestEditSearchableName(t *testing.T) {
	r, _ := newRegistry(t, nil)

	var calls []string
	r.OnEditSearchableName("/Game/Data", "", func(types.AssetIdentifier) bool {
		calls = append(calls, "package")
		return true
	})
	unregister := r.OnEditSearchableName("/Game/Data", "Table", func(types.AssetIdentifier) bool {
		calls = append(calls, "object")
		return false
	})

	id := types.AssetIdentifier{PackageName: "/Game/Data", ObjectName: "Table", ValueName: "Row"}
	assert.True(t, r.EditSearchableName(id))
	assert.Equal(t, []string{"object", "package"}, calls)

	unregister()
	calls = nil
	assert.True(t, r.EditSearchableName(id))
	assert.Equal(t, []string{"package"}, calls)

	assert.False(t, r.EditSearchableName(types.AssetIdentifier{PackageName: "/Game/Other", ObjectName: "Table"}))
}
