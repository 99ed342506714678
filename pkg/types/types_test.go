package types_test

import (
	"testing"

	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestTagMapIsCopyOnWrite(t *testing.T) {
	base := types.TagMapOf("Color", "Red", "Size", "L")
	changed := base.With("Color", "Blue").With("Alpha", "1")

	v, _ := base.Get("Color")
	assert.Equal(t, "Red", v)
	v, _ = changed.Get("Color")
	assert.Equal(t, "Blue", v)
	assert.Equal(t, []string{"Alpha", "Color", "Size"}, changed.Keys())

	assert.True(t, base.SameKeys(base.With("Size", "S")))
	assert.False(t, base.SameKeys(changed))
	assert.Equal(t, types.TagMap{}, base.Without("Color").Without("Size"))
	assert.Equal(t, types.TagMap{}, types.NewTagMap(nil))
}

func TestAssetDataDerivedFields(t *testing.T) {
	a := types.NewAssetData("/Game/Maps/Arena", "Arena", types.ClassWorld, types.TagMap{}, []int32{}, types.FlagContainsMap)
	assert.Equal(t, "/Game/Maps", a.PackagePath)
	assert.Equal(t, "/Game/Maps/Arena.Arena", a.ObjectPath())
	assert.Equal(t, types.KindMap, a.Kind())
	assert.Nil(t, a.ChunkIDs)

	r := types.NewAssetData("/Game/Old", "Old", types.ClassRedirector, types.TagMapOf(types.TagDestinationObject, "/Game/New.New"), nil, 0)
	assert.True(t, r.IsRedirector())
	assert.Equal(t, types.KindRedirector, r.Kind())

	p := types.NewAssetData("/Game/Maps/Arena", "Arena", types.ClassWorld,
		types.TagMapOf(types.TagPrimaryAssetType, "Map", types.TagPrimaryAssetName, "Arena"), nil, 0)
	id, ok := p.PrimaryAssetID()
	assert.True(t, ok)
	assert.Equal(t, "Map:Arena", id.String())
}

func TestIdentifierString(t *testing.T) {
	assert.Equal(t, "/Game/A", types.PackageIdentifier("/Game/A").String())
	id := types.AssetIdentifier{PackageName: "/Game/A", ObjectName: "Table", ValueName: "Row"}
	assert.Equal(t, "/Game/A.Table::Row", id.String())
	assert.False(t, id.IsPackage())
	assert.True(t, id.IsValue())
	assert.Negative(t, types.CompareIdentifiers(types.PackageIdentifier("/Game/A"), id))
}

func TestFilterValidity(t *testing.T) {
	assert.True(t, types.Filter{}.IsEmpty())
	f := types.Filter{PackagePaths: []string{"/Game"}, RecursivePaths: true}
	assert.False(t, f.IsValid(false))
	assert.True(t, f.IsValid(true))
	assert.False(t, types.Filter{ClassNames: []string{""}}.IsValid(true))
}

func TestDependencyTypeString(t *testing.T) {
	assert.Equal(t, "All", types.DependencyAll.String())
	assert.Equal(t, "Hard|Manage", (types.DependencyHard | types.DependencyManage).String())
	assert.Equal(t, "ContainsMap|FilterEditorOnly", (types.FlagContainsMap | types.FlagFilterEditorOnly).String())
}

func TestDependencyTypeFirst(t *testing.T) {
	assert.Equal(t, types.DependencyHard, types.DependencyAll.First())
	assert.Equal(t, types.DependencySoft, (types.DependencySoft | types.DependencyManage).First())
	assert.Equal(t, types.DependencySearchableName, types.DependencySearchableName.First())
	assert.Equal(t, types.DependencyNone, types.DependencyNone.First())
}
