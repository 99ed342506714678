package types

import (
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/i5heu/asset-registry/pkg/packageName"
)

// AssetIdentifier keys dependency graph nodes. A package identifier has only
// PackageName set; searchable names add ObjectName and ValueName.
type AssetIdentifier struct {
	PackageName string
	ObjectName  string
	ValueName   string
}

func PackageIdentifier(name string) AssetIdentifier {
	return AssetIdentifier{PackageName: name}
}

func (id AssetIdentifier) IsValid() bool {
	return id.PackageName != "" || id.ObjectName != "" || id.ValueName != ""
}

func (id AssetIdentifier) IsPackage() bool {
	return id.PackageName != "" && id.ObjectName == "" && id.ValueName == ""
}

func (id AssetIdentifier) IsValue() bool {
	return id.ValueName != ""
}

func (id AssetIdentifier) String() string {
	var b strings.Builder
	b.WriteString(id.PackageName)
	if id.ObjectName != "" {
		b.WriteByte('.')
		b.WriteString(id.ObjectName)
	}
	if id.ValueName != "" {
		b.WriteString("::")
		b.WriteString(id.ValueName)
	}
	return b.String()
}

// CompareIdentifiers orders identifiers by package, object, then value.
func CompareIdentifiers(a, b AssetIdentifier) int {
	if c := strings.Compare(a.PackageName, b.PackageName); c != 0 {
		return c
	}
	if c := strings.Compare(a.ObjectName, b.ObjectName); c != 0 {
		return c
	}
	return strings.Compare(a.ValueName, b.ValueName)
}

// AssetData describes one object inside a package.
type AssetData struct {
	PackageName  string
	PackagePath  string
	AssetName    string
	AssetClass   string
	Tags         TagMap
	ChunkIDs     []int32
	PackageFlags PackageFlags
}

// NewAssetData derives PackagePath from packageName.
func NewAssetData(pkg, assetName, assetClass string, tags TagMap, chunkIDs []int32, flags PackageFlags) AssetData {
	return AssetData{
		PackageName:  pkg,
		PackagePath:  packageName.LongPackagePath(pkg),
		AssetName:    assetName,
		AssetClass:   assetClass,
		Tags:         tags,
		ChunkIDs:     cloneChunks(chunkIDs),
		PackageFlags: flags,
	}
}

func (a AssetData) ObjectPath() string {
	return packageName.ObjectPath(a.PackageName, a.AssetName)
}

func (a AssetData) IsValid() bool {
	return a.PackageName != "" && a.AssetName != ""
}

func (a AssetData) IsRedirector() bool {
	return a.AssetClass == ClassRedirector
}

func (a AssetData) Kind() AssetKind {
	switch {
	case a.AssetClass == ClassRedirector:
		return KindRedirector
	case a.AssetClass == ClassWorld || a.PackageFlags.Has(FlagContainsMap) && a.AssetName == packageName.ShortName(a.PackageName):
		return KindMap
	}
	return KindAsset
}

func (a AssetData) TagValue(key string) (string, bool) {
	return a.Tags.Get(key)
}

func (a AssetData) HasChunk(id int32) bool {
	return slices.Contains(a.ChunkIDs, id)
}

// Clone copies the record so the result shares no mutable storage.
func (a AssetData) Clone() AssetData {
	a.ChunkIDs = cloneChunks(a.ChunkIDs)
	return a
}

func cloneChunks(ids []int32) []int32 {
	if len(ids) == 0 {
		return nil
	}
	return slices.Clone(ids)
}

func (a AssetData) Equal(o AssetData) bool {
	return a.PackageName == o.PackageName &&
		a.PackagePath == o.PackagePath &&
		a.AssetName == o.AssetName &&
		a.AssetClass == o.AssetClass &&
		a.PackageFlags == o.PackageFlags &&
		slices.Equal(a.ChunkIDs, o.ChunkIDs) &&
		a.Tags.Equal(o.Tags)
}

// PrimaryAssetID returns the (type, name) pair if the record carries one.
func (a AssetData) PrimaryAssetID() (PrimaryAssetID, bool) {
	t, ok1 := a.Tags.Get(TagPrimaryAssetType)
	n, ok2 := a.Tags.Get(TagPrimaryAssetName)
	if !ok1 || !ok2 || t == "" || n == "" {
		return PrimaryAssetID{}, false
	}
	return PrimaryAssetID{Type: t, Name: n}, true
}

type PrimaryAssetID struct {
	Type string
	Name string
}

func (p PrimaryAssetID) String() string {
	return p.Type + ":" + p.Name
}

// PackageData is per package metadata independent of the objects inside it.
type PackageData struct {
	DiskSize    int64
	PackageGUID uuid.UUID
	ContentHash Hash
}

// RegistryObject is implemented by in-memory objects the registry is told
// about through the live mutation API.
type RegistryObject interface {
	PackageName() string
	ObjectName() string
	ClassName() string
	GetRegistryTags() map[string]string
}

// PackageInfo may additionally be implemented by a RegistryObject to report
// the chunk membership and flags of its package.
type PackageInfo interface {
	ChunkIDs() []int32
	PackageFlags() PackageFlags
}

// AssetDataFromObject snapshots obj. Empty tag values are dropped.
func AssetDataFromObject(obj RegistryObject) AssetData {
	tags := obj.GetRegistryTags()
	filtered := make(map[string]string, len(tags))
	for k, v := range tags {
		if v != "" {
			filtered[k] = v
		}
	}
	var chunks []int32
	var flags PackageFlags
	if info, ok := obj.(PackageInfo); ok {
		chunks = info.ChunkIDs()
		flags = info.PackageFlags()
	}
	return NewAssetData(obj.PackageName(), obj.ObjectName(), obj.ClassName(), NewTagMap(filtered), chunks, flags)
}
