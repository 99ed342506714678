// Package packageReader extracts registry data from content files without
// loading the objects inside them: the tag table of each exported object,
// the packages a file imports and the class hierarchy it declares.
package packageReader

import (
	"errors"

	"github.com/google/uuid"
	"github.com/i5heu/asset-registry/pkg/types"
)

// PackageFileTag opens every content file.
const PackageFileTag uint32 = 0x9E2A83C1

// File versions. Each one adds a feature to the format.
const (
	VersionInitial           = 1
	VersionAssetRegistryTags = 2
	VersionPublicWorlds      = 3
	VersionSearchableNames   = 4

	VersionMinimum = VersionInitial
	VersionLatest  = VersionSearchableNames
)

var (
	CustomVersionEditorObject    = uuid.MustParse("e4b068ed-f494-42e9-a231-da0b2e46bb41")
	CustomVersionRenderingObject = uuid.MustParse("12f88b9f-8875-4afc-a67c-d90c383abd29")
	CustomVersionAnimation       = uuid.MustParse("b7d8c1a3-6f5e-4d2c-9a1b-0e3f4a5b6c7d")
)

// LatestCustomVersions is the newest version of every subsystem this reader
// understands.
var LatestCustomVersions = map[uuid.UUID]int{
	CustomVersionEditorObject:    3,
	CustomVersionRenderingObject: 2,
	CustomVersionAnimation:       1,
}

var (
	ErrBadMagic             = errors.New("packageReader: bad package file tag")
	ErrVersionTooOld        = errors.New("packageReader: package file version too old")
	ErrVersionTooNew        = errors.New("packageReader: package file version too new")
	ErrUnknownCustomVersion = errors.New("packageReader: unknown custom version")
	ErrCustomVersionTooNew  = errors.New("packageReader: custom version too new")
	ErrMalformed            = errors.New("packageReader: malformed package file")
)

// PackageIndex points into the import table (negative), the export table
// (positive) or nowhere (zero).
type PackageIndex int32

func ImportIndex(i int) PackageIndex { return PackageIndex(-i - 1) }
func ExportIndex(i int) PackageIndex { return PackageIndex(i + 1) }

func (p PackageIndex) IsNull() bool   { return p == 0 }
func (p PackageIndex) IsImport() bool { return p < 0 }
func (p PackageIndex) IsExport() bool { return p > 0 }
func (p PackageIndex) Import() int    { return int(-p - 1) }
func (p PackageIndex) Export() int    { return int(p - 1) }

type CustomVersion struct {
	Key     uuid.UUID
	Version int
}

// Import references an object of another package. An import without outer
// is the package itself.
type Import struct {
	ClassPackage string
	ClassName    string
	OuterIndex   PackageIndex
	ObjectName   string
}

type Export struct {
	ClassIndex PackageIndex
	SuperIndex PackageIndex
	OuterIndex PackageIndex
	ObjectName string
	Public     bool
}

// ObjectTags is one entry of the asset registry tag table.
type ObjectTags struct {
	ObjectPath string
	ClassName  string
	Tags       types.TagMap
}

// SearchableNames lists the names an object of this or another package
// references by value.
type SearchableNames struct {
	Object PackageIndex
	Names  []string
}

// Package is the in-memory form of a content file's tables.
type Package struct {
	FileVersion    int
	CustomVersions []CustomVersion
	PackageFlags   types.PackageFlags
	PackageGUID    uuid.UUID
	ChunkIDs       []int32

	Imports               []Import
	Exports               []Export
	SoftPackageReferences []string
	SearchableNames       []SearchableNames
	AssetRegistryData     []ObjectTags
}
