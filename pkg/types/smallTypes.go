package types

import (
	"encoding/hex"
	"strings"
)

// Hash is a SHA-512 sized content fingerprint.
type Hash [64]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// PackageFlags is a bitmask stored per package and copied onto each record.
type PackageFlags uint32

const (
	FlagNewlyCreated PackageFlags = 1 << iota
	FlagCompiledIn
	FlagContainsMap
	FlagFilterEditorOnly
)

func (f PackageFlags) Has(flag PackageFlags) bool {
	return f&flag == flag
}

func (f PackageFlags) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	if f.Has(FlagNewlyCreated) {
		parts = append(parts, "NewlyCreated")
	}
	if f.Has(FlagCompiledIn) {
		parts = append(parts, "CompiledIn")
	}
	if f.Has(FlagContainsMap) {
		parts = append(parts, "ContainsMap")
	}
	if f.Has(FlagFilterEditorOnly) {
		parts = append(parts, "FilterEditorOnly")
	}
	return strings.Join(parts, "|")
}

// DependencyType selects edge kinds of the dependency graph. Values can be or'ed.
type DependencyType uint8

const (
	DependencyHard DependencyType = 1 << iota
	DependencySoft
	DependencySearchableName
	DependencyManage

	DependencyNone     DependencyType = 0
	DependencyPackages                = DependencyHard | DependencySoft
	DependencyAll                     = DependencyHard | DependencySoft | DependencySearchableName | DependencyManage
)

// DependencyKinds lists the single-bit kinds in storage order.
var DependencyKinds = [...]DependencyType{DependencyHard, DependencySoft, DependencySearchableName, DependencyManage}

func (d DependencyType) Has(kind DependencyType) bool {
	return d&kind != 0
}

// First returns the first single kind of d in storage order, or
// DependencyNone.
func (d DependencyType) First() DependencyType {
	for _, kind := range DependencyKinds {
		if d.Has(kind) {
			return kind
		}
	}
	return DependencyNone
}

func (d DependencyType) String() string {
	switch d {
	case DependencyNone:
		return "None"
	case DependencyAll:
		return "All"
	case DependencyPackages:
		return "Packages"
	}
	var parts []string
	if d.Has(DependencyHard) {
		parts = append(parts, "Hard")
	}
	if d.Has(DependencySoft) {
		parts = append(parts, "Soft")
	}
	if d.Has(DependencySearchableName) {
		parts = append(parts, "SearchableName")
	}
	if d.Has(DependencyManage) {
		parts = append(parts, "Manage")
	}
	return strings.Join(parts, "|")
}

// AssetKind is the only type information the registry keeps about a record.
type AssetKind int

const (
	KindAsset AssetKind = iota
	KindRedirector
	KindMap
)

func (k AssetKind) String() string {
	switch k {
	case KindAsset:
		return "Asset"
	case KindRedirector:
		return "Redirector"
	case KindMap:
		return "Map"
	}
	return "Unknown"
}

// Class and tag names the registry itself interprets.
const (
	ClassRedirector = "ObjectRedirector"
	ClassWorld      = "World"

	TagDestinationObject = "DestinationObject"
	TagGeneratedClass    = "GeneratedClass"
	TagParentClass       = "ParentClass"
	TagPrimaryAssetType  = "PrimaryAssetType"
	TagPrimaryAssetName  = "PrimaryAssetName"
)
