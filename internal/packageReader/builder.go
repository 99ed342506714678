package packageReader

import (
	"os"

	"github.com/google/uuid"
	"github.com/i5heu/asset-registry/pkg/types"
)

// NewPackage returns an empty package at the latest file version.
func NewPackage(flags types.PackageFlags) *Package {
	return &Package{
		FileVersion:  VersionLatest,
		PackageFlags: flags,
		PackageGUID:  uuid.New(),
	}
}

// AddImportPackage imports another package and returns its index. Repeated
// calls for the same package return the first index.
func (p *Package) AddImportPackage(name string) PackageIndex {
	for i, imp := range p.Imports {
		if imp.OuterIndex.IsNull() && imp.ObjectName == name {
			return ImportIndex(i)
		}
	}
	p.Imports = append(p.Imports, Import{ClassPackage: "/Script/CoreUObject", ClassName: "Package", ObjectName: name})
	return ImportIndex(len(p.Imports) - 1)
}

// AddImportObject imports object of class from package pkg.
func (p *Package) AddImportObject(pkg, classPackage, className, object string) PackageIndex {
	outer := p.AddImportPackage(pkg)
	p.Imports = append(p.Imports, Import{ClassPackage: classPackage, ClassName: className, OuterIndex: outer, ObjectName: object})
	return ImportIndex(len(p.Imports) - 1)
}

func (p *Package) AddExport(object string, class, super PackageIndex, public bool) PackageIndex {
	p.Exports = append(p.Exports, Export{ClassIndex: class, SuperIndex: super, ObjectName: object, Public: public})
	return ExportIndex(len(p.Exports) - 1)
}

// AddAsset adds a public export and its tag table entry.
func (p *Package) AddAsset(object, className string, tags types.TagMap) PackageIndex {
	class := p.AddImportObject("/Script/Engine", "/Script/CoreUObject", "Class", className)
	p.AssetRegistryData = append(p.AssetRegistryData, ObjectTags{ObjectPath: object, ClassName: className, Tags: tags})
	return p.AddExport(object, class, 0, true)
}

func (p *Package) AddSoftReference(objectPath string) {
	p.SoftPackageReferences = append(p.SoftPackageReferences, objectPath)
}

func (p *Package) AddSearchableNames(object PackageIndex, names ...string) {
	p.SearchableNames = append(p.SearchableNames, SearchableNames{Object: object, Names: names})
}

// WriteFile encodes p to filename.
func (p *Package) WriteFile(filename string) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}
