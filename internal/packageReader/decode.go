package packageReader

import (
	"fmt"
	"os"
	"strings"

	"github.com/i5heu/asset-registry/pkg/buzhashChunker"
	"github.com/i5heu/asset-registry/pkg/packageName"
	"github.com/i5heu/asset-registry/pkg/types"
)

// SearchableNameReference is a set of names referenced on one object.
type SearchableNameReference struct {
	Object types.AssetIdentifier
	Names  []string
}

// ClassLink records that Class derives from Parent.
type ClassLink struct {
	Class  string
	Parent string
}

// DependencyData is everything a content file says about its references.
type DependencyData struct {
	PackageName           string
	PackageData           types.PackageData
	ImportedPackages      []string
	SoftPackageReferences []string
	SearchableNames       []SearchableNameReference
	ClassHierarchy        []ClassLink
}

// Result is the decoded registry data of one content file.
type Result struct {
	PackageName  string
	Assets       []types.AssetData
	Dependencies DependencyData
	// CookedWithoutAssetData marks stripped packages that carry no tag
	// table and need a full load to be registered.
	CookedWithoutAssetData bool
}

// ReadFile decodes the content file at filename as package pkg.
func ReadFile(filename, pkg string) (*Result, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Decode(pkg, data)
}

// Decode extracts registry records and dependency data of package pkg.
func Decode(pkg string, data []byte) (*Result, error) {
	p, err := ReadPackage(data)
	if err != nil {
		return nil, err
	}
	fingerprint, err := buzhashChunker.Fingerprint(data)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", pkg, err)
	}

	res := &Result{PackageName: pkg}
	for _, obj := range p.AssetRegistryData {
		assetName := strings.TrimPrefix(obj.ObjectPath, pkg+".")
		if assetName == "" || obj.ClassName == "" {
			continue
		}
		res.Assets = append(res.Assets, types.NewAssetData(pkg, assetName, obj.ClassName, obj.Tags, p.ChunkIDs, p.PackageFlags))
	}

	if p.PackageFlags.Has(types.FlagContainsMap) && (p.FileVersion < VersionPublicWorlds || len(p.Exports) == 0) {
		hasWorld := false
		for _, a := range res.Assets {
			if a.AssetClass == types.ClassWorld {
				hasWorld = true
				break
			}
		}
		if !hasWorld {
			res.Assets = append(res.Assets, types.NewAssetData(pkg, packageName.ShortName(pkg), types.ClassWorld, types.TagMap{}, p.ChunkIDs, p.PackageFlags))
		}
	}

	if len(res.Assets) == 0 && p.PackageFlags.Has(types.FlagFilterEditorOnly) {
		res.CookedWithoutAssetData = true
	}

	res.Dependencies = p.dependencyData(pkg)
	res.Dependencies.PackageData = types.PackageData{
		DiskSize:    int64(len(data)),
		PackageGUID: p.PackageGUID,
		ContentHash: fingerprint,
	}
	return res, nil
}

// outermostImport follows the outer chain of an import to the package import.
func (p *Package) outermostImport(i int) (Import, bool) {
	imp := p.Imports[i]
	for steps := 0; !imp.OuterIndex.IsNull(); steps++ {
		if steps > len(p.Imports) || !imp.OuterIndex.IsImport() {
			return Import{}, false
		}
		imp = p.Imports[imp.OuterIndex.Import()]
	}
	return imp, true
}

func (p *Package) objectName(idx PackageIndex) string {
	switch {
	case idx.IsImport():
		return p.Imports[idx.Import()].ObjectName
	case idx.IsExport():
		return p.Exports[idx.Export()].ObjectName
	}
	return ""
}

// identifierOf names the object idx points at as (package, object).
func (p *Package) identifierOf(pkg string, idx PackageIndex) (types.AssetIdentifier, bool) {
	switch {
	case idx.IsNull():
		return types.PackageIdentifier(pkg), true
	case idx.IsExport():
		return types.AssetIdentifier{PackageName: pkg, ObjectName: p.Exports[idx.Export()].ObjectName}, true
	}
	outer, ok := p.outermostImport(idx.Import())
	if !ok {
		return types.AssetIdentifier{}, false
	}
	imp := p.Imports[idx.Import()]
	if imp.ObjectName == outer.ObjectName && imp.OuterIndex.IsNull() {
		return types.PackageIdentifier(outer.ObjectName), true
	}
	return types.AssetIdentifier{PackageName: outer.ObjectName, ObjectName: imp.ObjectName}, true
}

func (p *Package) dependencyData(pkg string) DependencyData {
	dep := DependencyData{PackageName: pkg}

	seen := make(map[string]bool)
	for i := range p.Imports {
		outer, ok := p.outermostImport(i)
		if !ok || outer.ObjectName == "" || outer.ObjectName == pkg || seen[outer.ObjectName] {
			continue
		}
		seen[outer.ObjectName] = true
		dep.ImportedPackages = append(dep.ImportedPackages, outer.ObjectName)
	}

	softSeen := make(map[string]bool)
	for _, ref := range p.SoftPackageReferences {
		name := packageName.ObjectPathToPackageName(packageName.ExportTextPathToObjectPath(ref))
		if name == "" || name == pkg || softSeen[name] {
			continue
		}
		softSeen[name] = true
		dep.SoftPackageReferences = append(dep.SoftPackageReferences, name)
	}

	for _, sn := range p.SearchableNames {
		id, ok := p.identifierOf(pkg, sn.Object)
		if !ok || len(sn.Names) == 0 {
			continue
		}
		dep.SearchableNames = append(dep.SearchableNames, SearchableNameReference{Object: id, Names: sn.Names})
	}

	for _, exp := range p.Exports {
		if exp.SuperIndex.IsNull() {
			continue
		}
		if parent := p.objectName(exp.SuperIndex); parent != "" {
			dep.ClassHierarchy = append(dep.ClassHierarchy, ClassLink{Class: exp.ObjectName, Parent: parent})
		}
	}
	return dep
}
