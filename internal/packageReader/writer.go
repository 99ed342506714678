package packageReader

import (
	"fmt"

	"github.com/i5heu/asset-registry/internal/binaryCoder"
)

// Encode serializes p in the content file format. Tables the file version
// predates are left out.
func (p *Package) Encode() ([]byte, error) {
	if p.FileVersion < VersionMinimum || p.FileVersion > VersionLatest {
		return nil, fmt.Errorf("%w: %d", ErrVersionTooNew, p.FileVersion)
	}
	hasSearchable := p.FileVersion >= VersionSearchableNames
	hasTags := p.FileVersion >= VersionAssetRegistryTags

	names := binaryCoder.NewNameTable()
	for _, imp := range p.Imports {
		names.Add(imp.ClassPackage)
		names.Add(imp.ClassName)
		names.Add(imp.ObjectName)
	}
	for _, exp := range p.Exports {
		names.Add(exp.ObjectName)
	}
	for _, ref := range p.SoftPackageReferences {
		names.Add(ref)
	}
	if hasSearchable {
		for _, sn := range p.SearchableNames {
			for _, name := range sn.Names {
				names.Add(name)
			}
		}
	}

	w := binaryCoder.NewWriter()
	w.WriteFixed32(PackageFileTag)
	w.WriteUvarint(uint64(p.FileVersion))
	w.WriteCount(len(p.CustomVersions))
	for _, cv := range p.CustomVersions {
		w.WriteGUID(cv.Key)
		w.WriteUvarint(uint64(cv.Version))
	}
	w.WriteUvarint(uint64(p.PackageFlags))
	w.WriteGUID(p.PackageGUID)
	w.WriteCount(len(p.ChunkIDs))
	for _, id := range p.ChunkIDs {
		w.WriteVarint(int64(id))
	}

	w.WriteCount(names.Len())
	nameOffset := w.ReserveFixed32()
	w.WriteCount(len(p.Imports))
	importOffset := w.ReserveFixed32()
	w.WriteCount(len(p.Exports))
	exportOffset := w.ReserveFixed32()
	w.WriteCount(len(p.SoftPackageReferences))
	softOffset := w.ReserveFixed32()
	var searchableOffset, tagOffset int
	if hasSearchable {
		w.WriteCount(len(p.SearchableNames))
		searchableOffset = w.ReserveFixed32()
	}
	if hasTags {
		tagOffset = w.ReserveFixed32()
	}

	w.PatchFixed32(nameOffset, uint32(w.Len()))
	for _, name := range names.Names() {
		w.WriteString(name)
	}

	w.PatchFixed32(importOffset, uint32(w.Len()))
	for _, imp := range p.Imports {
		w.WriteName(names, imp.ClassPackage)
		w.WriteName(names, imp.ClassName)
		w.WriteVarint(int64(imp.OuterIndex))
		w.WriteName(names, imp.ObjectName)
	}

	w.PatchFixed32(exportOffset, uint32(w.Len()))
	for _, exp := range p.Exports {
		w.WriteVarint(int64(exp.ClassIndex))
		w.WriteVarint(int64(exp.SuperIndex))
		w.WriteVarint(int64(exp.OuterIndex))
		w.WriteName(names, exp.ObjectName)
		w.WriteBool(exp.Public)
	}

	w.PatchFixed32(softOffset, uint32(w.Len()))
	for _, ref := range p.SoftPackageReferences {
		w.WriteName(names, ref)
	}

	if hasSearchable {
		w.PatchFixed32(searchableOffset, uint32(w.Len()))
		for _, sn := range p.SearchableNames {
			w.WriteVarint(int64(sn.Object))
			w.WriteCount(len(sn.Names))
			for _, name := range sn.Names {
				w.WriteName(names, name)
			}
		}
	}

	if hasTags {
		w.PatchFixed32(tagOffset, uint32(w.Len()))
		w.WriteCount(len(p.AssetRegistryData))
		for _, obj := range p.AssetRegistryData {
			w.WriteString(obj.ObjectPath)
			w.WriteString(obj.ClassName)
			w.WriteCount(obj.Tags.Len())
			obj.Tags.Range(func(key, value string) bool {
				w.WriteString(key)
				w.WriteString(value)
				return true
			})
		}
	}
	return w.Bytes(), nil
}
