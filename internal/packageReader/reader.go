package packageReader

import (
	"fmt"

	"github.com/i5heu/asset-registry/internal/binaryCoder"
	"github.com/i5heu/asset-registry/pkg/types"
)

type tableOffsets struct {
	names, imports, exports, soft, searchable, tags int
	numNames, numImports, numExports, numSoft, numSearchable int
}

// ReadPackage parses the header and every table of a content file.
func ReadPackage(data []byte) (*Package, error) {
	r := binaryCoder.NewReader(data)
	p := &Package{}

	if tag := r.ReadFixed32(); r.Failed() || tag != PackageFileTag {
		return nil, fmt.Errorf("%w: %#x", ErrBadMagic, tag)
	}
	p.FileVersion = int(r.ReadUvarint())
	if r.Failed() {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, r.Err())
	}
	if p.FileVersion < VersionMinimum {
		return nil, fmt.Errorf("%w: %d", ErrVersionTooOld, p.FileVersion)
	}
	if p.FileVersion > VersionLatest {
		return nil, fmt.Errorf("%w: %d", ErrVersionTooNew, p.FileVersion)
	}

	numCustom := r.ReadCount(17)
	for i := 0; i < numCustom && !r.Failed(); i++ {
		cv := CustomVersion{Key: r.ReadGUID(), Version: int(r.ReadUvarint())}
		if r.Failed() {
			break
		}
		latest, known := LatestCustomVersions[cv.Key]
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCustomVersion, cv.Key)
		}
		if cv.Version > latest {
			return nil, fmt.Errorf("%w: %s is %d, newest known %d", ErrCustomVersionTooNew, cv.Key, cv.Version, latest)
		}
		p.CustomVersions = append(p.CustomVersions, cv)
	}

	p.PackageFlags = types.PackageFlags(r.ReadUvarint())
	p.PackageGUID = r.ReadGUID()
	numChunks := r.ReadCount(1)
	for i := 0; i < numChunks && !r.Failed(); i++ {
		p.ChunkIDs = append(p.ChunkIDs, int32(r.ReadVarint()))
	}

	var off tableOffsets
	off.numNames, off.names = r.ReadCount(1), int(r.ReadFixed32())
	off.numImports, off.imports = r.ReadCount(1), int(r.ReadFixed32())
	off.numExports, off.exports = r.ReadCount(1), int(r.ReadFixed32())
	off.numSoft, off.soft = r.ReadCount(1), int(r.ReadFixed32())
	if p.FileVersion >= VersionSearchableNames {
		off.numSearchable, off.searchable = r.ReadCount(1), int(r.ReadFixed32())
	}
	if p.FileVersion >= VersionAssetRegistryTags {
		off.tags = int(r.ReadFixed32())
	}
	if r.Failed() {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, r.Err())
	}

	r.Seek(off.names)
	names := make([]string, 0, off.numNames)
	for i := 0; i < off.numNames && !r.Failed(); i++ {
		names = append(names, r.ReadString())
	}

	r.Seek(off.imports)
	for i := 0; i < off.numImports && !r.Failed(); i++ {
		p.Imports = append(p.Imports, Import{
			ClassPackage: r.ReadName(names),
			ClassName:    r.ReadName(names),
			OuterIndex:   PackageIndex(r.ReadVarint()),
			ObjectName:   r.ReadName(names),
		})
	}

	r.Seek(off.exports)
	for i := 0; i < off.numExports && !r.Failed(); i++ {
		p.Exports = append(p.Exports, Export{
			ClassIndex: PackageIndex(r.ReadVarint()),
			SuperIndex: PackageIndex(r.ReadVarint()),
			OuterIndex: PackageIndex(r.ReadVarint()),
			ObjectName: r.ReadName(names),
			Public:     r.ReadBool(),
		})
	}

	r.Seek(off.soft)
	for i := 0; i < off.numSoft && !r.Failed(); i++ {
		p.SoftPackageReferences = append(p.SoftPackageReferences, r.ReadName(names))
	}

	if off.numSearchable > 0 {
		r.Seek(off.searchable)
		for i := 0; i < off.numSearchable && !r.Failed(); i++ {
			sn := SearchableNames{Object: PackageIndex(r.ReadVarint())}
			count := r.ReadCount(1)
			for j := 0; j < count && !r.Failed(); j++ {
				sn.Names = append(sn.Names, r.ReadName(names))
			}
			p.SearchableNames = append(p.SearchableNames, sn)
		}
	}

	if off.tags > 0 {
		r.Seek(off.tags)
		numObjects := r.ReadCount(3)
		for i := 0; i < numObjects && !r.Failed(); i++ {
			obj := ObjectTags{ObjectPath: r.ReadString(), ClassName: r.ReadString()}
			numTags := r.ReadCount(2)
			tags := make(map[string]string, numTags)
			for j := 0; j < numTags && !r.Failed(); j++ {
				key := r.ReadString()
				tags[key] = r.ReadString()
			}
			obj.Tags = types.NewTagMap(tags)
			p.AssetRegistryData = append(p.AssetRegistryData, obj)
		}
	}

	if r.Failed() {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, r.Err())
	}
	if err := p.validateIndices(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Package) validIndex(idx PackageIndex) bool {
	switch {
	case idx.IsImport():
		return idx.Import() < len(p.Imports)
	case idx.IsExport():
		return idx.Export() < len(p.Exports)
	}
	return true
}

func (p *Package) validateIndices() error {
	for i, imp := range p.Imports {
		if !p.validIndex(imp.OuterIndex) {
			return fmt.Errorf("%w: import %d outer %d", ErrMalformed, i, imp.OuterIndex)
		}
	}
	for i, exp := range p.Exports {
		for _, idx := range []PackageIndex{exp.ClassIndex, exp.SuperIndex, exp.OuterIndex} {
			if !p.validIndex(idx) {
				return fmt.Errorf("%w: export %d index %d", ErrMalformed, i, idx)
			}
		}
	}
	for i, sn := range p.SearchableNames {
		if !p.validIndex(sn.Object) {
			return fmt.Errorf("%w: searchable names %d object %d", ErrMalformed, i, sn.Object)
		}
	}
	return nil
}
