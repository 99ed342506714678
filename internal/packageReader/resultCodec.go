package packageReader

import (
	"fmt"

	"github.com/i5heu/asset-registry/internal/binaryCoder"
	"github.com/i5heu/asset-registry/pkg/types"
)

// resultCodecVersion changes whenever Result gains or loses fields, which
// invalidates every cached entry.
const resultCodecVersion = 1

func writeStrings(w *binaryCoder.Writer, values []string) {
	w.WriteCount(len(values))
	for _, v := range values {
		w.WriteString(v)
	}
}

func readStrings(r *binaryCoder.Reader) []string {
	n := r.ReadCount(1)
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n && !r.Failed(); i++ {
		out = append(out, r.ReadString())
	}
	return out
}

// EncodeResult serializes a decode result for the scan cache.
func EncodeResult(res *Result) []byte {
	w := binaryCoder.NewWriter()
	w.WriteUvarint(resultCodecVersion)
	w.WriteString(res.PackageName)
	w.WriteBool(res.CookedWithoutAssetData)

	w.WriteCount(len(res.Assets))
	for _, a := range res.Assets {
		w.WriteString(a.AssetName)
		w.WriteString(a.AssetClass)
		w.WriteCount(a.Tags.Len())
		a.Tags.Range(func(key, value string) bool {
			w.WriteString(key)
			w.WriteString(value)
			return true
		})
		w.WriteCount(len(a.ChunkIDs))
		for _, id := range a.ChunkIDs {
			w.WriteVarint(int64(id))
		}
		w.WriteUvarint(uint64(a.PackageFlags))
	}

	dep := res.Dependencies
	w.WriteVarint(dep.PackageData.DiskSize)
	w.WriteGUID(dep.PackageData.PackageGUID)
	w.WriteRaw(dep.PackageData.ContentHash[:])
	writeStrings(w, dep.ImportedPackages)
	writeStrings(w, dep.SoftPackageReferences)
	w.WriteCount(len(dep.SearchableNames))
	for _, sn := range dep.SearchableNames {
		w.WriteString(sn.Object.PackageName)
		w.WriteString(sn.Object.ObjectName)
		w.WriteString(sn.Object.ValueName)
		writeStrings(w, sn.Names)
	}
	w.WriteCount(len(dep.ClassHierarchy))
	for _, link := range dep.ClassHierarchy {
		w.WriteString(link.Class)
		w.WriteString(link.Parent)
	}
	return w.Bytes()
}

// DecodeResult reverses EncodeResult.
func DecodeResult(data []byte) (*Result, error) {
	r := binaryCoder.NewReader(data)
	if v := r.ReadUvarint(); v != resultCodecVersion {
		return nil, fmt.Errorf("%w: cached result version %d", ErrMalformed, v)
	}
	res := &Result{PackageName: r.ReadString(), CookedWithoutAssetData: r.ReadBool()}

	numAssets := r.ReadCount(4)
	for i := 0; i < numAssets && !r.Failed(); i++ {
		name, class := r.ReadString(), r.ReadString()
		numTags := r.ReadCount(2)
		tags := make(map[string]string, numTags)
		for j := 0; j < numTags && !r.Failed(); j++ {
			key := r.ReadString()
			tags[key] = r.ReadString()
		}
		var chunks []int32
		numChunks := r.ReadCount(1)
		for j := 0; j < numChunks && !r.Failed(); j++ {
			chunks = append(chunks, int32(r.ReadVarint()))
		}
		flags := types.PackageFlags(r.ReadUvarint())
		res.Assets = append(res.Assets, types.NewAssetData(res.PackageName, name, class, types.NewTagMap(tags), chunks, flags))
	}

	dep := &res.Dependencies
	dep.PackageName = res.PackageName
	dep.PackageData.DiskSize = r.ReadVarint()
	dep.PackageData.PackageGUID = r.ReadGUID()
	copy(dep.PackageData.ContentHash[:], r.ReadRaw(len(dep.PackageData.ContentHash)))
	dep.ImportedPackages = readStrings(r)
	dep.SoftPackageReferences = readStrings(r)
	numNames := r.ReadCount(4)
	for i := 0; i < numNames && !r.Failed(); i++ {
		sn := SearchableNameReference{Object: types.AssetIdentifier{
			PackageName: r.ReadString(),
			ObjectName:  r.ReadString(),
			ValueName:   r.ReadString(),
		}}
		sn.Names = readStrings(r)
		dep.SearchableNames = append(dep.SearchableNames, sn)
	}
	numLinks := r.ReadCount(2)
	for i := 0; i < numLinks && !r.Failed(); i++ {
		dep.ClassHierarchy = append(dep.ClassHierarchy, ClassLink{Class: r.ReadString(), Parent: r.ReadString()})
	}

	if r.Failed() {
		return nil, fmt.Errorf("%w: cached result: %v", ErrMalformed, r.Err())
	}
	return res, nil
}
