// Package packageName converts between long package names ("/Game/Maps/Arena"),
// object paths ("/Game/Maps/Arena.Arena") and files on disk.
package packageName

import (
	"path"
	"strings"
)

const (
	AssetExtension = ".uasset"
	MapExtension   = ".umap"

	ScriptPrefix = "/Script/"
)

// IsPackageExtension reports whether ext (with leading dot) names a content file.
func IsPackageExtension(ext string) bool {
	ext = strings.ToLower(ext)
	return ext == AssetExtension || ext == MapExtension
}

// IsValidLongPackageName reports whether name is rooted, has at least one
// path element below its root and carries no object or subobject separator.
func IsValidLongPackageName(name string) bool {
	if len(name) < 2 || name[0] != '/' || strings.HasSuffix(name, "/") {
		return false
	}
	if strings.ContainsAny(name, ".:\\ \t") || strings.Contains(name, "//") {
		return false
	}
	return strings.Count(name, "/") >= 2
}

func IsScriptPackage(name string) bool {
	return strings.HasPrefix(name, ScriptPrefix)
}

// LongPackagePath returns the directory part: "/Game/A/B" -> "/Game/A".
func LongPackagePath(name string) string {
	i := strings.LastIndexByte(name, '/')
	if i <= 0 {
		return name
	}
	return name[:i]
}

// ShortName returns the last path element: "/Game/A/B" -> "B".
func ShortName(name string) string {
	return name[strings.LastIndexByte(name, '/')+1:]
}

// ObjectPath joins a package name and an object name.
func ObjectPath(packageName, objectName string) string {
	if objectName == "" {
		return packageName
	}
	return packageName + "." + objectName
}

// SplitObjectPath splits "/Game/A/B.B:Sub" into ("/Game/A/B", "B:Sub").
func SplitObjectPath(objectPath string) (pkg, object string, ok bool) {
	i := strings.IndexByte(objectPath, '.')
	if i <= 0 || i == len(objectPath)-1 {
		return objectPath, "", false
	}
	return objectPath[:i], objectPath[i+1:], true
}

// ObjectPathToPackageName drops everything after the first '.'.
func ObjectPathToPackageName(objectPath string) string {
	pkg, _, _ := SplitObjectPath(objectPath)
	return pkg
}

// ObjectPathToObjectName returns the innermost object name of a path,
// "/Game/A.B:C" -> "C", "/Game/A.B" -> "B".
func ObjectPathToObjectName(objectPath string) string {
	i := strings.LastIndexAny(objectPath, ".:")
	if i < 0 {
		return objectPath
	}
	return objectPath[i+1:]
}

// ExportTextPathToObjectPath strips a class prefix and quotes from an export
// text path, "StaticMesh'/Game/A.A'" -> "/Game/A.A". Plain object paths are
// returned unchanged.
func ExportTextPathToObjectPath(exportText string) string {
	start := strings.IndexByte(exportText, '\'')
	if start < 0 {
		return exportText
	}
	end := strings.LastIndexByte(exportText, '\'')
	if end <= start {
		return exportText
	}
	return exportText[start+1 : end]
}

// IsChildPath reports whether child equals parent or lies below it.
func IsChildPath(child, parent string) bool {
	parent = strings.TrimSuffix(parent, "/")
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}

// ParentPath returns the parent package path, or "" for a mount root like "/Game".
func ParentPath(p string) string {
	p = strings.TrimSuffix(p, "/")
	parent := path.Dir(p)
	if parent == "/" || parent == "." {
		return ""
	}
	return parent
}
