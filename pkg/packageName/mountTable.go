package packageName

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotMounted     = errors.New("packageName: path is not below any mount point")
	ErrInvalidMount   = errors.New("packageName: invalid mount point")
	ErrNotPackageFile = errors.New("packageName: not a package file")
)

// Mount ties a package root such as "/Game/" to a content directory on disk.
type Mount struct {
	Root string
	Dir  string
}

// MountTable is safe for concurrent use.
type MountTable struct {
	mu     sync.RWMutex
	mounts []Mount
}

func NewMountTable() *MountTable {
	return &MountTable{}
}

func normalizeRoot(root string) string {
	root = "/" + strings.Trim(root, "/") + "/"
	return root
}

func normalizeDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs) + string(filepath.Separator), nil
}

// Mount registers or replaces a mount point.
func (m *MountTable) Mount(root, dir string) (Mount, error) {
	if strings.Trim(root, "/") == "" || dir == "" {
		return Mount{}, ErrInvalidMount
	}
	d, err := normalizeDir(dir)
	if err != nil {
		return Mount{}, fmt.Errorf("%w: %v", ErrInvalidMount, err)
	}
	mount := Mount{Root: normalizeRoot(root), Dir: d}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.mounts {
		if m.mounts[i].Root == mount.Root {
			m.mounts[i] = mount
			return mount, nil
		}
	}
	m.mounts = append(m.mounts, mount)
	// longest directory first so nested content dirs win
	sort.SliceStable(m.mounts, func(i, j int) bool {
		return len(m.mounts[i].Dir) > len(m.mounts[j].Dir)
	})
	return mount, nil
}

// Unmount removes the mount point for root and returns it.
func (m *MountTable) Unmount(root string) (Mount, bool) {
	root = normalizeRoot(root)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, mount := range m.mounts {
		if mount.Root == root {
			m.mounts = append(m.mounts[:i], m.mounts[i+1:]...)
			return mount, true
		}
	}
	return Mount{}, false
}

func (m *MountTable) Mounts() []Mount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Mount, len(m.mounts))
	copy(out, m.mounts)
	return out
}

// Roots lists the mounted package roots without trailing slash ("/Game").
func (m *MountTable) Roots() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.mounts))
	for _, mount := range m.mounts {
		out = append(out, strings.TrimSuffix(mount.Root, "/"))
	}
	sort.Strings(out)
	return out
}

// DirectoryToPackagePath maps a content directory to its package path,
// "<content>/Maps" -> "/Game/Maps".
func (m *MountTable) DirectoryToPackagePath(dir string) (string, error) {
	d, err := normalizeDir(dir)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mount := range m.mounts {
		if strings.HasPrefix(d, mount.Dir) {
			rel := filepath.ToSlash(strings.TrimPrefix(d, mount.Dir))
			return strings.TrimSuffix(mount.Root+rel, "/"), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotMounted, dir)
}

// FilenameToLongPackageName maps "<content>/Maps/Arena.umap" to "/Game/Maps/Arena".
func (m *MountTable) FilenameToLongPackageName(filename string) (string, error) {
	ext := filepath.Ext(filename)
	if !IsPackageExtension(ext) {
		return "", fmt.Errorf("%w: %s", ErrNotPackageFile, filename)
	}
	dir, err := m.DirectoryToPackagePath(filepath.Dir(filename))
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	return dir + "/" + base, nil
}

// PackagePathToDirectory maps a package path such as "/Game/Maps" to a directory.
func (m *MountTable) PackagePathToDirectory(packagePath string) (string, error) {
	p := strings.TrimSuffix(packagePath, "/") + "/"
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mount := range m.mounts {
		if strings.HasPrefix(p, mount.Root) {
			rel := strings.TrimPrefix(p, mount.Root)
			return filepath.Clean(filepath.Join(mount.Dir, filepath.FromSlash(rel))), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotMounted, packagePath)
}

// LongPackageNameToFilename maps a package name to its file using ext.
func (m *MountTable) LongPackageNameToFilename(name, ext string) (string, error) {
	dir, err := m.PackagePathToDirectory(LongPackagePath(name))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ShortName(name)+ext), nil
}
