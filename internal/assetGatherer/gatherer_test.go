package assetGatherer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/i5heu/asset-registry/internal/metrics"
	"github.com/i5heu/asset-registry/internal/packageReader"
	"github.com/i5heu/asset-registry/internal/scanCache"
	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/i5heu/asset-registry/pkg/packageName"
	"github.com/i5heu/asset-registry/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contentDir struct {
	root   string
	mounts *packageName.MountTable
}

func newContentDir(t *testing.T) contentDir {
	t.Helper()
	root := t.TempDir()
	mounts := packageName.NewMountTable()
	_, err := mounts.Mount("/Game/", root)
	require.NoError(t, err)
	return contentDir{root: root, mounts: mounts}
}

func (c contentDir) writeAsset(t *testing.T, rel, class string, tags types.TagMap) string {
	t.Helper()
	filename := filepath.Join(c.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(filename), 0o755))
	p := packageReader.NewPackage(0)
	name := filepath.Base(rel)
	name = name[:len(name)-len(filepath.Ext(name))]
	p.AddAsset(name, class, tags)
	p.AddImportPackage("/Game/Shared/Common")
	require.NoError(t, p.WriteFile(filename))
	return filename
}

func (c contentDir) writeRaw(t *testing.T, rel string, data []byte) string {
	t.Helper()
	filename := filepath.Join(c.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(filename), 0o755))
	require.NoError(t, os.WriteFile(filename, data, 0o644))
	return filename
}

func counter(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func objectPaths(r *Results) []string {
	var out []string
	for _, a := range r.Assets.Items() {
		out = append(out, a.ObjectPath())
	}
	sort.Strings(out)
	return out
}

func TestSynchronousSearch(t *testing.T) {
	c := newContentDir(t)
	c.writeAsset(t, "Meshes/Rock.uasset", "StaticMesh", types.TagMapOf("Color", "Grey"))
	c.writeAsset(t, "Meshes/Trees/Oak.uasset", "StaticMesh", types.TagMap{})
	c.writeAsset(t, "Developers/Scratch.uasset", "StaticMesh", types.TagMap{})
	c.writeRaw(t, "Meshes/Broken.uasset", []byte("not a package"))
	c.writeRaw(t, "Meshes/readme.txt", []byte("ignored"))

	m := metrics.New(nil)
	g, err := New(Config{
		Paths:           []string{"/Game"},
		Mounts:          c.mounts,
		ExcludePatterns: []string{"/Game/Developers/**"},
		BatchSize:       2,
		Logger:          logging.Discard(),
		Metrics:         m,
	})
	require.NoError(t, err)
	defer g.Stop()

	require.NoError(t, g.EnsureCompletion(context.Background()))

	var res Results
	status := g.GetAndTrimSearchResults(&res)
	assert.False(t, status.IsSearching)
	assert.Zero(t, status.NumFilesToSearch)
	assert.Len(t, res.SearchTimes, 1)

	assert.Equal(t, []string{"/Game/Meshes/Rock.Rock", "/Game/Meshes/Trees/Oak.Oak"}, objectPaths(&res))
	assert.Equal(t, 2, res.Dependencies.Len())
	for _, dep := range res.Dependencies.Items() {
		assert.Equal(t, []string{"/Script/Engine", "/Game/Shared/Common"}, dep.ImportedPackages)
	}

	assert.Subset(t, res.Paths.Items(), []string{"/Game", "/Game/Meshes", "/Game/Meshes/Trees"})

	assert.Equal(t, 3.0, counter(t, m.FilesDiscovered))
	assert.Equal(t, 2.0, counter(t, m.FilesDecoded))
	assert.Equal(t, 1.0, counter(t, m.DecodeFailures))
}

func TestBackgroundSearchAndAddFiles(t *testing.T) {
	c := newContentDir(t)
	c.writeAsset(t, "Maps/Arena.uasset", "World", types.TagMap{})

	g, err := New(Config{Paths: []string{"/Game/Maps"}, Mounts: c.mounts, Logger: logging.Discard()})
	require.NoError(t, err)
	defer g.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, g.Start(ctx))
	assert.ErrorIs(t, g.Start(ctx), ErrAlreadyStarted)
	require.NoError(t, g.EnsureCompletion(ctx))

	var res Results
	g.GetAndTrimSearchResults(&res)
	assert.Equal(t, []string{"/Game/Maps/Arena.Arena"}, objectPaths(&res))

	added := c.writeAsset(t, "Props/Crate.uasset", "StaticMesh", types.TagMap{})
	g.AddFilesToSearch([]string{added})
	require.NoError(t, g.EnsureCompletion(ctx))

	res = Results{}
	g.GetAndTrimSearchResults(&res)
	assert.Equal(t, []string{"/Game/Props/Crate.Crate"}, objectPaths(&res))
}

func TestCookedPackageWithoutAssetData(t *testing.T) {
	c := newContentDir(t)
	p := packageReader.NewPackage(types.FlagFilterEditorOnly)
	filename := filepath.Join(c.root, "Cooked.uasset")
	require.NoError(t, p.WriteFile(filename))

	g, err := New(Config{Files: []string{filename}, Mounts: c.mounts, Logger: logging.Discard()})
	require.NoError(t, err)
	defer g.Stop()
	require.NoError(t, g.EnsureCompletion(context.Background()))

	var res Results
	g.GetAndTrimSearchResults(&res)
	assert.Equal(t, []string{"/Game/Cooked"}, res.CookedPackageNamesWithoutAssetData.Items())
	assert.Zero(t, res.Assets.Len())
	assert.Zero(t, res.Dependencies.Len())
}

func TestPrioritizeSearchPath(t *testing.T) {
	c := newContentDir(t)
	var files []string
	for _, rel := range []string{"A/One.uasset", "B/Two.uasset", "C/Three.uasset", "C/Four.uasset"} {
		files = append(files, c.writeAsset(t, rel, "StaticMesh", types.TagMap{}))
	}

	g, err := New(Config{Files: files, Mounts: c.mounts, BatchSize: 2, Logger: logging.Discard()})
	require.NoError(t, err)
	defer g.Stop()

	g.PrioritizeSearchPath("/Game/C")
	require.True(t, g.step())

	var res Results
	status := g.GetAndTrimSearchResults(&res)
	assert.Equal(t, 2, status.NumFilesToSearch)
	assert.Equal(t, []string{"/Game/C/Four.Four", "/Game/C/Three.Three"}, objectPaths(&res))
}

func TestScanCacheServesUnchangedFiles(t *testing.T) {
	c := newContentDir(t)
	c.writeAsset(t, "Meshes/Rock.uasset", "StaticMesh", types.TagMapOf("Color", "Grey"))

	cache, err := scanCache.Open(scanCache.Config{Dir: t.TempDir(), IsPrimary: true, Logger: logging.Discard()})
	require.NoError(t, err)
	defer cache.Close()

	search := func() (*Results, *metrics.Metrics) {
		m := metrics.New(nil)
		g, err := New(Config{
			Paths:     []string{"/Game"},
			Mounts:    c.mounts,
			Cache:     cache,
			IsPrimary: true,
			Logger:    logging.Discard(),
			Metrics:   m,
		})
		require.NoError(t, err)
		defer g.Stop()
		require.NoError(t, g.EnsureCompletion(context.Background()))
		var res Results
		g.GetAndTrimSearchResults(&res)
		return &res, m
	}

	first, m1 := search()
	assert.Equal(t, 0.0, counter(t, m1.CacheHits))
	assert.Equal(t, 1, cache.Stats().Entries)

	second, m2 := search()
	assert.Equal(t, 1.0, counter(t, m2.CacheHits))
	assert.Equal(t, first.Assets.Items(), second.Assets.Items())
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoMounts)

	_, err = New(Config{Mounts: packageName.NewMountTable(), ExcludePatterns: []string{"/Game/[a"}})
	assert.ErrorIs(t, err, ErrBadPattern)
}

func TestStopCancelsWaiters(t *testing.T) {
	c := newContentDir(t)
	g, err := New(Config{Mounts: c.mounts, Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))
	g.Stop()
	assert.NoError(t, g.EnsureCompletion(context.Background()))
}
