package dirWatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w, err := New(Config{DebounceDelay: 20 * time.Millisecond, Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, w.AddRoot(dir))
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	return w
}

// collect reads batches until a change for filename with action arrives.
func collect(t *testing.T, w *Watcher, filename string, action Action) []FileChange {
	t.Helper()
	var all []FileChange
	timeout := time.After(5 * time.Second)
	for {
		select {
		case batch, ok := <-w.Batches():
			require.True(t, ok)
			all = append(all, batch...)
			for _, c := range batch {
				if c.Filename == filename && c.Action == action {
					return all
				}
			}
		case <-timeout:
			t.Fatalf("no %s event for %s, got %v", action, filename, all)
		}
	}
}

func TestReportsPackageFileChanges(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	asset := filepath.Join(dir, "Rock.uasset")
	require.NoError(t, os.WriteFile(asset, []byte("v1"), 0o644))
	collect(t, w, asset, Added)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Remove(asset))
	changes := collect(t, w, asset, Removed)
	for _, c := range changes {
		assert.NotEqual(t, filepath.Join(dir, "notes.txt"), c.Filename)
	}
}

func TestWatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	sub := filepath.Join(dir, "Maps")
	require.NoError(t, os.Mkdir(sub, 0o755))
	asset := filepath.Join(sub, "Arena.umap")
	require.NoError(t, os.WriteFile(asset, []byte("map"), 0o644))
	collect(t, w, asset, Added)
}

func TestPushFoldsRepeatedWrites(t *testing.T) {
	w, err := New(Config{Logger: logging.Discard()})
	require.NoError(t, err)
	defer w.Stop()

	w.push(
		FileChange{Filename: "a.uasset", Action: Modified},
		FileChange{Filename: "a.uasset", Action: Modified},
		FileChange{Filename: "a.uasset", Action: Removed},
	)
	w.flushPending()
	batch := <-w.Batches()
	assert.Equal(t, []FileChange{
		{Filename: "a.uasset", Action: Modified},
		{Filename: "a.uasset", Action: Removed},
	}, batch)
}
