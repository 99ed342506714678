// Package dirWatcher turns fsnotify events below content directories into
// ordered batches of file changes.
package dirWatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/i5heu/asset-registry/pkg/packageName"
	"github.com/sirupsen/logrus"
)

const (
	batchChannelBuffer   = 64
	defaultDebounceDelay = 250 * time.Millisecond
)

type Action int

const (
	Added Action = iota + 1
	Modified
	Removed
)

func (a Action) String() string {
	switch a {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// FileChange is one change to a content file.
type FileChange struct {
	Filename string
	Action   Action
}

type Config struct {
	// DebounceDelay is how long changes are collected before a batch is sent.
	DebounceDelay time.Duration
	Logger        *logrus.Logger
}

// Watcher watches directory trees and emits change batches in the order the
// changes were seen.
type Watcher struct {
	config  Config
	log     *logrus.Logger
	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   []FileChange

	rootsMu sync.Mutex
	roots   map[string]struct{}

	batches       chan []FileChange
	droppedEvents atomic.Int64
}

func New(config Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = logging.New()
	}
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = defaultDebounceDelay
	}
	return &Watcher{
		config:  config,
		log:     config.Logger,
		watcher: fsw,
		roots:   make(map[string]struct{}),
		batches: make(chan []FileChange, batchChannelBuffer),
	}, nil
}

// Batches returns the channel of change batches. It is closed when the
// watcher stops.
func (w *Watcher) Batches() <-chan []FileChange {
	return w.batches
}

// Start processes events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.processEvents(ctx)
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// AddRoot watches dir and every directory below it.
func (w *Watcher) AddRoot(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := w.addWatchesRecursive(abs); err != nil {
		return err
	}
	w.rootsMu.Lock()
	w.roots[abs] = struct{}{}
	w.rootsMu.Unlock()
	w.log.WithFields(logrus.Fields{"dir": abs}).Debug("Watching content directory")
	return nil
}

// RemoveRoot stops watching dir and everything below it.
func (w *Watcher) RemoveRoot(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return
	}
	w.rootsMu.Lock()
	delete(w.roots, abs)
	w.rootsMu.Unlock()

	prefix := abs + string(filepath.Separator)
	for _, watched := range w.watcher.WatchList() {
		if watched == abs || strings.HasPrefix(watched, prefix) {
			if err := w.watcher.Remove(watched); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
				w.log.WithFields(logrus.Fields{"dir": watched}).Debugf("Failed to remove watch: %v", err)
			}
		}
	}
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.log.WithFields(logrus.Fields{"dir": path}).Warnf("Failed to watch directory: %v", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.batches)
	ticker := time.NewTicker(w.config.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				w.flushPending()
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Error("Watcher error")

		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if !packageName.IsPackageExtension(filepath.Ext(path)) {
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.handleNewDirectory(path)
			}
		}
		return
	}

	var action Action
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		action = Removed
	case event.Has(fsnotify.Create):
		action = Added
	case event.Has(fsnotify.Write):
		action = Modified
	default:
		return
	}
	w.push(FileChange{Filename: path, Action: action})
}

func (w *Watcher) push(changes ...FileChange) {
	w.pendingMu.Lock()
	for _, c := range changes {
		// consecutive writes to one file are one change
		if n := len(w.pending); n > 0 && c.Action == Modified && w.pending[n-1] == c {
			continue
		}
		w.pending = append(w.pending, c)
	}
	w.pendingMu.Unlock()
}

// handleNewDirectory watches a new directory and reports the content files
// that were created in it before the watch existed.
func (w *Watcher) handleNewDirectory(path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	if err := w.addWatchesRecursive(path); err != nil {
		w.log.WithFields(logrus.Fields{"dir": path}).Warnf("Failed to watch new directory: %v", err)
		return
	}
	var found []FileChange
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && packageName.IsPackageExtension(filepath.Ext(p)) {
			found = append(found, FileChange{Filename: p, Action: Added})
		}
		return nil
	})
	w.push(found...)
}

func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	batch := w.pending
	w.pending = nil
	w.pendingMu.Unlock()

	select {
	case w.batches <- batch:
	default:
		dropped := w.droppedEvents.Add(int64(len(batch)))
		w.log.WithFields(logrus.Fields{"total_dropped": dropped}).Warn("Change channel full, dropping batch")
	}
}

// DroppedEvents returns the number of changes dropped because the consumer
// fell behind.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}
