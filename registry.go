// Package assetregistry keeps an index of the assets found in mounted content
// directories, the dependency graph between their packages and the cached
// package paths. Scanning runs on background workers; results are merged by
// Tick so that the index is only ever mutated under one lock.
package assetregistry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i5heu/asset-registry/internal/assetGatherer"
	"github.com/i5heu/asset-registry/internal/config"
	"github.com/i5heu/asset-registry/internal/dirWatcher"
	"github.com/i5heu/asset-registry/internal/metrics"
	"github.com/i5heu/asset-registry/internal/pathTree"
	"github.com/i5heu/asset-registry/internal/registryState"
	"github.com/i5heu/asset-registry/internal/scanCache"
	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/i5heu/asset-registry/pkg/packageName"
	"github.com/i5heu/asset-registry/pkg/types"
	workerpool "github.com/i5heu/asset-registry/pkg/workerPool"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotStarted = errors.New("assetregistry: registry not started")
	ErrClosed     = errors.New("assetregistry: registry closed")
)

const (
	scanCacheDirName = "scancache"
	runTickInterval  = 100 * time.Millisecond
)

type (
	State                = registryState.State
	SerializationOptions = registryState.SerializationOptions
)

// NewState returns an empty state, for InitializeTemporaryState.
func NewState(log *logrus.Logger) *State {
	if log == nil {
		log = logging.Discard()
	}
	return registryState.New(log)
}

type nativeClass struct {
	parent     string
	interfaces []string
}

// AssetRegistry is the registry handle. Queries and mutations are safe for
// concurrent use.
type AssetRegistry struct {
	log      *logrus.Logger
	config   Config
	settings config.Config
	metrics  *metrics.Metrics
	mounts   *packageName.MountTable

	serializationOptions registryState.SerializationOptions
	scriptPackagesToSkip map[string]struct{}
	classGenerators      map[string]struct{}

	chunks ChunkInstaller
	loader ContentLoader

	mu    sync.Mutex
	state *registryState.State
	paths *pathTree.PathTree

	nativeClasses    map[string]nativeClass
	generatedClasses map[string]string // generated class -> parent, from generator records
	declaredClasses  map[string]string // class -> parent, from decoded packages
	packageClasses   map[string][]string

	emptyPackages map[string]struct{}
	inMemory      map[string]types.RegistryObject

	loadedToProcess         []types.RegistryObject
	loadedWithoutCachedData []types.RegistryObject
	updatedOnLoad           map[string]struct{}

	scannedPaths []string
	scannedFiles map[string]struct{}

	searchableNameEditors map[types.AssetIdentifier]SearchableNameEditor

	results                assetGatherer.Results
	initialSearchCompleted bool
	fullSearchStart        time.Time

	pendingEvents []Event
	dispatching   bool

	subsMu    sync.RWMutex
	subs      []subscriber
	nextSubID uint64

	lifeMu     sync.RWMutex
	runCtx     context.Context
	cancel     context.CancelFunc
	pool       *workerpool.WorkerPool
	cache      *scanCache.Cache
	background *assetGatherer.Gatherer
	watcher    *dirWatcher.Watcher
	watchDone  chan struct{}

	started   atomic.Bool
	closed    atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// New constructs a registry. New does not touch the disk beyond resolving
// mount directories and starts no goroutines; call Start for scanning.
func New(conf Config) (*AssetRegistry, error) {
	if conf.Logger == nil {
		conf.Logger = logging.New()
	}
	settings := conf.Settings
	if settings.MaxTickBudget == 0 {
		settings.MaxTickBudget = config.Default().MaxTickBudget
	}
	if settings.WatchDebounce <= 0 {
		settings.WatchDebounce = config.Default().WatchDebounce
	}

	mounts := packageName.NewMountTable()
	for _, m := range settings.Mounts {
		if _, err := mounts.Mount(m.Root, m.Dir); err != nil {
			return nil, fmt.Errorf("mount %s: %w", m.Root, err)
		}
	}

	r := &AssetRegistry{
		log:                   conf.Logger,
		config:                conf,
		settings:              settings,
		metrics:               metrics.New(conf.Registerer),
		mounts:                mounts,
		serializationOptions:  settings.SerializationOptions(),
		scriptPackagesToSkip:  toSet(settings.ScriptPackagesToSkip),
		classGenerators:       toSet(settings.ClassGeneratorNames),
		chunks:                conf.ChunkInstaller,
		loader:                conf.ContentLoader,
		state:                 registryState.New(conf.Logger),
		paths:                 pathTree.New(),
		nativeClasses:         make(map[string]nativeClass),
		generatedClasses:      make(map[string]string),
		declaredClasses:       make(map[string]string),
		packageClasses:        make(map[string][]string),
		emptyPackages:         make(map[string]struct{}),
		inMemory:              make(map[string]types.RegistryObject),
		updatedOnLoad:         make(map[string]struct{}),
		scannedFiles:          make(map[string]struct{}),
		searchableNameEditors: make(map[types.AssetIdentifier]SearchableNameEditor),
	}
	return r, nil
}

// Start opens the scan cache, starts the worker pool and, when configured,
// the directory watcher and the initial background search. Start is safe to
// call multiple times; only the first call has effect.
func (r *AssetRegistry) Start(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	var startErr error
	r.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(context.Background())

		var cache *scanCache.Cache
		if len(r.config.Paths) > 0 {
			c, err := scanCache.Open(scanCache.Config{
				Dir:              filepath.Join(r.config.Paths[0], scanCacheDirName),
				IsPrimary:        r.settings.IsPrimary,
				MinimumFreeSpace: int(r.config.MinimumFreeGB),
				Logger:           r.log,
			})
			if err != nil {
				cancel()
				startErr = fmt.Errorf("open scan cache: %w", err)
				return
			}
			cache = c
		}

		pool := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: r.settings.Workers})

		var watcher *dirWatcher.Watcher
		if r.settings.Watch {
			w, err := dirWatcher.New(dirWatcher.Config{DebounceDelay: r.settings.WatchDebounce, Logger: r.log})
			if err != nil {
				pool.Close()
				if cache != nil {
					cache.Close()
				}
				cancel()
				startErr = fmt.Errorf("start directory watcher: %w", err)
				return
			}
			for _, m := range r.mounts.Mounts() {
				if err := w.AddRoot(m.Dir); err != nil {
					r.log.WithFields(logrus.Fields{"root": m.Root, "dir": m.Dir}).Warnf("Cannot watch content directory: %v", err)
				}
			}
			watcher = w
		}

		r.lifeMu.Lock()
		r.runCtx = runCtx
		r.cancel = cancel
		r.cache = cache
		r.pool = pool
		r.watcher = watcher
		if watcher != nil {
			r.watchDone = make(chan struct{})
			watcher.Start(runCtx)
			go r.watchLoop(runCtx, watcher, r.watchDone)
		}
		r.lifeMu.Unlock()

		r.started.Store(true)
		r.log.WithFields(logrus.Fields{
			"mounts":  len(r.mounts.Mounts()),
			"workers": pool.WorkerCount(),
			"watch":   watcher != nil,
		}).Info("Asset registry started")

		if r.settings.SearchOnStart {
			if err := r.SearchAllAssets(ctx, false); err != nil {
				startErr = fmt.Errorf("start search: %w", err)
			}
		}
	})
	return startErr
}

// Run starts the registry, ticks it until ctx is canceled and finally
// performs a bounded graceful shutdown.
func (r *AssetRegistry) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(runTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return r.Close(shutdownCtx)
		case <-ticker.C:
			r.Tick(ctx, r.settings.MaxTickBudget)
		}
	}
}

// Close stops background work and releases resources. Close is idempotent.
func (r *AssetRegistry) Close(ctx context.Context) error {
	var closeErr error
	r.closeOnce.Do(func() {
		r.closed.Store(true)

		r.lifeMu.Lock()
		background, watcher, watchDone := r.background, r.watcher, r.watchDone
		pool, cache, cancel := r.pool, r.cache, r.cancel
		r.background, r.watcher, r.pool, r.cache = nil, nil, nil, nil
		r.lifeMu.Unlock()

		if cancel != nil {
			cancel()
		}
		if background != nil {
			background.Stop()
		}
		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("stop watcher: %w", err))
			}
			select {
			case <-watchDone:
			case <-ctx.Done():
				closeErr = errors.Join(closeErr, ctx.Err())
			}
		}
		if pool != nil {
			pool.Close()
		}
		if cache != nil {
			if err := cache.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close scan cache: %w", err))
			}
		}
		r.log.Info("Asset registry closed")
	})
	return closeErr
}

// CloseWithoutContext closes the registry using a background context.
func (r *AssetRegistry) CloseWithoutContext() error {
	return r.Close(context.Background())
}

// running returns the worker pool if the registry is started and not closed.
func (r *AssetRegistry) running() (*workerpool.WorkerPool, error) {
	if !r.started.Load() {
		if r.closed.Load() {
			return nil, ErrClosed
		}
		return nil, ErrNotStarted
	}
	r.lifeMu.RLock()
	pool := r.pool
	r.lifeMu.RUnlock()
	if pool == nil {
		return nil, ErrClosed
	}
	return pool, nil
}

func (r *AssetRegistry) backgroundGatherer() *assetGatherer.Gatherer {
	r.lifeMu.RLock()
	defer r.lifeMu.RUnlock()
	return r.background
}

func (r *AssetRegistry) currentCache() *scanCache.Cache {
	r.lifeMu.RLock()
	defer r.lifeMu.RUnlock()
	return r.cache
}

func (r *AssetRegistry) watchLoop(ctx context.Context, w *dirWatcher.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Batches():
			if !ok {
				return
			}
			if err := r.OnDirectoryChanged(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
				r.log.WithError(err).Warn("Applying directory changes failed")
			}
		}
	}
}

// Mounts returns the mount table content roots resolve through.
func (r *AssetRegistry) Mounts() []packageName.Mount {
	return r.mounts.Mounts()
}

// IsLoadingAssets reports whether the first full search has not finished.
func (r *AssetRegistry) IsLoadingAssets() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.initialSearchCompleted
}

// SerializationOptions returns the options Save uses.
func (r *AssetRegistry) SerializationOptions() SerializationOptions {
	return r.serializationOptions
}

// Validate checks the index and graph invariants.
func (r *AssetRegistry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Validate()
}
