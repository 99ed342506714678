// Package assetGatherer discovers content files below mounted directories and
// decodes them on a worker pool, streaming the results to a single consumer.
package assetGatherer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/i5heu/asset-registry/internal/metrics"
	"github.com/i5heu/asset-registry/internal/packageReader"
	"github.com/i5heu/asset-registry/internal/scanCache"
	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/i5heu/asset-registry/pkg/packageName"
	"github.com/i5heu/asset-registry/pkg/types"
	workerpool "github.com/i5heu/asset-registry/pkg/workerPool"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoMounts       = errors.New("assetGatherer: no mount table configured")
	ErrBadPattern     = errors.New("assetGatherer: invalid exclude pattern")
	ErrAlreadyStarted = errors.New("assetGatherer: already started")
)

const defaultBatchSize = 32

type Config struct {
	// Paths are long package paths such as "/Game/Maps" to walk recursively.
	Paths []string
	// Files are content files on disk to decode without walking.
	Files  []string
	Mounts *packageName.MountTable

	Cache *scanCache.Cache
	// IsPrimary allows this gatherer to persist the scan cache.
	IsPrimary bool

	// ExcludePatterns are doublestar patterns matched against long package
	// paths and names, "/Game/Developers/**".
	ExcludePatterns []string

	WorkerPool *workerpool.WorkerPool
	BatchSize  int
	Logger     *logrus.Logger
	Metrics    *metrics.Metrics
}

// Results holds everything gathered since the last drain.
type Results struct {
	Assets                             GatherResults[types.AssetData]
	Paths                              GatherResults[string]
	Dependencies                       GatherResults[packageReader.DependencyData]
	CookedPackageNamesWithoutAssetData GatherResults[string]
	SearchTimes                        []time.Duration
}

// Len counts the entries waiting in all streams.
func (r *Results) Len() int {
	return r.Assets.Len() + r.Paths.Len() + r.Dependencies.Len() + r.CookedPackageNamesWithoutAssetData.Len()
}

type Status struct {
	IsSearching        bool
	NumFilesToSearch   int
	NumPathsToSearch   int
	IsDiscoveringFiles bool
}

type fileToSearch struct {
	filename    string
	packageName string
	modTime     time.Time
}

type decodeOutcome struct {
	file   fileToSearch
	result *packageReader.Result
	cached bool
	err    error
}

type Gatherer struct {
	log       *logrus.Logger
	metrics   *metrics.Metrics
	mounts    *packageName.MountTable
	cache     *scanCache.Cache
	isPrimary bool
	excludes  []string
	pool      *workerpool.WorkerPool
	ownsPool  bool
	batchSize int

	mu            sync.Mutex
	pathsToSearch []string // disk directories, used as a stack
	priorityFiles GatherResults[fileToSearch]
	filesToSearch GatherResults[fileToSearch]
	priorityPath  string
	results       Results
	inFlight      int
	searching     bool
	searchStart   time.Time
	searchedFiles int
	idleWaiters   []chan struct{}

	started  atomic.Bool
	stop     atomic.Bool
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) (*Gatherer, error) {
	if cfg.Mounts == nil {
		return nil, ErrNoMounts
	}
	for _, p := range cfg.ExcludePatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrBadPattern, p)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}

	g := &Gatherer{
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		mounts:    cfg.Mounts,
		cache:     cfg.Cache,
		isPrimary: cfg.IsPrimary,
		excludes:  cfg.ExcludePatterns,
		pool:      cfg.WorkerPool,
		batchSize: cfg.BatchSize,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	if g.pool == nil {
		g.pool = workerpool.NewWorkerPool(workerpool.Config{})
		g.ownsPool = true
	}

	for _, p := range cfg.Paths {
		g.AddPathToSearch(p)
	}
	g.AddFilesToSearch(cfg.Files)
	return g, nil
}

// Start runs discovery and decoding in the background until Stop or until
// ctx is cancelled.
func (g *Gatherer) Start(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go func() {
		defer close(g.done)
		g.run(ctx, false)
	}()
	return nil
}

// Stop asks the background loop to end after the current file and waits
// for it.
func (g *Gatherer) Stop() {
	g.stopOnce.Do(func() {
		g.stop.Store(true)
		g.signal()
		if g.started.Load() {
			<-g.done
		}
		g.mu.Lock()
		g.releaseWaitersLocked()
		g.mu.Unlock()
		if g.isPrimary && g.cache != nil {
			if err := g.cache.Persist(); err != nil {
				g.log.WithError(err).Warn("Persisting scan cache failed")
			}
		}
		if g.ownsPool {
			g.pool.Close()
		}
	})
}

// EnsureCompletion blocks until all queued work is done. Without Start the
// work runs on the calling goroutine.
func (g *Gatherer) EnsureCompletion(ctx context.Context) error {
	if !g.started.Load() {
		g.run(ctx, true)
		return ctx.Err()
	}

	g.mu.Lock()
	if !g.searching {
		g.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	g.idleWaiters = append(g.idleWaiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gatherer) signal() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *Gatherer) run(ctx context.Context, untilIdle bool) {
	if g.cache != nil {
		if err := g.cache.Load(); err != nil {
			g.log.WithError(err).Warn("Scan cache unavailable, decoding every file")
		}
	}

	for !g.stop.Load() && ctx.Err() == nil {
		if g.step() {
			continue
		}
		g.finishSearch()
		if untilIdle {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-g.wake:
		}
	}
}

// step performs one round of discovery and one decode batch. It reports
// whether there was anything to do.
func (g *Gatherer) step() bool {
	discovered := g.discover()
	decoded := g.decodeBatch()
	g.updateGauges()
	return discovered || decoded
}

func (g *Gatherer) isExcluded(longName string) bool {
	for _, p := range g.excludes {
		if ok, _ := doublestar.Match(p, longName); ok {
			return true
		}
	}
	return false
}

func (g *Gatherer) beginSearchLocked() {
	if !g.searching {
		g.searching = true
		g.searchStart = time.Now()
		g.searchedFiles = 0
	}
}

// AddPathToSearch queues a long package path for a recursive walk.
func (g *Gatherer) AddPathToSearch(path string) {
	dir, err := g.mounts.PackagePathToDirectory(path)
	if err != nil {
		g.log.WithFields(logrus.Fields{"path": path}).Warnf("Cannot search path: %v", err)
		return
	}
	g.mu.Lock()
	g.beginSearchLocked()
	g.pathsToSearch = append(g.pathsToSearch, dir)
	g.mu.Unlock()
	g.signal()
}

// AddFilesToSearch queues content files for decoding.
func (g *Gatherer) AddFilesToSearch(files []string) {
	if len(files) == 0 {
		return
	}
	queued := make([]fileToSearch, 0, len(files))
	for _, f := range files {
		if entry, ok := g.fileEntry(f, nil); ok {
			queued = append(queued, entry)
		}
	}

	g.mu.Lock()
	g.beginSearchLocked()
	g.queueFilesLocked(queued)
	g.mu.Unlock()
	g.signal()
}

func (g *Gatherer) fileEntry(filename string, info fs.FileInfo) (fileToSearch, bool) {
	fields := logrus.Fields{"file": filename}
	name, err := g.mounts.FilenameToLongPackageName(filename)
	if err != nil {
		g.log.WithFields(fields).Debugf("Skipping file: %v", err)
		return fileToSearch{}, false
	}
	if g.isExcluded(name) {
		return fileToSearch{}, false
	}
	if info == nil {
		info, err = os.Stat(filename)
		if err != nil {
			g.log.WithFields(fields).Warnf("Skipping file: %v", err)
			return fileToSearch{}, false
		}
	}
	return fileToSearch{filename: filename, packageName: name, modTime: info.ModTime()}, true
}

func (g *Gatherer) queueFilesLocked(files []fileToSearch) {
	for _, f := range files {
		if g.priorityPath != "" && packageName.IsChildPath(f.packageName, g.priorityPath) {
			g.priorityFiles.Push(f)
		} else {
			g.filesToSearch.Push(f)
		}
	}
	g.metrics.FilesDiscovered.Add(float64(len(files)))
}

// PrioritizeSearchPath moves files and directories below path ahead of
// everything else. Files discovered later below path are prioritized too.
func (g *Gatherer) PrioritizeSearchPath(path string) {
	dir, dirErr := g.mounts.PackagePathToDirectory(path)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.priorityPath = path

	match := func(f fileToSearch) bool { return packageName.IsChildPath(f.packageName, path) }
	n := g.filesToSearch.Prioritize(match)
	for i := 0; i < n; i++ {
		f, _ := g.filesToSearch.Pop()
		g.priorityFiles.Push(f)
	}
	g.filesToSearch.Trim()

	if dirErr != nil {
		return
	}
	// the stack pops from the end, so matching directories go last
	var rest, matching []string
	for _, d := range g.pathsToSearch {
		if d == dir || isSubDir(d, dir) {
			matching = append(matching, d)
		} else {
			rest = append(rest, d)
		}
	}
	g.pathsToSearch = append(rest, matching...)
}

func isSubDir(child, parent string) bool {
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// discover walks up to one batch of directories, one level each.
func (g *Gatherer) discover() bool {
	g.mu.Lock()
	n := len(g.pathsToSearch)
	if n == 0 {
		g.mu.Unlock()
		return false
	}
	take := min(n, g.batchSize)
	dirs := make([]string, take)
	for i := range dirs {
		dirs[i] = g.pathsToSearch[n-1-i]
	}
	g.pathsToSearch = g.pathsToSearch[:n-take]
	g.mu.Unlock()

	for _, dir := range dirs {
		if g.stop.Load() {
			break
		}
		g.discoverDirectory(dir)
	}
	return true
}

func (g *Gatherer) discoverDirectory(dir string) {
	fields := logrus.Fields{"dir": dir}
	pkgPath, err := g.mounts.DirectoryToPackagePath(dir)
	if err != nil {
		g.log.WithFields(fields).Debugf("Skipping directory: %v", err)
		return
	}
	if g.isExcluded(pkgPath) {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			g.log.WithFields(fields).Debug("Directory vanished before it was searched")
		} else {
			g.log.WithFields(fields).Warnf("Cannot read directory: %v", err)
		}
		return
	}

	var subDirs []string
	var files []fileToSearch
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			subDirs = append(subDirs, full)
			continue
		}
		if !packageName.IsPackageExtension(filepath.Ext(e.Name())) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if f, ok := g.fileEntry(full, info); ok {
			files = append(files, f)
		}
	}

	g.mu.Lock()
	g.results.Paths.Push(pkgPath)
	// reversed so the first entry is walked first
	for i := len(subDirs) - 1; i >= 0; i-- {
		g.pathsToSearch = append(g.pathsToSearch, subDirs[i])
	}
	g.queueFilesLocked(files)
	g.mu.Unlock()
}

func (g *Gatherer) popFilesLocked() []fileToSearch {
	batch := make([]fileToSearch, 0, g.batchSize)
	for len(batch) < g.batchSize {
		f, ok := g.priorityFiles.Pop()
		if !ok {
			if f, ok = g.filesToSearch.Pop(); !ok {
				break
			}
		}
		batch = append(batch, f)
	}
	g.priorityFiles.Trim()
	g.filesToSearch.Trim()
	return batch
}

func (g *Gatherer) decodeBatch() bool {
	g.mu.Lock()
	batch := g.popFilesLocked()
	g.inFlight += len(batch)
	g.mu.Unlock()
	if len(batch) == 0 {
		return false
	}

	room := g.pool.CreateRoom(len(batch))
	var inline []decodeOutcome
	for _, f := range batch {
		f := f
		if err := room.NewTaskWaitForFreeSlot(func() any { return g.readFile(f) }); err != nil {
			inline = append(inline, g.readFile(f))
		}
	}
	collected := room.Collect()

	outcomes := make([]decodeOutcome, 0, len(batch))
	for _, c := range collected {
		outcomes = append(outcomes, c.(decodeOutcome))
	}
	outcomes = append(outcomes, inline...)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight -= len(batch)
	for _, o := range outcomes {
		g.collectLocked(o)
	}
	return true
}

func (g *Gatherer) readFile(f fileToSearch) decodeOutcome {
	out := decodeOutcome{file: f}
	if g.stop.Load() {
		out.err = context.Canceled
		return out
	}
	if g.cache != nil {
		if res, ok := g.cache.Lookup(f.filename, f.modTime); ok && res.PackageName == f.packageName {
			out.result, out.cached = res, true
			return out
		}
	}
	out.result, out.err = packageReader.ReadFile(f.filename, f.packageName)
	if out.err == nil && g.cache != nil {
		g.cache.Store(f.filename, f.modTime, out.result)
	}
	return out
}

func (g *Gatherer) collectLocked(o decodeOutcome) {
	if o.err != nil {
		if !errors.Is(o.err, context.Canceled) {
			g.metrics.DecodeFailures.Inc()
			g.log.WithFields(logrus.Fields{"file": o.file.filename}).Warnf("Skipping content file: %v", o.err)
		}
		return
	}

	g.searchedFiles++
	g.metrics.FilesDecoded.Inc()
	if o.cached {
		g.metrics.CacheHits.Inc()
	} else {
		g.metrics.CacheMisses.Inc()
	}

	res := o.result
	if res.CookedWithoutAssetData {
		g.results.CookedPackageNamesWithoutAssetData.Push(res.PackageName)
		return
	}
	g.results.Assets.Push(res.Assets...)
	g.results.Dependencies.Push(res.Dependencies)
}

func (g *Gatherer) hasWorkLocked() bool {
	return len(g.pathsToSearch) > 0 || g.priorityFiles.Len() > 0 || g.filesToSearch.Len() > 0 || g.inFlight > 0
}

func (g *Gatherer) finishSearch() {
	g.mu.Lock()
	if !g.searching || g.hasWorkLocked() {
		g.mu.Unlock()
		return
	}
	g.searching = false
	elapsed := time.Since(g.searchStart)
	files := g.searchedFiles
	g.results.SearchTimes = append(g.results.SearchTimes, elapsed)
	g.releaseWaitersLocked()
	g.mu.Unlock()

	g.log.WithFields(logrus.Fields{
		"files":    files,
		"duration": elapsed,
	}).Debug("Asset search completed")

	if g.isPrimary && g.cache != nil {
		if err := g.cache.Persist(); err != nil {
			g.log.WithError(err).Warn("Persisting scan cache failed")
		}
	}
}

func (g *Gatherer) releaseWaitersLocked() {
	for _, ch := range g.idleWaiters {
		close(ch)
	}
	g.idleWaiters = nil
}

func (g *Gatherer) updateGauges() {
	g.mu.Lock()
	files := g.priorityFiles.Len() + g.filesToSearch.Len() + g.inFlight
	paths := len(g.pathsToSearch)
	g.mu.Unlock()
	g.metrics.PendingFiles.Set(float64(files))
	g.metrics.PendingPaths.Set(float64(paths))
}

// GetAndTrimSearchResults moves everything gathered so far into out.
func (g *Gatherer) GetAndTrimSearchResults(out *Results) Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.results.Assets.MoveTo(&out.Assets)
	g.results.Paths.MoveTo(&out.Paths)
	g.results.Dependencies.MoveTo(&out.Dependencies)
	g.results.CookedPackageNamesWithoutAssetData.MoveTo(&out.CookedPackageNamesWithoutAssetData)
	out.SearchTimes = append(out.SearchTimes, g.results.SearchTimes...)
	g.results.SearchTimes = nil

	return g.statusLocked()
}

func (g *Gatherer) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Gatherer) statusLocked() Status {
	return Status{
		IsSearching:        g.searching,
		NumFilesToSearch:   g.priorityFiles.Len() + g.filesToSearch.Len() + g.inFlight,
		NumPathsToSearch:   len(g.pathsToSearch),
		IsDiscoveringFiles: len(g.pathsToSearch) > 0,
	}
}
