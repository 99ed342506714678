// Package scanCache keeps decoded content files on disk, keyed by filename
// and modification time, so a rescan only decodes files that changed.
package scanCache

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i5heu/asset-registry/internal/binaryCoder"
	"github.com/i5heu/asset-registry/internal/keyValStore"
	"github.com/i5heu/asset-registry/internal/packageReader"
	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "scan:"

var ErrClosed = errors.New("scanCache: cache is closed")

type Config struct {
	Dir string
	// IsPrimary allows Persist to write. Secondary instances only read.
	IsPrimary        bool
	MinimumFreeSpace int
	Logger           *logrus.Logger
}

type entry struct {
	modTime int64
	data    []byte
}

type Stats struct {
	Entries int
	Pending int
	Hits    uint64
	Misses  uint64
}

type Cache struct {
	log       *logrus.Logger
	isPrimary bool
	store     *keyValStore.KeyValStore

	loadOnce sync.Once
	loadErr  error

	mu      sync.RWMutex
	entries map[string]entry
	pending map[string]entry
	closed  bool

	hits   atomic.Uint64
	misses atomic.Uint64
}

func Open(cfg Config) (*Cache, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	store, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:            []string{cfg.Dir},
		MinimumFreeSpace: cfg.MinimumFreeSpace,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open scan cache: %w", err)
	}
	return &Cache{
		log:       cfg.Logger,
		isPrimary: cfg.IsPrimary,
		store:     store,
		entries:   make(map[string]entry),
		pending:   make(map[string]entry),
	}, nil
}

// Load reads every cached entry into memory. It runs once; later calls
// return the first result.
func (c *Cache) Load() error {
	c.loadOnce.Do(func() {
		start := time.Now()
		items, err := c.store.GetItemsWithPrefix([]byte(keyPrefix))
		if err != nil {
			c.loadErr = fmt.Errorf("load scan cache: %w", err)
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		dropped := 0
		for _, kv := range items {
			e, ok := decodeEntry(kv[1])
			if !ok {
				dropped++
				continue
			}
			c.entries[strings.TrimPrefix(string(kv[0]), keyPrefix)] = e
		}
		c.log.WithFields(logrus.Fields{
			"entries":  len(c.entries),
			"dropped":  dropped,
			"duration": time.Since(start),
		}).Debug("Loaded scan cache")
	})
	return c.loadErr
}

// Lookup returns the cached decode result of filename if it was stored with
// the same modification time.
func (c *Cache) Lookup(filename string, modTime time.Time) (*packageReader.Result, bool) {
	if err := c.Load(); err != nil {
		c.misses.Add(1)
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.pending[filename]
	if !ok {
		e, ok = c.entries[filename]
	}
	c.mu.RUnlock()

	if !ok || e.modTime != modTime.UnixNano() {
		c.misses.Add(1)
		return nil, false
	}
	res, err := packageReader.DecodeResult(e.data)
	if err != nil {
		c.log.WithFields(logrus.Fields{"file": filename}).Warnf("Discarding unreadable scan cache entry: %v", err)
		c.mu.Lock()
		delete(c.entries, filename)
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return res, true
}

// Store remembers a freshly decoded result until the next Persist.
func (c *Cache) Store(filename string, modTime time.Time, res *packageReader.Result) {
	e := entry{modTime: modTime.UnixNano(), data: packageReader.EncodeResult(res)}
	c.mu.Lock()
	c.pending[filename] = e
	c.mu.Unlock()
}

// Persist writes pending entries. Non-primary caches drop them.
func (c *Cache) Persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if len(c.pending) == 0 {
		return nil
	}
	if !c.isPrimary {
		c.log.WithFields(logrus.Fields{"entries": len(c.pending)}).Debug("Not persisting scan cache from a secondary gatherer")
		for name, e := range c.pending {
			c.entries[name] = e
		}
		clear(c.pending)
		return nil
	}

	batch := make([][2][]byte, 0, len(c.pending))
	for name, e := range c.pending {
		batch = append(batch, [2][]byte{[]byte(keyPrefix + name), encodeEntry(e)})
	}
	if err := c.store.WriteBatch(batch); err != nil {
		return fmt.Errorf("persist scan cache: %w", err)
	}
	for name, e := range c.pending {
		c.entries[name] = e
	}
	clear(c.pending)
	return nil
}

// Forget drops filename from memory and, on the primary, from disk.
func (c *Cache) Forget(filename string) error {
	c.mu.Lock()
	delete(c.entries, filename)
	delete(c.pending, filename)
	c.mu.Unlock()
	if !c.isPrimary {
		return nil
	}
	return c.store.Delete([]byte(keyPrefix + filename))
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries: len(c.entries),
		Pending: len(c.pending),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

func (c *Cache) IsPrimary() bool { return c.isPrimary }

// Close persists pending entries and closes the store.
func (c *Cache) Close() error {
	persistErr := c.Persist()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	reads, writes := c.store.Counters()
	c.log.WithFields(logrus.Fields{"reads": reads, "writes": writes}).Debug("Closing scan cache")
	return errors.Join(persistErr, c.store.Close())
}

func encodeEntry(e entry) []byte {
	w := binaryCoder.NewWriter()
	w.WriteFixed64(uint64(e.modTime))
	w.WriteBytes(e.data)
	return w.Bytes()
}

func decodeEntry(b []byte) (entry, bool) {
	r := binaryCoder.NewReader(b)
	e := entry{modTime: int64(r.ReadFixed64()), data: r.ReadBytes()}
	return e, !r.Failed() && r.Remaining() == 0
}
