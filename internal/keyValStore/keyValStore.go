// Package keyValStore is a small badger wrapper for the registry's on-disk
// caches.
package keyValStore

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/sirupsen/logrus"
)

var ErrKeyNotFound = errors.New("keyValStore: key not found")

type StoreConfig struct {
	Paths            []string // only the first path is used
	MinimumFreeSpace int      // in GB, 0 disables the check
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config       StoreConfig
	log          *logrus.Logger
	badgerDB     *badger.DB
	readCounter  atomic.Uint64
	writeCounter atomic.Uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logging.New()
	}

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 64
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", config.Paths[0], err)
	}

	k := &KeyValStore{
		config:   config,
		log:      config.Logger,
		badgerDB: db,
	}
	k.logDiskUsage()
	return k, nil
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	k.writeCounter.Add(1)
	return k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
}

// WriteBatch writes all pairs through one badger write batch.
func (k *KeyValStore) WriteBatch(batch [][2][]byte) error {
	wb := k.badgerDB.NewWriteBatch()
	defer wb.Cancel()

	for _, kv := range batch {
		k.writeCounter.Add(1)
		if err := wb.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("error writing batch: %w", err)
		}
	}
	return wb.Flush()
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	k.readCounter.Add(1)
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading key %q: %w", key, err)
	}
	return value, nil
}

func (k *KeyValStore) Delete(keys ...[]byte) error {
	return k.badgerDB.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			k.writeCounter.Add(1)
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetItemsWithPrefix returns every key/value pair whose key starts with prefix.
func (k *KeyValStore) GetItemsWithPrefix(prefix []byte) ([][2][]byte, error) {
	var keysAndValues [][2][]byte
	k.readCounter.Add(1)
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keysAndValues = append(keysAndValues, [2][]byte{item.KeyCopy(nil), v})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keysAndValues, nil
}

// Counters returns the read and write operations since open.
func (k *KeyValStore) Counters() (reads, writes uint64) {
	return k.readCounter.Load(), k.writeCounter.Load()
}

// Clean syncs, compacts and garbage collects the value log.
func (k *KeyValStore) Clean() error {
	if err := k.badgerDB.Sync(); err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}
	if err := k.badgerDB.Flatten(runtime.NumCPU()); err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	err := k.badgerDB.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}
	return nil
}

func (k *KeyValStore) Close() error {
	cleanErr := k.Clean()
	if cleanErr != nil {
		k.log.WithError(cleanErr).Warn("Cleaning store before close failed")
	}
	return k.badgerDB.Close()
}
