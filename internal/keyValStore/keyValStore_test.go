package keyValStore

import (
	"testing"

	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *KeyValStore {
	t.Helper()
	k, err := NewKeyValStore(StoreConfig{Paths: []string{t.TempDir()}, Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { k.Close() })
	return k
}

func TestWriteReadDelete(t *testing.T) {
	k := openStore(t)
	require.NoError(t, k.Write([]byte("scan:/a"), []byte("one")))

	v, err := k.Read([]byte("scan:/a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)

	require.NoError(t, k.Delete([]byte("scan:/a")))
	_, err = k.Read([]byte("scan:/a"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestWriteBatchAndPrefix(t *testing.T) {
	k := openStore(t)
	require.NoError(t, k.WriteBatch([][2][]byte{
		{[]byte("scan:/a"), []byte("1")},
		{[]byte("scan:/b"), []byte("2")},
		{[]byte("meta:version"), []byte("3")},
	}))

	items, err := k.GetItemsWithPrefix([]byte("scan:"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []byte("scan:/a"), items[0][0])
	assert.Equal(t, []byte("2"), items[1][1])

	reads, writes := k.Counters()
	assert.Equal(t, uint64(1), reads)
	assert.Equal(t, uint64(3), writes)
}

func TestCheckConfig(t *testing.T) {
	_, err := NewKeyValStore(StoreConfig{Logger: logging.Discard()})
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = NewKeyValStore(StoreConfig{Paths: []string{t.TempDir()}, MinimumFreeSpace: 1 << 30, Logger: logging.Discard()})
	assert.ErrorIs(t, err, ErrNotEnoughSpace)
}
