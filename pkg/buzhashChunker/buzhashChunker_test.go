package buzhashChunker

import (
	"bytes"
	"crypto/sha512"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunksSmallInput(t *testing.T) {
	chunks, err := Chunks(bytes.NewReader([]byte("Hello World")))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, sha512.Sum512([]byte("Hello World")), [64]byte(chunks[0].Hash))
	assert.Equal(t, uint32(11), chunks[0].Length)
}

func TestChunksCoverInput(t *testing.T) {
	data := make([]byte, 2<<20)
	rand.New(rand.NewSource(7)).Read(data)

	chunks, err := Chunks(bytes.NewReader(data))
	require.NoError(t, err)
	var total int64
	for _, c := range chunks {
		assert.Equal(t, total, c.Offset)
		total += int64(c.Length)
	}
	assert.Equal(t, int64(len(data)), total)
}

func TestFingerprintDetectsChanges(t *testing.T) {
	a, err := Fingerprint([]byte("package one"))
	require.NoError(t, err)
	b, err := Fingerprint([]byte("package one"))
	require.NoError(t, err)
	c, err := Fingerprint([]byte("package two"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, a.IsZero())
}
