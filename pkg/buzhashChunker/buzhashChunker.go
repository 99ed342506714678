// Package buzhashChunker fingerprints package files. Content defined chunk
// boundaries keep the fingerprint of each chunk stable when bytes elsewhere
// in the file move.
package buzhashChunker

import (
	"bytes"
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/i5heu/asset-registry/pkg/types"
	chunker "github.com/ipfs/boxo/chunker"
)

type Chunk struct {
	Hash   types.Hash
	Offset int64
	Length uint32
}

// Chunks splits r with buzhash and hashes every chunk.
func Chunks(r io.Reader) ([]Chunk, error) {
	bz := chunker.NewBuzhash(r)
	var chunks []Chunk
	var offset int64
	for {
		data, err := bz.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading chunk: %w", err)
		}
		chunks = append(chunks, Chunk{
			Hash:   sha512.Sum512(data),
			Offset: offset,
			Length: uint32(len(data)),
		})
		offset += int64(len(data))
	}
	return chunks, nil
}

// Fingerprint folds the chunk hashes of data into one SHA-512.
func Fingerprint(data []byte) (types.Hash, error) {
	return FingerprintReader(bytes.NewReader(data))
}

func FingerprintReader(r io.Reader) (types.Hash, error) {
	chunks, err := Chunks(r)
	if err != nil {
		return types.Hash{}, err
	}
	h := sha512.New()
	for _, c := range chunks {
		h.Write(c.Hash[:])
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}
