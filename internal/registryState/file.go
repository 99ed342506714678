package registryState

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

type compression int

const (
	compressionNone compression = iota
	compressionXZ
	compressionZstd
)

func compressionFor(path string) compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xz":
		return compressionXZ
	case ".zst", ".zstd":
		return compressionZstd
	}
	return compressionNone
}

func compressingWriter(c compression, w io.Writer) (io.WriteCloser, error) {
	switch c {
	case compressionXZ:
		return xz.NewWriter(w)
	case compressionZstd:
		return zstd.NewWriter(w)
	}
	return nil, nil
}

// SaveFile writes the state to path. A ".xz" suffix selects xz, ".zst" or
// ".zstd" selects zstd, anything else is written raw. The file is replaced
// atomically.
func (s *State) SaveFile(path string, options SerializationOptions) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create registry file: %w", err)
	}
	defer os.Remove(tmp.Name())

	buffered := bufio.NewWriter(tmp)
	var w io.Writer = buffered
	cw, err := compressingWriter(compressionFor(path), buffered)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("create compressor: %w", err)
	}
	if cw != nil {
		w = cw
	}
	if err := s.Save(w, options); err != nil {
		tmp.Close()
		return err
	}
	if cw != nil {
		if err := cw.Close(); err != nil {
			tmp.Close()
			return fmt.Errorf("close compressor: %w", err)
		}
	}
	if err := buffered.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads a file written by SaveFile.
func (s *State) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open registry file: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	switch compressionFor(path) {
	case compressionXZ:
		r, err = xz.NewReader(r)
		if err != nil {
			return fmt.Errorf("open xz reader: %w", err)
		}
	case compressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("open zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return s.Load(r)
}
