package keyValStore

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/disk"
)

var (
	ErrNoPath         = errors.New("keyValStore: no path provided in configuration")
	ErrNotDirectory   = errors.New("keyValStore: path is not a directory")
	ErrNotEnoughSpace = errors.New("keyValStore: not enough space available on disk")
)

const gigabyte = 1024 * 1024 * 1024

func (sc *StoreConfig) checkConfig() error {
	if len(sc.Paths) == 0 || sc.Paths[0] == "" {
		return ErrNoPath
	}

	path := sc.Paths[0] // only the first path is used
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	if sc.MinimumFreeSpace <= 0 {
		return nil
	}
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("read disk usage of %s: %w", path, err)
	}
	if usage.Free/gigabyte < uint64(sc.MinimumFreeSpace) {
		return fmt.Errorf("%w: %d GB free, %d GB required", ErrNotEnoughSpace, usage.Free/gigabyte, sc.MinimumFreeSpace)
	}
	return nil
}
