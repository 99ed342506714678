package keyValStore

import (
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// calculateDirectorySize sums the sizes of all files below path.
func calculateDirectorySize(path string) (size int64, err error) {
	err = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return
}

// logDiskUsage reports disk and store usage of every configured path.
func (k *KeyValStore) logDiskUsage() {
	for _, path := range k.config.Paths {
		usage, err := disk.Usage(path)
		if err != nil {
			k.log.WithFields(logrus.Fields{"path": path}).Warnf("Error retrieving disk usage stats: %v", err)
			continue
		}
		storeSize, err := calculateDirectorySize(path)
		if err != nil {
			k.log.WithFields(logrus.Fields{"path": path}).Warnf("Error calculating directory size: %v", err)
			continue
		}
		k.log.WithFields(logrus.Fields{
			"path":       path,
			"filesystem": usage.Fstype,
			"total":      humanize.IBytes(usage.Total),
			"used":       humanize.IBytes(usage.Used),
			"free":       humanize.IBytes(usage.Free),
			"store":      humanize.IBytes(uint64(storeSize)),
		}).Debug("Disk usage")
	}
}
