package assetregistry

import (
	"os"

	"github.com/i5heu/asset-registry/internal/config"
	"github.com/i5heu/asset-registry/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Config configures a registry instance.
type Config struct {
	// Paths contains data directories. Paths[0] holds the scan cache; with
	// no paths the cache is disabled.
	Paths []string
	// MinimumFreeGB is a free-space threshold for the scan cache directory.
	MinimumFreeGB uint
	// Logger is an optional structured logger. If nil, a stderr logger is used.
	Logger *logrus.Logger
	// Registerer receives the registry's collectors. Nil keeps them private.
	Registerer prometheus.Registerer

	// Settings carries mounts, scan tuning and serialization options.
	Settings config.Config

	ChunkInstaller ChunkInstaller
	ContentLoader  ContentLoader
}

// DefaultConfig returns a Config with default settings and no mounts.
func DefaultConfig() Config {
	return Config{Settings: config.Default()}
}

// ConfigFromFile loads settings from a YAML file and derives the rest of the
// configuration from them.
func ConfigFromFile(path string) (Config, error) {
	settings, err := config.Load(path)
	if err != nil {
		return Config{}, err
	}
	conf := Config{
		MinimumFreeGB: settings.MinimumFreeGB,
		Logger:        logging.NewWithOptions(os.Stderr, logging.ParseLevel(settings.LogLevel), false),
		Settings:      settings,
	}
	if settings.ScanCacheDir != "" {
		conf.Paths = []string{settings.ScanCacheDir}
	}
	return conf, nil
}
