// Package config loads the registry's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/i5heu/asset-registry/internal/registryState"
	"gopkg.in/yaml.v2"
)

var ErrInvalid = errors.New("config: invalid configuration")

type Mount struct {
	Root string `yaml:"root"`
	Dir  string `yaml:"dir"`
}

type TagFilter struct {
	Class string `yaml:"class"`
	Tag   string `yaml:"tag"`
}

type Serialization struct {
	SerializeAssetRegistry      bool        `yaml:"serializeAssetRegistry"`
	SerializeDependencies       bool        `yaml:"serializeDependencies"`
	SerializeNameDependencies   bool        `yaml:"serializeNameDependencies"`
	SerializeManageDependencies bool        `yaml:"serializeManageDependencies"`
	SerializePackageData        bool        `yaml:"serializePackageData"`
	UseTagWhitelist             bool        `yaml:"useTagWhitelist"`
	FilterAssetDataWithNoTags   bool        `yaml:"filterAssetDataWithNoTags"`
	ResolveRedirectors          bool        `yaml:"resolveRedirectors"`
	CookedTagsFilter            []TagFilter `yaml:"cookedTagsFilter"`
}

type Config struct {
	Mounts        []Mount       `yaml:"mounts"`
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batchSize"`
	MaxTickBudget time.Duration `yaml:"maxTickBudget"`

	ScanCacheDir    string   `yaml:"scanCacheDir"`
	IsPrimary       bool     `yaml:"isPrimary"`
	ExcludePatterns []string `yaml:"excludePatterns"`
	MinimumFreeGB   uint     `yaml:"minimumFreeGB"`

	Serialization        Serialization `yaml:"serialization"`
	ScriptPackagesToSkip []string      `yaml:"scriptPackagesToSkip"`
	ClassGeneratorNames  []string      `yaml:"classGeneratorNames"`

	SearchOnStart            bool          `yaml:"searchOnStart"`
	UpdateDiskCacheAfterLoad bool          `yaml:"updateDiskCacheAfterLoad"`
	Watch                    bool          `yaml:"watch"`
	WatchDebounce            time.Duration `yaml:"watchDebounce"`
	LogLevel                 string        `yaml:"logLevel"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	return Config{
		MaxTickBudget: 40 * time.Millisecond,
		IsPrimary:     true,
		Serialization: Serialization{
			SerializeAssetRegistry:      true,
			SerializeDependencies:       true,
			SerializeNameDependencies:   true,
			SerializeManageDependencies: true,
			SerializePackageData:        true,
		},
		ScriptPackagesToSkip: []string{
			"/Script/CoreUObject",
			"/Script/Engine",
			"/Script/BlueprintGraph",
			"/Script/UnrealEd",
		},
		ClassGeneratorNames:      []string{"Blueprint"},
		SearchOnStart:            true,
		UpdateDiskCacheAfterLoad: true,
		WatchDebounce:            250 * time.Millisecond,
		LogLevel:                 "info",
	}
}

// Load reads and parses the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	config := Default()
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if config.MaxTickBudget == 0 {
		config.MaxTickBudget = Default().MaxTickBudget
	}
	if config.WatchDebounce <= 0 {
		config.WatchDebounce = Default().WatchDebounce
	}
	if config.Workers < 0 {
		config.Workers = 0
	}

	seen := make(map[string]bool)
	for _, m := range config.Mounts {
		if m.Root == "" || m.Dir == "" {
			return Config{}, fmt.Errorf("%w: mount needs root and dir", ErrInvalid)
		}
		if seen[m.Root] {
			return Config{}, fmt.Errorf("%w: mount root %s listed twice", ErrInvalid, m.Root)
		}
		seen[m.Root] = true
	}
	for _, f := range config.Serialization.CookedTagsFilter {
		if f.Class == "" || f.Tag == "" {
			return Config{}, fmt.Errorf("%w: cookedTagsFilter entries need class and tag", ErrInvalid)
		}
	}
	return config, nil
}

// SerializationOptions converts the serialization section.
func (c Config) SerializationOptions() registryState.SerializationOptions {
	s := c.Serialization
	opts := registryState.SerializationOptions{
		SerializeAssetRegistry:              s.SerializeAssetRegistry,
		SerializeDependencies:               s.SerializeDependencies,
		SerializeSearchableNameDependencies: s.SerializeNameDependencies,
		SerializeManageDependencies:         s.SerializeManageDependencies,
		SerializePackageData:                s.SerializePackageData,
		UseTagAllowList:                     s.UseTagWhitelist,
		FilterAssetDataWithNoTags:           s.FilterAssetDataWithNoTags,
		ResolveRedirectors:                  s.ResolveRedirectors,
	}
	for _, f := range s.CookedTagsFilter {
		opts.AddTagFilter(f.Class, f.Tag)
	}
	return opts
}
