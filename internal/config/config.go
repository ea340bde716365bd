// Package config loads and defaults the code intelligence core's
// configuration, following the teacher's per-concern struct convention:
// one file per section, each with a Default*Config constructor.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config aggregates all configuration sections for the core.
type Config struct {
	Store       StoreConfig     `yaml:"store"`
	Watcher     WatcherConfig   `yaml:"watcher"`
	Discovery   DiscoveryConfig `yaml:"discovery"`
	Resolver    ResolverConfig  `yaml:"resolver"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// Default returns a Config with every section defaulted.
func Default() Config {
	return Config{
		Store:     DefaultStoreConfig(),
		Watcher:   DefaultWatcherConfig(),
		Discovery: DefaultDiscoveryConfig(),
		Resolver:  DefaultResolverConfig(),
		Logging:   DefaultLoggingConfig(),
	}
}

// Load reads a YAML config file at path, falling back to defaults for any
// section not present. A missing file is not an error — it simply yields
// Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
