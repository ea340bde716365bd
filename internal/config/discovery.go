package config

// DiscoveryConfig controls language-family context discovery (internal/discovery, C4).
type DiscoveryConfig struct {
	// Markers maps a language family to the manifest/build-descriptor
	// basenames that mark a context root for that family.
	Markers map[string][]string `yaml:"markers" json:"markers,omitempty"`
}

func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Markers: map[string][]string{
			"go":         {"go.mod"},
			"python":     {"pyproject.toml", "setup.py", "setup.cfg"},
			"typescript": {"tsconfig.json", "package.json"},
			"javascript": {"package.json"},
			"rust":       {"Cargo.toml"},
		},
	}
}
