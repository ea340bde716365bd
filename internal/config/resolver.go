package config

// ResolverConfig controls the multi-pass reference resolver (internal/resolver, C7).
type ResolverConfig struct {
	// ShapeMatchThreshold is the minimum confidence for shape inference to
	// upgrade a MemberAccessFact (spec.md §4.C7 pass 5). Default 0.7.
	ShapeMatchThreshold float64 `yaml:"shape_match_threshold" json:"shape_match_threshold,omitempty"`
	// ConfigRefExtensions lists extensions eligible for pass 4 (config-file
	// reference extraction).
	ConfigRefExtensions []string `yaml:"config_ref_extensions" json:"config_ref_extensions,omitempty"`
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		ShapeMatchThreshold: 0.7,
		ConfigRefExtensions: []string{".toml", ".yaml", ".yml", ".json", "Makefile"},
	}
}
