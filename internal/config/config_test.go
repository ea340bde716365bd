package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_FillsEverySectionFromItsOwnDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultStoreConfig(), cfg.Store)
	assert.Equal(t, DefaultWatcherConfig(), cfg.Watcher)
	assert.Equal(t, DefaultDiscoveryConfig(), cfg.Discovery)
	assert.Equal(t, DefaultResolverConfig(), cfg.Resolver)
	assert.Equal(t, DefaultLoggingConfig(), cfg.Logging)
}

func TestLoad_MissingFileYieldsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such-config.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesOnlyGivenSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := "resolver:\n  shape_match_threshold: 0.9\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Resolver.ShapeMatchThreshold)
	// Every section not present in the file keeps its default.
	assert.Equal(t, DefaultStoreConfig(), cfg.Store)
	assert.Equal(t, DefaultWatcherConfig(), cfg.Watcher)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o644))

	_, err := Load(path)

	assert.Error(t, err)
}

func TestDefaultWatcherConfig_IncludesTeacherPrunableDirs(t *testing.T) {
	cfg := DefaultWatcherConfig()

	assert.Contains(t, cfg.PrunableDirs, ".git")
	assert.Contains(t, cfg.PrunableDirs, "node_modules")
	assert.Contains(t, cfg.PrunableDirs, "__pycache__")
}

func TestDefaultDiscoveryConfig_CoversEveryLanguageFamily(t *testing.T) {
	cfg := DefaultDiscoveryConfig()

	for _, lang := range []string{"go", "python", "typescript", "javascript", "rust"} {
		assert.NotEmpty(t, cfg.Markers[lang], "expected markers for %s", lang)
	}
}
