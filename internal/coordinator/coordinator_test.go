package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeplane/internal/config"
	"codeplane/internal/discovery"
	"codeplane/internal/epoch"
	"codeplane/internal/indexer"
	"codeplane/internal/lexical"
	"codeplane/internal/parser"
	"codeplane/internal/reconcile"
	"codeplane/internal/resolver"
	"codeplane/internal/store"
	"codeplane/internal/vcs"
)

const widgetSource = `package sample

type Widget struct {
	Name string
}

func NewWidget(name string) *Widget {
	return &Widget{Name: name}
}
`

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := config.DefaultStoreConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunCycle_ReconcilesRoutesIndexesResolvesAndPublishes(t *testing.T) {
	repoRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "sample.go"), []byte(widgetSource), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "go.mod"), []byte("module sample\n"), 0o644))

	st := newTestStore(t)
	disc := discovery.New(config.DefaultDiscoveryConfig(), nil)
	rec := reconcile.New(st, repoRoot, vcs.NullRepository{})
	registry := parser.NewRegistry(parser.NewGoParser())
	lex := lexical.New(filepath.Join(t.TempDir(), "lexical"))
	idx := indexer.New(st, registry, lex, repoRoot)
	res := resolver.New(st, config.DefaultResolverConfig())
	ep := epoch.New(st, lex, filepath.Join(t.TempDir(), "journals"))

	c := New(disc, rec, idx, res, ep, nil)

	result, err := c.RunCycle(context.Background(), repoRoot, []string{"sample.go"})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Reconcile.FilesAdded)
	assert.Equal(t, 1, result.Indexed.FilesIndexed)
	assert.Equal(t, int64(1), result.Epoch.EpochID)

	f, err := st.FileByPath("sample.go")
	require.NoError(t, err)
	require.NotNil(t, f)
}
