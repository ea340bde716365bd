package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeplane/internal/config"
	"codeplane/internal/lexical"
	"codeplane/internal/model"
	"codeplane/internal/parser"
	"codeplane/internal/store"
)

const sampleSource = `package sample

type Widget struct {
	Name string
}

func NewWidget(name string) *Widget {
	return &Widget{Name: name}
}

func (w *Widget) Describe() string {
	other := Widget{Name: "shadow"}
	fallback := NewWidget("fallback")
	if other.Name == "" {
		return fallback.Name
	}
	return other.Describe()
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

func TestIndexBatch_WritesAllSevenFactKinds(t *testing.T) {
	st := newTestStore(t)
	_, err := st.DB().Exec(`INSERT INTO contexts (root, language, probed) VALUES ('/repo', 'go', 1)`)
	require.NoError(t, err)

	repoRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "sample.go"), []byte(sampleSource), 0o644))

	registry := parser.NewRegistry(parser.NewGoParser())
	lex := lexical.New(filepath.Join(t.TempDir(), "lexical"))
	ix := New(st, registry, lex, repoRoot)

	result, err := ix.IndexBatch(context.Background(), []string{"sample.go"}, 1)

	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
	assert.Empty(t, result.ParseErrors)
	assert.Empty(t, result.Skipped)

	f, err := st.FileByPath("sample.go")
	require.NoError(t, err)
	require.NotNil(t, f)

	defs, err := st.DefFactsByFile(f.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, defs)

	imports, err := st.ImportFactsAll()
	require.NoError(t, err)
	assert.Empty(t, imports) // sampleSource imports nothing

	refs, err := st.RefFactsUnresolved(model.TierProven + 1)
	require.NoError(t, err)
	assert.NotEmpty(t, refs)

	access, err := st.MemberAccessFactsByFiles([]int64{f.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, access)

	typeNames, err := st.AllTypeNames()
	require.NoError(t, err)
	assert.Contains(t, typeNames, "Widget")

	binds, err := st.LocalBindFactsByFile(f.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, binds)

	shapes, err := st.ReceiverShapeFactsByHash(f.ID, parser.ExprHash("other"))
	require.NoError(t, err)
	assert.NotEmpty(t, shapes)
}

func TestIndexBatch_ReplacesFactsOnReindex(t *testing.T) {
	st := newTestStore(t)
	_, err := st.DB().Exec(`INSERT INTO contexts (root, language, probed) VALUES ('/repo', 'go', 1)`)
	require.NoError(t, err)

	repoRoot := t.TempDir()
	path := filepath.Join(repoRoot, "sample.go")
	require.NoError(t, os.WriteFile(path, []byte(sampleSource), 0o644))

	registry := parser.NewRegistry(parser.NewGoParser())
	lex := lexical.New(filepath.Join(t.TempDir(), "lexical"))
	ix := New(st, registry, lex, repoRoot)

	_, err = ix.IndexBatch(context.Background(), []string{"sample.go"}, 1)
	require.NoError(t, err)

	f, err := st.FileByPath("sample.go")
	require.NoError(t, err)
	before, err := st.DefFactsByFile(f.ID)
	require.NoError(t, err)

	_, err = ix.IndexBatch(context.Background(), []string{"sample.go"}, 1)
	require.NoError(t, err)

	after, err := st.DefFactsByFile(f.ID)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestIndexBatch_SkipsFilesWithNoRegisteredParser(t *testing.T) {
	st := newTestStore(t)
	_, err := st.DB().Exec(`INSERT INTO contexts (root, language, probed) VALUES ('/repo', 'go', 1)`)
	require.NoError(t, err)

	repoRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "notes.txt"), []byte("just text"), 0o644))

	registry := parser.NewRegistry(parser.NewGoParser())
	lex := lexical.New(filepath.Join(t.TempDir(), "lexical"))
	ix := New(st, registry, lex, repoRoot)

	result, err := ix.IndexBatch(context.Background(), []string{"notes.txt"}, 1)

	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesIndexed)
	assert.Equal(t, []string{"notes.txt"}, result.Skipped)
}
