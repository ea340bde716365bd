package mutate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileEngine_Apply_ReplacesMatchingHunk(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.go", "package foo\n\nfunc Old() {}\n")

	engine := NewFileEngine(dir)
	edit := FileEdit{
		Path:        "a.go",
		ContentHash: hashContent([]byte("package foo\n\nfunc Old() {}\n")),
		Hunks:       []EditHunk{{Old: "Old", New: "New", Line: 3, Certainty: "high"}},
	}

	result, err := engine.Apply(context.Background(), []FileEdit{edit})

	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, result.Applied)
	assert.Empty(t, result.Diverged)

	updated, err := os.ReadFile(filepath.Join(dir, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "package foo\n\nfunc New() {}\n", string(updated))
}

func TestFileEngine_Apply_DivergedContentIsTrapped(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.go", "package foo\n\nfunc Changed() {}\n")

	engine := NewFileEngine(dir)
	edit := FileEdit{
		Path:        "a.go",
		ContentHash: hashContent([]byte("package foo\n\nfunc Old() {}\n")),
		Hunks:       []EditHunk{{Old: "Old", New: "New", Line: 3, Certainty: "high"}},
	}

	result, err := engine.Apply(context.Background(), []FileEdit{edit})

	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	require.Len(t, result.Diverged, 1)
	assert.Equal(t, "a.go", result.Diverged[0].Path)

	unchanged, err := os.ReadFile(filepath.Join(dir, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "package foo\n\nfunc Changed() {}\n", string(unchanged))
}

func TestApplyHunks_LineOutOfRangeErrors(t *testing.T) {
	_, err := applyHunks("one\ntwo\n", []EditHunk{{Old: "x", New: "y", Line: 50}})
	assert.Error(t, err)
}

func TestApplyHunks_OldTextNotFoundErrors(t *testing.T) {
	_, err := applyHunks("one\ntwo\n", []EditHunk{{Old: "missing", New: "y", Line: 1}})
	assert.Error(t, err)
}
