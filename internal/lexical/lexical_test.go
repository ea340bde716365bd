package lexical

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFile_IsInvisibleUntilCommitted(t *testing.T) {
	idx := New("")
	idx.AddFile("a.go", "package a\n\nfunc Widget() {}\n", []string{"Widget"})

	assert.True(t, idx.HasStagedChanges())
	assert.Equal(t, 0, idx.DocCount())
	assert.Empty(t, idx.Search("widget"))

	require.NoError(t, idx.CommitStaged())

	assert.False(t, idx.HasStagedChanges())
	assert.Equal(t, 1, idx.DocCount())
	assert.Equal(t, []string{"a.go"}, idx.Search("widget"))
}

func TestSearch_RanksByMatchedTokenCount(t *testing.T) {
	idx := New("")
	idx.AddFile("a.go", "alpha beta", nil)
	idx.AddFile("b.go", "alpha beta gamma", nil)
	require.NoError(t, idx.CommitStaged())

	results := idx.Search("alpha beta gamma")

	require.Len(t, results, 2)
	assert.Equal(t, "b.go", results[0])
	assert.Equal(t, "a.go", results[1])
}

func TestSearchSymbols_MatchesCaseInsensitiveSubstring(t *testing.T) {
	idx := New("")
	idx.AddFile("a.go", "", []string{"WidgetFactory"})
	require.NoError(t, idx.CommitStaged())

	assert.Equal(t, []string{"a.go"}, idx.SearchSymbols("widget"))
	assert.Empty(t, idx.SearchSymbols("gizmo"))
}

func TestSearchPath_MatchesSubstringOfCommittedPaths(t *testing.T) {
	idx := New("")
	idx.AddFile("internal/store/facts.go", "", nil)
	idx.AddFile("internal/lexical/lexical.go", "", nil)
	require.NoError(t, idx.CommitStaged())

	assert.Equal(t, []string{"internal/store/facts.go"}, idx.SearchPath("store"))
}

func TestRemoveFile_StagedThenCommittedDropsFromSearch(t *testing.T) {
	idx := New("")
	idx.AddFile("a.go", "widget", []string{"Widget"})
	require.NoError(t, idx.CommitStaged())
	require.Equal(t, 1, idx.DocCount())

	idx.RemoveFile("a.go")
	require.NoError(t, idx.CommitStaged())

	assert.Equal(t, 0, idx.DocCount())
	assert.Empty(t, idx.Search("widget"))
	assert.Empty(t, idx.SearchSymbols("widget"))
}

func TestDiscardStaged_LeavesCommittedStateUntouched(t *testing.T) {
	idx := New("")
	idx.AddFile("a.go", "widget", []string{"Widget"})
	require.NoError(t, idx.CommitStaged())

	idx.AddFile("b.go", "gizmo", []string{"Gizmo"})
	idx.RemoveFile("a.go")
	require.True(t, idx.HasStagedChanges())

	idx.DiscardStaged()

	assert.False(t, idx.HasStagedChanges())
	assert.Equal(t, 1, idx.DocCount())
	assert.Equal(t, []string{"a.go"}, idx.Search("widget"))
	assert.Empty(t, idx.Search("gizmo"))
}

func TestClear_StagesRemovalOfEveryCommittedDocument(t *testing.T) {
	idx := New("")
	idx.AddFile("a.go", "widget", nil)
	idx.AddFile("b.go", "gizmo", nil)
	require.NoError(t, idx.CommitStaged())
	require.Equal(t, 2, idx.DocCount())

	idx.Clear()
	require.NoError(t, idx.CommitStaged())

	assert.Equal(t, 0, idx.DocCount())
}

func TestAddFilesBatch_CommitsAllFilesTogether(t *testing.T) {
	idx := New("")
	idx.AddFilesBatch(map[string]stagedFile{
		"a.go": NewStagedFile("alpha", []string{"Alpha"}),
		"b.go": NewStagedFile("beta", []string{"Beta"}),
	})

	require.NoError(t, idx.CommitStaged())

	assert.Equal(t, 2, idx.DocCount())
	assert.Equal(t, []string{"a.go"}, idx.Search("alpha"))
	assert.Equal(t, []string{"b.go"}, idx.Search("beta"))
}

func TestCommitStaged_PersistsAndReloadRestoresFromDisk(t *testing.T) {
	persistPath := filepath.Join(t.TempDir(), "lexical.jsonl")
	idx := New(persistPath)
	idx.AddFile("a.go", "widget factory", []string{"Widget"})
	require.NoError(t, idx.CommitStaged())

	reloaded := New(persistPath)
	require.NoError(t, reloaded.Reload())

	assert.Equal(t, 1, reloaded.DocCount())
	assert.Equal(t, []string{"a.go"}, reloaded.Search("widget"))
	assert.Equal(t, []string{"a.go"}, reloaded.SearchSymbols("widget"))
}

func TestReload_WithNoPersistPathYieldsEmptyIndex(t *testing.T) {
	idx := New("")
	idx.AddFile("a.go", "widget", nil)
	require.NoError(t, idx.CommitStaged())

	require.NoError(t, idx.Reload())

	assert.Equal(t, 0, idx.DocCount())
}
