package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeplane/internal/model"
)

func snap(kind, name, lexPath, sig string, start, end int) model.DefSnapshotRecord {
	return model.DefSnapshotRecord{
		Kind: kind, Name: name, LexicalPath: lexPath,
		Signature: sig, SignatureHash: sig,
		StartLine: start, EndLine: end,
	}
}

func TestComputeStructuralDiff_RemovedAndAddedWithSameSignatureIsRename(t *testing.T) {
	base := map[string][]model.DefSnapshotRecord{
		"a.go": {snap("function", "Old", "Old", "()", 1, 3)},
	}
	target := map[string][]model.DefSnapshotRecord{
		"a.go": {snap("function", "New", "New", "()", 1, 3)},
	}
	files := []ChangedFile{{Path: "a.go", Status: "modified", HasGrammar: true, Language: "go"}}

	result := ComputeStructuralDiff(base, target, files, nil)

	require.Len(t, result.Changes, 1)
	assert.Equal(t, 1, result.FilesAnalyzed)
	change := result.Changes[0]
	assert.Equal(t, "renamed", change.Change)
	assert.Equal(t, "Old", change.OldName)
	assert.Equal(t, "New", change.Name)
}

func TestComputeStructuralDiff_SignatureChanged(t *testing.T) {
	base := map[string][]model.DefSnapshotRecord{
		"a.go": {snap("function", "F", "F", "func F(x int)", 1, 3)},
	}
	target := map[string][]model.DefSnapshotRecord{
		"a.go": {snap("function", "F", "F", "func F(x int, y int)", 1, 3)},
	}
	files := []ChangedFile{{Path: "a.go", Status: "modified", HasGrammar: true}}

	result := ComputeStructuralDiff(base, target, files, nil)

	require.Len(t, result.Changes, 1)
	assert.Equal(t, "signature_changed", result.Changes[0].Change)
	assert.Equal(t, "breaking", result.Changes[0].StructuralSeverity)
}

func TestComputeStructuralDiff_NonGrammarFileIsClassifiedNotDiffed(t *testing.T) {
	files := []ChangedFile{{Path: "README.md", Status: "modified", HasGrammar: false}}

	result := ComputeStructuralDiff(nil, nil, files, nil)

	assert.Empty(t, result.Changes)
	assert.Equal(t, 0, result.FilesAnalyzed)
	require.Len(t, result.NonStructuralFiles, 1)
	assert.Equal(t, "docs", result.NonStructuralFiles[0].Category)
}

func TestClassifyFile(t *testing.T) {
	cases := map[string]string{
		"internal/foo/foo_test.go": "test",
		"Makefile":                 "build",
		"go.mod":                  "build",
		"config.yaml":              "config",
		"README.md":                "docs",
		"internal/foo/foo.go":      "prod",
	}
	for path, want := range cases {
		assert.Equal(t, want, ClassifyFile(path), "path=%s", path)
	}
}

func TestIntersectsHunks_EpochModeAlwaysTrue(t *testing.T) {
	assert.True(t, intersectsHunks(10, 20, nil, false))
}

func TestIntersectsHunks_KnownHunks(t *testing.T) {
	hunks := []Hunk{{Start: 5, End: 8}}
	assert.True(t, intersectsHunks(1, 20, hunks, true))
	assert.False(t, intersectsHunks(100, 200, hunks, true))
}

func TestDetectRenames_MatchesOnKindAndSignatureHash(t *testing.T) {
	removed := []model.DefSnapshotRecord{snap("function", "Old", "Old", "sig1", 1, 3)}
	added := []model.DefSnapshotRecord{snap("function", "New", "New", "sig1", 1, 3)}

	pairs := detectRenames(removed, added)

	require.Len(t, pairs, 1)
	assert.Equal(t, "Old", pairs[0].old.Name)
	assert.Equal(t, "New", pairs[0].new.Name)
}

func TestDetectRenames_NoMatchOnDifferentSignature(t *testing.T) {
	removed := []model.DefSnapshotRecord{snap("function", "Old", "Old", "sig1", 1, 3)}
	added := []model.DefSnapshotRecord{snap("function", "New", "New", "sig2", 1, 3)}

	assert.Empty(t, detectRenames(removed, added))
}
