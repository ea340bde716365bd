package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathToModule(t *testing.T) {
	assert.Equal(t, "internal.foo.bar", pathToModule("internal/foo/bar.go"))
	assert.Equal(t, "", pathToModule("README"))
}

func TestAffectedTests_DirectImportIsHighConfidence(t *testing.T) {
	paths := []string{"internal/foo/bar.go", "internal/foo/bar_test.go"}
	edges := []ImportEdge{
		{FilePath: "internal/foo/bar_test.go", SourceLiteral: "internal.foo.bar"},
	}
	g := NewImportGraph(paths, edges)

	result := g.AffectedTests([]string{"internal/foo/bar.go"})

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "internal/foo/bar_test.go", result.Matches[0].TestFile)
	assert.Equal(t, "high", result.Matches[0].Confidence)
	assert.Equal(t, "complete", result.Confidence.Tier)
}

func TestAffectedTests_ParentChildIsLowConfidence(t *testing.T) {
	paths := []string{"internal/foo/bar.go", "internal/foo/bar_test.go"}
	edges := []ImportEdge{
		{FilePath: "internal/foo/bar_test.go", SourceLiteral: "internal.foo"},
	}
	g := NewImportGraph(paths, edges)

	result := g.AffectedTests([]string{"internal/foo/bar.go"})

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "low", result.Matches[0].Confidence)
}

func TestAffectedTests_NoChangedModulesResolvedIsPartial(t *testing.T) {
	g := NewImportGraph(nil, nil)

	result := g.AffectedTests([]string{"README"})

	assert.Empty(t, result.Matches)
	assert.Equal(t, "partial", result.Confidence.Tier)
}

func TestAffectedTests_EmptyInputIsComplete(t *testing.T) {
	g := NewImportGraph(nil, nil)

	result := g.AffectedTests(nil)

	assert.Equal(t, "complete", result.Confidence.Tier)
	assert.Equal(t, 1.0, result.Confidence.ResolvedRatio)
}

func TestAffectedTests_NullSourceLiteralLowersConfidence(t *testing.T) {
	paths := []string{"internal/foo/bar.go", "internal/foo/bar_test.go"}
	edges := []ImportEdge{
		{FilePath: "internal/foo/bar_test.go", SourceLiteral: "internal.foo.bar"},
		{FilePath: "internal/foo/bar_test.go", SourceLiteral: ""},
	}
	g := NewImportGraph(paths, edges)

	result := g.AffectedTests([]string{"internal/foo/bar.go"})

	assert.Equal(t, "partial", result.Confidence.Tier)
	assert.Equal(t, 1, result.Confidence.NullSourceCount)
}

func TestImportedSources_SkipsTestFiles(t *testing.T) {
	paths := []string{"internal/foo/bar.go", "internal/foo/bar_test.go"}
	edges := []ImportEdge{
		{FilePath: "internal/foo/bar_test.go", SourceLiteral: "internal.foo.bar"},
	}
	g := NewImportGraph(paths, edges)

	result := g.ImportedSources([]string{"internal/foo/bar_test.go"})

	assert.Contains(t, result.SourceModules, "internal.foo.bar")
}

func TestUncoveredModules_FlagsSourceWithNoTestImports(t *testing.T) {
	paths := []string{"internal/foo/bar.go", "internal/foo/baz.go", "internal/foo/baz_test.go"}
	edges := []ImportEdge{
		{FilePath: "internal/foo/baz_test.go", SourceLiteral: "internal.foo.baz"},
	}
	g := NewImportGraph(paths, edges)

	gaps := g.UncoveredModules()

	var found bool
	for _, gap := range gaps {
		if gap.FilePath == "internal/foo/bar.go" {
			found = true
		}
		assert.NotEqual(t, "internal/foo/baz.go", gap.FilePath)
	}
	assert.True(t, found)
}
