package query

import (
	"sort"
	"strconv"
	"strings"
)

// ImpactMatch is one test file the import graph judges affected by a set
// of changed source files.
type ImpactMatch struct {
	TestFile      string
	SourceModules []string
	Confidence    string // high|low
	Reason        string
}

// ImpactConfidence qualifies how trustworthy an affected_tests answer is.
type ImpactConfidence struct {
	Tier             string // complete|partial
	ResolvedRatio    float64
	UnresolvedFiles  []string
	NullSourceCount  int
	Reasoning        string
}

// ImportGraphResult is the output of AffectedTests.
type ImportGraphResult struct {
	Matches        []ImpactMatch
	Confidence     ImpactConfidence
	ChangedModules []string
}

func (r ImportGraphResult) TestFiles() []string {
	out := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.TestFile
	}
	return out
}

func (r ImportGraphResult) HighConfidenceTests() []string {
	var out []string
	for _, m := range r.Matches {
		if m.Confidence == "high" {
			out = append(out, m.TestFile)
		}
	}
	return out
}

// CoverageSourceResult is the output of ImportedSources.
type CoverageSourceResult struct {
	SourceDirs      []string
	SourceModules   []string
	Confidence      string // complete|partial
	NullImportCount int
}

// CoverageGap is one source module with no test imports.
type CoverageGap struct {
	Module   string
	FilePath string
}

// ImportEdge is a (importer file path, source_literal) pair drawn from the
// store's import_facts, the raw material for every ImportGraph query.
type ImportEdge struct {
	FilePath      string
	SourceLiteral string // empty means NULL / unresolved literal
}

// ImportGraph answers reverse-import questions over ImportFact data,
// ported from original_source/.../indexing/import_graph.py. It operates
// over a caller-supplied file path list and import edge list so it has no
// store dependency of its own.
type ImportGraph struct {
	filePaths   []string
	moduleIndex map[string]string // module name (incl. short form) -> file path
	edges       []ImportEdge
}

func NewImportGraph(filePaths []string, edges []ImportEdge) *ImportGraph {
	return &ImportGraph{
		filePaths:   filePaths,
		moduleIndex: buildModuleIndex(filePaths),
		edges:       edges,
	}
}

func buildModuleIndex(paths []string) map[string]string {
	idx := make(map[string]string, len(paths))
	for _, p := range paths {
		mod := pathToModule(p)
		if mod == "" {
			continue
		}
		idx[mod] = p
		if short, ok := stripSrcPrefix(mod); ok {
			idx[short] = p
		}
	}
	return idx
}

func pathToModule(path string) string {
	ext := ""
	if i := strings.LastIndex(path, "."); i >= 0 {
		ext = path[i:]
	}
	if ext == "" {
		return ""
	}
	trimmed := strings.TrimSuffix(path, ext)
	return strings.ReplaceAll(strings.Trim(trimmed, "/"), "/", ".")
}

func stripSrcPrefix(mod string) (string, bool) {
	const prefix = "src."
	if strings.HasPrefix(mod, prefix) {
		return strings.TrimPrefix(mod, prefix), true
	}
	return "", false
}

func (g *ImportGraph) resolveModuleToPath(mod string) string {
	if p, ok := g.moduleIndex[mod]; ok {
		return p
	}
	if short, ok := stripSrcPrefix(mod); ok {
		return g.moduleIndex[short]
	}
	return ""
}

// AffectedTests finds test files that import (directly, or via a
// parent/child package) one of the given changed source files.
func (g *ImportGraph) AffectedTests(changedFiles []string) ImportGraphResult {
	var changedModules, unresolved []string
	for _, fp := range changedFiles {
		if mod := pathToModule(fp); mod != "" {
			changedModules = append(changedModules, mod)
		} else {
			unresolved = append(unresolved, fp)
		}
	}

	if len(changedModules) == 0 {
		tier := "partial"
		reasoning := "No changed files could be mapped to module names"
		resolvedRatio := 0.0
		if len(changedFiles) == 0 {
			tier = "complete"
			reasoning = "no files provided"
			resolvedRatio = 1.0
		}
		return ImportGraphResult{
			Confidence: ImpactConfidence{
				Tier: tier, ResolvedRatio: resolvedRatio,
				UnresolvedFiles: unresolved, Reasoning: reasoning,
			},
		}
	}

	searchModules := make(map[string]bool)
	for _, mod := range changedModules {
		searchModules[mod] = true
		if short, ok := stripSrcPrefix(mod); ok {
			searchModules[short] = true
		}
	}

	nullInTests := 0
	for _, e := range g.edges {
		if e.SourceLiteral == "" && isTestFile(e.FilePath) {
			nullInTests++
		}
	}

	matchesByFile := make(map[string]map[string]bool)
	for _, e := range g.edges {
		if e.SourceLiteral == "" || !isTestFile(e.FilePath) {
			continue
		}
		for searchMod := range searchModules {
			if e.SourceLiteral == searchMod ||
				strings.HasPrefix(searchMod, e.SourceLiteral+".") ||
				strings.HasPrefix(e.SourceLiteral, searchMod+".") {
				if matchesByFile[e.FilePath] == nil {
					matchesByFile[e.FilePath] = make(map[string]bool)
				}
				matchesByFile[e.FilePath][e.SourceLiteral] = true
				break
			}
		}
	}

	var testPaths []string
	for p := range matchesByFile {
		testPaths = append(testPaths, p)
	}
	sort.Strings(testPaths)

	var matches []ImpactMatch
	for _, testPath := range testPaths {
		srcMods := matchesByFile[testPath]
		var unique []string
		hasExact := false
		for m := range srcMods {
			unique = append(unique, m)
			if searchModules[m] {
				hasExact = true
			}
		}
		sort.Strings(unique)
		confidence := "low"
		reason := "imports parent/child module " + strings.Join(unique, ", ")
		if hasExact {
			confidence = "high"
			reason = "directly imports " + strings.Join(unique, ", ")
		}
		matches = append(matches, ImpactMatch{
			TestFile: testPath, SourceModules: unique, Confidence: confidence, Reason: reason,
		})
	}

	resolvedRatio := 1.0
	if len(changedFiles) > 0 {
		resolvedRatio = float64(len(changedModules)) / float64(len(changedFiles))
	}
	tier := "partial"
	if resolvedRatio == 1.0 && nullInTests == 0 {
		tier = "complete"
	}

	var parts []string
	if len(unresolved) > 0 {
		parts = append(parts, strconv.Itoa(len(unresolved))+" files could not be mapped to modules")
	}
	if nullInTests > 0 {
		parts = append(parts, strconv.Itoa(nullInTests)+" test imports have no source_literal")
	}
	reasoning := "all files resolved, all imports traced"
	if len(parts) > 0 {
		reasoning = strings.Join(parts, "; ")
	}

	var sortedSearch []string
	for m := range searchModules {
		sortedSearch = append(sortedSearch, m)
	}
	sort.Strings(sortedSearch)

	return ImportGraphResult{
		Matches: matches,
		Confidence: ImpactConfidence{
			Tier: tier, ResolvedRatio: resolvedRatio,
			UnresolvedFiles: unresolved, NullSourceCount: nullInTests, Reasoning: reasoning,
		},
		ChangedModules: sortedSearch,
	}
}

// ImportedSources finds source modules that the given test files import,
// used to auto-scope coverage runs to the directories exercised.
func (g *ImportGraph) ImportedSources(testFiles []string) CoverageSourceResult {
	if len(testFiles) == 0 {
		return CoverageSourceResult{Confidence: "complete"}
	}
	inScope := make(map[string]bool, len(testFiles))
	for _, f := range testFiles {
		inScope[f] = true
	}

	sourceModules := make(map[string]bool)
	nullCount := 0
	for _, e := range g.edges {
		if !inScope[e.FilePath] {
			continue
		}
		if e.SourceLiteral == "" {
			nullCount++
			continue
		}
		resolved := g.resolveModuleToPath(e.SourceLiteral)
		if resolved != "" && !isTestFile(resolved) {
			sourceModules[e.SourceLiteral] = true
		}
	}

	sourceDirs := make(map[string]bool)
	for mod := range sourceModules {
		resolvedPath := g.resolveModuleToPath(mod)
		if resolvedPath == "" {
			continue
		}
		if i := strings.LastIndex(resolvedPath, "/"); i >= 0 {
			sourceDirs[resolvedPath[:i]] = true
		} else {
			sourceDirs[resolvedPath] = true
		}
	}

	confidence := "complete"
	if nullCount > 0 {
		confidence = "partial"
	}

	return CoverageSourceResult{
		SourceDirs:      sortedKeys(sourceDirs),
		SourceModules:   sortedKeys(sourceModules),
		Confidence:      confidence,
		NullImportCount: nullCount,
	}
}

// UncoveredModules finds source modules that no test file imports.
func (g *ImportGraph) UncoveredModules() []CoverageGap {
	allSourceModules := make(map[string]bool)
	for _, fp := range g.filePaths {
		if isTestFile(fp) {
			continue
		}
		if mod := pathToModule(fp); mod != "" {
			allSourceModules[mod] = true
		}
	}

	coveredShort := make(map[string]bool)
	for _, e := range g.edges {
		if e.SourceLiteral == "" || !isTestFile(e.FilePath) {
			continue
		}
		coveredShort[e.SourceLiteral] = true
		if short, ok := stripSrcPrefix(e.SourceLiteral); ok {
			coveredShort[short] = true
		}
	}

	var gaps []CoverageGap
	for _, mod := range sortedKeys(allSourceModules) {
		short := mod
		if s, ok := stripSrcPrefix(mod); ok {
			short = s
		}
		if coveredShort[mod] || coveredShort[short] {
			continue
		}
		display := short
		if display == "" {
			display = mod
		}
		gaps = append(gaps, CoverageGap{Module: display, FilePath: g.resolveModuleToPath(mod)})
	}
	return gaps
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

