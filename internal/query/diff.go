// Package query implements the bounded query surface (spec.md §4.C10):
// fact queries, semantic diff, the import graph's reverse queries, and
// refactor preview/apply.
package query

import (
	"strings"

	"codeplane/internal/model"
)

// ChangedFile is one file the diff engine is asked to compare.
type ChangedFile struct {
	Path      string
	Status    string // "added" | "modified" | "deleted"
	HasGrammar bool
	Language  string
}

// Hunk is a changed-line range; nil hunks for a file means "epoch mode" —
// treat the whole file as potentially changed (no git hunk info available).
type Hunk struct {
	Start, End int
}

// StructuralChange is one classified change emitted by the diff engine.
type StructuralChange struct {
	Path             string
	Kind             string
	Name             string
	QualifiedName    string
	Change           string // added|removed|renamed|signature_changed|body_changed
	StructuralSeverity string // breaking|non_breaking
	OldSig, NewSig   string
	OldName          string
	IsInternal       bool
	StartLine, EndLine int
	LinesChanged     int
	HasLinesChanged  bool
	DeltaTags        []string
}

// FileChangeInfo classifies a non-structural file change.
type FileChangeInfo struct {
	Path     string
	Status   string
	Category string // test|build|config|docs|prod
	Language string
}

// DiffResult is the output of ComputeStructuralDiff.
type DiffResult struct {
	Changes            []StructuralChange
	NonStructuralFiles []FileChangeInfo
	FilesAnalyzed      int
}

type identityKey struct {
	kind, lexicalPath string
}

// ComputeStructuralDiff compares base and target DefSnapshots per changed
// file, faithfully following original_source/.../diff/engine.py's
// compute_structural_diff. hunks is nil in "epoch mode" (no git hunk
// data); a present-but-empty hunk list for a path means nothing in that
// span changed.
func ComputeStructuralDiff(
	baseFacts, targetFacts map[string][]model.DefSnapshotRecord,
	changedFiles []ChangedFile,
	hunks map[string][]Hunk,
) DiffResult {
	var result DiffResult

	for _, cf := range changedFiles {
		if !cf.HasGrammar {
			result.NonStructuralFiles = append(result.NonStructuralFiles, FileChangeInfo{
				Path: cf.Path, Status: cf.Status, Category: ClassifyFile(cf.Path), Language: cf.Language,
			})
			continue
		}

		result.FilesAnalyzed++
		base := baseFacts[cf.Path]
		target := targetFacts[cf.Path]
		var fileHunks []Hunk
		var hunksKnown bool
		if hunks != nil {
			fileHunks = hunks[cf.Path]
			hunksKnown = true
		}

		changes := diffFile(cf.Path, base, target, fileHunks, hunksKnown)
		if len(changes) > 0 {
			result.Changes = append(result.Changes, changes...)
		} else {
			result.NonStructuralFiles = append(result.NonStructuralFiles, FileChangeInfo{
				Path: cf.Path, Status: cf.Status, Category: ClassifyFile(cf.Path), Language: cf.Language,
			})
		}
	}
	return result
}

var buildNames = map[string]bool{
	"makefile": true, "cmakelists.txt": true, "meson.build": true,
	"build.gradle": true, "build.gradle.kts": true, "pom.xml": true,
	"build.sbt": true, "cargo.toml": true, "go.mod": true, "package.json": true,
	"pyproject.toml": true, "setup.py": true, "setup.cfg": true,
	".eslintrc": true, ".prettierrc": true, "tsconfig.json": true,
	"dockerfile": true, "docker-compose.yml": true, "docker-compose.yaml": true,
}

var configExts = map[string]bool{
	".yml": true, ".yaml": true, ".toml": true, ".ini": true,
	".cfg": true, ".env": true, ".json": true, ".xml": true,
}

var docExts = map[string]bool{".md": true, ".rst": true, ".txt": true, ".adoc": true}
var docPatterns = []string{"/docs/", "/doc/", "readme", "changelog", "license", "contributing"}

// ClassifyFile categorizes a non-structural file change, ported from
// diff/engine.py's _classify_file.
func ClassifyFile(path string) string {
	lower := strings.ToLower(path)
	if isTestFile(path) {
		return "test"
	}

	basename := lower
	if i := strings.LastIndex(lower, "/"); i >= 0 {
		basename = lower[i+1:]
	}
	if buildNames[basename] {
		return "build"
	}

	ext := ""
	if i := strings.LastIndex(basename, "."); i >= 0 {
		ext = basename[i:]
	}
	rootLevel := !strings.Contains(strings.Replace(path, ".", "", 1), "/")
	if configExts[ext] && rootLevel {
		return "config"
	}

	for _, p := range docPatterns {
		if strings.Contains(lower, p) {
			return "docs"
		}
	}
	if docExts[ext] {
		return "docs"
	}
	return "prod"
}

// isTestFile is a minimal cross-language test-file heuristic: the path has
// a "test" or "tests" directory segment, or the base name starts with
// "test_", ends with "_test.go", or contains ".test." or ".spec.".
func isTestFile(path string) bool {
	lower := strings.ToLower(path)
	base := lower
	if i := strings.LastIndex(lower, "/"); i >= 0 {
		base = lower[i+1:]
	}
	return strings.Contains(lower, "/test/") || strings.Contains(lower, "/tests/") ||
		strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.go") ||
		strings.Contains(base, ".test.") || strings.Contains(base, ".spec.")
}

func computeDeltaTags(change string, old, new *model.DefSnapshotRecord, linesChanged int, hasLinesChanged bool) []string {
	switch change {
	case "added":
		return []string{"symbol_added"}
	case "removed":
		return []string{"symbol_removed"}
	case "renamed":
		return []string{"symbol_renamed"}
	case "signature_changed":
		var tags []string
		if old != nil && new != nil {
			oldParams := extractParams(old.Signature)
			newParams := extractParams(new.Signature)
			if oldParams != newParams {
				tags = append(tags, "parameters_changed")
			}
			oldRet := extractReturnType(old.Signature)
			newRet := extractReturnType(new.Signature)
			if oldRet != newRet {
				tags = append(tags, "return_type_changed")
			}
		}
		if len(tags) == 0 {
			tags = append(tags, "signature_changed")
		}
		return tags
	case "body_changed":
		if !hasLinesChanged {
			return []string{"body_logic_changed"}
		}
		var tags []string
		if linesChanged <= 3 {
			tags = append(tags, "minor_change")
			if linesChanged <= 2 {
				tags = append(tags, "possibly_comment_or_whitespace")
			}
		} else if linesChanged > 20 {
			tags = append(tags, "major_change")
		} else {
			tags = append(tags, "body_logic_changed")
		}
		return tags
	}
	return nil
}

func extractParams(sig string) string {
	start := strings.Index(sig, "(")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(sig); i++ {
		switch sig[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return sig[start : i+1]
			}
		}
	}
	return sig[start:]
}

func extractReturnType(sig string) string {
	if arrow := strings.LastIndex(sig, "->"); arrow != -1 {
		return strings.TrimRight(strings.TrimSpace(sig[arrow+2:]), ":")
	}
	if close := strings.LastIndex(sig, ")"); close != -1 && close+1 < len(sig) {
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sig[close+1:]), ":"))
		if brace := strings.Index(rest, "{"); brace != -1 {
			rest = strings.TrimSpace(rest[:brace])
		}
		return rest
	}
	return ""
}

func diffFile(path string, base, target []model.DefSnapshotRecord, hunks []Hunk, hunksKnown bool) []StructuralChange {
	baseMap := make(map[identityKey]model.DefSnapshotRecord, len(base))
	for _, s := range base {
		baseMap[identityKey{s.Kind, s.LexicalPath}] = s
	}
	targetMap := make(map[identityKey]model.DefSnapshotRecord, len(target))
	for _, s := range target {
		targetMap[identityKey{s.Kind, s.LexicalPath}] = s
	}

	var removedItems, addedItems []model.DefSnapshotRecord
	for k, s := range baseMap {
		if _, ok := targetMap[k]; !ok {
			removedItems = append(removedItems, s)
		}
	}
	for k, s := range targetMap {
		if _, ok := baseMap[k]; !ok {
			addedItems = append(addedItems, s)
		}
	}

	renames := detectRenames(removedItems, addedItems)
	renamedOld := make(map[string]bool, len(renames))
	renamedNew := make(map[string]bool, len(renames))
	for _, r := range renames {
		renamedOld[r.old.LexicalPath] = true
		renamedNew[r.new.LexicalPath] = true
	}

	var changes []StructuralChange

	for _, r := range renames {
		old, new := r.old, r.new
		changes = append(changes, StructuralChange{
			Path: path, Kind: new.Kind, Name: new.Name,
			QualifiedName: qualifiedName(new.LexicalPath),
			Change:        "renamed", StructuralSeverity: "breaking",
			OldSig: old.Signature, NewSig: new.Signature, OldName: old.Name,
			IsInternal: isInternalVariable(new, target),
			StartLine:  new.StartLine, EndLine: new.EndLine,
			DeltaTags: computeDeltaTags("renamed", &old, &new, 0, false),
		})
	}

	for _, s := range removedItems {
		if renamedOld[s.LexicalPath] {
			continue
		}
		changes = append(changes, StructuralChange{
			Path: path, Kind: s.Kind, Name: s.Name,
			QualifiedName: qualifiedName(s.LexicalPath),
			Change:        "removed", StructuralSeverity: "breaking",
			OldSig:     s.Signature,
			IsInternal: isInternalVariable(s, base),
			StartLine:  s.StartLine, EndLine: s.EndLine,
			DeltaTags: computeDeltaTags("removed", &s, nil, 0, false),
		})
	}

	for _, s := range addedItems {
		if renamedNew[s.LexicalPath] {
			continue
		}
		changes = append(changes, StructuralChange{
			Path: path, Kind: s.Kind, Name: s.Name,
			QualifiedName: qualifiedName(s.LexicalPath),
			Change:        "added", StructuralSeverity: "non_breaking",
			NewSig:     s.Signature,
			IsInternal: isInternalVariable(s, target),
			StartLine:  s.StartLine, EndLine: s.EndLine,
			DeltaTags: computeDeltaTags("added", nil, &s, 0, false),
		})
	}

	for k, old := range baseMap {
		new, ok := targetMap[k]
		if !ok {
			continue
		}
		if old.SignatureHash != new.SignatureHash {
			changes = append(changes, StructuralChange{
				Path: path, Kind: new.Kind, Name: new.Name,
				QualifiedName: qualifiedName(new.LexicalPath),
				Change:        "signature_changed", StructuralSeverity: "breaking",
				OldSig: old.Signature, NewSig: new.Signature,
				IsInternal: isInternalVariable(new, target),
				StartLine:  new.StartLine, EndLine: new.EndLine,
				DeltaTags: computeDeltaTags("signature_changed", &old, &new, 0, false),
			})
		} else if intersectsHunks(new.StartLine, new.EndLine, hunks, hunksKnown) {
			lc, hasLC := countChangedLines(new.StartLine, new.EndLine, hunks, hunksKnown)
			changes = append(changes, StructuralChange{
				Path: path, Kind: new.Kind, Name: new.Name,
				QualifiedName: qualifiedName(new.LexicalPath),
				Change:        "body_changed", StructuralSeverity: "non_breaking",
				OldSig: old.Signature, NewSig: new.Signature,
				IsInternal:      isInternalVariable(new, target),
				StartLine:       new.StartLine, EndLine: new.EndLine,
				LinesChanged:    lc,
				HasLinesChanged: hasLC,
				DeltaTags:       computeDeltaTags("body_changed", &old, &new, lc, hasLC),
			})
		}
	}

	return changes
}

func qualifiedName(lexicalPath string) string {
	if strings.Contains(lexicalPath, ".") {
		return lexicalPath
	}
	return ""
}

type renamePair struct{ old, new model.DefSnapshotRecord }

func detectRenames(removed, added []model.DefSnapshotRecord) []renamePair {
	type sigKey struct{ kind, hash string }
	removedBySig := make(map[sigKey][]model.DefSnapshotRecord)
	for _, s := range removed {
		if s.SignatureHash != "" {
			k := sigKey{s.Kind, s.SignatureHash}
			removedBySig[k] = append(removedBySig[k], s)
		}
	}

	usedRemoved := make(map[string]bool)
	var renames []renamePair
	for _, newSnap := range added {
		if newSnap.SignatureHash == "" {
			continue
		}
		k := sigKey{newSnap.Kind, newSnap.SignatureHash}
		for _, oldSnap := range removedBySig[k] {
			if usedRemoved[oldSnap.LexicalPath] {
				continue
			}
			renames = append(renames, renamePair{old: oldSnap, new: newSnap})
			usedRemoved[oldSnap.LexicalPath] = true
			break
		}
	}
	return renames
}

func intersectsHunks(start, end int, hunks []Hunk, hunksKnown bool) bool {
	if !hunksKnown {
		return true // epoch mode: treat everything as potentially changed
	}
	for _, h := range hunks {
		if h.Start <= end && h.End >= start {
			return true
		}
	}
	return false
}

func countChangedLines(start, end int, hunks []Hunk, hunksKnown bool) (int, bool) {
	if !hunksKnown {
		return 0, false
	}
	total := 0
	for _, h := range hunks {
		overlapStart := max(start, h.Start)
		overlapEnd := min(end, h.End)
		if overlapStart <= overlapEnd {
			total += overlapEnd - overlapStart + 1
		}
	}
	return total, total > 0
}

func isInternalVariable(snap model.DefSnapshotRecord, all []model.DefSnapshotRecord) bool {
	if snap.Kind != "variable" {
		return false
	}
	for _, other := range all {
		if (other.Kind == "function" || other.Kind == "method") &&
			other.LexicalPath != snap.LexicalPath &&
			other.StartLine <= snap.StartLine && snap.StartLine <= other.EndLine {
			return true
		}
	}
	return false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
