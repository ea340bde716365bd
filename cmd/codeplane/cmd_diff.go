package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"codeplane/internal/model"
	"codeplane/internal/query"
)

var (
	diffBaseEpoch   int64
	diffTargetEpoch int64
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "semantic diff between two published epochs",
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(repoRoot)
		if err != nil {
			return err
		}
		a, err := newApp(repoRoot, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if diffTargetEpoch == 0 {
			latest, err := a.st.LatestEpoch()
			if err != nil {
				return err
			}
			if latest == nil {
				return fmt.Errorf("no published epoch yet, run 'codeplane index' first")
			}
			diffTargetEpoch = latest.ID
		}

		baseSnaps, err := a.st.DefSnapshotsByEpoch(diffBaseEpoch)
		if err != nil {
			return fmt.Errorf("load base epoch %d: %w", diffBaseEpoch, err)
		}
		targetSnaps, err := a.st.DefSnapshotsByEpoch(diffTargetEpoch)
		if err != nil {
			return fmt.Errorf("load target epoch %d: %w", diffTargetEpoch, err)
		}

		files, err := a.st.AllFiles()
		if err != nil {
			return err
		}
		pathByID := make(map[int64]string, len(files))
		for _, f := range files {
			pathByID[f.ID] = f.Path
		}

		baseFacts := groupSnapshotsByPath(baseSnaps, pathByID)
		targetFacts := groupSnapshotsByPath(targetSnaps, pathByID)

		changed := changedFileSet(baseFacts, targetFacts, a.registry)

		result := query.ComputeStructuralDiff(baseFacts, targetFacts, changed, nil)

		enricher := query.NewEnricher(a.st)
		type enrichedChange struct {
			query.StructuralChange
			Enrichment query.Enrichment
		}
		// Internal (function-local) variable changes carry no
		// importer-visible contract; the original drops them before
		// enrichment, and so do we.
		visible := make([]query.StructuralChange, 0, len(result.Changes))
		for _, c := range result.Changes {
			if !c.IsInternal {
				visible = append(visible, c)
			}
		}

		enriched := make([]enrichedChange, 0, len(visible))
		defUIDByPath := defUIDIndex(targetSnaps, baseSnaps, pathByID)
		for _, c := range visible {
			defUID := defUIDByPath[c.Path+"|"+c.QualifiedName]
			enriched = append(enriched, enrichedChange{c, enricher.Enrich(c, defUID)})
		}
		nested := query.NestMethodChanges(visible)

		return printJSON(map[string]any{
			"filesAnalyzed":      result.FilesAnalyzed,
			"changes":            enriched,
			"nestedByParent":     nested,
			"nonStructuralFiles": result.NonStructuralFiles,
		})
	},
}

func init() {
	diffCmd.Flags().Int64Var(&diffBaseEpoch, "base", 0, "base epoch id (0 = empty tree)")
	diffCmd.Flags().Int64Var(&diffTargetEpoch, "target", 0, "target epoch id (default: latest)")
}

func groupSnapshotsByPath(snaps []model.DefSnapshotRecord, pathByID map[int64]string) map[string][]model.DefSnapshotRecord {
	out := make(map[string][]model.DefSnapshotRecord)
	for _, s := range snaps {
		p := pathByID[s.FileID]
		if p == "" {
			continue
		}
		out[p] = append(out[p], s)
	}
	return out
}

// defUIDIndex lets the diff command look a change's DefUID back up for
// enrichment, keyed by "path|lexicalPath" (StructuralChange.QualifiedName
// is the lexical path unchanged whenever it's dotted, which every def
// snapshot's LexicalPath is). Target wins over base so a survived def
// (added/modified/renamed) resolves to its current identity; base fills
// in the rest, covering a pure removal.
func defUIDIndex(target, base []model.DefSnapshotRecord, pathByID map[int64]string) map[string]string {
	out := make(map[string]string)
	add := func(snaps []model.DefSnapshotRecord) {
		for _, s := range snaps {
			p := pathByID[s.FileID]
			if p == "" {
				continue
			}
			key := p + "|" + s.LexicalPath
			if _, exists := out[key]; !exists {
				out[key] = s.DefUID
			}
		}
	}
	add(target)
	add(base)
	return out
}

// changedFileSet builds the ChangedFile list diffing base/target's file
// sets: a path in target but not base is added, in base but not target is
// deleted, in both is modified. Grammar support comes from the registry so
// a file with no parser for its extension still gets classified as a
// non-structural change.
func changedFileSet(baseFacts, targetFacts map[string][]model.DefSnapshotRecord, registry interface {
	Language(ext string) string
}) []query.ChangedFile {
	seen := make(map[string]bool)
	var out []query.ChangedFile
	for p := range baseFacts {
		seen[p] = true
	}
	for p := range targetFacts {
		seen[p] = true
	}
	for p := range seen {
		_, inBase := baseFacts[p]
		_, inTarget := targetFacts[p]
		status := "modified"
		switch {
		case inTarget && !inBase:
			status = "added"
		case inBase && !inTarget:
			status = "deleted"
		}
		lang := registry.Language(filepath.Ext(p))
		out = append(out, query.ChangedFile{
			Path: p, Status: status, HasGrammar: lang != "", Language: lang,
		})
	}
	return out
}
