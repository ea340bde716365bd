package resolver

import (
	"strings"

	"codeplane/internal/model"
)

// moduleIndex maps a dotted module path to the file that defines it,
// tolerating a "src."-style prefix the way import_graph.py's
// build_module_index does for its short-form matching.
type moduleIndex struct {
	byPath map[string]int64 // module path -> file id
}

func buildModuleIndex(files []model.File) moduleIndex {
	idx := moduleIndex{byPath: make(map[string]int64, len(files))}
	for _, f := range files {
		mod := pathToModule(f.Path)
		idx.byPath[mod] = f.ID
		if short, ok := stripSrcPrefix(mod); ok {
			idx.byPath[short] = f.ID
		}
	}
	return idx
}

func pathToModule(path string) string {
	p := strings.TrimSuffix(path, extOf(path))
	return strings.ReplaceAll(strings.Trim(p, "/"), "/", ".")
}

func extOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}

func stripSrcPrefix(mod string) (string, bool) {
	const prefix = "src."
	if strings.HasPrefix(mod, prefix) {
		return strings.TrimPrefix(mod, prefix), true
	}
	return "", false
}

func (idx moduleIndex) resolve(sourceLiteral string) (int64, bool) {
	if id, ok := idx.byPath[sourceLiteral]; ok {
		return id, true
	}
	if short, ok := stripSrcPrefix(sourceLiteral); ok {
		if id, ok := idx.byPath[short]; ok {
			return id, true
		}
	}
	return 0, false
}

// resolveImports is Pass 2: matching each ImportFact.source_literal against
// the module index and marking statically-traceable imports PROVEN.
func (r *Resolver) resolveImports(fileIDs []int64) (int, error) {
	files, err := r.st.AllFiles()
	if err != nil {
		return 0, err
	}
	idx := buildModuleIndex(files)

	imports, err := r.st.ImportFactsAll()
	if err != nil {
		return 0, err
	}

	inSet := toSet(fileIDs)
	resolvedCount := 0
	for _, imp := range imports {
		if len(inSet) > 0 && !inSet[imp.FileID] {
			continue
		}
		if imp.Resolved {
			continue
		}
		targetID, ok := idx.resolve(imp.SourceLiteral)
		if !ok {
			continue
		}
		if err := r.markImportResolved(imp.ID, targetID); err != nil {
			return resolvedCount, err
		}
		resolvedCount++

		if err := r.upgradeRefsForImport(imp, targetID); err != nil {
			return resolvedCount, err
		}
	}
	return resolvedCount, nil
}

// upgradeRefsForImport climbs every unresolved ref in imp's file whose name
// matches one of the import's bound names to PROVEN: a name resolved
// through an explicit import statement to a known file is as certain as
// static resolution gets.
func (r *Resolver) upgradeRefsForImport(imp model.ImportFact, targetFileID int64) error {
	if len(imp.ImportedNames) == 0 {
		return nil
	}
	refs, err := r.st.RefFactsUnresolved(model.TierProven)
	if err != nil {
		return err
	}
	names := toStringSet(imp.ImportedNames)
	for _, ref := range refs {
		if ref.FileID != imp.FileID || !names[ref.Name] {
			continue
		}
		tier := upgradeTier(ref.Tier, model.TierProven, false)
		if tier == ref.Tier {
			continue
		}
		if err := r.st.UpdateRefResolution(ref.ID, tier, "", "import_resolved"); err != nil {
			return err
		}
	}
	return nil
}

func toStringSet(names []string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

func (r *Resolver) markImportResolved(importID, resolvedFileID int64) error {
	return r.st.UpdateImportResolution(importID, resolvedFileID)
}

func toSet(ids []int64) map[int64]bool {
	s := make(map[int64]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}
