package query

import (
	"sort"
	"strings"

	"codeplane/internal/model"
	"codeplane/internal/store"
)

// FactQuery bounds a fact lookup (spec.md §4.C10): callers ask for defs,
// refs, or members matching a filter. UnresolvedRefs, ImportsOfFile and
// ImportEdgesForContext read their whole underlying table and filter it
// in Go.
type FactQuery struct {
	st *store.Store
}

func NewFactQuery(st *store.Store) *FactQuery {
	return &FactQuery{st: st}
}

// DefsByFile returns every definition in one file, ordered by position.
func (q *FactQuery) DefsByFile(path string) ([]model.DefFact, error) {
	f, err := q.st.FileByPath(path)
	if err != nil || f == nil {
		return nil, err
	}
	return q.st.DefFactsByFile(f.ID)
}

// DefsByContext returns every definition under a context, the basis for a
// whole-context symbol listing.
func (q *FactQuery) DefsByContext(contextID int64) ([]model.DefFact, error) {
	return q.st.DefFactsByContext(contextID)
}

// FindDefsByName filters a def set by exact or substring name match,
// bounded to the given context so a lookup never scans the whole store.
func (q *FactQuery) FindDefsByName(contextID int64, name string, exact bool) ([]model.DefFact, error) {
	defs, err := q.st.DefFactsByContext(contextID)
	if err != nil {
		return nil, err
	}
	var out []model.DefFact
	for _, d := range defs {
		if exact && d.Name == name {
			out = append(out, d)
		} else if !exact && strings.Contains(strings.ToLower(d.Name), strings.ToLower(name)) {
			out = append(out, d)
		}
	}
	return out, nil
}

// UnresolvedRefs returns every ref fact still below the given tier, the
// resolver's own working-set view exposed read-only to callers.
func (q *FactQuery) UnresolvedRefs(below model.RefTier) ([]model.RefFact, error) {
	return q.st.RefFactsUnresolved(below)
}

// MembersOfType returns the field/method facts for a named type.
func (q *FactQuery) MembersOfType(typeName string) ([]model.TypeMemberFact, error) {
	return q.st.TypeMemberFactsByType(typeName)
}

// ImportsOfFile returns the import facts belonging to one file.
func (q *FactQuery) ImportsOfFile(path string) ([]model.ImportFact, error) {
	f, err := q.st.FileByPath(path)
	if err != nil || f == nil {
		return nil, err
	}
	all, err := q.st.ImportFactsAll()
	if err != nil {
		return nil, err
	}
	var out []model.ImportFact
	for _, imp := range all {
		if imp.FileID == f.ID {
			out = append(out, imp)
		}
	}
	return out, nil
}

// Freshness reports whether a tracked path's facts reflect its current
// on-disk content, per reconcile's Freshness enum.
func (q *FactQuery) Freshness(path string) (model.Freshness, error) {
	f, err := q.st.FileByPath(path)
	if err != nil {
		return model.Unindexed, err
	}
	if f == nil {
		return model.Unindexed, nil
	}
	return f.Freshness, nil
}

// ImportEdgesForContext builds the (path, source_literal) edge list an
// ImportGraph needs, scoped to every file known to the store — the import
// graph itself has no store dependency, so this is the one place query
// code talks to persistence on its behalf.
func (q *FactQuery) ImportEdgesForContext() ([]string, []ImportEdge, error) {
	files, err := q.st.AllFiles()
	if err != nil {
		return nil, nil, err
	}
	pathByID := make(map[int64]string, len(files))
	paths := make([]string, 0, len(files))
	for _, f := range files {
		pathByID[f.ID] = f.Path
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)

	imports, err := q.st.ImportFactsAll()
	if err != nil {
		return nil, nil, err
	}
	edges := make([]ImportEdge, 0, len(imports))
	for _, imp := range imports {
		edges = append(edges, ImportEdge{FilePath: pathByID[imp.FileID], SourceLiteral: imp.SourceLiteral})
	}
	return paths, edges, nil
}
