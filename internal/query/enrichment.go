package query

import (
	"strings"

	"codeplane/internal/model"
	"codeplane/internal/store"
)

// TierBreakdown counts refs pointing at a definition by confidence tier.
type TierBreakdown struct {
	Proven, Strong, Anchored, Unknown int
}

func (t TierBreakdown) Total() int { return t.Proven + t.Strong + t.Anchored + t.Unknown }

// Enrichment is the per-change blast-radius summary attached to a
// StructuralChange after the diff pass, computed fail-open: any lookup
// error just leaves that field empty rather than failing the whole diff.
type Enrichment struct {
	RefCount       int
	Tiers          TierBreakdown
	ImportingFiles []string
	AffectedTests  []string
	Visibility     model.Visibility
	IsStatic       bool
	BehaviorRisk   string // low|medium|high|unknown
}

// Enricher computes Enrichment for structural changes, per spec.md §4.C10
// step 8.
type Enricher struct {
	st *store.Store
}

func NewEnricher(st *store.Store) *Enricher {
	return &Enricher{st: st}
}

// Enrich attaches blast-radius data to one change, given the DefUID it
// targets; an empty defUID yields only the behavior-risk estimate. Ref
// counts and importing files are read from the store's ref and import
// tables. Any store error is swallowed and leaves the corresponding field
// at its zero value.
func (e *Enricher) Enrich(change StructuralChange, defUID string) Enrichment {
	var enr Enrichment
	enr.BehaviorRisk = behaviorRisk(change, 0)

	if defUID == "" {
		return enr
	}

	// RefFactsUnresolved's "below tier" filter doubles as an unbounded scan
	// when given a ceiling above the highest tier.
	refs, err := e.st.RefFactsUnresolved(model.TierProven + 1)
	if err == nil {
		for _, r := range refs {
			if r.ResolvedDefUID != defUID {
				continue
			}
			enr.RefCount++
			switch r.Tier {
			case model.TierProven:
				enr.Tiers.Proven++
			case model.TierStrong:
				enr.Tiers.Strong++
			case model.TierAnchored:
				enr.Tiers.Anchored++
			default:
				enr.Tiers.Unknown++
			}
		}
	}
	enr.BehaviorRisk = behaviorRisk(change, enr.RefCount)

	imports, err := e.st.ImportFactsAll()
	if err == nil {
		files, ferr := e.st.AllFiles()
		if ferr == nil {
			pathByID := make(map[int64]string, len(files))
			for _, f := range files {
				pathByID[f.ID] = f.Path
			}
			seen := make(map[string]bool)
			for _, imp := range imports {
				for _, n := range imp.ImportedNames {
					if n == change.Name {
						if p := pathByID[imp.FileID]; p != "" && !seen[p] {
							seen[p] = true
							enr.ImportingFiles = append(enr.ImportingFiles, p)
						}
					}
				}
			}
		}
	}

	for _, f := range enr.ImportingFiles {
		if isTestFile(f) {
			enr.AffectedTests = append(enr.AffectedTests, f)
		}
	}

	return enr
}

// behaviorRisk implements spec.md §4.C10's heuristic: added is low risk,
// removed/renamed/signature_changed is high (breaking), body_changed is
// medium when the symbol has meaningful reference fan-out and otherwise
// unknown.
func behaviorRisk(change StructuralChange, refCount int) string {
	switch change.Change {
	case "added":
		return "low"
	case "removed", "renamed", "signature_changed":
		return "high"
	case "body_changed":
		if refCount > 10 {
			return "medium"
		}
		return "unknown"
	}
	return "unknown"
}

// VisibilityAndStatic returns the visibility and static flag recorded on
// the def itself; whether the def appears among members does not change
// the result.
func VisibilityAndStatic(def model.DefFact, members []model.TypeMemberFact) (model.Visibility, bool) {
	for _, m := range members {
		if m.DefUID == def.DefUID {
			return def.Visibility, def.IsStatic
		}
	}
	return def.Visibility, def.IsStatic
}

// NestMethodChanges groups method-level changes under their parent type's
// change, per spec.md §4.C10 step 7 ("nest method changes under their
// parent-class change for presentation").
func NestMethodChanges(changes []StructuralChange) map[string][]StructuralChange {
	byParent := make(map[string][]StructuralChange)
	for _, c := range changes {
		parent := parentOf(c.QualifiedName)
		if parent == "" {
			parent = c.Path
		}
		byParent[parent] = append(byParent[parent], c)
	}
	return byParent
}

func parentOf(qualifiedName string) string {
	if i := strings.LastIndex(qualifiedName, "."); i >= 0 {
		return qualifiedName[:i]
	}
	return ""
}
