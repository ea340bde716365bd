package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"codeplane/internal/errs"
	"codeplane/internal/model"
	"codeplane/internal/mutate"
	"codeplane/internal/store"
)

// Certainty mirrors spec.md §4.C10's rename certainty ladder: high for a
// PROVEN/STRONG ref (or an explicit certain match), medium for ANCHORED,
// low for a lexical/comment-only match.
const (
	CertaintyHigh   = "high"
	CertaintyMedium = "medium"
	CertaintyLow    = "low"
)

// RefactorPreview is the result of a preview call (currently only rename),
// held in memory keyed by RefactorID for the life of the Refactor value;
// Apply does not remove it.
type RefactorPreview struct {
	ID                   string
	Symbol               string
	NewName              string
	Edits                []mutate.FileEdit
	VerificationRequired bool
}

// refactorSession tracks the per-session recon gate spec.md §4.C10
// requires before move/impact: a prior recon call, in the same session,
// is a precondition for those two operations.
type refactorSession struct {
	reconCalled bool
}

// Refactor implements the rename/apply/inspect/move/impact query surface.
type Refactor struct {
	st     *store.Store
	engine mutate.Engine

	mu        sync.Mutex
	previews  map[string]RefactorPreview
	sessions  map[string]*refactorSession
}

func NewRefactor(st *store.Store, engine mutate.Engine) *Refactor {
	return &Refactor{
		st:       st,
		engine:   engine,
		previews: make(map[string]RefactorPreview),
		sessions: make(map[string]*refactorSession),
	}
}

// commentPatterns is a minimal language-aware set of line-comment markers
// used to decide whether a lexical hit inside a line is inside a comment
// (still eligible for a low-certainty rename, per spec.md §4.C10).
var commentPatterns = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`//.*$`),
	"python":     regexp.MustCompile(`#.*$`),
	"javascript": regexp.MustCompile(`//.*$`),
	"typescript": regexp.MustCompile(`//.*$`),
	"rust":       regexp.MustCompile(`//.*$`),
}

// PreviewRename finds every DefFact/RefFact site matching symbol plus any
// occurrence in a line comment (every line, for a file whose language has
// no comment pattern), and builds one FileEdit per file with a
// certainty-tagged EditHunk per site. Docstrings and block comments are
// not scanned.
func (r *Refactor) PreviewRename(defs []model.DefFact, refs []model.RefFact, fileContents map[string]string, pathByFileID map[int64]string, symbol, newName string) RefactorPreview {
	wordBoundary := regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\b`)

	byFile := make(map[string][]mutate.EditHunk)
	verificationRequired := false

	for _, d := range defs {
		if d.Name != symbol {
			continue
		}
		path := pathByFileID[d.FileID]
		if path == "" {
			continue
		}
		byFile[path] = append(byFile[path], mutate.EditHunk{
			Old: symbol, New: newName, Line: d.StartLine, Certainty: CertaintyHigh,
		})
	}

	for _, ref := range refs {
		if ref.Name != symbol {
			continue
		}
		path := pathByFileID[ref.FileID]
		if path == "" {
			continue
		}
		certainty := refCertainty(ref.Tier)
		if certainty == CertaintyLow {
			verificationRequired = true
		}
		byFile[path] = append(byFile[path], mutate.EditHunk{
			Old: symbol, New: newName, Line: ref.Line, Certainty: certainty,
		})
	}

	// Comment scan: word-boundary matches on lines not already covered by
	// a def/ref hit. For a known language only the text from its
	// line-comment marker onward is checked; otherwise the whole line is.
	for path, content := range fileContents {
		lang := languageOf(path)
		commentPat := commentPatterns[lang]
		lines := strings.Split(content, "\n")
		covered := make(map[int]bool)
		for _, h := range byFile[path] {
			covered[h.Line] = true
		}
		for i, line := range lines {
			lineNum := i + 1
			if covered[lineNum] {
				continue
			}
			commentText := line
			if commentPat != nil {
				if loc := commentPat.FindStringIndex(line); loc != nil {
					commentText = line[loc[0]:]
				} else {
					continue // no comment on this line
				}
			}
			if wordBoundary.MatchString(commentText) {
				byFile[path] = append(byFile[path], mutate.EditHunk{
					Old: symbol, New: newName, Line: lineNum, Certainty: CertaintyLow,
				})
				verificationRequired = true
			}
		}
	}

	var edits []mutate.FileEdit
	for path, hunks := range byFile {
		edits = append(edits, mutate.FileEdit{
			Path:        path,
			ContentHash: hashContent(fileContents[path]),
			Hunks:       hunks,
		})
	}

	preview := RefactorPreview{
		ID: newRefactorID(), Symbol: symbol, NewName: newName,
		Edits: edits, VerificationRequired: verificationRequired,
	}

	r.mu.Lock()
	r.previews[preview.ID] = preview
	r.mu.Unlock()

	return preview
}

func refCertainty(tier model.RefTier) string {
	switch tier {
	case model.TierProven, model.TierStrong:
		return CertaintyHigh
	case model.TierAnchored:
		return CertaintyMedium
	default:
		return CertaintyLow
	}
}

func languageOf(path string) string {
	switch {
	case strings.HasSuffix(path, ".go"):
		return "go"
	case strings.HasSuffix(path, ".py"):
		return "python"
	case strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".tsx"):
		return "typescript"
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".jsx"):
		return "javascript"
	case strings.HasSuffix(path, ".rs"):
		return "rust"
	default:
		return ""
	}
}

// Apply hands a previously previewed refactor to the mutation engine,
// trapping any hunk whose file content has diverged since preview.
func (r *Refactor) Apply(ctx context.Context, refactorID string) (mutate.ApplyResult, error) {
	r.mu.Lock()
	preview, ok := r.previews[refactorID]
	r.mu.Unlock()
	if !ok {
		return mutate.ApplyResult{}, fmt.Errorf("unknown refactor id %q", refactorID)
	}
	return r.engine.Apply(ctx, preview.Edits)
}

// Inspect returns surrounding-context line snippets for every low-certainty
// hunk in one file of a preview, so a caller can manually verify before
// applying.
func (r *Refactor) Inspect(refactorID, path string, fileContent string, context int) ([]string, error) {
	r.mu.Lock()
	preview, ok := r.previews[refactorID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown refactor id %q", refactorID)
	}

	lines := strings.Split(fileContent, "\n")
	var snippets []string
	for _, edit := range preview.Edits {
		if edit.Path != path {
			continue
		}
		for _, h := range edit.Hunks {
			if h.Certainty != CertaintyLow {
				continue
			}
			start := maxInt(0, h.Line-1-context)
			end := minInt(len(lines), h.Line+context)
			snippets = append(snippets, strings.Join(lines[start:end], "\n"))
		}
	}
	return snippets, nil
}

// Recon marks a session as having performed the prerequisite recon call
// move/impact require.
func (r *Refactor) Recon(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		s = &refactorSession{}
		r.sessions[sessionID] = s
	}
	s.reconCalled = true
}

const minJustificationLen = 50

// checkGate enforces the move/impact precondition: a prior recon call in
// the same session, plus a non-trivial justification string. This is a
// user-agent coupling contract, not an authorization check.
func (r *Refactor) checkGate(sessionID, justification, gate string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok || !s.reconCalled {
		return &errs.GateValidationFailed{Gate: gate, Reason: "no prior recon call in this session"}
	}
	if len(justification) < minJustificationLen {
		return &errs.GateValidationFailed{
			Gate:   gate,
			Reason: fmt.Sprintf("justification must be at least %d characters", minJustificationLen),
		}
	}
	return nil
}

// MoveResult reports a completed file relocation.
type MoveResult struct {
	From string
	To   string
}

// Move relocates a tracked file on disk and repoints its File row, gated
// on recon + justification. Structural facts key off file_id rather than
// path, so no fact migration is needed beyond the path update itself.
func (r *Refactor) Move(sessionID, justification, from, to string) (MoveResult, error) {
	if err := r.checkGate(sessionID, justification, "move"); err != nil {
		return MoveResult{}, err
	}

	f, err := r.st.FileByPath(from)
	if err != nil {
		return MoveResult{}, err
	}
	if f == nil {
		return MoveResult{}, fmt.Errorf("move: %q is not a tracked file", from)
	}
	existing, err := r.st.FileByPath(to)
	if err != nil {
		return MoveResult{}, err
	}
	if existing != nil {
		return MoveResult{}, fmt.Errorf("move: %q is already tracked", to)
	}

	if err := r.engine.MoveFile(context.Background(), from, to); err != nil {
		return MoveResult{}, err
	}
	if err := r.st.RenameFile(from, to); err != nil {
		return MoveResult{}, err
	}
	return MoveResult{From: from, To: to}, nil
}

// maxImpactDepth matches graph.py's impact_analysis default max_depth.
const maxImpactDepth = 3

// ImpactResult reports impact_analysis's transitive closure of callers:
// depth 1 is every def that directly calls symbol, depth 2 calls depth 1,
// and so on up to maxImpactDepth.
type ImpactResult struct {
	Symbol  string
	Callers map[int][]string // depth -> caller lexical paths
}

// Impact reports the blast radius of a symbol, gated on recon +
// justification. Ported from original_source/.../indexing/graph.py's
// impact_analysis: original traces SymbolEdge rows with relation="calls";
// this store has no separate Symbol/SymbolEdge table, so a "caller of
// defUID" is a RefFact whose resolved_def_uid is defUID, and its caller is
// the def owning that ref (from_def_uid).
func (r *Refactor) Impact(sessionID, justification, symbol string) (ImpactResult, error) {
	if err := r.checkGate(sessionID, justification, "impact"); err != nil {
		return ImpactResult{}, err
	}

	defs, err := r.st.DefFactsByName(symbol)
	if err != nil {
		return ImpactResult{}, err
	}

	result := ImpactResult{Symbol: symbol, Callers: make(map[int][]string)}
	seen := make(map[string]bool)
	var frontier []string
	for _, d := range defs {
		seen[d.DefUID] = true
		frontier = append(frontier, d.DefUID)
	}

	for depth := 1; depth <= maxImpactDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, uid := range frontier {
			refs, err := r.st.RefsByResolvedDefUID(uid)
			if err != nil {
				return result, err
			}
			for _, ref := range refs {
				if ref.FromDefUID == "" || seen[ref.FromDefUID] {
					continue
				}
				seen[ref.FromDefUID] = true
				next = append(next, ref.FromDefUID)

				name := ref.FromDefUID
				if caller, err := r.st.DefFactByUID(ref.FromDefUID); err == nil && caller != nil {
					name = caller.LexicalPath
				}
				result.Callers[depth] = append(result.Callers[depth], name)
			}
		}
		frontier = next
	}

	return result, nil
}

func newRefactorID() string {
	return uuid.NewString()
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
