package query

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeplane/internal/config"
	"codeplane/internal/errs"
	"codeplane/internal/model"
	"codeplane/internal/mutate"
	"codeplane/internal/store"
)

type fakeEngine struct {
	lastEdits []mutate.FileEdit
	result    mutate.ApplyResult
	moves     [][2]string
}

func (f *fakeEngine) Apply(ctx context.Context, edits []mutate.FileEdit) (mutate.ApplyResult, error) {
	f.lastEdits = edits
	return f.result, nil
}

func (f *fakeEngine) MoveFile(ctx context.Context, from, to string) error {
	f.moves = append(f.moves, [2]string{from, to})
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := config.DefaultStoreConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPreviewRename_DefAndRefHunksWithCertainty(t *testing.T) {
	r := NewRefactor(nil, &fakeEngine{})

	defs := []model.DefFact{{FileID: 1, Name: "Old", StartLine: 3}}
	refs := []model.RefFact{
		{FileID: 1, Name: "Old", Line: 7, Tier: model.TierProven},
		{FileID: 1, Name: "Old", Line: 9, Tier: model.TierAnchored},
	}
	pathByFileID := map[int64]string{1: "a.go"}
	fileContents := map[string]string{
		"a.go": "package foo\n\nfunc Old() {}\n\n\n\nOld()\n\nOld()\n",
	}

	preview := r.PreviewRename(defs, refs, fileContents, pathByFileID, "Old", "New")

	require.Len(t, preview.Edits, 1)
	edit := preview.Edits[0]
	assert.Equal(t, "a.go", edit.Path)

	var highCount, mediumCount int
	for _, h := range edit.Hunks {
		switch h.Certainty {
		case CertaintyHigh:
			highCount++
		case CertaintyMedium:
			mediumCount++
		}
	}
	assert.Equal(t, 2, highCount) // def (high) + proven ref (high)
	assert.Equal(t, 1, mediumCount)
	assert.False(t, preview.VerificationRequired)
}

func TestPreviewRename_CommentHitRequiresVerification(t *testing.T) {
	r := NewRefactor(nil, &fakeEngine{})

	fileContents := map[string]string{
		"a.go": "package foo\n\n// calls Old() internally\nfunc Other() {}\n",
	}

	preview := r.PreviewRename(nil, nil, fileContents, nil, "Old", "New")

	require.Len(t, preview.Edits, 1)
	require.Len(t, preview.Edits[0].Hunks, 1)
	assert.Equal(t, CertaintyLow, preview.Edits[0].Hunks[0].Certainty)
	assert.True(t, preview.VerificationRequired)
}

func TestRefactorApply_UnknownIDErrors(t *testing.T) {
	r := NewRefactor(nil, &fakeEngine{})
	_, err := r.Apply(context.Background(), "no-such-id")
	assert.Error(t, err)
}

func TestRefactorApply_DelegatesToEngine(t *testing.T) {
	engine := &fakeEngine{result: mutate.ApplyResult{Applied: []string{"a.go"}}}
	r := NewRefactor(nil, engine)

	preview := r.PreviewRename(
		[]model.DefFact{{FileID: 1, Name: "Old", StartLine: 1}},
		nil,
		map[string]string{"a.go": "Old\n"},
		map[int64]string{1: "a.go"},
		"Old", "New",
	)

	result, err := r.Apply(context.Background(), preview.ID)

	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, result.Applied)
	assert.Len(t, engine.lastEdits, 1)
}

func TestInspect_OnlyReturnsLowCertaintyHunks(t *testing.T) {
	r := NewRefactor(nil, &fakeEngine{})

	fileContents := map[string]string{
		"a.go": "package foo\n\n// mentions Old somewhere\nfunc Old() {}\n",
	}
	defs := []model.DefFact{{FileID: 1, Name: "Old", StartLine: 4}}
	preview := r.PreviewRename(defs, nil, fileContents, map[int64]string{1: "a.go"}, "Old", "New")

	snippets, err := r.Inspect(preview.ID, "a.go", fileContents["a.go"], 1)

	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.True(t, strings.Contains(snippets[0], "mentions Old"))
}

func TestCheckGate_RequiresPriorRecon(t *testing.T) {
	r := NewRefactor(nil, &fakeEngine{})

	err := r.Move("sess-1", strings.Repeat("x", 60), "a.go", "b.go")

	require.Error(t, err)
	var gateErr *errs.GateValidationFailed
	assert.ErrorAs(t, err, &gateErr)
}

func TestCheckGate_RequiresLongJustification(t *testing.T) {
	r := NewRefactor(nil, &fakeEngine{})
	r.Recon("sess-1")

	err := r.Impact("sess-1", "too short", "Symbol")

	require.Error(t, err)
	var gateErr *errs.GateValidationFailed
	assert.ErrorAs(t, err, &gateErr)
}

func TestMove_RelocatesTrackedFile(t *testing.T) {
	st := newTestStore(t)
	_, err := st.DB().Exec(`INSERT INTO contexts (root, language, probed) VALUES ('/repo', 'go', 1)`)
	require.NoError(t, err)
	bw, err := st.NewBulkWriter()
	require.NoError(t, err)
	require.NoError(t, bw.UpsertFile(1, "a.go", "go", "hash"))
	require.NoError(t, bw.Close(st))

	engine := &fakeEngine{}
	r := NewRefactor(st, engine)
	r.Recon("sess-1")

	result, err := r.Move("sess-1", strings.Repeat("x", 60), "a.go", "b.go")

	require.NoError(t, err)
	assert.Equal(t, MoveResult{From: "a.go", To: "b.go"}, result)
	assert.Equal(t, [][2]string{{"a.go", "b.go"}}, engine.moves)

	moved, err := st.FileByPath("b.go")
	require.NoError(t, err)
	require.NotNil(t, moved)

	gone, err := st.FileByPath("a.go")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMove_RejectsUntrackedSource(t *testing.T) {
	st := newTestStore(t)
	r := NewRefactor(st, &fakeEngine{})
	r.Recon("sess-1")

	_, err := r.Move("sess-1", strings.Repeat("x", 60), "missing.go", "b.go")

	assert.Error(t, err)
}

func TestImpact_FindsTransitiveCallers(t *testing.T) {
	st := newTestStore(t)
	_, err := st.DB().Exec(`INSERT INTO contexts (root, language, probed) VALUES ('/repo', 'go', 1)`)
	require.NoError(t, err)
	bw, err := st.NewBulkWriter()
	require.NoError(t, err)
	require.NoError(t, bw.UpsertFile(1, "a.go", "go", "hash"))
	require.NoError(t, bw.Close(st))
	f, err := st.FileByPath("a.go")
	require.NoError(t, err)

	bw, err = st.NewBulkWriter()
	require.NoError(t, err)
	_, err = bw.InsertDefFact(store.DefFactRow{FileID: f.ID, DefUID: "Target", Kind: "function", Name: "Target", LexicalPath: "Target"})
	require.NoError(t, err)
	_, err = bw.InsertDefFact(store.DefFactRow{FileID: f.ID, DefUID: "Direct", Kind: "function", Name: "Direct", LexicalPath: "Direct"})
	require.NoError(t, err)
	_, err = bw.InsertDefFact(store.DefFactRow{FileID: f.ID, DefUID: "Indirect", Kind: "function", Name: "Indirect", LexicalPath: "Indirect"})
	require.NoError(t, err)
	require.NoError(t, bw.Exec(
		`INSERT INTO ref_facts (file_id, from_def_uid, name, line, tier, resolved_def_uid, resolution_method)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, "Direct", "Target", 10, int(model.TierProven), "Target", "type_traced"))
	require.NoError(t, bw.Exec(
		`INSERT INTO ref_facts (file_id, from_def_uid, name, line, tier, resolved_def_uid, resolution_method)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, "Indirect", "Direct", 20, int(model.TierProven), "Direct", "type_traced"))
	require.NoError(t, bw.Close(st))

	r := NewRefactor(st, &fakeEngine{})
	r.Recon("sess-1")

	result, err := r.Impact("sess-1", strings.Repeat("x", 60), "Target")

	require.NoError(t, err)
	assert.Equal(t, []string{"Direct"}, result.Callers[1])
	assert.Equal(t, []string{"Indirect"}, result.Callers[2])
}
