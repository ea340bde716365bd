package resolver

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeplane/internal/config"
	"codeplane/internal/model"
	"codeplane/internal/parser"
	"codeplane/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := config.DefaultStoreConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedFile(t *testing.T, st *store.Store) int64 {
	t.Helper()
	_, err := st.DB().Exec(`INSERT INTO contexts (root, language, probed) VALUES ('/repo', 'go', 1)`)
	require.NoError(t, err)
	bw, err := st.NewBulkWriter()
	require.NoError(t, err)
	require.NoError(t, bw.UpsertFile(1, "a.go", "go", "hash"))
	require.NoError(t, bw.Close(st))
	f, err := st.FileByPath("a.go")
	require.NoError(t, err)
	return f.ID
}

func TestResolveTypeTraced_UpgradesAccessWithLocalBindMatch(t *testing.T) {
	st := newTestStore(t)
	fileID := seedFile(t, st)

	bw, err := st.NewBulkWriter()
	require.NoError(t, err)
	require.NoError(t, bw.Exec(
		`INSERT INTO type_member_facts (file_id, type_name, member_name, is_method) VALUES (?, 'Widget', 'Name', 0)`,
		fileID))
	require.NoError(t, bw.Exec(
		`INSERT INTO local_bind_facts (file_id, scope_def_uid, name, bound_type_name, line) VALUES (?, 'Describe', 'w', 'Widget', 2)`,
		fileID))
	require.NoError(t, bw.Exec(
		`INSERT INTO member_access_facts (file_id, receiver_expr_hash, member_name, line) VALUES (?, ?, 'Name', 4)`,
		fileID, parser.ExprHash("w")))
	require.NoError(t, bw.Close(st))

	r := New(st, config.DefaultResolverConfig())
	n, err := r.resolveTypeTraced([]int64{fileID})

	require.NoError(t, err)
	assert.Equal(t, 1, n)

	accesses, err := st.MemberAccessFactsByFiles([]int64{fileID})
	require.NoError(t, err)
	require.Len(t, accesses, 1)
	assert.Equal(t, "Widget", accesses[0].ResolvedTypeName)
	assert.Equal(t, "type_traced", accesses[0].ResolutionMethod)
}

func TestResolveTypeTraced_LeavesUnboundAccessUnresolved(t *testing.T) {
	st := newTestStore(t)
	fileID := seedFile(t, st)

	bw, err := st.NewBulkWriter()
	require.NoError(t, err)
	require.NoError(t, bw.Exec(
		`INSERT INTO member_access_facts (file_id, receiver_expr_hash, member_name, line) VALUES (?, ?, 'Name', 4)`,
		fileID, parser.ExprHash("w")))
	require.NoError(t, bw.Close(st))

	r := New(st, config.DefaultResolverConfig())
	n, err := r.resolveTypeTraced([]int64{fileID})

	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResolveShapesForFiles_MatchesAndUpgradesPairedRef(t *testing.T) {
	st := newTestStore(t)
	fileID := seedFile(t, st)

	bw, err := st.NewBulkWriter()
	require.NoError(t, err)
	require.NoError(t, bw.Exec(
		`INSERT INTO type_member_facts (file_id, type_name, member_name, is_method, def_uid) VALUES (?, 'Widget', 'Describe', 1, 'Widget.Describe')`,
		fileID))
	require.NoError(t, bw.Exec(
		`INSERT INTO member_access_facts (file_id, receiver_expr_hash, member_name, line) VALUES (?, ?, 'Describe', 9)`,
		fileID, parser.ExprHash("other")))
	require.NoError(t, bw.Exec(
		`INSERT INTO ref_facts (file_id, from_def_uid, name, line, tier) VALUES (?, 'Caller', 'Describe', 9, 0)`,
		fileID))
	require.NoError(t, bw.Close(st))

	r := New(st, config.DefaultResolverConfig())
	stats, err := r.ResolveShapesForFiles([]int64{fileID})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.ShapesProcessed)
	assert.Equal(t, 1, stats.ShapesMatched)
	assert.Equal(t, 1, stats.AccessesUpgraded)

	accesses, err := st.MemberAccessFactsByFiles([]int64{fileID})
	require.NoError(t, err)
	require.Len(t, accesses, 1)
	assert.Equal(t, "Widget", accesses[0].ResolvedTypeName)

	ref, err := st.RefByFileLineName(fileID, 9, "Describe")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, model.TierAnchored, ref.Tier)
	assert.Equal(t, "Widget.Describe", ref.ResolvedDefUID)
	assert.Equal(t, "shape_matched", ref.ResolutionMethod)
}

func TestUpgradeTier_NeverLowersAndCapsShapeInferenceAtAnchored(t *testing.T) {
	assert.Equal(t, model.TierProven, upgradeTier(model.TierProven, model.TierAnchored, false))
	assert.Equal(t, model.TierStrong, upgradeTier(model.TierUnknown, model.TierStrong, false))
	assert.Equal(t, model.TierAnchored, upgradeTier(model.TierUnknown, model.TierProven, true))
}
