package epoch

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeplane/internal/config"
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

func TestPublish_PersistsCommitHashAndCurrentEpoch(t *testing.T) {
	st := newTestStore(t)
	m := New(st, nil, filepath.Join(t.TempDir(), "journals"))

	stats, err := m.Publish(3, "abc123", nil)

	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.EpochID)
	assert.Equal(t, 3, stats.FilesIndexed)
	assert.Equal(t, "abc123", stats.CommitHash)

	e, err := st.LatestEpoch()
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "abc123", e.CommitHash)

	rs, err := st.RepoState()
	require.NoError(t, err)
	assert.Equal(t, int64(1), rs.CurrentEpochID)
}

func TestPublish_IncrementsEpochIDAcrossCalls(t *testing.T) {
	st := newTestStore(t)
	m := New(st, nil, filepath.Join(t.TempDir(), "journals"))

	first, err := m.Publish(1, "first", nil)
	require.NoError(t, err)
	second, err := m.Publish(2, "second", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.EpochID)
	assert.Equal(t, int64(2), second.EpochID)

	rs, err := st.RepoState()
	require.NoError(t, err)
	assert.Equal(t, int64(2), rs.CurrentEpochID)

	e, err := st.LatestEpoch()
	require.NoError(t, err)
	assert.Equal(t, "second", e.CommitHash)
}

func TestPublish_DeletesJournalOnSuccess(t *testing.T) {
	st := newTestStore(t)
	journalDir := filepath.Join(t.TempDir(), "journals")
	m := New(st, nil, journalDir)

	_, err := m.Publish(1, "abc", nil)
	require.NoError(t, err)

	journals, err := m.FindIncompleteEpochs()
	require.NoError(t, err)
	assert.Empty(t, journals)
}

func TestCurrentEpoch_ZeroBeforeAnyPublish(t *testing.T) {
	st := newTestStore(t)
	m := New(st, nil, filepath.Join(t.TempDir(), "journals"))

	current, err := m.CurrentEpoch()

	require.NoError(t, err)
	assert.Equal(t, int64(0), current)
}

func TestAwait_ReturnsImmediatelyWhenTargetAlreadyReached(t *testing.T) {
	st := newTestStore(t)
	m := New(st, nil, filepath.Join(t.TempDir(), "journals"))

	_, err := m.Publish(1, "abc", nil)
	require.NoError(t, err)

	reached, err := m.Await(1, 50*time.Millisecond)

	require.NoError(t, err)
	assert.True(t, reached)
}

func TestAwait_TimesOutWhenTargetNeverReached(t *testing.T) {
	st := newTestStore(t)
	m := New(st, nil, filepath.Join(t.TempDir(), "journals"))

	reached, err := m.Await(5, 30*time.Millisecond)

	require.NoError(t, err)
	assert.False(t, reached)
}

func TestRecoverIncompleteEpoch_SqliteCommittedIsCleanExit(t *testing.T) {
	m := New(nil, nil, filepath.Join(t.TempDir(), "journals"))

	needsRebuild, err := m.RecoverIncompleteEpoch(Journal{EpochID: 1, SqliteCommitted: true})

	require.NoError(t, err)
	assert.False(t, needsRebuild)
}

func TestRecoverIncompleteEpoch_LexicalOnlyRequiresRebuild(t *testing.T) {
	m := New(nil, nil, filepath.Join(t.TempDir(), "journals"))

	needsRebuild, err := m.RecoverIncompleteEpoch(Journal{EpochID: 1, TantivyCommitted: true})

	require.NoError(t, err)
	assert.True(t, needsRebuild)
}
