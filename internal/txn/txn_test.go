package txn

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsql/vcsql/internal/blobcodec"
	"github.com/vcsql/vcsql/internal/names"
	"github.com/vcsql/vcsql/internal/repo"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	e, err := repo.Open(filepath.Join(t.TempDir(), "vcsql.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return NewManager(e)
}

func sampleRow(key string) blobcodec.Row {
	return blobcodec.Row{
		Key:       key,
		Version:   1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Columns:   map[string]any{"name": "ada"},
	}
}

func TestBeginCreateTableInsertCommit(t *testing.T) {
	mgr := newTestManager(t)
	h, err := mgr.Begin(ReadCommitted)
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.ActiveCount())

	tbl, err := names.NewTableName("users")
	require.NoError(t, err)
	require.NoError(t, h.CreateTable(tbl))

	_, err = h.InsertRow(tbl, sampleRow("u1"))
	require.NoError(t, err)

	require.NoError(t, h.Commit(context.Background()))
	assert.Equal(t, 0, mgr.ActiveCount())

	head, err := mgr.engine.Resolve(mainBranch)
	require.NoError(t, err)
	exists, err := mgr.engine.TableExists(tbl, head)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCommitTwiceFails(t *testing.T) {
	mgr := newTestManager(t)
	h, err := mgr.Begin(ReadCommitted)
	require.NoError(t, err)
	require.NoError(t, h.Commit(context.Background()))
	err = h.Commit(context.Background())
	assert.ErrorIs(t, err, vcsqlerr.ErrNotActive)
}

func TestRollbackDeletesTxBranch(t *testing.T) {
	mgr := newTestManager(t)
	h, err := mgr.Begin(ReadCommitted)
	require.NoError(t, err)
	require.NoError(t, h.Rollback())

	ids, err := mgr.engine.ListTxBranches()
	require.NoError(t, err)
	assert.NotContains(t, ids, h.ID())

	err = h.Rollback()
	assert.ErrorIs(t, err, vcsqlerr.ErrNotActive)
}

func TestConcurrentCommitsDetectConflict(t *testing.T) {
	mgr := newTestManager(t)
	tbl, err := names.NewTableName("users")
	require.NoError(t, err)

	setup, err := mgr.Begin(ReadCommitted)
	require.NoError(t, err)
	require.NoError(t, setup.CreateTable(tbl))
	require.NoError(t, setup.Commit(context.Background()))

	h1, err := mgr.Begin(ReadCommitted)
	require.NoError(t, err)
	h2, err := mgr.Begin(ReadCommitted)
	require.NoError(t, err)

	_, err = h1.InsertRow(tbl, sampleRow("same-key"))
	require.NoError(t, err)
	_, err = h2.InsertRow(tbl, sampleRow("same-key"))
	require.NoError(t, err)

	require.NoError(t, h1.Commit(context.Background()))

	err = h2.Commit(context.Background())
	require.Error(t, err)
	assert.True(t, vcsqlerr.IsConflict(err))
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	mgr := newTestManager(t)
	sentinel := assert.AnError
	err := mgr.WithTransaction(context.Background(), ReadCommitted, func(h *Handle) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 0, mgr.ActiveCount())
}

func TestCleanupAbandoned(t *testing.T) {
	mgr := newTestManager(t)
	h, err := mgr.Begin(ReadCommitted)
	require.NoError(t, err)
	mgr.forget(h.ID())

	n, err := mgr.CleanupAbandoned()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
