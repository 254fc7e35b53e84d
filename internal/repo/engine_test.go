package repo

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsql/vcsql/internal/blobcodec"
	"github.com/vcsql/vcsql/internal/names"
	"github.com/vcsql/vcsql/internal/refs"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(filepath.Join(t.TempDir(), "vcsql.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func sampleRow(key string) blobcodec.Row {
	return blobcodec.Row{
		Key:       key,
		Version:   1,
		CreatedAt: time.Unix(0, 0).UTC(),
		UpdatedAt: time.Unix(0, 0).UTC(),
		Columns:   map[string]any{"name": "alice"},
	}
}

func TestOpenInitializesMain(t *testing.T) {
	e := newTestEngine(t)
	head, err := e.Resolve(refs.MainBranch)
	require.NoError(t, err)
	assert.False(t, head.IsZero())

	stats, err := e.Stats(head)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TableCount)
	assert.Equal(t, 0, stats.ActiveTxCount)
}

func TestCreateTableInsertReadRow(t *testing.T) {
	e := newTestEngine(t)
	head, err := e.Resolve(refs.MainBranch)
	require.NoError(t, err)

	c1, err := e.CreateTable("users", head, "")
	require.NoError(t, err)

	c2, err := e.InsertRow("users", sampleRow("u1"), c1, "")
	require.NoError(t, err)

	row, err := e.ReadRow("users", "u1", c2)
	require.NoError(t, err)
	assert.Equal(t, "u1", row.Key)
	assert.Equal(t, "alice", row.Columns["name"])

	rows, err := e.ScanTable("users", c2)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	stats, err := e.Stats(c2)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TableCount)
	assert.Equal(t, 1, stats.TotalRows)
}

func TestInsertRowDuplicateKeyFails(t *testing.T) {
	e := newTestEngine(t)
	head, _ := e.Resolve(refs.MainBranch)
	c1, err := e.CreateTable("users", head, "")
	require.NoError(t, err)
	c2, err := e.InsertRow("users", sampleRow("u1"), c1, "")
	require.NoError(t, err)

	_, err = e.InsertRow("users", sampleRow("u1"), c2, "")
	assert.ErrorIs(t, err, vcsqlerr.ErrRowAlreadyExists)
}

func TestDeleteRowAndDropTable(t *testing.T) {
	e := newTestEngine(t)
	head, _ := e.Resolve(refs.MainBranch)
	c1, err := e.CreateTable("users", head, "")
	require.NoError(t, err)
	c2, err := e.InsertRow("users", sampleRow("u1"), c1, "")
	require.NoError(t, err)
	c3, err := e.DeleteRow("users", "u1", c2, "")
	require.NoError(t, err)

	_, err = e.ReadRow("users", "u1", c3)
	assert.ErrorIs(t, err, vcsqlerr.ErrRowNotFound)

	c4, err := e.DropTable("users", c3, "")
	require.NoError(t, err)
	exists, err := e.TableExists("users", c4)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTxBranchAndFastForward(t *testing.T) {
	e := newTestEngine(t)
	base, err := e.Resolve(refs.MainBranch)
	require.NoError(t, err)
	require.NoError(t, e.CreateTxBranch("tx1", base))

	c1, err := e.CreateTable("users", base, "tx1")
	require.NoError(t, err)
	require.NoError(t, e.UpdateBranch(names.BranchName(refs.TxPrefix+"tx1"), c1))

	newMain, err := e.FastForwardMain("tx1", base)
	require.NoError(t, err)
	assert.Equal(t, c1, newMain)

	head, err := e.Resolve(refs.MainBranch)
	require.NoError(t, err)
	assert.Equal(t, c1, head)

	require.NoError(t, e.DeleteTxBranch("tx1"))
	txs, err := e.ListTxBranches()
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestAdvanceTxBranchCAS(t *testing.T) {
	e := newTestEngine(t)
	base, err := e.Resolve(refs.MainBranch)
	require.NoError(t, err)
	require.NoError(t, e.CreateTxBranch("tx1", base))

	c1, err := e.CreateTable("users", base, "tx1")
	require.NoError(t, err)
	require.NoError(t, e.AdvanceTxBranch("tx1", base, c1))

	tip, err := e.Resolve(names.BranchName(refs.TxPrefix + "tx1"))
	require.NoError(t, err)
	assert.Equal(t, c1, tip)

	err = e.AdvanceTxBranch("tx1", base, c1)
	assert.Error(t, err)
}

func TestHistoryAndDiff(t *testing.T) {
	e := newTestEngine(t)
	base, err := e.Resolve(refs.MainBranch)
	require.NoError(t, err)
	c1, err := e.CreateTable("users", base, "")
	require.NoError(t, err)

	history, err := e.History(c1, 0, false)
	require.NoError(t, err)
	require.Len(t, history, 2)

	changes, err := e.Diff(base, c1)
	require.NoError(t, err)
	require.Len(t, changes, 1)
}
