package refs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsql/vcsql/internal/objstore"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

func newTestManager(t *testing.T) (*objstore.Store, *Manager) {
	t.Helper()
	s, err := objstore.Open(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, New(s)
}

func fakeCommit(t *testing.T, s *objstore.Store, seed string) objstore.CommitID {
	t.Helper()
	tree, err := s.PutTree(objstore.Tree{})
	require.NoError(t, err)
	id, err := s.PutCommit(objstore.Commit{Root: tree, Author: "vcsql", Message: seed})
	require.NoError(t, err)
	return id
}

func TestHeadEmptyRepository(t *testing.T) {
	_, mgr := newTestManager(t)
	_, err := mgr.Head()
	assert.ErrorIs(t, err, vcsqlerr.ErrEmptyRepository)
}

func TestInitMainAndResolve(t *testing.T) {
	store, mgr := newTestManager(t)
	c0 := fakeCommit(t, store, "c0")
	require.NoError(t, mgr.InitMain(c0))

	head, err := mgr.Head()
	require.NoError(t, err)
	assert.Equal(t, c0, head)

	// InitMain is idempotent once main exists.
	c1 := fakeCommit(t, store, "c1")
	require.NoError(t, mgr.InitMain(c1))
	head, err = mgr.Head()
	require.NoError(t, err)
	assert.Equal(t, c0, head)
}

func TestCreateBranchAlreadyExists(t *testing.T) {
	store, mgr := newTestManager(t)
	c0 := fakeCommit(t, store, "c0")
	require.NoError(t, mgr.CreateBranch("feature", c0))
	err := mgr.CreateBranch("feature", c0)
	assert.True(t, vcsqlerr.IsConflict(err) || err != nil)
}

func TestCompareAndSwap(t *testing.T) {
	store, mgr := newTestManager(t)
	c0 := fakeCommit(t, store, "c0")
	c1 := fakeCommit(t, store, "c1")
	require.NoError(t, mgr.CreateBranch(MainBranch, c0))

	require.NoError(t, mgr.CompareAndSwap(MainBranch, c0, c1))
	head, err := mgr.Resolve(MainBranch)
	require.NoError(t, err)
	assert.Equal(t, c1, head)

	// Stale expected value is rejected.
	c2 := fakeCommit(t, store, "c2")
	err = mgr.CompareAndSwap(MainBranch, c0, c2)
	var cme *vcsqlerr.ConcurrentModificationError
	assert.ErrorAs(t, err, &cme)
}

func TestTxBranchLifecycle(t *testing.T) {
	store, mgr := newTestManager(t)
	c0 := fakeCommit(t, store, "c0")
	require.NoError(t, mgr.CreateTx("tx1", c0))
	require.NoError(t, mgr.CreateTx("tx2", c0))

	ids, err := mgr.ListTx()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tx1", "tx2"}, ids)

	removed, err := mgr.CleanupAbandoned(map[string]bool{"tx1": true})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ids, err = mgr.ListTx()
	require.NoError(t, err)
	assert.Equal(t, []string{"tx1"}, ids)

	require.NoError(t, mgr.DeleteTx("tx1"))
	ids, err = mgr.ListTx()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolveUnknownBranch(t *testing.T) {
	_, mgr := newTestManager(t)
	_, err := mgr.Resolve("nope")
	assert.ErrorIs(t, err, vcsqlerr.ErrRefNotFound)
}
