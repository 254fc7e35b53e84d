package commitlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsql/vcsql/internal/objstore"
	"github.com/vcsql/vcsql/internal/reftree"
)

func newTestLog(t *testing.T) (*objstore.Store, *Log) {
	t.Helper()
	s, err := objstore.Open(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, New(s)
}

func TestCreateInitialCommit(t *testing.T) {
	_, log := newTestLog(t)
	id, err := log.CreateInitialCommit("vcsql")
	require.NoError(t, err)

	info, err := log.CommitInfo(id)
	require.NoError(t, err)
	assert.Empty(t, info.Parents)
	assert.False(t, info.IsMerge())
}

func TestHistoryLinear(t *testing.T) {
	store, log := newTestLog(t)
	c0, err := log.CreateInitialCommit("vcsql")
	require.NoError(t, err)

	root, err := store.GetCommit(c0)
	require.NoError(t, err)

	mut, err := reftree.NewMutator(store, root.Root)
	require.NoError(t, err)
	require.NoError(t, mut.CreateTable("users"))
	newRoot, err := mut.Write()
	require.NoError(t, err)
	c1, err := log.Commit(newRoot, []objstore.CommitID{c0}, CreateTableMessage("users", ""), "vcsql")
	require.NoError(t, err)

	history, err := log.History(c1, 0, false)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, c1, history[0].ID)
	assert.Equal(t, c0, history[1].ID)
}

func TestMergeBaseAndDetectConflicts(t *testing.T) {
	store, log := newTestLog(t)
	c0, err := log.CreateInitialCommit("vcsql")
	require.NoError(t, err)
	root0, err := store.GetCommit(c0)
	require.NoError(t, err)

	mut, err := reftree.NewMutator(store, root0.Root)
	require.NoError(t, err)
	require.NoError(t, mut.CreateTable("t"))
	blob, err := store.PutBlob([]byte(`{"_pk":"x","_version":1}`))
	require.NoError(t, err)
	require.NoError(t, mut.InsertRow("t", "x", blob))
	rootBase, err := mut.Write()
	require.NoError(t, err)
	base, err := log.Commit(rootBase, []objstore.CommitID{c0}, "[CREATE TABLE] t", "vcsql")
	require.NoError(t, err)

	// Branch A updates x.
	mutA, err := reftree.NewMutator(store, rootBase)
	require.NoError(t, err)
	blobA, _ := store.PutBlob([]byte(`{"_pk":"x","_version":2}`))
	require.NoError(t, mutA.UpsertRow("t", "x", blobA))
	rootA, err := mutA.Write()
	require.NoError(t, err)
	commitA, err := log.Commit(rootA, []objstore.CommitID{base}, UpdateMessage("t", "x", "a"), "vcsql")
	require.NoError(t, err)

	// Branch B updates x too.
	mutB, err := reftree.NewMutator(store, rootBase)
	require.NoError(t, err)
	blobB, _ := store.PutBlob([]byte(`{"_pk":"x","_version":3}`))
	require.NoError(t, mutB.UpsertRow("t", "x", blobB))
	rootB, err := mutB.Write()
	require.NoError(t, err)
	commitB, err := log.Commit(rootB, []objstore.CommitID{base}, UpdateMessage("t", "x", "b"), "vcsql")
	require.NoError(t, err)

	mergeBase, ok, err := log.MergeBase(commitA, commitB)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base, mergeBase)

	conflicts, err := log.DetectConflicts(commitA, commitB)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "t/x.json", conflicts[0])
}

func TestDiffAddedDeletedModified(t *testing.T) {
	store, log := newTestLog(t)
	c0, err := log.CreateInitialCommit("vcsql")
	require.NoError(t, err)
	root0, err := store.GetCommit(c0)
	require.NoError(t, err)

	mut, err := reftree.NewMutator(store, root0.Root)
	require.NoError(t, err)
	require.NoError(t, mut.CreateTable("t"))
	blob, _ := store.PutBlob([]byte("a"))
	require.NoError(t, mut.InsertRow("t", "x", blob))
	root1, err := mut.Write()
	require.NoError(t, err)
	c1, err := log.Commit(root1, []objstore.CommitID{c0}, "add", "vcsql")
	require.NoError(t, err)

	changes, err := log.Diff(c0, c1)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "t/x.json", changes[0].Path)
	assert.Equal(t, Added, changes[0].Status)
}

func TestInsertMessageWithAndWithoutTx(t *testing.T) {
	assert.Equal(t, "[INSERT] t/k", InsertMessage("t", "k", ""))
	assert.Equal(t, "[INSERT] t/k tx:abc", InsertMessage("t", "k", "abc"))
	assert.Equal(t, "[COMMIT] Transaction abc merged to main", MergeMessage("abc"))
}
