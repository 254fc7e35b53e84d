package objstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBlobPutGetDeterministic(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.PutBlob([]byte("hello"))
	require.NoError(t, err)
	id2, err := s.PutBlob([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "identical content must produce identical blob ids")

	got, err := s.GetBlob(id1)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestGetBlobNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.PutBlob([]byte("a"))
	require.NoError(t, err)

	bogus, err := ParseBlobID("0000000000000000000000000000000000000000")
	require.NoError(t, err)
	_, err = s.GetBlob(bogus)
	require.Error(t, err)
}

func TestTreeRoundTrip(t *testing.T) {
	s := openTestStore(t)

	blobID, err := s.PutBlob([]byte(`{"_pk":"1"}`))
	require.NoError(t, err)

	tree := Tree{Entries: []TreeEntry{
		{Name: "1.json", Kind: EntryBlob, Blob: blobID},
	}}
	treeID, err := s.PutTree(tree)
	require.NoError(t, err)

	got, err := s.GetTree(treeID)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "1.json", got.Entries[0].Name)
	assert.Equal(t, blobID, got.Entries[0].Blob)
}

func TestTreeOrderIndependentHash(t *testing.T) {
	s := openTestStore(t)
	b1, _ := s.PutBlob([]byte("a"))
	b2, _ := s.PutBlob([]byte("b"))

	treeA := Tree{Entries: []TreeEntry{
		{Name: "a.json", Kind: EntryBlob, Blob: b1},
		{Name: "b.json", Kind: EntryBlob, Blob: b2},
	}}
	treeB := Tree{Entries: []TreeEntry{
		{Name: "b.json", Kind: EntryBlob, Blob: b2},
		{Name: "a.json", Kind: EntryBlob, Blob: b1},
	}}

	idA, err := s.PutTree(treeA)
	require.NoError(t, err)
	idB, err := s.PutTree(treeB)
	require.NoError(t, err)
	assert.Equal(t, idA, idB, "tree hash must not depend on entry insertion order")
}

func TestCommitRoundTrip(t *testing.T) {
	s := openTestStore(t)
	tree := Tree{}
	treeID, err := s.PutTree(tree)
	require.NoError(t, err)

	c := Commit{
		Root:      treeID,
		Parents:   nil,
		Author:    "vcsql",
		Message:   "[CREATE TABLE] users",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	id, err := s.PutCommit(c)
	require.NoError(t, err)

	got, err := s.GetCommit(id)
	require.NoError(t, err)
	assert.Equal(t, c.Root, got.Root)
	assert.Equal(t, c.Author, got.Author)
	assert.Equal(t, c.Message, got.Message)
	assert.True(t, c.Timestamp.Equal(got.Timestamp))
	assert.False(t, got.IsMerge())
}
