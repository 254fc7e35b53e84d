package objstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	bolt "go.etcd.io/bbolt"
)

var (
	objectsBucket = []byte("objects")
	refsBucket    = []byte("refs")
)

// objTag distinguishes the three object kinds within the shared "objects"
// bucket, so a single content-addressed key space can serve blobs, trees
// and commits without three separate bboltbuckets.
type objTag byte

const (
	tagBlob   objTag = 'B'
	tagTree   objTag = 'T'
	tagCommit objTag = 'C'
)

// Store is the embedded content-addressed object store. It owns the single
// bbolt handle that backs both objects and refs; the repository engine
// (internal/repo) is the only caller meant to construct one directly —
// every other package receives a *Store that the engine already opened.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt-backed object store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(objectsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(refsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize object store buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt handle.
func (s *Store) Close() error { return s.db.Close() }

// withRetry wraps a bbolt transaction attempt with the teacher's bounded
// exponential backoff (internal/storage/dolt/store.go's retry idiom),
// covering only transient lock contention — never a business-level
// conflict, which is always returned to the caller immediately.
func withRetry(fn func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && errors.Is(err, bolt.ErrTimeout) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, policy)
}

// PutBlob stores data and returns its content-addressed id. Storing the
// same bytes twice is a no-op the second time (bbolt Put is idempotent for
// identical key/value), which is how the store de-duplicates identical
// rows per spec §4.2.
func (s *Store) PutBlob(data []byte) (BlobID, error) {
	h := hashBytes(data)
	id := BlobID{h}
	err := withRetry(func() error {
		return s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(objectsBucket).Put(objectKey(tagBlob, h), data)
		})
	})
	if err != nil {
		return BlobID{}, fmt.Errorf("put blob: %w", err)
	}
	return id, nil
}

// GetBlob returns the raw bytes for id.
func (s *Store) GetBlob(id BlobID) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get(objectKey(tagBlob, id.h))
		if v == nil {
			return fmt.Errorf("blob %s: %w", id.Short(), errNotFound)
		}
		out = append(out, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutTree stores a tree object and returns its id.
func (s *Store) PutTree(t Tree) (TreeID, error) {
	data := marshalTree(t)
	h := hashBytes(data)
	id := TreeID{h}
	err := withRetry(func() error {
		return s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(objectsBucket).Put(objectKey(tagTree, h), data)
		})
	})
	if err != nil {
		return TreeID{}, fmt.Errorf("put tree: %w", err)
	}
	return id, nil
}

// GetTree returns the tree stored at id.
func (s *Store) GetTree(id TreeID) (Tree, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get(objectKey(tagTree, id.h))
		if v == nil {
			return fmt.Errorf("tree %s: %w", id.Short(), errNotFound)
		}
		data = append(data, v...)
		return nil
	})
	if err != nil {
		return Tree{}, err
	}
	return unmarshalTree(data)
}

// PutCommit stores a commit object and returns its id.
func (s *Store) PutCommit(c Commit) (CommitID, error) {
	data := marshalCommit(c)
	h := hashBytes(data)
	id := CommitID{h}
	err := withRetry(func() error {
		return s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(objectsBucket).Put(objectKey(tagCommit, h), data)
		})
	})
	if err != nil {
		return CommitID{}, fmt.Errorf("put commit: %w", err)
	}
	return id, nil
}

// GetCommit returns the commit stored at id.
func (s *Store) GetCommit(id CommitID) (Commit, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get(objectKey(tagCommit, id.h))
		if v == nil {
			return fmt.Errorf("commit %s: %w", id.Short(), errNotFound)
		}
		data = append(data, v...)
		return nil
	})
	if err != nil {
		return Commit{}, err
	}
	return unmarshalCommit(data)
}

// RefsView runs fn against the refs bucket under a read transaction.
func (s *Store) RefsView(fn func(b *bolt.Bucket) error) error {
	return s.db.View(func(tx *bolt.Tx) error { return fn(tx.Bucket(refsBucket)) })
}

// RefsUpdate runs fn against the refs bucket under a write transaction,
// with the same bounded-retry policy as object writes.
func (s *Store) RefsUpdate(fn func(b *bolt.Bucket) error) error {
	return withRetry(func() error {
		return s.db.Update(func(tx *bolt.Tx) error { return fn(tx.Bucket(refsBucket)) })
	})
}

func objectKey(tag objTag, h Hash) []byte {
	key := make([]byte, 1+hashSize)
	key[0] = byte(tag)
	copy(key[1:], h[:])
	return key
}

var errNotFound = errors.New("object not found")
