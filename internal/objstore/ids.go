// Package objstore implements the content-addressed blob/tree/commit object
// model of spec §3-§4.4, backed by an embedded bbolt key-value store
// (grounded on the teacher's single-file embedded-store idiom in
// internal/storage/dolt/store_embedded.go, generalized from a SQL engine
// file to a generic object store).
package objstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// hashSize is the width of an object identifier, per spec §3: "opaque
// 20-byte hash of object content". sha256 is truncated to the first 20
// bytes rather than using sha1 directly, since sha1 collision resistance
// is considered broken; the object model only needs the hash space to be
// large enough to make accidental collisions negligible; 160 bits is.
const hashSize = 20

// Hash is the opaque content hash shared by all three identifier types.
type Hash [hashSize]byte

func hashBytes(data []byte) Hash {
	full := sha256.Sum256(data)
	var h Hash
	copy(h[:], full[:hashSize])
	return h
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) Short() string { return h.String()[:8] }

func (h Hash) IsZero() bool { return h == Hash{} }

func parseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse object id %q: %w", s, err)
	}
	if len(b) != hashSize {
		return h, fmt.Errorf("parse object id %q: want %d bytes, got %d", s, hashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// BlobID identifies a blob object. BlobID, TreeID and CommitID share a
// representation but are distinct Go types so the compiler rejects passing
// one where another is expected (spec §4.1).
type BlobID struct{ h Hash }

func (id BlobID) String() string { return id.h.String() }
func (id BlobID) Short() string  { return id.h.Short() }
func (id BlobID) IsZero() bool   { return id.h.IsZero() }

// ParseBlobID parses the long hex rendering of a BlobID.
func ParseBlobID(s string) (BlobID, error) {
	h, err := parseHash(s)
	return BlobID{h}, err
}

// TreeID identifies a tree object.
type TreeID struct{ h Hash }

func (id TreeID) String() string { return id.h.String() }
func (id TreeID) Short() string  { return id.h.Short() }
func (id TreeID) IsZero() bool   { return id.h.IsZero() }

// ParseTreeID parses the long hex rendering of a TreeID.
func ParseTreeID(s string) (TreeID, error) {
	h, err := parseHash(s)
	return TreeID{h}, err
}

// CommitID identifies a commit object.
type CommitID struct{ h Hash }

func (id CommitID) String() string { return id.h.String() }
func (id CommitID) Short() string  { return id.h.Short() }
func (id CommitID) IsZero() bool   { return id.h.IsZero() }

// ParseCommitID parses the long hex rendering of a CommitID.
func ParseCommitID(s string) (CommitID, error) {
	h, err := parseHash(s)
	return CommitID{h}, err
}
