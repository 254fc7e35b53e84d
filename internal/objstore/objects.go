package objstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"time"
)

// EntryKind distinguishes a tree entry pointing at a blob from one
// pointing at a subtree.
type EntryKind int

const (
	EntryBlob EntryKind = iota
	EntryTree
)

// TreeEntry is one (name -> blob|tree) mapping inside a Tree.
type TreeEntry struct {
	Name string
	Kind EntryKind
	Blob BlobID
	Tree TreeID
}

// Tree is an ordered, content-addressed directory of entries (spec §3).
// Entries are kept sorted by Name so that two trees with the same logical
// contents always serialize identically.
type Tree struct {
	Entries []TreeEntry
}

// sorted returns a copy of t's entries sorted by name.
func (t Tree) sorted() []TreeEntry {
	out := make([]TreeEntry, len(t.Entries))
	copy(out, t.Entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Find looks up an entry by name.
func (t Tree) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

func marshalTree(t Tree) []byte {
	var buf bytes.Buffer
	entries := t.sorted()
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(entries)))
	for _, e := range entries {
		kindByte := byte(0)
		if e.Kind == EntryTree {
			kindByte = 1
		}
		buf.WriteByte(kindByte)
		nameBytes := []byte(e.Name)
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(nameBytes)))
		buf.Write(nameBytes)
		if e.Kind == EntryTree {
			buf.Write(e.Tree.h[:])
		} else {
			buf.Write(e.Blob.h[:])
		}
	}
	return buf.Bytes()
}

func unmarshalTree(data []byte) (Tree, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return Tree{}, fmt.Errorf("unmarshal tree: %w", err)
	}
	entries := make([]TreeEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return Tree{}, fmt.Errorf("unmarshal tree entry %d: %w", i, err)
		}
		var nameLen uint32
		if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
			return Tree{}, fmt.Errorf("unmarshal tree entry %d: %w", i, err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := r.Read(nameBytes); err != nil {
			return Tree{}, fmt.Errorf("unmarshal tree entry %d: %w", i, err)
		}
		var h Hash
		if _, err := r.Read(h[:]); err != nil {
			return Tree{}, fmt.Errorf("unmarshal tree entry %d: %w", i, err)
		}
		entry := TreeEntry{Name: string(nameBytes)}
		if kindByte == 1 {
			entry.Kind = EntryTree
			entry.Tree = TreeID{h}
		} else {
			entry.Kind = EntryBlob
			entry.Blob = BlobID{h}
		}
		entries = append(entries, entry)
	}
	return Tree{Entries: entries}, nil
}

// Commit is the tuple of spec §3: a root tree, parent commits, an author
// signature, a message, and a timestamp.
type Commit struct {
	Root      TreeID
	Parents   []CommitID
	Author    string
	Message   string
	Timestamp time.Time
}

// IsMerge reports whether this commit has more than one parent.
func (c Commit) IsMerge() bool { return len(c.Parents) > 1 }

func marshalCommit(c Commit) []byte {
	var buf bytes.Buffer
	buf.Write(c.Root.h[:])
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(c.Parents)))
	for _, p := range c.Parents {
		buf.Write(p.h[:])
	}
	writeString := func(s string) {
		b := []byte(s)
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(b)))
		buf.Write(b)
	}
	writeString(c.Author)
	writeString(c.Message)
	writeString(c.Timestamp.UTC().Format(time.RFC3339Nano))
	return buf.Bytes()
}

func unmarshalCommit(data []byte) (Commit, error) {
	r := bytes.NewReader(data)
	var c Commit
	var rootHash Hash
	if _, err := r.Read(rootHash[:]); err != nil {
		return c, fmt.Errorf("unmarshal commit root: %w", err)
	}
	c.Root = TreeID{rootHash}

	var parentCount uint32
	if err := binary.Read(r, binary.BigEndian, &parentCount); err != nil {
		return c, fmt.Errorf("unmarshal commit parent count: %w", err)
	}
	c.Parents = make([]CommitID, 0, parentCount)
	for i := uint32(0); i < parentCount; i++ {
		var h Hash
		if _, err := r.Read(h[:]); err != nil {
			return c, fmt.Errorf("unmarshal commit parent %d: %w", i, err)
		}
		c.Parents = append(c.Parents, CommitID{h})
	}

	readString := func(label string) (string, error) {
		var l uint32
		if err := binary.Read(r, binary.BigEndian, &l); err != nil {
			return "", fmt.Errorf("unmarshal commit %s length: %w", label, err)
		}
		b := make([]byte, l)
		if l > 0 {
			if _, err := r.Read(b); err != nil {
				return "", fmt.Errorf("unmarshal commit %s: %w", label, err)
			}
		}
		return string(b), nil
	}
	author, err := readString("author")
	if err != nil {
		return c, err
	}
	c.Author = author
	message, err := readString("message")
	if err != nil {
		return c, err
	}
	c.Message = message
	ts, err := readString("timestamp")
	if err != nil {
		return c, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return c, fmt.Errorf("unmarshal commit timestamp %q: %w", ts, err)
	}
	c.Timestamp = parsed
	return c, nil
}
