// Package reftree implements the read-only tree view and the staged tree
// mutator of spec §4.3, over the object model in internal/objstore.
package reftree

import (
	"fmt"
	"strings"

	"github.com/vcsql/vcsql/internal/names"
	"github.com/vcsql/vcsql/internal/objstore"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

const rowBlobSuffix = ".json"

// View is a read-only walker over a single root tree.
type View struct {
	store *objstore.Store
	root  objstore.TreeID
}

// NewView opens a read-only view over root.
func NewView(store *objstore.Store, root objstore.TreeID) *View {
	return &View{store: store, root: root}
}

// ListTables returns the subtree entries of the root that are not
// reserved (don't start with "_") — spec §4.3.
func (v *View) ListTables() ([]names.TableName, error) {
	rootTree, err := v.store.GetTree(v.root)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var out []names.TableName
	for _, e := range rootTree.Entries {
		if e.Kind != objstore.EntryTree {
			return nil, fmt.Errorf("list tables: entry %q: %w", e.Name, vcsqlerr.ErrUnexpectedEntryType)
		}
		if strings.HasPrefix(e.Name, "_") {
			continue
		}
		out = append(out, names.TableName(e.Name))
	}
	return out, nil
}

// TableExists reports whether t names a subtree of the root.
func (v *View) TableExists(t names.TableName) (bool, error) {
	_, ok, err := v.findTableEntry(t)
	return ok, err
}

// GetTableTree returns the tree id for table t.
func (v *View) GetTableTree(t names.TableName) (objstore.TreeID, error) {
	entry, ok, err := v.findTableEntry(t)
	if err != nil {
		return objstore.TreeID{}, err
	}
	if !ok {
		return objstore.TreeID{}, fmt.Errorf("table %q: %w", t, vcsqlerr.ErrTableNotFound)
	}
	return entry.Tree, nil
}

// ListRows returns the row keys of table t, derived by stripping ".json"
// from the table subtree's blob entries.
func (v *View) ListRows(t names.TableName) ([]names.RowKey, error) {
	treeID, err := v.GetTableTree(t)
	if err != nil {
		return nil, err
	}
	tableTree, err := v.store.GetTree(treeID)
	if err != nil {
		return nil, fmt.Errorf("list rows of %q: %w", t, err)
	}
	var out []names.RowKey
	for _, e := range tableTree.Entries {
		if e.Kind != objstore.EntryBlob {
			return nil, fmt.Errorf("list rows of %q: entry %q: %w", t, e.Name, vcsqlerr.ErrUnexpectedEntryType)
		}
		key := strings.TrimSuffix(e.Name, rowBlobSuffix)
		out = append(out, names.RowKey(key))
	}
	return out, nil
}

// GetRowBlobID returns the blob id stored at key k in table t.
func (v *View) GetRowBlobID(t names.TableName, k names.RowKey) (objstore.BlobID, bool, error) {
	treeID, err := v.GetTableTree(t)
	if err != nil {
		return objstore.BlobID{}, false, err
	}
	tableTree, err := v.store.GetTree(treeID)
	if err != nil {
		return objstore.BlobID{}, false, fmt.Errorf("get row %q/%q: %w", t, k, err)
	}
	entry, ok := tableTree.Find(string(k) + rowBlobSuffix)
	if !ok {
		return objstore.BlobID{}, false, nil
	}
	if entry.Kind != objstore.EntryBlob {
		return objstore.BlobID{}, false, fmt.Errorf("get row %q/%q: %w", t, k, vcsqlerr.ErrUnexpectedEntryType)
	}
	return entry.Blob, true, nil
}

// RowExists reports whether key k exists in table t.
func (v *View) RowExists(t names.TableName, k names.RowKey) (bool, error) {
	_, ok, err := v.GetRowBlobID(t, k)
	return ok, err
}

func (v *View) findTableEntry(t names.TableName) (objstore.TreeEntry, bool, error) {
	rootTree, err := v.store.GetTree(v.root)
	if err != nil {
		return objstore.TreeEntry{}, false, fmt.Errorf("find table %q: %w", t, err)
	}
	entry, ok := rootTree.Find(string(t))
	if !ok {
		return objstore.TreeEntry{}, false, nil
	}
	if entry.Kind != objstore.EntryTree {
		return objstore.TreeEntry{}, false, fmt.Errorf("find table %q: %w", t, vcsqlerr.ErrUnexpectedEntryType)
	}
	return entry, true, nil
}
