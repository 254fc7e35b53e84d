package reftree

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vcsql/vcsql/internal/names"
	"github.com/vcsql/vcsql/internal/objstore"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// Mutator is the staged builder over a root tree described in spec §4.3.
// It tracks two maps: the original per-table subtree ids copied from the
// source root at construction, and the in-memory row caches for tables
// that have been touched. Write() only rewrites the subtrees that were
// actually modified, so a commit touching one table never perturbs the
// hash of a sibling table's subtree.
type Mutator struct {
	store *objstore.Store

	originalSubtrees map[string]objstore.TreeID  // table name -> tree id as of construction
	rowCache         map[string]map[string]objstore.BlobID // table name -> row key -> blob id, loaded lazily
	tableExists      map[string]bool             // current existence (reflects create/drop)
	modified         map[string]bool             // tables whose rowCache differs from the original subtree
}

// NewMutator loads the top-level entries of root (but not row data) into a
// fresh staged builder.
func NewMutator(store *objstore.Store, root objstore.TreeID) (*Mutator, error) {
	rootTree, err := store.GetTree(root)
	if err != nil {
		return nil, fmt.Errorf("new mutator: %w", err)
	}
	original := make(map[string]objstore.TreeID, len(rootTree.Entries))
	exists := make(map[string]bool, len(rootTree.Entries))
	for _, e := range rootTree.Entries {
		if e.Kind != objstore.EntryTree {
			return nil, fmt.Errorf("new mutator: entry %q: %w", e.Name, vcsqlerr.ErrUnexpectedEntryType)
		}
		original[e.Name] = e.Tree
		exists[e.Name] = true
	}
	return &Mutator{
		store:            store,
		originalSubtrees: original,
		rowCache:         map[string]map[string]objstore.BlobID{},
		tableExists:      exists,
		modified:         map[string]bool{},
	}, nil
}

func (m *Mutator) ensureLoaded(table string) error {
	if _, ok := m.rowCache[table]; ok {
		return nil
	}
	rows := map[string]objstore.BlobID{}
	if treeID, ok := m.originalSubtrees[table]; ok {
		tree, err := m.store.GetTree(treeID)
		if err != nil {
			return fmt.Errorf("load table %q: %w", table, err)
		}
		for _, e := range tree.Entries {
			if e.Kind != objstore.EntryBlob {
				return fmt.Errorf("load table %q: entry %q: %w", table, e.Name, vcsqlerr.ErrUnexpectedEntryType)
			}
			key := trimJSONSuffix(e.Name)
			rows[key] = e.Blob
		}
	}
	m.rowCache[table] = rows
	return nil
}

// CreateTable inserts an empty subtree at t.
func (m *Mutator) CreateTable(t names.TableName) error {
	name := string(t)
	if m.tableExists[name] {
		return fmt.Errorf("create table %q: %w", name, vcsqlerr.ErrTableAlreadyExists)
	}
	m.tableExists[name] = true
	m.rowCache[name] = map[string]objstore.BlobID{}
	m.modified[name] = true
	return nil
}

// DropTable removes the subtree at t and clears its builder cache.
func (m *Mutator) DropTable(t names.TableName) error {
	name := string(t)
	if !m.tableExists[name] {
		return fmt.Errorf("drop table %q: %w", name, vcsqlerr.ErrTableNotFound)
	}
	delete(m.tableExists, name)
	delete(m.rowCache, name)
	delete(m.originalSubtrees, name)
	delete(m.modified, name)
	return nil
}

// UpsertRow sets k.json -> blob in table t's subtree, overwriting any
// existing entry.
func (m *Mutator) UpsertRow(t names.TableName, k names.RowKey, blob objstore.BlobID) error {
	name := string(t)
	if !m.tableExists[name] {
		return fmt.Errorf("upsert row %q/%q: %w", name, k, vcsqlerr.ErrTableNotFound)
	}
	if err := m.ensureLoaded(name); err != nil {
		return err
	}
	m.rowCache[name][string(k)] = blob
	m.modified[name] = true
	return nil
}

// InsertRow is UpsertRow with a precondition that k is absent.
func (m *Mutator) InsertRow(t names.TableName, k names.RowKey, blob objstore.BlobID) error {
	name := string(t)
	if !m.tableExists[name] {
		return fmt.Errorf("insert row %q/%q: %w", name, k, vcsqlerr.ErrTableNotFound)
	}
	if err := m.ensureLoaded(name); err != nil {
		return err
	}
	if _, ok := m.rowCache[name][string(k)]; ok {
		return fmt.Errorf("insert row %q/%q: %w", name, k, vcsqlerr.ErrRowAlreadyExists)
	}
	m.rowCache[name][string(k)] = blob
	m.modified[name] = true
	return nil
}

// DeleteRow removes k.json from table t's subtree.
func (m *Mutator) DeleteRow(t names.TableName, k names.RowKey) error {
	name := string(t)
	if !m.tableExists[name] {
		return fmt.Errorf("delete row %q/%q: %w", name, k, vcsqlerr.ErrTableNotFound)
	}
	if err := m.ensureLoaded(name); err != nil {
		return err
	}
	if _, ok := m.rowCache[name][string(k)]; !ok {
		return fmt.Errorf("delete row %q/%q: %w", name, k, vcsqlerr.ErrRowNotFound)
	}
	delete(m.rowCache[name], string(k))
	m.modified[name] = true
	return nil
}

// Write flushes every modified table's subtree and then the root tree,
// returning the new root tree id. Tables that were never touched keep
// referencing their original tree id without being rewritten.
func (m *Mutator) Write() (objstore.TreeID, error) {
	var entries []objstore.TreeEntry

	for name := range m.tableExists {
		if !m.modified[name] {
			treeID, ok := m.originalSubtrees[name]
			if !ok {
				continue
			}
			entries = append(entries, objstore.TreeEntry{Name: name, Kind: objstore.EntryTree, Tree: treeID})
		}
	}

	var modNames []string
	for name := range m.modified {
		if m.tableExists[name] {
			modNames = append(modNames, name)
		}
	}
	writtenTrees := make([]objstore.TreeID, len(modNames))

	var g errgroup.Group
	for i, name := range modNames {
		i, name := i, name
		g.Go(func() error {
			rows := m.rowCache[name]
			keys := make([]string, 0, len(rows))
			for k := range rows {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			tableEntries := make([]objstore.TreeEntry, 0, len(keys))
			for _, k := range keys {
				tableEntries = append(tableEntries, objstore.TreeEntry{Name: k + rowBlobSuffix, Kind: objstore.EntryBlob, Blob: rows[k]})
			}
			treeID, err := m.store.PutTree(objstore.Tree{Entries: tableEntries})
			if err != nil {
				return fmt.Errorf("write table %q: %w", name, err)
			}
			writtenTrees[i] = treeID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return objstore.TreeID{}, err
	}
	for i, name := range modNames {
		entries = append(entries, objstore.TreeEntry{Name: name, Kind: objstore.EntryTree, Tree: writtenTrees[i]})
	}

	newRoot, err := m.store.PutTree(objstore.Tree{Entries: entries})
	if err != nil {
		return objstore.TreeID{}, fmt.Errorf("write root: %w", err)
	}
	return newRoot, nil
}

func trimJSONSuffix(s string) string {
	if len(s) > len(rowBlobSuffix) && s[len(s)-len(rowBlobSuffix):] == rowBlobSuffix {
		return s[:len(s)-len(rowBlobSuffix)]
	}
	return s
}
