// Package repo implements the repository engine of spec §4.6: the single
// entry point other subsystems use to read and mutate tables/rows against
// a named commit, and to manage branches. Every mutation is fetch root
// tree at `at` -> stage via a mutator -> write new root -> commit with
// `at` as sole parent -> return the new commit id; the engine never
// advances a branch itself except via FastForwardMain.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vcsql/vcsql/internal/blobcodec"
	"github.com/vcsql/vcsql/internal/commitlog"
	"github.com/vcsql/vcsql/internal/names"
	"github.com/vcsql/vcsql/internal/objstore"
	"github.com/vcsql/vcsql/internal/refs"
	"github.com/vcsql/vcsql/internal/reftree"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// Stats is the result of Engine.Stats, per spec §4.6.
type Stats struct {
	TableCount   int
	TotalRows    int
	BranchCount  int
	ActiveTxCount int
}

// Engine is the repository engine: the public storage facade wrapping
// the object store, the reference manager and the commit log behind a
// single in-process RW lock (reads take RLock, mutations and branch
// updates take Lock), grounded on the teacher's AccessLock coordinating
// single-writer/many-reader access to the embedded store.
type Engine struct {
	store *objstore.Store
	refs  *refs.Manager
	log   *commitlog.Log

	mu       sync.RWMutex
	logger   *slog.Logger
	authorID string
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the engine's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Open opens (creating if absent) the bbolt-backed object store at path
// and ensures main exists, creating the initial empty-repository commit
// if the store has never been initialized.
func Open(path string, opts ...Option) (*Engine, error) {
	store, err := objstore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	e := &Engine{
		store:    store,
		refs:     refs.New(store),
		log:      commitlog.New(store),
		logger:   slog.Default().With("component", "repo"),
		authorID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if _, err := e.refs.Head(); err != nil {
		if errors.Is(err, vcsqlerr.ErrEmptyRepository) {
			initial, cerr := e.log.CreateInitialCommit(e.authorID)
			if cerr != nil {
				_ = store.Close()
				return nil, fmt.Errorf("open engine: %w", cerr)
			}
			if cerr := e.refs.InitMain(initial); cerr != nil {
				_ = store.Close()
				return nil, fmt.Errorf("open engine: %w", cerr)
			}
			return e, nil
		}
		_ = store.Close()
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return e, nil
}

// Close releases the underlying store.
func (e *Engine) Close() error { return e.store.Close() }

func (e *Engine) withLockWait(ctx context.Context, exclusive bool, fn func() error) error {
	start := time.Now()
	if exclusive {
		e.mu.Lock()
		defer e.mu.Unlock()
	} else {
		e.mu.RLock()
		defer e.mu.RUnlock()
	}
	repoMetrics.lockWaitMs.Record(ctx, float64(time.Since(start).Milliseconds()))
	return fn()
}

func (e *Engine) viewAt(at objstore.CommitID) (*reftree.View, error) {
	c, err := e.store.GetCommit(at)
	if err != nil {
		return nil, fmt.Errorf("resolve commit %s: %w", at.Short(), err)
	}
	return reftree.NewView(e.store, c.Root), nil
}

func (e *Engine) mutatorAt(at objstore.CommitID) (*reftree.Mutator, error) {
	c, err := e.store.GetCommit(at)
	if err != nil {
		return nil, fmt.Errorf("resolve commit %s: %w", at.Short(), err)
	}
	return reftree.NewMutator(e.store, c.Root)
}

func (e *Engine) commitMutator(ctx context.Context, mut *reftree.Mutator, at objstore.CommitID, message string) (objstore.CommitID, error) {
	newRoot, err := mut.Write()
	if err != nil {
		return objstore.CommitID{}, err
	}
	id, err := e.log.Commit(newRoot, []objstore.CommitID{at}, message, e.authorID)
	if err != nil {
		return objstore.CommitID{}, err
	}
	e.logger.Debug("committed", "commit", id.Short(), "parent", at.Short(), "message", message)
	return id, nil
}

// ListTables lists the non-reserved tables visible at commit at.
func (e *Engine) ListTables(at objstore.CommitID) ([]names.TableName, error) {
	var out []names.TableName
	err := e.withLockWait(context.Background(), false, func() error {
		v, err := e.viewAt(at)
		if err != nil {
			return err
		}
		out, err = v.ListTables()
		return err
	})
	return out, err
}

// TableExists reports whether t is visible at commit at.
func (e *Engine) TableExists(t names.TableName, at objstore.CommitID) (bool, error) {
	var exists bool
	err := e.withLockWait(context.Background(), false, func() error {
		v, err := e.viewAt(at)
		if err != nil {
			return err
		}
		exists, err = v.TableExists(t)
		return err
	})
	return exists, err
}

// CreateTable inserts an empty table subtree, committing on top of at.
func (e *Engine) CreateTable(t names.TableName, at objstore.CommitID, txID string) (objstore.CommitID, error) {
	var out objstore.CommitID
	err := e.withLockWait(context.Background(), true, func() error {
		mut, err := e.mutatorAt(at)
		if err != nil {
			return err
		}
		if err := mut.CreateTable(t); err != nil {
			return err
		}
		out, err = e.commitMutator(context.Background(), mut, at, commitlog.CreateTableMessage(string(t), txID))
		return err
	})
	return out, err
}

// DropTable removes table t's subtree, committing on top of at.
func (e *Engine) DropTable(t names.TableName, at objstore.CommitID, txID string) (objstore.CommitID, error) {
	var out objstore.CommitID
	err := e.withLockWait(context.Background(), true, func() error {
		mut, err := e.mutatorAt(at)
		if err != nil {
			return err
		}
		if err := mut.DropTable(t); err != nil {
			return err
		}
		out, err = e.commitMutator(context.Background(), mut, at, commitlog.DropTableMessage(string(t), txID))
		return err
	})
	return out, err
}

// ListRows lists the row keys of table t visible at commit at.
func (e *Engine) ListRows(t names.TableName, at objstore.CommitID) ([]names.RowKey, error) {
	var out []names.RowKey
	err := e.withLockWait(context.Background(), false, func() error {
		v, err := e.viewAt(at)
		if err != nil {
			return err
		}
		out, err = v.ListRows(t)
		return err
	})
	return out, err
}

// ReadRow fetches and deserializes the row at key k in table t, visible at
// commit at.
func (e *Engine) ReadRow(t names.TableName, k names.RowKey, at objstore.CommitID) (blobcodec.Row, error) {
	var out blobcodec.Row
	err := e.withLockWait(context.Background(), false, func() error {
		v, err := e.viewAt(at)
		if err != nil {
			return err
		}
		blobID, ok, err := v.GetRowBlobID(t, k)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("read row %s/%s: %w", t, k, vcsqlerr.ErrRowNotFound)
		}
		data, err := e.store.GetBlob(blobID)
		if err != nil {
			return err
		}
		out, err = blobcodec.Deserialize(data, string(k))
		return err
	})
	return out, err
}

// ScanTable reads every row of table t visible at commit at, in key order.
func (e *Engine) ScanTable(t names.TableName, at objstore.CommitID) ([]blobcodec.Row, error) {
	var out []blobcodec.Row
	err := e.withLockWait(context.Background(), false, func() error {
		v, err := e.viewAt(at)
		if err != nil {
			return err
		}
		keys, err := v.ListRows(t)
		if err != nil {
			return err
		}
		out = make([]blobcodec.Row, 0, len(keys))
		for _, k := range keys {
			blobID, ok, err := v.GetRowBlobID(t, k)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			data, err := e.store.GetBlob(blobID)
			if err != nil {
				return err
			}
			row, err := blobcodec.Deserialize(data, string(k))
			if err != nil {
				return err
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

func (e *Engine) writeRow(t names.TableName, row blobcodec.Row, at objstore.CommitID, txID string, apply func(mut *reftree.Mutator, t names.TableName, k names.RowKey, blob objstore.BlobID) error, message string) (objstore.CommitID, error) {
	var out objstore.CommitID
	err := e.withLockWait(context.Background(), true, func() error {
		data, err := blobcodec.Serialize(row)
		if err != nil {
			return err
		}
		blobID, err := e.store.PutBlob(data)
		if err != nil {
			return err
		}
		mut, err := e.mutatorAt(at)
		if err != nil {
			return err
		}
		if err := apply(mut, t, names.RowKey(row.Key), blobID); err != nil {
			return err
		}
		out, err = e.commitMutator(context.Background(), mut, at, message)
		return err
	})
	return out, err
}

// InsertRow inserts row into table t, failing if its key already exists.
func (e *Engine) InsertRow(t names.TableName, row blobcodec.Row, at objstore.CommitID, txID string) (objstore.CommitID, error) {
	return e.writeRow(t, row, at, txID, (*reftree.Mutator).InsertRow, commitlog.InsertMessage(string(t), row.Key, txID))
}

// UpdateRow and UpsertRow both overwrite an existing or absent row; spec
// §4.6 names them separately but they share §4.3 UpsertRow semantics and
// the same [UPDATE] commit message template, so the two behave identically.
func (e *Engine) UpdateRow(t names.TableName, row blobcodec.Row, at objstore.CommitID, txID string) (objstore.CommitID, error) {
	return e.writeRow(t, row, at, txID, (*reftree.Mutator).UpsertRow, commitlog.UpdateMessage(string(t), row.Key, txID))
}

// UpsertRow inserts or overwrites the row at its key.
func (e *Engine) UpsertRow(t names.TableName, row blobcodec.Row, at objstore.CommitID, txID string) (objstore.CommitID, error) {
	return e.writeRow(t, row, at, txID, (*reftree.Mutator).UpsertRow, commitlog.UpdateMessage(string(t), row.Key, txID))
}

// DeleteRow removes the row at key k from table t.
func (e *Engine) DeleteRow(t names.TableName, k names.RowKey, at objstore.CommitID, txID string) (objstore.CommitID, error) {
	var out objstore.CommitID
	err := e.withLockWait(context.Background(), true, func() error {
		mut, err := e.mutatorAt(at)
		if err != nil {
			return err
		}
		if err := mut.DeleteRow(t, k); err != nil {
			return err
		}
		out, err = e.commitMutator(context.Background(), mut, at, commitlog.DeleteMessage(string(t), string(k), txID))
		return err
	})
	return out, err
}

// --- Branch operations ---

// CreateBranch creates name pointing at target.
func (e *Engine) CreateBranch(name names.BranchName, target objstore.CommitID) error {
	return e.withLockWait(context.Background(), true, func() error { return e.refs.CreateBranch(name, target) })
}

// DeleteBranch removes name.
func (e *Engine) DeleteBranch(name names.BranchName) error {
	return e.withLockWait(context.Background(), true, func() error { return e.refs.DeleteBranch(name) })
}

// UpdateBranch force-updates name to target.
func (e *Engine) UpdateBranch(name names.BranchName, target objstore.CommitID) error {
	return e.withLockWait(context.Background(), true, func() error { return e.refs.UpdateBranch(name, target) })
}

// BranchExists reports whether name is a known reference.
func (e *Engine) BranchExists(name names.BranchName) (bool, error) {
	var exists bool
	err := e.withLockWait(context.Background(), false, func() error {
		var err error
		exists, err = e.refs.BranchExists(name)
		return err
	})
	return exists, err
}

// ListBranches lists every branch, excluding tx-branches.
func (e *Engine) ListBranches() ([]names.BranchName, error) {
	var out []names.BranchName
	err := e.withLockWait(context.Background(), false, func() error {
		all, err := e.refs.ListBranches("")
		if err != nil {
			return err
		}
		for _, b := range all {
			if len(b) >= len(refs.TxPrefix) && string(b[:len(refs.TxPrefix)]) == refs.TxPrefix {
				continue
			}
			out = append(out, b)
		}
		return nil
	})
	return out, err
}

// Resolve peels a branch name to its current commit id.
func (e *Engine) Resolve(name names.BranchName) (objstore.CommitID, error) {
	var out objstore.CommitID
	err := e.withLockWait(context.Background(), false, func() error {
		var err error
		out, err = e.refs.Resolve(name)
		return err
	})
	return out, err
}

// CreateTxBranch creates tx/<id> pointing at base.
func (e *Engine) CreateTxBranch(txID string, base objstore.CommitID) error {
	return e.withLockWait(context.Background(), true, func() error { return e.refs.CreateTx(txID, base) })
}

// DeleteTxBranch deletes tx/<id>.
func (e *Engine) DeleteTxBranch(txID string) error {
	return e.withLockWait(context.Background(), true, func() error { return e.refs.DeleteTx(txID) })
}

// ListTxBranches lists the ids of every currently live tx-branch.
func (e *Engine) ListTxBranches() ([]string, error) {
	var out []string
	err := e.withLockWait(context.Background(), false, func() error {
		var err error
		out, err = e.refs.ListTx()
		return err
	})
	return out, err
}

// AdvanceTxBranch CAS-updates tx/<txID> from expected to next — the
// per-write ref update spec §4.8 requires ("CAS-update tx/<id>" on every
// mutation). Only the owning transaction ever writes to its own
// tx-branch, so this never actually contends; it stays a CAS rather than
// a plain update to keep the same compare-and-swap discipline every other
// branch mutation in this package uses.
func (e *Engine) AdvanceTxBranch(txID string, expected, next objstore.CommitID) error {
	return e.withLockWait(context.Background(), true, func() error {
		return e.refs.CompareAndSwap(names.BranchName(refs.TxPrefix+txID), expected, next)
	})
}

// FastForwardMain CAS-updates main from expectedMain to the tip of
// txBranch, returning the new commit id. A failed CAS means a concurrent
// committer won; the caller (transaction manager) converts that into a
// conflict per spec §4.8.
func (e *Engine) FastForwardMain(txBranch string, expectedMain objstore.CommitID) (objstore.CommitID, error) {
	var out objstore.CommitID
	err := e.withLockWait(context.Background(), true, func() error {
		tip, err := e.refs.Resolve(names.BranchName(refs.TxPrefix + txBranch))
		if err != nil {
			return err
		}
		if err := e.refs.CompareAndSwap(refs.MainBranch, expectedMain, tip); err != nil {
			repoMetrics.commitConflict.Add(context.Background(), 1)
			return err
		}
		out = tip
		return nil
	})
	return out, err
}

// DetectConflicts delegates to the commit log's merge-base + diff
// intersection algorithm between a tx-branch tip and the current main
// head.
func (e *Engine) DetectConflicts(txBranchHead, mainHead objstore.CommitID) ([]string, error) {
	var out []string
	err := e.withLockWait(context.Background(), false, func() error {
		var err error
		out, err = e.log.DetectConflicts(txBranchHead, mainHead)
		return err
	})
	return out, err
}

// MergeBase returns the nearest common ancestor of a and b.
func (e *Engine) MergeBase(a, b objstore.CommitID) (objstore.CommitID, bool, error) {
	var out objstore.CommitID
	var ok bool
	err := e.withLockWait(context.Background(), false, func() error {
		var err error
		out, ok, err = e.log.MergeBase(a, b)
		return err
	})
	return out, ok, err
}

// History walks backward from start.
func (e *Engine) History(start objstore.CommitID, limit int, firstParentOnly bool) ([]commitlog.Info, error) {
	var out []commitlog.Info
	err := e.withLockWait(context.Background(), false, func() error {
		var err error
		out, err = e.log.History(start, limit, firstParentOnly)
		return err
	})
	return out, err
}

// Diff compares the root trees of two commits.
func (e *Engine) Diff(old, new objstore.CommitID) ([]commitlog.Change, error) {
	var out []commitlog.Change
	err := e.withLockWait(context.Background(), false, func() error {
		var err error
		out, err = e.log.Diff(old, new)
		return err
	})
	return out, err
}

// Stats reports table/row/branch/active-tx counts as of commit at.
func (e *Engine) Stats(at objstore.CommitID) (Stats, error) {
	var out Stats
	err := e.withLockWait(context.Background(), false, func() error {
		v, err := e.viewAt(at)
		if err != nil {
			return err
		}
		tables, err := v.ListTables()
		if err != nil {
			return err
		}
		out.TableCount = len(tables)
		for _, t := range tables {
			rows, err := v.ListRows(t)
			if err != nil {
				return err
			}
			out.TotalRows += len(rows)
		}
		branches, err := e.refs.ListBranches("")
		if err != nil {
			return err
		}
		txs, err := e.refs.ListTx()
		if err != nil {
			return err
		}
		out.BranchCount = len(branches) - len(txs)
		out.ActiveTxCount = len(txs)
		return nil
	})
	return out, err
}
