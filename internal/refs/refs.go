// Package refs implements the reference manager of spec §4.5: branch
// create/update/delete, compare-and-swap update, and the tx-branch
// namespace.
package refs

import (
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/vcsql/vcsql/internal/names"
	"github.com/vcsql/vcsql/internal/objstore"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// MainBranch is the canonical branch name.
const MainBranch names.BranchName = "main"

// TxPrefix namespaces per-transaction branches.
const TxPrefix = "tx/"

// Manager is the reference manager, backed by the refs bucket of a Store.
type Manager struct {
	store *objstore.Store
}

// New constructs a Manager over store.
func New(store *objstore.Store) *Manager { return &Manager{store: store} }

// Resolve peels the named reference to its commit id.
func (m *Manager) Resolve(branch names.BranchName) (objstore.CommitID, error) {
	var out objstore.CommitID
	err := m.store.RefsView(func(b *bolt.Bucket) error {
		v := b.Get([]byte(branch))
		if v == nil {
			return fmt.Errorf("resolve %q: %w", branch, vcsqlerr.ErrRefNotFound)
		}
		id, err := objstore.ParseCommitID(string(v))
		if err != nil {
			return err
		}
		out = id
		return nil
	})
	return out, err
}

// Head resolves HEAD, i.e. main. Returns ErrEmptyRepository if no commits
// have ever been made.
func (m *Manager) Head() (objstore.CommitID, error) {
	id, err := m.Resolve(MainBranch)
	if err != nil {
		if vcsqlerr.IsNotFound(err) {
			return objstore.CommitID{}, vcsqlerr.ErrEmptyRepository
		}
		return objstore.CommitID{}, err
	}
	return id, nil
}

// BranchExists reports whether name is a known reference.
func (m *Manager) BranchExists(name names.BranchName) (bool, error) {
	var exists bool
	err := m.store.RefsView(func(b *bolt.Bucket) error {
		exists = b.Get([]byte(name)) != nil
		return nil
	})
	return exists, err
}

// ListBranches lists branch names with the given prefix (empty = all).
func (m *Manager) ListBranches(prefix string) ([]names.BranchName, error) {
	var out []names.BranchName
	err := m.store.RefsView(func(b *bolt.Bucket) error {
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if strings.HasPrefix(string(k), prefix) {
				out = append(out, names.BranchName(k))
			}
		}
		return nil
	})
	return out, err
}

// CreateBranch creates name pointing at target, failing if it already
// exists.
func (m *Manager) CreateBranch(name names.BranchName, target objstore.CommitID) error {
	return m.store.RefsUpdate(func(b *bolt.Bucket) error {
		if b.Get([]byte(name)) != nil {
			return fmt.Errorf("create branch %q: %w", name, vcsqlerr.ErrBranchAlreadyExists)
		}
		return b.Put([]byte(name), []byte(target.String()))
	})
}

// UpdateBranch force-updates name to target, creating it if absent.
func (m *Manager) UpdateBranch(name names.BranchName, target objstore.CommitID) error {
	return m.store.RefsUpdate(func(b *bolt.Bucket) error {
		return b.Put([]byte(name), []byte(target.String()))
	})
}

// DeleteBranch removes name. Deleting an absent branch is a no-op.
func (m *Manager) DeleteBranch(name names.BranchName) error {
	return m.store.RefsUpdate(func(b *bolt.Bucket) error {
		return b.Delete([]byte(name))
	})
}

// CompareAndSwap atomically updates name to newTarget iff it currently
// points at expected. This is the optimistic-concurrency primitive the
// transaction manager's commit path depends on (spec §4.5, §5).
func (m *Manager) CompareAndSwap(name names.BranchName, expected, newTarget objstore.CommitID) error {
	return m.store.RefsUpdate(func(b *bolt.Bucket) error {
		current := b.Get([]byte(name))
		if current == nil || string(current) != expected.String() {
			return &vcsqlerr.ConcurrentModificationError{Branch: string(name)}
		}
		return b.Put([]byte(name), []byte(newTarget.String()))
	})
}

// InitMain ensures main exists, creating it at initial if absent.
func (m *Manager) InitMain(initial objstore.CommitID) error {
	exists, err := m.BranchExists(MainBranch)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return m.CreateBranch(MainBranch, initial)
}

// txBranchName renders the tx-branch namespace name for a transaction id.
func txBranchName(txID string) names.BranchName {
	return names.BranchName(TxPrefix + txID)
}

// CreateTx creates tx/<id> pointing at base.
func (m *Manager) CreateTx(txID string, base objstore.CommitID) error {
	return m.CreateBranch(txBranchName(txID), base)
}

// DeleteTx deletes tx/<id>.
func (m *Manager) DeleteTx(txID string) error {
	return m.DeleteBranch(txBranchName(txID))
}

// ListTx enumerates the ids of all tx-branches currently present.
func (m *Manager) ListTx() ([]string, error) {
	branches, err := m.ListBranches(TxPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(branches))
	for _, b := range branches {
		ids = append(ids, strings.TrimPrefix(string(b), TxPrefix))
	}
	return ids, nil
}

// CleanupAbandoned deletes every tx-branch whose id is not in active,
// returning the count removed. Safe to call concurrently with active
// transactions: it only ever deletes branches whose id is absent from the
// caller-supplied active set at the moment of deletion (spec §8 invariant
// 9), so the caller must pass a consistent snapshot of its own active map.
func (m *Manager) CleanupAbandoned(active map[string]bool) (int, error) {
	ids, err := m.ListTx()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if active[id] {
			continue
		}
		if err := m.DeleteTx(id); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
