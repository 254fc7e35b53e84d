package txn

import (
	"context"
	"sync"

	"github.com/vcsql/vcsql/internal/names"
	"github.com/vcsql/vcsql/internal/repo"
)

// Manager owns the active-transaction registry and the single
// commit-serialization mutex spec §4.8 and §6.5 require: exactly one
// writer may run the conflict-check-then-CAS critical section at a time,
// independent of the engine's own reader/writer lock.
type Manager struct {
	engine *repo.Engine

	mu     sync.Mutex
	active map[string]*Handle

	commitMu sync.Mutex
}

// NewManager constructs a Manager over engine. The engine outlives the
// manager; callers remain responsible for engine.Close.
func NewManager(engine *repo.Engine) *Manager {
	return &Manager{engine: engine, active: make(map[string]*Handle)}
}

// Begin starts a new Active transaction rooted at the current main head.
func (m *Manager) Begin(isolation Isolation) (*Handle, error) {
	head, err := m.engine.Resolve(mainBranch)
	if err != nil {
		return nil, err
	}
	id := names.GenerateTimeOrderedID()
	if err := m.engine.CreateTxBranch(id, head); err != nil {
		return nil, err
	}
	h := &Handle{
		id:        id,
		isolation: isolation,
		base:      head,
		current:   head,
		mgr:       m,
		state:     stateActive,
	}
	m.mu.Lock()
	m.active[id] = h
	m.mu.Unlock()
	return h, nil
}

// WithTransaction scopes an Active transaction around f, committing on
// success and rolling back if f (or Commit) returns an error.
func (m *Manager) WithTransaction(ctx context.Context, isolation Isolation, f func(h *Handle) error) error {
	h, err := m.Begin(isolation)
	if err != nil {
		return err
	}
	if err := f(h); err != nil {
		_ = h.Rollback()
		return err
	}
	return h.Commit(ctx)
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// ActiveCount reports the number of transactions currently Active.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// CleanupAbandoned deletes every tx-branch whose id is not in the active
// map — e.g. left behind by a process that crashed mid-transaction — and
// reports how many it removed.
func (m *Manager) CleanupAbandoned() (int, error) {
	ids, err := m.engine.ListTxBranches()
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	live := make(map[string]bool, len(m.active))
	for id := range m.active {
		live[id] = true
	}
	m.mu.Unlock()

	cleaned := 0
	for _, id := range ids {
		if live[id] {
			continue
		}
		if err := m.engine.DeleteTxBranch(id); err != nil {
			return cleaned, err
		}
		cleaned++
	}
	return cleaned, nil
}
