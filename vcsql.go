// Package vcsql provides the public entry point to a vcsql database: a
// SQL document store whose persistence layer is a git-like
// content-addressed object store (commits, branches, merge-on-commit).
//
// Most callers only need Open and Execute; the internal/* packages this
// facade wires together (repo, txn, catalog, executor) are where the
// actual engine, transaction and query-planning logic lives.
package vcsql

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/vcsql/vcsql/internal/catalog"
	"github.com/vcsql/vcsql/internal/executor"
	"github.com/vcsql/vcsql/internal/objstore"
	"github.com/vcsql/vcsql/internal/plan"
	"github.com/vcsql/vcsql/internal/repo"
	"github.com/vcsql/vcsql/internal/txn"
	"github.com/vcsql/vcsql/internal/vcsqlconfig"
)

// Re-exported statement/result types so callers never need to import the
// internal executor package directly.
type (
	Statement   = executor.Statement
	Result      = executor.Result
	CreateTable = executor.CreateTable
	DropTable   = executor.DropTable
	Select      = executor.Select
	Insert      = executor.Insert
	Update      = executor.Update
	Delete      = executor.Delete
	Begin       = executor.Begin
	Commit      = executor.Commit
	Rollback    = executor.Rollback
	ShowTables  = executor.ShowTables
	Describe    = executor.Describe

	SelectResult = executor.SelectResult
	Modified     = executor.Modified
	Success      = executor.Success
	Transaction  = executor.Transaction

	Column    = catalog.Column
	Isolation = txn.Isolation
	Handle    = txn.Handle
)

const (
	ReadCommitted  = txn.ReadCommitted
	RepeatableRead = txn.RepeatableRead
)

// Database is a single vcsql repository: the object store, transaction
// manager, catalog and executor wired together behind one entry point.
// A Database is safe for concurrent use by multiple goroutines.
type Database struct {
	engine  *repo.Engine
	catalog *catalog.Catalog
	txns    *txn.Manager
	exec    *executor.Executor
}

// Open opens (creating if absent) the vcsql repository at dir, loading
// dir/vcsql.toml for ambient configuration (repo file name, optimizer
// thresholds) if present. The file's default_isolation and lock_timeout
// settings are loaded but not applied: Open does not pass them on.
func Open(dir string) (*Database, error) {
	cfg, err := vcsqlconfig.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("vcsql: %w", err)
	}
	cfg.ApplyOptimizer()

	path := cfg.RepoPath
	if dir != "" {
		path = dir + "/" + cfg.RepoPath
	}
	engine, err := repo.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vcsql: %w", err)
	}

	cat := catalog.New(engine)
	mgr := txn.NewManager(engine)
	return &Database{
		engine:  engine,
		catalog: cat,
		txns:    mgr,
		exec:    executor.New(engine, cat, mgr),
	}, nil
}

// Close releases the underlying object store.
func (db *Database) Close() error { return db.engine.Close() }

// Execute runs a single statement. Outside an explicit Begin/Commit pair
// each statement autocommits as its own transaction (spec §4.12).
func (db *Database) Execute(ctx context.Context, stmt Statement) (Result, error) {
	return db.exec.Execute(ctx, stmt)
}

// WithTransaction runs f within a new transaction at the given isolation
// level, committing if f returns nil and rolling back otherwise.
func (db *Database) WithTransaction(ctx context.Context, isolation Isolation, f func(h *Handle) error) error {
	return db.txns.WithTransaction(ctx, isolation, f)
}

// CleanupAbandoned deletes transaction branches left behind by processes
// that began a transaction and exited without committing or rolling
// back, returning the number removed.
func (db *Database) CleanupAbandoned() (int, error) {
	return db.txns.CleanupAbandoned()
}

// Explain renders the logical and physical query plan vcsql.Execute would
// build and optimize for a Select, without running it.
func Explain(stmt Select) string {
	return plan.Explain(executor.BuildLogicalPlan(stmt))
}

// ObjectRef is a content-addressed commit identifier, exposed so callers
// can pin reads to a specific point in history.
type ObjectRef = objstore.CommitID

// EnableStdoutMetrics installs a global OpenTelemetry MeterProvider that
// prints the repository engine's instruments (lock-wait, active-tx,
// commit-conflict) to stdout every interval. Embedders that already wire
// their own MeterProvider should not call this; vcsql's instruments
// register against whatever global provider is in effect regardless.
func EnableStdoutMetrics(interval time.Duration) (shutdown func(context.Context) error, err error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("vcsql: stdout metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	return provider.Shutdown, nil
}
