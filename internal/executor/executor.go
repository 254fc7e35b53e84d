package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vcsql/vcsql/internal/blobcodec"
	"github.com/vcsql/vcsql/internal/catalog"
	"github.com/vcsql/vcsql/internal/eval"
	"github.com/vcsql/vcsql/internal/names"
	"github.com/vcsql/vcsql/internal/objstore"
	"github.com/vcsql/vcsql/internal/plan"
	"github.com/vcsql/vcsql/internal/refs"
	"github.com/vcsql/vcsql/internal/repo"
	"github.com/vcsql/vcsql/internal/txn"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// Executor dispatches statements to the catalog, repository engine and
// transaction manager (spec §4.12). One Executor models one client
// session: at most one transaction may be active on it at a time.
type Executor struct {
	engine  *repo.Engine
	catalog *catalog.Catalog
	txns    *txn.Manager

	mu      sync.Mutex
	session *txn.Handle
}

// New wires an Executor over the given engine, catalog and transaction
// manager, which must all share the same underlying repo.Engine.
func New(engine *repo.Engine, cat *catalog.Catalog, txns *txn.Manager) *Executor {
	return &Executor{engine: engine, catalog: cat, txns: txns}
}

// Execute dispatches stmt per spec §4.12's variant table.
func (e *Executor) Execute(ctx context.Context, stmt Statement) (Result, error) {
	switch s := stmt.(type) {
	case Begin:
		return e.execBegin(s)
	case Commit:
		return e.execCommit(ctx)
	case Rollback:
		return e.execRollback()
	case CreateTable:
		return e.execCreateTable(s)
	case DropTable:
		return e.execDropTable(s)
	case Select:
		return e.execSelect(s)
	case Insert:
		return e.execInsert(s)
	case Update:
		return e.execUpdate(s)
	case Delete:
		return e.execDelete(s)
	case ShowTables:
		return e.execShowTables()
	case Describe:
		return e.execDescribe(s)
	default:
		return nil, fmt.Errorf("%T: %w", stmt, vcsqlerr.ErrUnsupportedPlan)
	}
}

func (e *Executor) execBegin(s Begin) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return nil, vcsqlerr.ErrNestedBegin
	}
	h, err := e.txns.Begin(s.Isolation)
	if err != nil {
		return nil, err
	}
	e.session = h
	return Transaction{Message: "BEGIN"}, nil
}

func (e *Executor) execCommit(ctx context.Context) (Result, error) {
	e.mu.Lock()
	h := e.session
	e.mu.Unlock()
	if h == nil {
		return nil, vcsqlerr.ErrNotActive
	}
	err := h.Commit(ctx)
	e.mu.Lock()
	e.session = nil
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return Transaction{Message: "COMMIT"}, nil
}

func (e *Executor) execRollback() (Result, error) {
	e.mu.Lock()
	h := e.session
	e.mu.Unlock()
	if h == nil {
		return nil, vcsqlerr.ErrNotActive
	}
	err := h.Rollback()
	e.mu.Lock()
	e.session = nil
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return Transaction{Message: "ROLLBACK"}, nil
}

// currentAt returns the commit the next read/write should be based on:
// the session transaction's current commit, or main's head when no
// transaction is active.
func (e *Executor) currentAt() (objstore.CommitID, error) {
	e.mu.Lock()
	h := e.session
	e.mu.Unlock()
	if h != nil {
		return h.Current()
	}
	return e.engine.Resolve(refs.MainBranch)
}

// withWrite runs op against the session transaction if one is active, or
// an ad-hoc autocommit transaction otherwise, passing op the transaction
// id actually doing the write either way.
func (e *Executor) withWrite(ctx context.Context, op func(at objstore.CommitID, txID string) (objstore.CommitID, error)) error {
	e.mu.Lock()
	h := e.session
	e.mu.Unlock()
	if h != nil {
		_, err := h.Apply(func(at objstore.CommitID) (objstore.CommitID, error) { return op(at, h.ID()) })
		return err
	}
	return e.txns.WithTransaction(ctx, txn.ReadCommitted, func(h *txn.Handle) error {
		_, err := h.Apply(func(at objstore.CommitID) (objstore.CommitID, error) { return op(at, h.ID()) })
		return err
	})
}

func (e *Executor) execCreateTable(s CreateTable) (Result, error) {
	table, err := names.NewTableName(s.Table)
	if err != nil {
		return nil, err
	}
	schema := catalog.Schema{
		Name:        s.Table,
		Columns:     s.Columns,
		PrimaryKey:  s.PrimaryKey,
		Description: s.Description,
	}
	err = e.withWrite(context.Background(), func(at objstore.CommitID, txID string) (objstore.CommitID, error) {
		next, err := e.catalog.CreateTable(schema, at, txID)
		if err != nil {
			return objstore.CommitID{}, err
		}
		return e.engine.CreateTable(table, next, txID)
	})
	if err != nil {
		return nil, err
	}
	return Success{Message: fmt.Sprintf("table %q created", s.Table)}, nil
}

func (e *Executor) execDropTable(s DropTable) (Result, error) {
	table, err := names.NewTableName(s.Table)
	if err != nil {
		return nil, err
	}
	err = e.withWrite(context.Background(), func(at objstore.CommitID, txID string) (objstore.CommitID, error) {
		next, err := e.catalog.DropTable(s.Table, at, txID)
		if err != nil {
			return objstore.CommitID{}, err
		}
		return e.engine.DropTable(table, next, txID)
	})
	if err != nil {
		return nil, err
	}
	return Success{Message: fmt.Sprintf("table %q dropped", s.Table)}, nil
}

func (e *Executor) execSelect(s Select) (Result, error) {
	table, err := names.NewTableName(s.Table)
	if err != nil {
		return nil, err
	}
	at, err := e.currentAt()
	if err != nil {
		return nil, err
	}

	logical := plan.Optimize(BuildLogicalPlan(s))
	op, err := buildOperator(logical, func(t string) ([]eval.Row, error) {
		if t != s.Table {
			return nil, fmt.Errorf("table %q: %w", t, vcsqlerr.ErrUnsupportedPlan)
		}
		blobRows, err := e.engine.ScanTable(table, at)
		if err != nil {
			return nil, err
		}
		out := make([]eval.Row, len(blobRows))
		for i, r := range blobRows {
			out[i] = eval.Row(r.Columns)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	rows, err := drain(op)
	if err != nil {
		return nil, err
	}

	columns := plan.OutputColumns(logical)
	if columns == nil {
		columns, err = e.wildcardColumns(s.Table, at, rows)
		if err != nil {
			return nil, err
		}
	}

	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return SelectResult{Columns: columns, Rows: out}, nil
}

// wildcardColumns derives a deterministic column order for a `select *`
// result: the schema's declared column order when one is on file, else
// the lexicographic union of every row's keys.
func (e *Executor) wildcardColumns(table string, at objstore.CommitID, rows []eval.Row) ([]string, error) {
	schema, err := e.catalog.GetTable(table, at)
	if err == nil {
		out := make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			out[i] = c.Name
		}
		return out, nil
	}
	if !vcsqlerr.IsNotFound(err) {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (e *Executor) execInsert(s Insert) (Result, error) {
	table, err := names.NewTableName(s.Table)
	if err != nil {
		return nil, err
	}
	err = e.withWrite(context.Background(), func(at objstore.CommitID, txID string) (objstore.CommitID, error) {
		schema, err := e.catalog.GetTable(s.Table, at)
		if err != nil {
			return objstore.CommitID{}, err
		}
		key := deriveRowKey(schema, s.Values)
		now := time.Now().UTC()
		row := blobcodec.Row{Key: key, Version: 1, CreatedAt: now, UpdatedAt: now, Columns: cloneValues(s.Values)}
		row = catalog.ApplyDefaults(schema, row)
		if err := catalog.ValidateRow(schema, row); err != nil {
			return objstore.CommitID{}, err
		}
		return e.engine.InsertRow(table, row, at, txID)
	})
	if err != nil {
		return nil, err
	}
	return Modified{RowsAffected: 1}, nil
}

// deriveRowKey uses the primary-key column's value when the schema names
// one and it is present in values; otherwise it generates a fresh
// time-ordered key (spec §4.12).
func deriveRowKey(schema catalog.Schema, values map[string]any) string {
	if schema.PrimaryKey != "" {
		if v, ok := values[schema.PrimaryKey]; ok {
			return fmt.Sprint(v)
		}
	}
	return names.GenerateTimeOrderedID()
}

func cloneValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func (e *Executor) execUpdate(s Update) (Result, error) {
	table, err := names.NewTableName(s.Table)
	if err != nil {
		return nil, err
	}
	affected := 0
	err = e.withWrite(context.Background(), func(at objstore.CommitID, txID string) (objstore.CommitID, error) {
		schema, err := e.catalog.GetTable(s.Table, at)
		if err != nil {
			return objstore.CommitID{}, err
		}
		rows, err := e.engine.ScanTable(table, at)
		if err != nil {
			return objstore.CommitID{}, err
		}
		current := at
		for _, row := range rows {
			matched, err := matches(s.Where, row.Columns)
			if err != nil {
				return objstore.CommitID{}, err
			}
			if !matched {
				continue
			}
			next := row.Clone()
			for k, v := range s.Set {
				next.Columns[k] = v
			}
			next.Version++
			next.UpdatedAt = time.Now().UTC()
			if err := catalog.ValidateRow(schema, next); err != nil {
				return objstore.CommitID{}, err
			}
			current, err = e.engine.UpdateRow(table, next, current, txID)
			if err != nil {
				return objstore.CommitID{}, err
			}
			affected++
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	return Modified{RowsAffected: affected}, nil
}

func (e *Executor) execDelete(s Delete) (Result, error) {
	table, err := names.NewTableName(s.Table)
	if err != nil {
		return nil, err
	}
	affected := 0
	err = e.withWrite(context.Background(), func(at objstore.CommitID, txID string) (objstore.CommitID, error) {
		rows, err := e.engine.ScanTable(table, at)
		if err != nil {
			return objstore.CommitID{}, err
		}
		current := at
		for _, row := range rows {
			matched, err := matches(s.Where, row.Columns)
			if err != nil {
				return objstore.CommitID{}, err
			}
			if !matched {
				continue
			}
			current, err = e.engine.DeleteRow(table, names.RowKey(row.Key), current, txID)
			if err != nil {
				return objstore.CommitID{}, err
			}
			affected++
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	return Modified{RowsAffected: affected}, nil
}

func matches(where eval.Expr, columns map[string]any) (bool, error) {
	if where == nil {
		return true, nil
	}
	v, err := eval.Eval(where, eval.Row(columns))
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (e *Executor) execShowTables() (Result, error) {
	at, err := e.currentAt()
	if err != nil {
		return nil, err
	}
	tables, err := e.catalog.ListTables(at)
	if err != nil {
		return nil, err
	}
	sort.Strings(tables)
	rows := make([]map[string]any, len(tables))
	for i, t := range tables {
		rows[i] = map[string]any{"table_name": t}
	}
	return SelectResult{Columns: []string{"table_name"}, Rows: rows}, nil
}

func (e *Executor) execDescribe(s Describe) (Result, error) {
	at, err := e.currentAt()
	if err != nil {
		return nil, err
	}
	schema, err := e.catalog.GetTable(s.Table, at)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(schema.Columns))
	for i, c := range schema.Columns {
		rows[i] = map[string]any{
			"column":      c.Name,
			"type":        string(c.Type),
			"primary_key": c.Name == schema.PrimaryKey,
			"not_null":    c.HasConstraint(catalog.ConstraintNotNull),
		}
	}
	return SelectResult{Columns: []string{"column", "type", "primary_key", "not_null"}, Rows: rows}, nil
}
