package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsql/vcsql/internal/catalog"
	"github.com/vcsql/vcsql/internal/eval"
	"github.com/vcsql/vcsql/internal/plan"
	"github.com/vcsql/vcsql/internal/repo"
	"github.com/vcsql/vcsql/internal/txn"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	e, err := repo.Open(filepath.Join(t.TempDir(), "vcsql.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	cat := catalog.New(e)
	mgr := txn.NewManager(e)
	return New(e, cat, mgr)
}

func usersColumns() []catalog.Column {
	return []catalog.Column{
		{Name: "id", Type: catalog.TypeText},
		{Name: "name", Type: catalog.TypeText, Constraints: []catalog.Constraint{{Kind: catalog.ConstraintNotNull}}},
		{Name: "age", Type: catalog.TypeInteger},
	}
}

func TestCreateTableInsertSelect(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()

	_, err := ex.Execute(ctx, CreateTable{Table: "users", Columns: usersColumns(), PrimaryKey: "id"})
	require.NoError(t, err)

	_, err = ex.Execute(ctx, Insert{Table: "users", Values: map[string]any{"id": "u1", "name": "ada", "age": 30}})
	require.NoError(t, err)
	_, err = ex.Execute(ctx, Insert{Table: "users", Values: map[string]any{"id": "u2", "name": "grace", "age": 40}})
	require.NoError(t, err)

	res, err := ex.Execute(ctx, Select{Table: "users"})
	require.NoError(t, err)
	sel, ok := res.(SelectResult)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name", "age"}, sel.Columns)
	assert.Len(t, sel.Rows, 2)
}

func TestSelectWithWhereAndOrderAndLimit(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()
	_, err := ex.Execute(ctx, CreateTable{Table: "users", Columns: usersColumns(), PrimaryKey: "id"})
	require.NoError(t, err)
	for _, row := range []map[string]any{
		{"id": "u1", "name": "ada", "age": 30},
		{"id": "u2", "name": "grace", "age": 40},
		{"id": "u3", "name": "alan", "age": 25},
	} {
		_, err := ex.Execute(ctx, Insert{Table: "users", Values: row})
		require.NoError(t, err)
	}

	limit := 2
	res, err := ex.Execute(ctx, Select{
		Table:   "users",
		Where:   eval.Binary{Op: eval.OpGte, Left: eval.Column{Name: "age"}, Right: eval.Literal{Value: 26.0}},
		OrderBy: []plan.SortKey{{Expr: eval.Column{Name: "age"}}},
		Limit:   &limit,
	})
	require.NoError(t, err)
	sel := res.(SelectResult)
	assert.LessOrEqual(t, len(sel.Rows), 2)
}

func TestNestedBeginFails(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()
	_, err := ex.Execute(ctx, Begin{})
	require.NoError(t, err)
	_, err = ex.Execute(ctx, Begin{})
	assert.ErrorIs(t, err, vcsqlerr.ErrNestedBegin)
	_, err = ex.Execute(ctx, Rollback{})
	require.NoError(t, err)
}

func TestTransactionSeesOwnWrites(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()
	_, err := ex.Execute(ctx, CreateTable{Table: "users", Columns: usersColumns(), PrimaryKey: "id"})
	require.NoError(t, err)

	_, err = ex.Execute(ctx, Begin{})
	require.NoError(t, err)
	_, err = ex.Execute(ctx, Insert{Table: "users", Values: map[string]any{"id": "u1", "name": "ada", "age": 30}})
	require.NoError(t, err)

	res, err := ex.Execute(ctx, Select{Table: "users"})
	require.NoError(t, err)
	assert.Len(t, res.(SelectResult).Rows, 1)

	_, err = ex.Execute(ctx, Commit{})
	require.NoError(t, err)
}

func TestUpdateAndDelete(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()
	_, err := ex.Execute(ctx, CreateTable{Table: "users", Columns: usersColumns(), PrimaryKey: "id"})
	require.NoError(t, err)
	_, err = ex.Execute(ctx, Insert{Table: "users", Values: map[string]any{"id": "u1", "name": "ada", "age": 30}})
	require.NoError(t, err)

	res, err := ex.Execute(ctx, Update{Table: "users", Set: map[string]any{"age": 31}})
	require.NoError(t, err)
	assert.Equal(t, Modified{RowsAffected: 1}, res)

	res, err = ex.Execute(ctx, Delete{Table: "users"})
	require.NoError(t, err)
	assert.Equal(t, Modified{RowsAffected: 1}, res)

	sel, err := ex.Execute(ctx, Select{Table: "users"})
	require.NoError(t, err)
	assert.Len(t, sel.(SelectResult).Rows, 0)
}

func TestShowTablesAndDescribe(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()
	_, err := ex.Execute(ctx, CreateTable{Table: "users", Columns: usersColumns(), PrimaryKey: "id"})
	require.NoError(t, err)

	res, err := ex.Execute(ctx, ShowTables{})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"table_name": "users"}}, res.(SelectResult).Rows)

	res, err = ex.Execute(ctx, Describe{Table: "users"})
	require.NoError(t, err)
	assert.Len(t, res.(SelectResult).Rows, 3)
}
