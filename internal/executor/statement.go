// Package executor dispatches a parsed statement tree to the catalog,
// repository engine and transaction manager, and for Select statements
// builds and drains the operator pipeline (spec §4.12). The statement
// tree itself is produced by an external parser, out of this package's
// scope (spec §1) — this package only defines the contract it consumes.
package executor

import (
	"github.com/vcsql/vcsql/internal/catalog"
	"github.com/vcsql/vcsql/internal/eval"
	"github.com/vcsql/vcsql/internal/plan"
	"github.com/vcsql/vcsql/internal/txn"
)

// Statement is the closed sum of statement kinds spec §6.5 names.
type Statement interface {
	statementNode()
}

// CreateTable creates a new table with the given columns.
type CreateTable struct {
	Table       string
	Columns     []catalog.Column
	PrimaryKey  string
	Description string
}

// DropTable removes a table and its schema entry.
type DropTable struct {
	Table string
}

// Select reads rows from Table through the operator pipeline.
type Select struct {
	Table   string
	Where   eval.Expr
	OrderBy []plan.SortKey
	Limit   *int
	Offset  int
	Columns []plan.ProjectColumn // empty/nil means wildcard
}

// Insert writes one new row built from Values.
type Insert struct {
	Table  string
	Values map[string]any
}

// Update overwrites Set on every row matching Where (nil Where matches
// every row).
type Update struct {
	Table string
	Set   map[string]any
	Where eval.Expr
}

// Delete removes every row matching Where (nil Where matches every row).
type Delete struct {
	Table string
	Where eval.Expr
}

// Begin starts a new transaction at the given isolation level.
type Begin struct {
	Isolation txn.Isolation
}

// Commit ends the current transaction, applying its writes to main.
type Commit struct{}

// Rollback discards the current transaction.
type Rollback struct{}

// ShowTables lists every table name in the catalog.
type ShowTables struct{}

// Describe reports the column definitions of Table.
type Describe struct {
	Table string
}

func (CreateTable) statementNode() {}
func (DropTable) statementNode()   {}
func (Select) statementNode()      {}
func (Insert) statementNode()      {}
func (Update) statementNode()      {}
func (Delete) statementNode()      {}
func (Begin) statementNode()       {}
func (Commit) statementNode()      {}
func (Rollback) statementNode()    {}
func (ShowTables) statementNode()  {}
func (Describe) statementNode()    {}
