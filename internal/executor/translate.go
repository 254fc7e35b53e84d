package executor

import (
	"fmt"

	"github.com/vcsql/vcsql/internal/eval"
	"github.com/vcsql/vcsql/internal/operator"
	"github.com/vcsql/vcsql/internal/plan"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// BuildLogicalPlan assembles the fixed SELECT composition of spec §4.10:
// scan -> [filter] -> [sort] -> [limit] -> [project], projection last so
// sort keys can still reference columns a later wildcard-free projection
// would have dropped. Exported so callers can render a plan (vcsql.Explain)
// without executing it.
func BuildLogicalPlan(stmt Select) plan.LogicalNode {
	var n plan.LogicalNode = plan.Scan{Table: stmt.Table}
	if stmt.Where != nil {
		n = plan.Filter{Input: n, Predicate: stmt.Where}
	}
	if len(stmt.OrderBy) > 0 {
		n = plan.Sort{Input: n, Keys: stmt.OrderBy}
	}
	if stmt.Limit != nil {
		n = plan.Limit{Input: n, Limit: *stmt.Limit, Offset: stmt.Offset}
	}
	cols := stmt.Columns
	if len(cols) == 0 {
		cols = []plan.ProjectColumn{{Wildcard: true}}
	}
	n = plan.Project{Input: n, Columns: cols}
	return n
}

// buildOperator translates an optimized logical plan into an operator
// pipeline. rows supplies the materialized, key-ordered rows for a Scan
// leaf's table. Only the node kinds spec §4.10 gives an operator for are
// supported; Join/Aggregate/Distinct/Union are a documented planner
// placeholder (spec §1 Non-goals) and return ErrUnsupportedPlan.
func buildOperator(n plan.LogicalNode, rows func(table string) ([]eval.Row, error)) (operator.Operator, error) {
	switch t := n.(type) {
	case plan.Scan:
		r, err := rows(t.Table)
		if err != nil {
			return nil, err
		}
		return operator.NewScan(r), nil
	case plan.Filter:
		child, err := buildOperator(t.Input, rows)
		if err != nil {
			return nil, err
		}
		return &operator.Filter{Child: child, Predicate: t.Predicate}, nil
	case plan.Project:
		child, err := buildOperator(t.Input, rows)
		if err != nil {
			return nil, err
		}
		cols := make([]operator.ProjectColumn, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = operator.ProjectColumn{Wildcard: c.Wildcard, Alias: c.Alias, Expr: c.Expr}
		}
		return &operator.Project{Child: child, Columns: cols}, nil
	case plan.Sort:
		child, err := buildOperator(t.Input, rows)
		if err != nil {
			return nil, err
		}
		keys := make([]operator.SortKey, len(t.Keys))
		for i, k := range t.Keys {
			dir := operator.Asc
			if k.Direction == plan.Desc {
				dir = operator.Desc
			}
			keys[i] = operator.SortKey{Expr: k.Expr, Direction: dir}
		}
		return &operator.Sort{Child: child, Keys: keys}, nil
	case plan.Limit:
		child, err := buildOperator(t.Input, rows)
		if err != nil {
			return nil, err
		}
		return &operator.Limit{Child: child, Count: t.Limit, Offset: t.Offset}, nil
	case plan.Empty:
		return operator.NewScan(nil), nil
	default:
		return nil, fmt.Errorf("%T: %w", n, vcsqlerr.ErrUnsupportedPlan)
	}
}

// drain pulls every row from op.
func drain(op operator.Operator) ([]eval.Row, error) {
	var out []eval.Row
	for {
		row, ok, err := op.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}
