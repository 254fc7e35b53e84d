// Package plan implements the logical/physical plan representations and
// the rule-based optimizer of spec §4.11.
package plan

import "github.com/vcsql/vcsql/internal/eval"

// LogicalNode is the closed sum of logical plan node kinds (spec §9
// "Polymorphism": a closed sum, not open inheritance). Node-specific
// behavior (output columns, referenced tables, cardinality) is computed
// by free functions operating over a type switch, rather than per-type
// methods, to keep the sum closed at one place.
type LogicalNode interface {
	Children() []LogicalNode
	logicalNode()
}

// ProjectColumn names one projected output column.
type ProjectColumn struct {
	Wildcard bool
	Alias    string
	Expr     eval.Expr
}

// SortKey is one ORDER BY term.
type SortKey struct {
	Expr      eval.Expr
	Direction SortDirection
}

// SortDirection is ascending or descending.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// AggExpr is one aggregate expression (e.g. count(*)) bound to an alias.
type AggExpr struct {
	Func  string
	Arg   eval.Expr
	Alias string
}

// Scan reads every row of Table.
type Scan struct{ Table string }

// Filter keeps only rows for which Predicate is truthy.
type Filter struct {
	Input     LogicalNode
	Predicate eval.Expr
}

// Project narrows to the named/aliased output columns.
type Project struct {
	Input   LogicalNode
	Columns []ProjectColumn
}

// Join combines Left and Right rows matching On.
type Join struct {
	Left, Right LogicalNode
	JoinType    string
	On          eval.Expr
}

// Sort orders rows by Keys.
type Sort struct {
	Input LogicalNode
	Keys  []SortKey
}

// Limit bounds the number of rows returned, after Offset.
type Limit struct {
	Input  LogicalNode
	Limit  int
	Offset int
}

// Aggregate groups rows by GroupBy and computes Aggregates per group.
type Aggregate struct {
	Input      LogicalNode
	GroupBy    []eval.Expr
	Aggregates []AggExpr
}

// Distinct removes duplicate rows.
type Distinct struct{ Input LogicalNode }

// Union concatenates the rows of Left and Right.
type Union struct{ Left, Right LogicalNode }

// Empty produces no rows — constant-folding's false branch collapses to
// this node.
type Empty struct{}

func (Scan) Children() []LogicalNode      { return nil }
func (f Filter) Children() []LogicalNode   { return []LogicalNode{f.Input} }
func (p Project) Children() []LogicalNode  { return []LogicalNode{p.Input} }
func (j Join) Children() []LogicalNode     { return []LogicalNode{j.Left, j.Right} }
func (s Sort) Children() []LogicalNode     { return []LogicalNode{s.Input} }
func (l Limit) Children() []LogicalNode    { return []LogicalNode{l.Input} }
func (a Aggregate) Children() []LogicalNode { return []LogicalNode{a.Input} }
func (d Distinct) Children() []LogicalNode { return []LogicalNode{d.Input} }
func (u Union) Children() []LogicalNode    { return []LogicalNode{u.Left, u.Right} }
func (Empty) Children() []LogicalNode      { return nil }

func (Scan) logicalNode()      {}
func (Filter) logicalNode()    {}
func (Project) logicalNode()   {}
func (Join) logicalNode()      {}
func (Sort) logicalNode()      {}
func (Limit) logicalNode()     {}
func (Aggregate) logicalNode() {}
func (Distinct) logicalNode()  {}
func (Union) logicalNode()     {}
func (Empty) logicalNode()     {}

// OutputColumns derives the output column names of n. Wildcard
// projections and non-Project nodes that don't narrow columns report no
// fixed set (nil) — the executor falls back to the underlying schema.
func OutputColumns(n LogicalNode) []string {
	switch t := n.(type) {
	case Project:
		var out []string
		for _, c := range t.Columns {
			if c.Wildcard {
				return nil
			}
			out = append(out, c.Alias)
		}
		return out
	case Aggregate:
		var out []string
		for _, a := range t.Aggregates {
			out = append(out, a.Alias)
		}
		return out
	default:
		children := n.Children()
		if len(children) == 1 {
			return OutputColumns(children[0])
		}
		return nil
	}
}

// ReferencedTables collects every table name a Scan leaf under n refers
// to, in traversal order without duplicates.
func ReferencedTables(n LogicalNode) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(LogicalNode)
	walk = func(node LogicalNode) {
		if s, ok := node.(Scan); ok {
			if !seen[s.Table] {
				seen[s.Table] = true
				out = append(out, s.Table)
			}
			return
		}
		for _, c := range node.Children() {
			walk(c)
		}
	}
	walk(n)
	return out
}

// EstimateCardinality computes the fixed per-node-kind cardinality
// estimate of spec §4.11.
func EstimateCardinality(n LogicalNode) float64 {
	switch t := n.(type) {
	case Scan:
		return 1000
	case Filter:
		return EstimateCardinality(t.Input) / 3
	case Project:
		return EstimateCardinality(t.Input)
	case Join:
		return (EstimateCardinality(t.Left) * EstimateCardinality(t.Right)) / 100
	case Sort:
		return EstimateCardinality(t.Input)
	case Limit:
		in := EstimateCardinality(t.Input)
		if float64(t.Limit) < in {
			return float64(t.Limit)
		}
		return in
	case Aggregate:
		if len(t.GroupBy) == 0 {
			return 1
		}
		return EstimateCardinality(t.Input) / 10
	case Distinct:
		return EstimateCardinality(t.Input) / 2
	case Union:
		return EstimateCardinality(t.Left) + EstimateCardinality(t.Right)
	case Empty:
		return 0
	default:
		return 0
	}
}
