package plan

import "math"

// Fixed per-row cost constants, spec §4.11.
const (
	costSeqScanPerRow    = 1.0
	costFilterPerRow     = 0.1
	costProjectPerRow    = 0.05
	costSortPerRow       = 2.0
	costHashProbePerRow  = 0.5
	costHashBuildPerRow  = 1.5
	costNestedLoopPerRow = 10.0
	costHashAggPerRow    = 0.8
)

// ExternalSortThreshold and HashJoinThreshold are the strategy-selection
// knobs spec §4.11 cites (external sort above N rows, hash join when the
// right side exceeds N rows). Exported so vcsqlconfig can tune them from
// vcsql.toml; both default to the spec's stated values.
var (
	ExternalSortThreshold = 100_000
	HashJoinThreshold     = 100
)

// PhysicalNode is the closed sum of physical operator kinds, each
// annotated with an estimated row count and cost.
type PhysicalNode interface {
	Children() []PhysicalNode
	Rows() float64
	Cost() float64
	Label() string
	physicalNode()
}

type baseNode struct {
	rows  float64
	cost  float64
	label string
}

func (b baseNode) Rows() float64  { return b.rows }
func (b baseNode) Cost() float64  { return b.cost }
func (b baseNode) Label() string  { return b.label }
func (baseNode) physicalNode()    {}

// PhysicalScan reads Table sequentially.
type PhysicalScan struct {
	baseNode
	Table string
}

func (PhysicalScan) Children() []PhysicalNode { return nil }

// PhysicalFilter evaluates a predicate row by row.
type PhysicalFilter struct {
	baseNode
	Input PhysicalNode
}

func (f PhysicalFilter) Children() []PhysicalNode { return []PhysicalNode{f.Input} }

// PhysicalProject narrows columns row by row.
type PhysicalProject struct {
	baseNode
	Input PhysicalNode
}

func (p PhysicalProject) Children() []PhysicalNode { return []PhysicalNode{p.Input} }

// PhysicalHashJoin builds a hash table over the right input and probes it
// with the left input's rows.
type PhysicalHashJoin struct {
	baseNode
	Left, Right PhysicalNode
}

func (j PhysicalHashJoin) Children() []PhysicalNode { return []PhysicalNode{j.Left, j.Right} }

// PhysicalNestedLoopJoin compares every pair of rows.
type PhysicalNestedLoopJoin struct {
	baseNode
	Left, Right PhysicalNode
}

func (j PhysicalNestedLoopJoin) Children() []PhysicalNode { return []PhysicalNode{j.Left, j.Right} }

// PhysicalInMemorySort sorts its fully materialized input in place.
type PhysicalInMemorySort struct {
	baseNode
	Input PhysicalNode
}

func (s PhysicalInMemorySort) Children() []PhysicalNode { return []PhysicalNode{s.Input} }

// PhysicalExternalSort spills to external runs above the sort threshold.
type PhysicalExternalSort struct {
	baseNode
	Input PhysicalNode
}

func (s PhysicalExternalSort) Children() []PhysicalNode { return []PhysicalNode{s.Input} }

// PhysicalLimit passes through at most Rows() rows after skipping offset.
type PhysicalLimit struct {
	baseNode
	Input PhysicalNode
}

func (l PhysicalLimit) Children() []PhysicalNode { return []PhysicalNode{l.Input} }

// PhysicalHashAggregate groups rows via an in-memory hash table.
type PhysicalHashAggregate struct {
	baseNode
	Input PhysicalNode
}

func (a PhysicalHashAggregate) Children() []PhysicalNode { return []PhysicalNode{a.Input} }

// PhysicalDistinct deduplicates rows via the same hash-based strategy as
// aggregation.
type PhysicalDistinct struct {
	baseNode
	Input PhysicalNode
}

func (d PhysicalDistinct) Children() []PhysicalNode { return []PhysicalNode{d.Input} }

// PhysicalUnion concatenates two inputs.
type PhysicalUnion struct {
	baseNode
	Left, Right PhysicalNode
}

func (u PhysicalUnion) Children() []PhysicalNode { return []PhysicalNode{u.Left, u.Right} }

// PhysicalEmpty produces no rows.
type PhysicalEmpty struct{ baseNode }

func (PhysicalEmpty) Children() []PhysicalNode { return nil }

// PlanPhysical converts a logical plan into an annotated physical plan,
// choosing join strategy by right-side cardinality and sort strategy by
// the external-sort threshold, per spec §4.11.
func PlanPhysical(n LogicalNode) PhysicalNode {
	rows := EstimateCardinality(n)
	switch t := n.(type) {
	case Scan:
		return PhysicalScan{baseNode{rows: rows, cost: rows * costSeqScanPerRow, label: "SeqScan"}, t.Table}
	case Filter:
		child := PlanPhysical(t.Input)
		cost := child.Cost() + child.Rows()*costFilterPerRow
		return PhysicalFilter{baseNode{rows: rows, cost: cost, label: "Filter"}, child}
	case Project:
		child := PlanPhysical(t.Input)
		cost := child.Cost() + child.Rows()*costProjectPerRow
		return PhysicalProject{baseNode{rows: rows, cost: cost, label: "Project"}, child}
	case Join:
		left := PlanPhysical(t.Left)
		right := PlanPhysical(t.Right)
		if right.Rows() > float64(HashJoinThreshold) {
			cost := left.Cost() + right.Cost() + left.Rows()*costHashProbePerRow + right.Rows()*costHashBuildPerRow
			return PhysicalHashJoin{baseNode{rows: rows, cost: cost, label: "HashJoin"}, left, right}
		}
		cost := left.Cost() + right.Cost() + left.Rows()*right.Rows()*costNestedLoopPerRow
		return PhysicalNestedLoopJoin{baseNode{rows: rows, cost: cost, label: "NestedLoopJoin"}, left, right}
	case Sort:
		child := PlanPhysical(t.Input)
		childRows := child.Rows()
		if childRows > float64(ExternalSortThreshold) {
			cost := child.Cost() + 2*childRows*costSortPerRow
			return PhysicalExternalSort{baseNode{rows: rows, cost: cost, label: "ExternalSort"}, child}
		}
		log2n := 0.0
		if childRows > 1 {
			log2n = math.Log2(childRows)
		}
		cost := child.Cost() + childRows*costSortPerRow*log2n
		return PhysicalInMemorySort{baseNode{rows: rows, cost: cost, label: "InMemorySort"}, child}
	case Limit:
		child := PlanPhysical(t.Input)
		return PhysicalLimit{baseNode{rows: rows, cost: child.Cost(), label: "Limit"}, child}
	case Aggregate:
		child := PlanPhysical(t.Input)
		cost := child.Cost() + child.Rows()*costHashAggPerRow
		return PhysicalHashAggregate{baseNode{rows: rows, cost: cost, label: "HashAggregate"}, child}
	case Distinct:
		child := PlanPhysical(t.Input)
		cost := child.Cost() + child.Rows()*costHashAggPerRow
		return PhysicalDistinct{baseNode{rows: rows, cost: cost, label: "Distinct"}, child}
	case Union:
		left := PlanPhysical(t.Left)
		right := PlanPhysical(t.Right)
		return PhysicalUnion{baseNode{rows: rows, cost: left.Cost() + right.Cost(), label: "Union"}, left, right}
	case Empty:
		return PhysicalEmpty{baseNode{rows: 0, cost: 0, label: "Empty"}}
	default:
		return PhysicalEmpty{baseNode{rows: 0, cost: 0, label: "Unknown"}}
	}
}
