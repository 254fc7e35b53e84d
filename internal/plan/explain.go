package plan

import (
	"fmt"
	"strings"
)

// Explain renders the logical plan (optimized) and its derived physical
// plan, each indented with per-node (rows, cost) annotations, per spec
// §4.11.
func Explain(logical LogicalNode) string {
	optimized := Optimize(logical)
	physical := PlanPhysical(optimized)

	var b strings.Builder
	b.WriteString("Logical Plan:\n")
	explainLogical(&b, optimized, 0)
	b.WriteString("Physical Plan:\n")
	explainPhysical(&b, physical, 0)
	return b.String()
}

func explainLogical(b *strings.Builder, n LogicalNode, depth int) {
	fmt.Fprintf(b, "%s%s (rows=%.0f, cost=%.2f)\n", strings.Repeat("  ", depth), logicalLabel(n), EstimateCardinality(n), PlanPhysical(n).Cost())
	for _, c := range n.Children() {
		explainLogical(b, c, depth+1)
	}
}

func logicalLabel(n LogicalNode) string {
	switch t := n.(type) {
	case Scan:
		return fmt.Sprintf("Scan(%s)", t.Table)
	case Filter:
		return "Filter"
	case Project:
		return "Project"
	case Join:
		return fmt.Sprintf("Join(%s)", t.JoinType)
	case Sort:
		return "Sort"
	case Limit:
		return fmt.Sprintf("Limit(%d,%d)", t.Limit, t.Offset)
	case Aggregate:
		return "Aggregate"
	case Distinct:
		return "Distinct"
	case Union:
		return "Union"
	case Empty:
		return "Empty"
	default:
		return "Unknown"
	}
}

func explainPhysical(b *strings.Builder, n PhysicalNode, depth int) {
	fmt.Fprintf(b, "%s%s (rows=%.0f, cost=%.2f)\n", strings.Repeat("  ", depth), n.Label(), n.Rows(), n.Cost())
	for _, c := range n.Children() {
		explainPhysical(b, c, depth+1)
	}
}
