package plan

import "github.com/vcsql/vcsql/internal/eval"

// maxIterations bounds the optimizer's fixed-point loop (spec §4.11:
// "bounded iteration count", not otherwise named; pinned here to 16 to
// match the original Rust implementation's constant, per SPEC_FULL §4).
const maxIterations = 16

// Optimize rewrites n to a fixed point (or until maxIterations passes
// produce no further change) by repeatedly applying, post-order, constant
// folding, predicate pushdown, projection pushdown and limit pushdown.
func Optimize(n LogicalNode) LogicalNode {
	for i := 0; i < maxIterations; i++ {
		rewritten, changed := rewritePass(n)
		n = rewritten
		if !changed {
			break
		}
	}
	return n
}

func rewritePass(n LogicalNode) (LogicalNode, bool) {
	changed := false
	n = rewriteChildren(n, &changed)
	n, ruleChanged := applyRules(n)
	return n, changed || ruleChanged
}

// rewriteChildren reconstructs n with each child replaced by the result
// of recursively rewriting it.
func rewriteChildren(n LogicalNode, changed *bool) LogicalNode {
	switch t := n.(type) {
	case Filter:
		in, c := rewritePass(t.Input)
		if c {
			*changed = true
		}
		return Filter{Input: in, Predicate: t.Predicate}
	case Project:
		in, c := rewritePass(t.Input)
		if c {
			*changed = true
		}
		return Project{Input: in, Columns: t.Columns}
	case Join:
		l, cl := rewritePass(t.Left)
		r, cr := rewritePass(t.Right)
		if cl || cr {
			*changed = true
		}
		return Join{Left: l, Right: r, JoinType: t.JoinType, On: t.On}
	case Sort:
		in, c := rewritePass(t.Input)
		if c {
			*changed = true
		}
		return Sort{Input: in, Keys: t.Keys}
	case Limit:
		in, c := rewritePass(t.Input)
		if c {
			*changed = true
		}
		return Limit{Input: in, Limit: t.Limit, Offset: t.Offset}
	case Aggregate:
		in, c := rewritePass(t.Input)
		if c {
			*changed = true
		}
		return Aggregate{Input: in, GroupBy: t.GroupBy, Aggregates: t.Aggregates}
	case Distinct:
		in, c := rewritePass(t.Input)
		if c {
			*changed = true
		}
		return Distinct{Input: in}
	case Union:
		l, cl := rewritePass(t.Left)
		r, cr := rewritePass(t.Right)
		if cl || cr {
			*changed = true
		}
		return Union{Left: l, Right: r}
	default:
		return n
	}
}

// applyRules applies each rewrite rule once at the root of n, returning
// the (possibly unchanged) result and whether any rule fired.
func applyRules(n LogicalNode) (LogicalNode, bool) {
	if out, ok := foldConstants(n); ok {
		return out, true
	}
	if out, ok := pushdownPredicate(n); ok {
		return out, true
	}
	if out, ok := mergeProjects(n); ok {
		return out, true
	}
	if out, ok := pushdownLimit(n); ok {
		return out, true
	}
	return n, false
}

// foldConstants collapses a Filter with a literal-true predicate to its
// input, and a literal-false predicate to Empty.
func foldConstants(n LogicalNode) (LogicalNode, bool) {
	f, ok := n.(Filter)
	if !ok {
		return n, false
	}
	lit, ok := f.Predicate.(eval.Literal)
	if !ok {
		return n, false
	}
	b, ok := lit.Value.(bool)
	if !ok {
		return n, false
	}
	if b {
		return f.Input, true
	}
	return Empty{}, true
}

// pushdownPredicate moves a Filter below the Project it sits above, and
// merges two directly-stacked Filters into one conjunction.
func pushdownPredicate(n LogicalNode) (LogicalNode, bool) {
	f, ok := n.(Filter)
	if !ok {
		return n, false
	}
	if inner, ok := f.Input.(Filter); ok {
		merged := Filter{
			Input:     inner.Input,
			Predicate: eval.Binary{Op: eval.OpAnd, Left: inner.Predicate, Right: f.Predicate},
		}
		return merged, true
	}
	if p, ok := f.Input.(Project); ok {
		return Project{Input: Filter{Input: p.Input, Predicate: f.Predicate}, Columns: p.Columns}, true
	}
	return n, false
}

// mergeProjects collapses two directly-stacked Projects to the outer one.
func mergeProjects(n LogicalNode) (LogicalNode, bool) {
	outer, ok := n.(Project)
	if !ok {
		return n, false
	}
	inner, ok := outer.Input.(Project)
	if !ok {
		return n, false
	}
	return Project{Input: inner.Input, Columns: outer.Columns}, true
}

// pushdownLimit moves a Limit below the Project it sits above.
func pushdownLimit(n LogicalNode) (LogicalNode, bool) {
	l, ok := n.(Limit)
	if !ok {
		return n, false
	}
	p, ok := l.Input.(Project)
	if !ok {
		return n, false
	}
	return Project{Input: Limit{Input: p.Input, Limit: l.Limit, Offset: l.Offset}, Columns: p.Columns}, true
}
