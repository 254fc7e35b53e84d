// Package operator implements the pull-based operator pipeline of spec
// §4.10: single-threaded Volcano-style iterators over rows materialized
// from the repository engine.
package operator

import (
	"sort"

	"github.com/vcsql/vcsql/internal/eval"
)

// Operator is the closed sum of pipeline node kinds (spec §9
// "Polymorphism": a variant over a fixed operator set plus a next/reset
// capability, not open inheritance).
type Operator interface {
	// Next pulls the next row, or ok=false when exhausted.
	Next() (row eval.Row, ok bool, err error)
	// Reset rewinds the operator to its initial state.
	Reset()
}

// Scan yields rows in table iteration order (lexicographic by row key,
// spec §5 ordering guarantee), from a caller-supplied, already key-sorted
// slice.
type Scan struct {
	rows []eval.Row
	pos  int
}

// NewScan wraps rows, which must already be sorted by key, in a Scan
// operator.
func NewScan(rows []eval.Row) *Scan { return &Scan{rows: rows} }

func (s *Scan) Next() (eval.Row, bool, error) {
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func (s *Scan) Reset() { s.pos = 0 }

// Filter repeatedly pulls from child until Predicate is truthy.
type Filter struct {
	Child     Operator
	Predicate eval.Expr
}

func (f *Filter) Next() (eval.Row, bool, error) {
	for {
		row, ok, err := f.Child.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		v, err := eval.Eval(f.Predicate, row)
		if err != nil {
			return nil, false, err
		}
		if truthy(v) {
			return row, true, nil
		}
	}
}

func (f *Filter) Reset() { f.Child.Reset() }

func truthy(v any) bool {
	b, err := eval.Eval(eval.Binary{Op: eval.OpOr, Left: eval.Literal{Value: v}, Right: eval.Literal{Value: false}}, nil)
	return err == nil && b == true
}

// ProjectColumn names one output column: either Wildcard (pass every
// input column through) or an aliased expression.
type ProjectColumn struct {
	Wildcard bool
	Alias    string
	Expr     eval.Expr
}

// Project produces a new row containing only the requested columns.
type Project struct {
	Child   Operator
	Columns []ProjectColumn
}

func (p *Project) Next() (eval.Row, bool, error) {
	row, ok, err := p.Child.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	out := eval.Row{}
	for _, col := range p.Columns {
		if col.Wildcard {
			for k, v := range row {
				out[k] = v
			}
			continue
		}
		v, err := eval.Eval(col.Expr, row)
		if err != nil {
			return nil, false, err
		}
		out[col.Alias] = v
	}
	return out, true, nil
}

func (p *Project) Reset() { p.Child.Reset() }

// SortDirection is ascending or descending.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// SortKey is one ORDER BY term.
type SortKey struct {
	Expr      eval.Expr
	Direction SortDirection
}

// Sort materializes its input fully and sorts stably by Keys in order.
// Nulls sort first in ascending order (last in descending); per-key
// comparison is numeric for numbers, codepoint for strings, false<true
// for bools, and different kinds compare equal (spec §4.10).
type Sort struct {
	Child    Operator
	Keys     []SortKey
	rows     []eval.Row
	pos      int
	prepared bool
}

func (s *Sort) materialize() error {
	if s.prepared {
		return nil
	}
	var rows []eval.Row
	for {
		row, ok, err := s.Child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	keyed := make([]sortRow, len(rows))
	for i, r := range rows {
		vals := make([]any, len(s.Keys))
		for j, k := range s.Keys {
			v, err := eval.Eval(k.Expr, r)
			if err != nil {
				return err
			}
			vals[j] = v
		}
		keyed[i] = sortRow{row: r, keys: vals}
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		return lessRows(keyed[i], keyed[j], s.Keys)
	})
	s.rows = make([]eval.Row, len(keyed))
	for i, kr := range keyed {
		s.rows[i] = kr.row
	}
	s.prepared = true
	return nil
}

type sortRow struct {
	row  eval.Row
	keys []any
}

func lessRows(a, b sortRow, keys []SortKey) bool {
	for i, k := range keys {
		c := compareSortValues(a.keys[i], b.keys[i])
		if c == 0 {
			continue
		}
		if k.Direction == Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// compareSortValues returns -1/0/1; nulls sort first in ascending,
// different kinds compare equal (stable, per spec).
func compareSortValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if af, aok := toSortFloat(a); aok {
		if bf, bok := toSortFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
		return 0
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
		return 0
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			if ab == bb {
				return 0
			}
			if !ab {
				return -1
			}
			return 1
		}
		return 0
	}
	return 0
}

func toSortFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func (s *Sort) Next() (eval.Row, bool, error) {
	if err := s.materialize(); err != nil {
		return nil, false, err
	}
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func (s *Sort) Reset() {
	s.Child.Reset()
	s.pos = 0
	s.prepared = false
	s.rows = nil
}

// Limit skips Offset rows from its input, then returns at most Count.
type Limit struct {
	Child   Operator
	Count   int
	Offset  int
	skipped int
	taken   int
}

func (l *Limit) Next() (eval.Row, bool, error) {
	for l.skipped < l.Offset {
		_, ok, err := l.Child.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		l.skipped++
	}
	if l.taken >= l.Count {
		return nil, false, nil
	}
	row, ok, err := l.Child.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	l.taken++
	return row, true, nil
}

func (l *Limit) Reset() {
	l.Child.Reset()
	l.skipped = 0
	l.taken = 0
}
