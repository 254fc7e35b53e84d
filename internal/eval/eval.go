package eval

import (
	"fmt"
	"strings"
	"time"

	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// Row is the ordered-mapping input to Eval. Map iteration order is
// irrelevant here since lookups are by key; callers that need stable
// column order (operator pipeline's Project) track it separately.
type Row map[string]any

const epsilon = 1e-9

// Eval evaluates expr against row and returns its value.
func Eval(expr Expr, row Row) (any, error) {
	switch e := expr.(type) {
	case Column:
		return row[e.Name], nil
	case Literal:
		return e.Value, nil
	case Nested:
		return Eval(e.Expr, row)
	case Unary:
		return evalUnary(e, row)
	case Binary:
		return evalBinary(e, row)
	case IsNull:
		v, err := Eval(e.Expr, row)
		if err != nil {
			return nil, err
		}
		result := v == nil
		if e.Negated {
			result = !result
		}
		return result, nil
	case InList:
		return evalInList(e, row)
	case Between:
		return evalBetween(e, row)
	case Like:
		return evalLike(e, row)
	case FuncCall:
		return evalFunc(e, row)
	default:
		return nil, fmt.Errorf("eval: unknown expression node %T: %w", expr, vcsqlerr.ErrInvalidExpression)
	}
}

func evalUnary(u Unary, row Row) (any, error) {
	v, err := Eval(u.Expr, row)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case OpNot:
		return !truthy(v), nil
	case OpNeg:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("eval: unary minus on non-numeric value: %w", vcsqlerr.ErrInvalidExpression)
		}
		return wholeOrFloat(-f, isWhole(-f) && isIntegerValue(v)), nil
	default:
		return nil, fmt.Errorf("eval: unknown unary operator %q: %w", u.Op, vcsqlerr.ErrInvalidExpression)
	}
}

func evalBinary(b Binary, row Row) (any, error) {
	switch b.Op {
	case OpAnd:
		l, err := Eval(b.Left, row)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return false, nil
		}
		r, err := Eval(b.Right, row)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	case OpOr:
		l, err := Eval(b.Left, row)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return true, nil
		}
		r, err := Eval(b.Right, row)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	l, err := Eval(b.Left, row)
	if err != nil {
		return nil, err
	}
	r, err := Eval(b.Right, row)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case OpEq:
		return valuesEqual(l, r), nil
	case OpNeq:
		return !valuesEqual(l, r), nil
	case OpLt, OpLte, OpGt, OpGte:
		cmp, ok := compareValues(l, r)
		if !ok {
			return false, nil
		}
		switch b.Op {
		case OpLt:
			return cmp < 0, nil
		case OpLte:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case OpAdd, OpSub, OpMul, OpDiv:
		return arithmetic(b.Op, l, r)
	case OpConcat:
		return stringify(l) + stringify(r), nil
	default:
		return nil, fmt.Errorf("eval: unknown binary operator %q: %w", b.Op, vcsqlerr.ErrInvalidExpression)
	}
}

func arithmetic(op BinaryOp, l, r any) (any, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("eval: arithmetic on non-numeric operand: %w", vcsqlerr.ErrInvalidExpression)
	}
	var result float64
	switch op {
	case OpAdd:
		result = lf + rf
	case OpSub:
		result = lf - rf
	case OpMul:
		result = lf * rf
	case OpDiv:
		if rf == 0 {
			return nil, vcsqlerr.ErrDivisionByZero
		}
		result = lf / rf
	}
	bothInt := isIntegerValue(l) && isIntegerValue(r)
	return wholeOrFloat(result, bothInt && isWhole(result)), nil
}

func evalInList(in InList, row Row) (any, error) {
	v, err := Eval(in.Expr, row)
	if err != nil {
		return nil, err
	}
	found := false
	for _, item := range in.List {
		iv, err := Eval(item, row)
		if err != nil {
			return nil, err
		}
		if valuesEqual(v, iv) {
			found = true
			break
		}
	}
	if in.Negated {
		return !found, nil
	}
	return found, nil
}

func evalBetween(b Between, row Row) (any, error) {
	v, err := Eval(b.Expr, row)
	if err != nil {
		return nil, err
	}
	lo, err := Eval(b.Lo, row)
	if err != nil {
		return nil, err
	}
	hi, err := Eval(b.Hi, row)
	if err != nil {
		return nil, err
	}
	loCmp, ok1 := compareValues(lo, v)
	hiCmp, ok2 := compareValues(v, hi)
	result := ok1 && ok2 && loCmp <= 0 && hiCmp <= 0
	if b.Negated {
		return !result, nil
	}
	return result, nil
}

func evalLike(l Like, row Row) (any, error) {
	v, err := Eval(l.Expr, row)
	if err != nil {
		return nil, err
	}
	p, err := Eval(l.Pattern, row)
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		s = stringify(v)
	}
	pattern, ok := p.(string)
	if !ok {
		pattern = stringify(p)
	}
	matched := likeMatch(strings.ToLower(s), strings.ToLower(pattern))
	if l.Negated {
		return !matched, nil
	}
	return matched, nil
}

// likeMatch implements SQL LIKE semantics: % matches any (possibly empty)
// sequence, _ matches exactly one codepoint.
func likeMatch(s, pattern string) bool {
	sr := []rune(s)
	pr := []rune(pattern)
	return likeMatchRunes(sr, pr)
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '%' {
		if likeMatchRunes(s, p[1:]) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if likeMatchRunes(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if p[0] == '_' || p[0] == s[0] {
		return likeMatchRunes(s[1:], p[1:])
	}
	return false
}

func evalFunc(f FuncCall, row Row) (any, error) {
	args := make([]any, len(f.Args))
	for i, a := range f.Args {
		v, err := Eval(a, row)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch strings.ToLower(f.Name) {
	case "lower":
		return strings.ToLower(stringify(arg(args, 0))), nil
	case "upper":
		return strings.ToUpper(stringify(arg(args, 0))), nil
	case "length", "len":
		return int64(len(stringify(arg(args, 0)))), nil
	case "coalesce":
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	case "now", "current_timestamp":
		return time.Now().UTC().Format(time.RFC3339), nil
	case "count":
		return int64(1), nil
	default:
		return nil, fmt.Errorf("eval: function %q: %w", f.Name, vcsqlerr.ErrInvalidExpression)
	}
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return formatFloat(t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func formatFloat(f float64) string {
	if isWhole(f) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) != 0
	case map[string]any:
		return len(t) != 0
	default:
		return true
	}
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return abs(af-bf) < epsilon
		}
		return false
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as == bs
		}
		return false
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb
		}
		return false
	}
	return a == b
}

// compareValues returns -1/0/1 and ok=true when a and b are of compatible
// kinds; ok=false when incompatible, per spec §4.9 "<,<=,>,>= return false
// when operands are of incompatible kinds".
func compareValues(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			switch {
			case as < bs:
				return -1, true
			case as > bs:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch {
			case ab == bb:
				return 0, true
			case !ab && bb:
				return -1, true
			default:
				return 1, true
			}
		}
		return 0, false
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func isIntegerValue(v any) bool {
	switch t := v.(type) {
	case int, int32, int64, uint, uint64:
		return true
	case float64:
		return isWhole(t)
	default:
		return false
	}
}

func isWhole(f float64) bool {
	return f == float64(int64(f))
}

func wholeOrFloat(f float64, asInt bool) any {
	if asInt {
		return int64(f)
	}
	return f
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
