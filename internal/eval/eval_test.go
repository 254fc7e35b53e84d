package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

func TestEqualityAcrossKinds(t *testing.T) {
	row := Row{}
	v, err := Eval(Binary{Op: OpEq, Left: Literal{int64(1)}, Right: Literal{float64(1.0)}}, row)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Eval(Binary{Op: OpEq, Left: Literal{"1"}, Right: Literal{int64(1)}}, row)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = Eval(Binary{Op: OpEq, Left: Literal{nil}, Right: Literal{nil}}, row)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestComparisonIncompatibleKinds(t *testing.T) {
	v, err := Eval(Binary{Op: OpLt, Left: Literal{"a"}, Right: Literal{int64(1)}}, Row{})
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestTruthinessAndAndOr(t *testing.T) {
	row := Row{}
	v, err := Eval(Binary{Op: OpAnd, Left: Literal{int64(0)}, Right: Literal{true}}, row)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = Eval(Binary{Op: OpOr, Left: Literal{""}, Right: Literal{"x"}}, row)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestArithmeticIntegerVsFloat(t *testing.T) {
	v, err := Eval(Binary{Op: OpAdd, Left: Literal{int64(2)}, Right: Literal{int64(3)}}, Row{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = Eval(Binary{Op: OpDiv, Left: Literal{int64(7)}, Right: Literal{int64(2)}}, Row{})
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	_, err = Eval(Binary{Op: OpDiv, Left: Literal{int64(1)}, Right: Literal{int64(0)}}, Row{})
	assert.ErrorIs(t, err, vcsqlerr.ErrDivisionByZero)
}

func TestUnaryMinus(t *testing.T) {
	v, err := Eval(Unary{Op: OpNeg, Expr: Literal{int64(5)}}, Row{})
	require.NoError(t, err)
	assert.Equal(t, int64(-5), v)
}

func TestConcat(t *testing.T) {
	v, err := Eval(Binary{Op: OpConcat, Left: Literal{"a"}, Right: Literal{int64(1)}}, Row{})
	require.NoError(t, err)
	assert.Equal(t, "a1", v)
}

func TestLikeCaseInsensitive(t *testing.T) {
	v, err := Eval(Like{Expr: Column{"name"}, Pattern: Literal{"ali%"}}, Row{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Eval(Like{Expr: Column{"name"}, Pattern: Literal{"a_ice"}}, Row{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestInListAndBetween(t *testing.T) {
	row := Row{"age": int64(30)}
	v, err := Eval(InList{Expr: Column{"age"}, List: []Expr{Literal{int64(25)}, Literal{int64(30)}}}, row)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Eval(Between{Expr: Column{"age"}, Lo: Literal{int64(20)}, Hi: Literal{int64(40)}}, row)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestIsNull(t *testing.T) {
	v, err := Eval(IsNull{Expr: Column{"missing"}}, Row{})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestFunctions(t *testing.T) {
	v, err := Eval(FuncCall{Name: "UPPER", Args: []Expr{Literal{"abc"}}}, Row{})
	require.NoError(t, err)
	assert.Equal(t, "ABC", v)

	v, err = Eval(FuncCall{Name: "coalesce", Args: []Expr{Literal{nil}, Literal{"x"}}}, Row{})
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	v, err = Eval(FuncCall{Name: "count", Args: nil}, Row{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = Eval(FuncCall{Name: "nope"}, Row{})
	assert.ErrorIs(t, err, vcsqlerr.ErrInvalidExpression)
}
