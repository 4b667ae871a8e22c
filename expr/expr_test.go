package expr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/types"
)

// eq builds `col = value`.
func eq(col string, value interface{}) *expr.Expression {
	return expr.New(
		expr.VariableElement(&expr.Variable{Column: col}),
		expr.ValueElement(value, types.Integer),
		expr.OperatorElement(expr.OpEq),
	)
}

func and(left, right *expr.Expression) *expr.Expression {
	return expr.New(append(append(append([]expr.Element{}, left.Elements...), right.Elements...), expr.OperatorElement(expr.OpAnd))...)
}

func not(e *expr.Expression) *expr.Expression {
	return expr.New(append(append([]expr.Element{}, e.Elements...), expr.OperatorElement(expr.OpNot))...)
}

func hasNot(e *expr.Expression) bool {
	for _, el := range e.Elements {
		if el.Kind == expr.ElemOperator && el.Op == expr.OpNot {
			return true
		}
	}
	return false
}

func TestNormalizeRemovesNot(t *testing.T) {
	require := require.New(t)

	e := not(and(eq("a", 1), eq("b", 2)))
	require.True(hasNot(e), "fixture should carry a NOT before normalizing")

	norm := e.Normalize()
	require.False(hasNot(norm), "Normalize must remove every NOT element")
}

func TestNormalizeDeMorgans(t *testing.T) {
	require := require.New(t)

	// NOT(a = 1 AND b = 2) -> (a <> 1) OR (b <> 2)
	e := not(and(eq("a", 1), eq("b", 2)))
	norm := e.Normalize()

	op, ok := norm.LastOperator()
	require.True(ok)
	require.Equal(expr.OpOr, op)

	left, right, op, err := norm.Split()
	require.NoError(err)
	require.Equal(expr.OpOr, op)

	leftOp, ok := left.LastOperator()
	require.True(ok)
	require.Equal(expr.OpNe, leftOp)

	rightOp, ok := right.LastOperator()
	require.True(ok)
	require.Equal(expr.OpNe, rightOp)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	require := require.New(t)

	e := not(and(eq("a", 1), not(eq("b", 2))))
	once := e.Normalize()
	twice := once.Normalize()

	require.Equal(once.String(), twice.String())
	require.False(hasNot(once))
	require.False(hasNot(twice))
}

func TestNormalizeNonInvertibleOperatorUnderNot(t *testing.T) {
	require := require.New(t)

	// NOT(a LIKE 'x') has no invertible comparison form, so it rewrites to
	// (a LIKE 'x') = false rather than flipping the operator.
	like := expr.New(
		expr.VariableElement(&expr.Variable{Column: "a"}),
		expr.ValueElement("x", types.Varchar(10)),
		expr.OperatorElement(expr.OpLike),
	)
	norm := not(like).Normalize()

	op, ok := norm.LastOperator()
	require.True(ok)
	require.Equal(expr.OpEq, op)
	require.False(hasNot(norm))

	left, right, _, err := norm.Split()
	require.NoError(err)
	require.Equal(false, right.Elements[0].Value)
	innerOp, ok := left.LastOperator()
	require.True(ok)
	require.Equal(expr.OpLike, innerOp)
}

func TestSplitAndLastOperatorRoundTrip(t *testing.T) {
	require := require.New(t)

	e := and(eq("a", 1), eq("b", 2))
	left, right, op, err := e.Split()
	require.NoError(err)
	require.Equal(expr.OpAnd, op)

	rejoined := expr.New(append(append(append([]expr.Element{}, left.Elements...), right.Elements...), expr.OperatorElement(op))...)
	require.Equal(e.String(), rejoined.String())
}

func TestSplitRequiresTrailingBinaryOperator(t *testing.T) {
	require := require.New(t)

	_, _, _, err := expr.Literal(1, types.Integer).Split()
	require.Error(err)

	unary := not(eq("a", 1))
	_, _, _, err = unary.Split()
	require.Error(err)
}

func TestHasAggregate(t *testing.T) {
	require := require.New(t)

	plain := eq("a", 1)
	require.False(plain.HasAggregate())

	agg := expr.New(
		expr.VariableElement(&expr.Variable{Column: "a"}),
		expr.FunctionElement(&expr.FunctionRef{Name: "COUNT", Arity: 1, IsAggregate: true}),
	)
	require.True(agg.HasAggregate())
}

func TestIsConstantAndIsSingleVariable(t *testing.T) {
	require := require.New(t)

	lit := expr.Literal(5, types.Integer)
	require.True(lit.IsConstant())
	_, ok := lit.IsSingleVariable()
	require.False(ok)

	v := expr.VarExpr(&expr.Variable{Column: "a"})
	require.False(v.IsConstant())
	vv, ok := v.IsSingleVariable()
	require.True(ok)
	require.Equal("a", vv.Column)

	cmp := eq("a", 1)
	require.False(cmp.IsConstant())
	_, ok = cmp.IsSingleVariable()
	require.False(ok)
}

func TestCloneIndependence(t *testing.T) {
	require := require.New(t)

	original := expr.VarExpr(&expr.Variable{Column: "a"})
	clone := original.Clone()

	clone.Elements[0].Var.Set(&expr.Variable{Schema: "s", Table: "t", Column: "a", Resolved: true})

	require.Equal("a", original.Elements[0].Var.Column)
	require.Equal("", original.Elements[0].Var.Table)
	require.True(clone.Elements[0].Var.Resolved)
	require.False(original.Elements[0].Var.Resolved)
}

func TestVariableSetMutatesInPlace(t *testing.T) {
	require := require.New(t)

	v := &expr.Variable{Column: "a"}
	e := expr.VarExpr(v)

	v.Set(&expr.Variable{Table: "t", Column: "a", Resolved: true})

	require.True(e.Elements[0].Var.Resolved)
	require.Equal("t", e.Elements[0].Var.Table)
}
