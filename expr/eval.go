package expr

import (
	"context"
	"fmt"
	"strings"

	"github.com/relcore/relcore/catalog"
)

// FunctionRegistry resolves a FunctionRef to a callable and reports whether a
// function name is an aggregate. Aggregates are
// invoked differently (over a group of rows, by plan/group.go's aggregate) and never
// through Call.
type FunctionRegistry interface {
	IsAggregate(name string) bool
	Call(ctx context.Context, name string, args []interface{}) (interface{}, error)
}

// RowContext resolves variables and correlated variables to values while
// evaluating an Expression against one row. Row holds the current row and its
// Schema; Parent resolves a correlated reference one from-set level up.
type RowContext struct {
	Schema catalog.Schema
	Row    catalog.Row
	Parent *RowContext
	Funcs  FunctionRegistry
}

func (rc *RowContext) resolveVariable(v *Variable) (interface{}, error) {
	idx := rc.Schema.IndexOf(v.Column)
	if idx < 0 && v.Table != "" {
		idx = rc.Schema.IndexOf(v.Table + "." + v.Column)
	}
	if idx < 0 {
		return nil, fmt.Errorf("expr: variable %s not present in row schema", v.String())
	}
	return rc.Row[idx], nil
}

func (rc *RowContext) resolveCorrelated(c *CorrelatedVariable) (interface{}, error) {
	level := c.Level
	cur := rc
	for level > 0 {
		if cur.Parent == nil {
			return nil, fmt.Errorf("expr: correlated variable %s level %d exceeds available scopes", c.String(), c.Level)
		}
		cur = cur.Parent
		level--
	}
	return cur.resolveVariable(c.Variable)
}

// Eval evaluates e against rc using a postfix stack machine.
func (e *Expression) Eval(ctx context.Context, rc *RowContext) (interface{}, error) {
	var stack []interface{}
	pop := func() interface{} {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	for _, el := range e.Elements {
		switch el.Kind {
		case ElemValue:
			stack = append(stack, el.Value)
		case ElemVariable:
			v, err := rc.resolveVariable(el.Var)
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)
		case ElemCorrelatedVariable:
			v, err := rc.resolveCorrelated(el.CorrVar)
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)
		case ElemSubquery:
			rows, err := evalSubqueryRows(ctx, el.Subquery)
			if err != nil {
				return nil, err
			}
			// Pushed as SubqueryRows: a scalar-position consumer (=, <>, ...)
			// collapses it to its first value; OpIn tests membership directly.
			stack = append(stack, rows)
		case ElemOperator:
			if el.Op.Arity == 1 {
				operand := pop()
				v, err := evalUnary(el.Op, operand)
				if err != nil {
					return nil, err
				}
				stack = append(stack, v)
			} else {
				right := pop()
				left := pop()
				v, err := evalBinary(el.Op, left, right)
				if err != nil {
					return nil, err
				}
				stack = append(stack, v)
			}
		case ElemFunctionRef:
			if rc.Funcs == nil {
				return nil, fmt.Errorf("expr: no function registry available for %s", el.Func.Name)
			}
			args := make([]interface{}, el.Func.Arity)
			for i := el.Func.Arity - 1; i >= 0; i-- {
				args[i] = pop()
			}
			v, err := rc.Funcs.Call(ctx, el.Func.Name, args)
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("expr: malformed expression, stack has %d values after evaluation", len(stack))
	}
	return stack[0], nil
}

// subqueryRows is the list-valued intermediate an ElemSubquery pushes onto the
// eval stack: it carries the first column of every row the sub-plan produces.
// OpIn tests membership against it directly (the NonCorrelatedAnyAllNode
// planner path short-circuits this for the common non-correlated case, but a
// correlated or deeply nested `a IN (subquery)` still reaches here). Any other
// binary operator coerces it down to its first value via scalarOf, covering
// scalar-subquery-as-value positions like `a = (SELECT ...)`.
type subqueryRows []interface{}

func evalSubqueryRows(ctx context.Context, sp SubqueryPlan) (interface{}, error) {
	iter, err := sp.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	defer iter.Close(ctx)
	var out subqueryRows
	for {
		row, err := iter.Next(ctx)
		if err == catalog.ErrIterDone {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			out = append(out, nil)
			continue
		}
		out = append(out, row[0])
	}
	return out, nil
}

// scalarOf collapses a subqueryRows operand to its first value; any other
// value passes through unchanged.
func scalarOf(v interface{}) interface{} {
	if rows, ok := v.(subqueryRows); ok {
		if len(rows) == 0 {
			return nil
		}
		return rows[0]
	}
	return v
}

// evalIn implements `l IN r`: r may be a subqueryRows (IN (SELECT ...)) or a
// literal list (IN (1, 2, 3), represented as []interface{}).
func evalIn(l, r interface{}) (interface{}, error) {
	if l == nil {
		return nil, nil
	}
	var values []interface{}
	switch rv := r.(type) {
	case subqueryRows:
		values = []interface{}(rv)
	case []interface{}:
		values = rv
	default:
		return nil, fmt.Errorf("expr: IN requires a list or sub-query operand, got %T", r)
	}
	sawNull := false
	for _, v := range values {
		if v == nil {
			sawNull = true
			continue
		}
		c, err := compare(l, v)
		if err != nil {
			return nil, err
		}
		if c == 0 {
			return true, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return false, nil
}

func evalUnary(op Operator, v interface{}) (interface{}, error) {
	switch op {
	case OpNot:
		b, ok := v.(bool)
		if !ok {
			if v == nil {
				return nil, nil
			}
			return nil, fmt.Errorf("expr: NOT requires boolean operand, got %T", v)
		}
		return !b, nil
	case OpIsNull:
		return v == nil, nil
	case OpNeg:
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, fmt.Errorf("expr: NEG requires numeric operand, got %T", v)
	}
	return nil, fmt.Errorf("expr: unknown unary operator %v", op)
}

func evalBinary(op Operator, l, r interface{}) (interface{}, error) {
	if op == OpIn {
		return evalIn(scalarOf(l), r)
	}
	l = scalarOf(l)
	r = scalarOf(r)

	if op == OpAnd || op == OpOr {
		lb, lok := asBool(l)
		rb, rok := asBool(r)
		switch op {
		case OpAnd:
			if lok && !lb {
				return false, nil
			}
			if rok && !rb {
				return false, nil
			}
			if !lok || !rok {
				return nil, nil
			}
			return lb && rb, nil
		case OpOr:
			if lok && lb {
				return true, nil
			}
			if rok && rb {
				return true, nil
			}
			if !lok || !rok {
				return nil, nil
			}
			return lb || rb, nil
		}
	}

	if l == nil || r == nil {
		return nil, nil
	}

	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		c, err := compare(l, r)
		if err != nil {
			return nil, err
		}
		switch op {
		case OpEq:
			return c == 0, nil
		case OpNe:
			return c != 0, nil
		case OpLt:
			return c < 0, nil
		case OpLe:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		case OpGe:
			return c >= 0, nil
		}
	case OpLike:
		ls, lok := l.(string)
		rs, rok := r.(string)
		if !lok || !rok {
			return nil, fmt.Errorf("expr: LIKE requires string operands")
		}
		return likeMatch(ls, rs), nil
	case OpPlus, OpMinus, OpMul, OpDiv:
		return arith(op, l, r)
	}
	return nil, fmt.Errorf("expr: unknown binary operator %v", op)
}

func asBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func compare(l, r interface{}) (int, error) {
	switch lv := l.(type) {
	case int64:
		switch rv := r.(type) {
		case int64:
			return cmpInt64(lv, rv), nil
		case float64:
			return cmpFloat64(float64(lv), rv), nil
		}
	case float64:
		switch rv := r.(type) {
		case int64:
			return cmpFloat64(lv, float64(rv)), nil
		case float64:
			return cmpFloat64(lv, rv), nil
		}
	case string:
		if rv, ok := r.(string); ok {
			return strings.Compare(lv, rv), nil
		}
	case bool:
		if rv, ok := r.(bool); ok {
			if lv == rv {
				return 0, nil
			}
			if !lv {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, fmt.Errorf("expr: cannot compare %T with %T", l, r)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func arith(op Operator, l, r interface{}) (interface{}, error) {
	lf, lIsFloat, err := toFloat(l)
	if err != nil {
		return nil, err
	}
	rf, rIsFloat, err := toFloat(r)
	if err != nil {
		return nil, err
	}
	li, liok := l.(int64)
	ri, riok := r.(int64)
	if liok && riok && !lIsFloat && !rIsFloat {
		switch op {
		case OpPlus:
			return li + ri, nil
		case OpMinus:
			return li - ri, nil
		case OpMul:
			return li * ri, nil
		case OpDiv:
			if ri == 0 {
				return nil, fmt.Errorf("expr: division by zero")
			}
			return li / ri, nil
		}
	}
	switch op {
	case OpPlus:
		return lf + rf, nil
	case OpMinus:
		return lf - rf, nil
	case OpMul:
		return lf * rf, nil
	case OpDiv:
		if rf == 0 {
			return nil, fmt.Errorf("expr: division by zero")
		}
		return lf / rf, nil
	}
	return nil, fmt.Errorf("expr: unknown arithmetic operator %v", op)
}

func toFloat(v interface{}) (float64, bool, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), false, nil
	case float64:
		return x, true, nil
	default:
		return 0, false, fmt.Errorf("expr: cannot use %T in arithmetic", v)
	}
}

// likeMatch implements the subset of SQL LIKE this engine supports: '%' matches
// any run of characters, '_' matches exactly one.
func likeMatch(s, pattern string) bool {
	return likeMatchRec(s, pattern)
}

func likeMatchRec(s, p string) bool {
	if p == "" {
		return s == ""
	}
	switch p[0] {
	case '%':
		if likeMatchRec(s, p[1:]) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if likeMatchRec(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRec(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatchRec(s[1:], p[1:])
	}
}
