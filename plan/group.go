package plan

import (
	"context"
	"fmt"

	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/types"
)

// FuncSpec is one synthetic FUNCTIONTABLE column: an internal name plus the
// expression that computes it.
type FuncSpec struct {
	Name string
	Expr *expr.Expression
	Type types.Type
}

// CreateFunctionsNode materializes a set of function-table columns alongside
// the child's own columns.
type CreateFunctionsNode struct {
	Child Node
	Funcs []FuncSpec
}

func NewCreateFunctions(child Node, funcs []FuncSpec) *CreateFunctionsNode {
	return &CreateFunctionsNode{Child: child, Funcs: funcs}
}

func (c *CreateFunctionsNode) Schema() catalog.Schema {
	out := append(catalog.Schema{}, c.Child.Schema()...)
	for _, f := range c.Funcs {
		out = append(out, &catalog.Column{Name: f.Name, Type: f.Type, Source: "FUNCTIONTABLE"})
	}
	return out
}
func (c *CreateFunctionsNode) TableNames() []string { return c.Child.TableNames() }

func (c *CreateFunctionsNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	rows, err := evalChild(ctx, qc, c.Child)
	if err != nil {
		return nil, err
	}
	childSchema := c.Child.Schema()
	var out []catalog.Row
	for _, row := range rows {
		extended := row.Copy()
		for _, f := range c.Funcs {
			rc := qc.rowContext(childSchema)
			rc.Row = row
			bindSubqueryOuter(f.Expr, rc)
			v, err := f.Expr.Eval(ctx, rc)
			if err != nil {
				return nil, err
			}
			extended = append(extended, v)
		}
		out = append(out, extended)
	}
	return newSliceIter(out), nil
}

// AggSpec is one aggregate computed per group: a named function applied to an
// argument expression, written to OutputName in the output row.
type AggSpec struct {
	OutputName string
	Func       string // e.g. "COUNT", "SUM", "AVG", "MIN", "MAX"
	Arg        *expr.Expression
	Type       types.Type
}

// GroupNode consumes rows and emits one output row per group, computing each
// aggregate function over that group and, if GroupMax is set, that column's
// first row.
type GroupNode struct {
	Child      Node
	GroupKeys  []FuncSpec // synthetic or bare-variable group-by columns
	GroupMax   string     // column name in child schema, "" if unused
	Aggregates []AggSpec
	ExtraAggs  []AggSpec
}

func (g *GroupNode) Schema() catalog.Schema {
	out := catalog.Schema{}
	for _, k := range g.GroupKeys {
		out = append(out, &catalog.Column{Name: k.Name, Type: k.Type, Source: "FUNCTIONTABLE"})
	}
	if g.GroupMax != "" {
		out = append(out, &catalog.Column{Name: g.GroupMax, Source: "FUNCTIONTABLE"})
	}
	for _, a := range g.Aggregates {
		out = append(out, &catalog.Column{Name: a.OutputName, Type: a.Type, Source: "FUNCTIONTABLE"})
	}
	for _, a := range g.ExtraAggs {
		out = append(out, &catalog.Column{Name: a.OutputName, Type: a.Type, Source: "FUNCTIONTABLE"})
	}
	return out
}
func (g *GroupNode) TableNames() []string { return g.Child.TableNames() }

func (g *GroupNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	rows, err := evalChild(ctx, qc, g.Child)
	if err != nil {
		return nil, err
	}
	childSchema := g.Child.Schema()

	type bucket struct {
		key      string
		keyVals  []interface{}
		groupMax interface{}
		members  []catalog.Row
	}
	order := []string{}
	buckets := map[string]*bucket{}

	for _, row := range rows {
		rc := qc.rowContext(childSchema)
		rc.Row = row
		keyVals := make([]interface{}, len(g.GroupKeys))
		for i, k := range g.GroupKeys {
			bindSubqueryOuter(k.Expr, rc)
			v, err := k.Expr.Eval(ctx, rc)
			if err != nil {
				return nil, err
			}
			keyVals[i] = v
		}
		keyStr := fmt.Sprint(keyVals)
		b, ok := buckets[keyStr]
		if !ok {
			b = &bucket{key: keyStr, keyVals: keyVals}
			if g.GroupMax != "" {
				idx := childSchema.IndexOf(g.GroupMax)
				b.groupMax = row[idx]
			}
			buckets[keyStr] = b
			order = append(order, keyStr)
		}
		b.members = append(b.members, row)
	}

	var out []catalog.Row
	for _, k := range order {
		b := buckets[k]
		outRow := catalog.Row{}
		for _, v := range b.keyVals {
			outRow = append(outRow, v)
		}
		if g.GroupMax != "" {
			outRow = append(outRow, b.groupMax)
		}
		for _, a := range g.Aggregates {
			v, err := aggregate(ctx, qc, childSchema, b.members, a)
			if err != nil {
				return nil, err
			}
			outRow = append(outRow, v)
		}
		for _, a := range g.ExtraAggs {
			v, err := aggregate(ctx, qc, childSchema, b.members, a)
			if err != nil {
				return nil, err
			}
			outRow = append(outRow, v)
		}
		out = append(out, outRow)
	}
	return newSliceIter(out), nil
}

func aggregate(ctx context.Context, qc *QueryContext, schema catalog.Schema, members []catalog.Row, spec AggSpec) (interface{}, error) {
	switch spec.Func {
	case "COUNT":
		if spec.Arg == nil {
			return int64(len(members)), nil
		}
		count := int64(0)
		for _, row := range members {
			rc := qc.rowContext(schema)
			rc.Row = row
			bindSubqueryOuter(spec.Arg, rc)
			v, err := spec.Arg.Eval(ctx, rc)
			if err != nil {
				return nil, err
			}
			if v != nil {
				count++
			}
		}
		return count, nil
	case "SUM", "AVG":
		var sum float64
		var isInt = true
		count := 0
		for _, row := range members {
			rc := qc.rowContext(schema)
			rc.Row = row
			bindSubqueryOuter(spec.Arg, rc)
			v, err := spec.Arg.Eval(ctx, rc)
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue
			}
			count++
			switch n := v.(type) {
			case int64:
				sum += float64(n)
			case float64:
				sum += n
				isInt = false
			}
		}
		if spec.Func == "AVG" {
			if count == 0 {
				return nil, nil
			}
			return sum / float64(count), nil
		}
		if isInt {
			return int64(sum), nil
		}
		return sum, nil
	case "MIN", "MAX":
		var best interface{}
		for _, row := range members {
			rc := qc.rowContext(schema)
			rc.Row = row
			bindSubqueryOuter(spec.Arg, rc)
			v, err := spec.Arg.Eval(ctx, rc)
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c, err := compareValues(best, v)
			if err != nil {
				return nil, err
			}
			if (spec.Func == "MIN" && c > 0) || (spec.Func == "MAX" && c < 0) {
				best = v
			}
		}
		return best, nil
	default:
		return nil, fmt.Errorf("plan: unknown aggregate function %q", spec.Func)
	}
}

func compareValues(a, b interface{}) (int, error) {
	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			default:
				return 0, nil
			}
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			default:
				return 0, nil
			}
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	return 0, fmt.Errorf("plan: cannot compare %T with %T", a, b)
}
