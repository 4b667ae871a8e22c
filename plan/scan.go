package plan

import (
	"context"

	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/expr"
)

// TableFetchNode reads from a concrete Table.
type TableFetchNode struct {
	Def   catalog.DataTableDef
	Alias string
}

func NewTableFetch(def catalog.DataTableDef, alias string) *TableFetchNode {
	return &TableFetchNode{Def: def, Alias: alias}
}

func (t *TableFetchNode) Schema() catalog.Schema {
	out := make(catalog.Schema, len(t.Def.Schema()))
	name := t.Alias
	if name == "" {
		name = t.Def.Name()
	}
	for i, c := range t.Def.Schema() {
		cp := *c
		cp.Source = name
		out[i] = &cp
	}
	return out
}

func (t *TableFetchNode) TableNames() []string {
	if t.Alias != "" {
		return []string{t.Alias}
	}
	return []string{t.Def.Name()}
}

func (t *TableFetchNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	pit, err := t.Def.Partitions(ctx)
	if err != nil {
		return nil, err
	}
	defer pit.Close(ctx)

	var rows []catalog.Row
	for {
		p, err := pit.Next(ctx)
		if err == catalog.ErrIterDone {
			break
		}
		if err != nil {
			return nil, err
		}
		rit, err := t.Def.PartitionRows(ctx, p)
		if err != nil {
			return nil, err
		}
		chunk, err := drain(ctx, rit)
		if err != nil {
			return nil, err
		}
		rows = append(rows, chunk...)
	}
	return newSliceIter(rows), nil
}

// CachePointNode shares a subtree's computed Table across OR-branch planning
//: its child is evaluated once and the result
// reused on every subsequent Evaluate call.
type CachePointNode struct {
	Child    Node
	computed bool
	rows     []catalog.Row
}

func NewCachePoint(child Node) *CachePointNode { return &CachePointNode{Child: child} }

func (c *CachePointNode) Schema() catalog.Schema { return c.Child.Schema() }
func (c *CachePointNode) TableNames() []string   { return c.Child.TableNames() }

func (c *CachePointNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	// A correlated subtree depends on the enclosing row (qc.Parent), so the
	// cached result from one outer row is wrong for the next; re-evaluate every
	// time instead of caching.
	if isCorrelated(c.Child) {
		rows, err := evalChild(ctx, qc, c.Child)
		if err != nil {
			return nil, err
		}
		return newSliceIter(rows), nil
	}
	if !c.computed {
		rows, err := evalChild(ctx, qc, c.Child)
		if err != nil {
			return nil, err
		}
		c.rows = rows
		c.computed = true
	}
	return newSliceIter(c.rows), nil
}

// PlanSchema/Correlated satisfy part of expr.SubqueryPlan directly; Evaluate
// does not, since it needs a *QueryContext a bare CachePointNode doesn't carry.
// SubqueryAdapter below supplies that and is what the planner actually embeds.
func (c *CachePointNode) PlanSchema() catalog.Schema { return c.Schema() }
func (c *CachePointNode) Correlated() bool           { return isCorrelated(c.Child) }

// SubqueryAdapter makes a CachePointNode satisfy expr.SubqueryPlan. expr.SubqueryPlan.Evaluate
// takes no QueryContext, so a correlated sub-query's outer row isn't reachable
// through the interface alone: Outer is mutated by the enclosing node (see
// bindSubqueryOuter below) to the RowContext of the row currently being
// evaluated, immediately before that row's predicate is evaluated.
type SubqueryAdapter struct {
	Cache *CachePointNode
	Funcs expr.FunctionRegistry
	Outer *expr.RowContext
}

func NewSubqueryAdapter(cache *CachePointNode, funcs expr.FunctionRegistry) *SubqueryAdapter {
	return &SubqueryAdapter{Cache: cache, Funcs: funcs}
}

func (a *SubqueryAdapter) Evaluate(ctx context.Context) (catalog.RowIter, error) {
	return a.Cache.Evaluate(ctx, &QueryContext{Funcs: a.Funcs, Parent: a.Outer})
}
func (a *SubqueryAdapter) PlanSchema() catalog.Schema { return a.Cache.PlanSchema() }
func (a *SubqueryAdapter) Correlated() bool           { return a.Cache.Correlated() }

// bindSubqueryOuter points every SubqueryAdapter embedded in e at rc, so a
// correlated sub-query resolves its CorrelatedVariable elements through the
// row currently being evaluated. Every node that evaluates a row
// predicate/expression that may embed a sub-query calls this immediately
// before Expression.Eval.
func bindSubqueryOuter(e *expr.Expression, rc *expr.RowContext) {
	if e == nil {
		return
	}
	for _, el := range e.Elements {
		if el.Kind != expr.ElemSubquery {
			continue
		}
		if a, ok := el.Subquery.(*SubqueryAdapter); ok {
			a.Outer = rc
		}
	}
}

// isCorrelated reports whether any expression reachable from n references a
// CorrelatedVariable; used to decide whether a sub-query's CachePointNode may be
// safely reused across evaluations of an enclosing row (it may not, if
// correlated).
func isCorrelated(n Node) bool {
	switch t := n.(type) {
	case *ExhaustiveSelectNode:
		return len(t.Predicate.CorrelatedVariables()) > 0 || isCorrelated(t.Child)
	case *CreateFunctionsNode:
		for _, f := range t.Funcs {
			if len(f.Expr.CorrelatedVariables()) > 0 {
				return true
			}
		}
		return isCorrelated(t.Child)
	case *JoinNode:
		return len(t.On.CorrelatedVariables()) > 0 || isCorrelated(t.Left) || isCorrelated(t.Right)
	case *SubsetNode:
		return isCorrelated(t.Child)
	case *CachePointNode:
		return isCorrelated(t.Child)
	default:
		return false
	}
}
