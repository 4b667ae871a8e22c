package plan

import (
	"context"

	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/expr"
)

// MarkerNode labels a source branch and is otherwise a transparent
// pass-through. The builder does not insert one, and LeftOuterJoinNode does
// not consult it: the left/right sides of the join decide which side is
// null-padded.
type MarkerNode struct {
	Child Node
	Mark  string
}

func NewMarker(child Node, mark string) *MarkerNode { return &MarkerNode{Child: child, Mark: mark} }

func (m *MarkerNode) Schema() catalog.Schema { return m.Child.Schema() }
func (m *MarkerNode) TableNames() []string    { return m.Child.TableNames() }
func (m *MarkerNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	return m.Child.Evaluate(ctx, qc)
}

// NaturalJoinNode produces the unconditional Cartesian product of Left and
// Right: used when two PlanTableSources merge with no declared
// join neighbor link, leaving any relating predicate to a selection node layered
// on top by the planner.
type NaturalJoinNode struct {
	Left, Right Node
}

func NewNaturalJoin(left, right Node) *NaturalJoinNode { return &NaturalJoinNode{Left: left, Right: right} }

func (n *NaturalJoinNode) Schema() catalog.Schema {
	return append(append(catalog.Schema{}, n.Left.Schema()...), n.Right.Schema()...)
}
func (n *NaturalJoinNode) TableNames() []string { return unionTableNames(n.Left, n.Right) }

func (n *NaturalJoinNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	left, err := evalChild(ctx, qc, n.Left)
	if err != nil {
		return nil, err
	}
	right, err := evalChild(ctx, qc, n.Right)
	if err != nil {
		return nil, err
	}
	var out []catalog.Row
	for _, l := range left {
		for _, r := range right {
			out = append(out, append(append(catalog.Row{}, l...), r...))
		}
	}
	return newSliceIter(out), nil
}

// JoinNode produces the Cartesian product of Left and Right keyed by an
// equi-predicate or any predicate between one LHS variable and an RHS
// expression. Unlike NaturalJoinNode it carries its own ON
// predicate and filters during the join rather than leaving that to a node
// layered on top.
type JoinNode struct {
	Left, Right Node
	On          *expr.Expression
}

func NewJoin(left, right Node, on *expr.Expression) *JoinNode {
	return &JoinNode{Left: left, Right: right, On: on}
}

func (j *JoinNode) Schema() catalog.Schema {
	return append(append(catalog.Schema{}, j.Left.Schema()...), j.Right.Schema()...)
}
func (j *JoinNode) TableNames() []string { return unionTableNames(j.Left, j.Right) }

func (j *JoinNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	left, err := evalChild(ctx, qc, j.Left)
	if err != nil {
		return nil, err
	}
	right, err := evalChild(ctx, qc, j.Right)
	if err != nil {
		return nil, err
	}
	schema := j.Schema()
	var out []catalog.Row
	for _, l := range left {
		for _, r := range right {
			combined := append(append(catalog.Row{}, l...), r...)
			rc := qc.rowContext(schema)
			rc.Row = combined
			bindSubqueryOuter(j.On, rc)
			v, err := j.On.Eval(ctx, rc)
			if err != nil {
				return nil, err
			}
			if b, ok := v.(bool); ok && b {
				out = append(out, combined)
			}
		}
	}
	return newSliceIter(out), nil
}

// LeftOuterJoinNode emits every LHS/RHS pair satisfying On, plus a
// null-padded row for each LHS row that matches no RHS row. RIGHT OUTER JOIN
// is not a distinct node: mergeSources in plan/build.go rewrites it to LEFT
// OUTER by swapping operands at build time.
type LeftOuterJoinNode struct {
	Left, Right Node
	On          *expr.Expression
}

func NewLeftOuterJoin(left, right Node, on *expr.Expression) *LeftOuterJoinNode {
	return &LeftOuterJoinNode{Left: left, Right: right, On: on}
}

func (l *LeftOuterJoinNode) Schema() catalog.Schema {
	right := l.Right.Schema()
	out := append(catalog.Schema{}, l.Left.Schema()...)
	for _, c := range right {
		cp := *c
		cp.Nullable = true
		out = append(out, &cp)
	}
	return out
}
func (l *LeftOuterJoinNode) TableNames() []string { return unionTableNames(l.Left, l.Right) }

func (l *LeftOuterJoinNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	leftRows, err := evalChild(ctx, qc, l.Left)
	if err != nil {
		return nil, err
	}
	rightRows, err := evalChild(ctx, qc, l.Right)
	if err != nil {
		return nil, err
	}
	schema := l.Schema()
	rightWidth := len(l.Right.Schema())

	var out []catalog.Row
	for _, lr := range leftRows {
		matched := false
		for _, rr := range rightRows {
			combined := append(append(catalog.Row{}, lr...), rr...)
			rc := qc.rowContext(schema)
			rc.Row = combined
			bindSubqueryOuter(l.On, rc)
			v, err := l.On.Eval(ctx, rc)
			if err != nil {
				return nil, err
			}
			if b, ok := v.(bool); ok && b {
				out = append(out, combined)
				matched = true
			}
		}
		if !matched {
			padded := append(catalog.Row{}, lr...)
			for i := 0; i < rightWidth; i++ {
				padded = append(padded, nil)
			}
			out = append(out, padded)
		}
	}
	return newSliceIter(out), nil
}
