package plan

import (
	"context"

	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/expr"
)

// filterRows is the shared row-by-row predicate evaluation every *-select node
// in this file uses once it has its candidate row set; it is how
// ExhaustiveSelectNode always works and how the index-backed nodes verify a
// residual predicate beyond what the index lookup guaranteed.
func filterRows(ctx context.Context, qc *QueryContext, schema catalog.Schema, rows []catalog.Row, predicate *expr.Expression) ([]catalog.Row, error) {
	if predicate == nil {
		return rows, nil
	}
	var out []catalog.Row
	for _, row := range rows {
		rc := qc.rowContext(schema)
		rc.Row = row
		bindSubqueryOuter(predicate, rc)
		v, err := predicate.Eval(ctx, rc)
		if err != nil {
			return nil, err
		}
		if b, ok := v.(bool); ok && b {
			out = append(out, row)
		}
	}
	return out, nil
}

// ConstantSelectNode evaluates a WHERE predicate with no variables exactly once,
// short-circuiting its child entirely when the predicate is false.
type ConstantSelectNode struct {
	Child     Node
	Predicate *expr.Expression
}

func NewConstantSelect(child Node, predicate *expr.Expression) *ConstantSelectNode {
	return &ConstantSelectNode{Child: child, Predicate: predicate}
}

func (c *ConstantSelectNode) Schema() catalog.Schema { return c.Child.Schema() }
func (c *ConstantSelectNode) TableNames() []string   { return c.Child.TableNames() }

func (c *ConstantSelectNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	rc := &expr.RowContext{Parent: qc.Parent, Funcs: qc.Funcs}
	v, err := c.Predicate.Eval(ctx, rc)
	if err != nil {
		return nil, err
	}
	if b, ok := v.(bool); !ok || !b {
		return newSliceIter(nil), nil
	}
	return c.Child.Evaluate(ctx, qc)
}

// RangeSelectNode uses a SelectableScheme's Range lookup in lieu of scanning,
// falling back to a full scan + filter when the table offers no usable index
// on Column.
type RangeSelectNode struct {
	Child                Node
	Scheme               catalog.SelectableScheme
	Column               string
	Lo, Hi               *expr.Expression
	LoIncl, HiIncl       bool
	ResidualPredicate    *expr.Expression
}

func (r *RangeSelectNode) Schema() catalog.Schema { return r.Child.Schema() }
func (r *RangeSelectNode) TableNames() []string    { return r.Child.TableNames() }

func (r *RangeSelectNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	rc := &expr.RowContext{Parent: qc.Parent, Funcs: qc.Funcs}
	var lo, hi interface{}
	var err error
	if r.Lo != nil {
		if lo, err = r.Lo.Eval(ctx, rc); err != nil {
			return nil, err
		}
	}
	if r.Hi != nil {
		if hi, err = r.Hi.Eval(ctx, rc); err != nil {
			return nil, err
		}
	}

	var rows []catalog.Row
	if r.Scheme != nil {
		it, err := r.Scheme.Range(ctx, lo, hi, r.LoIncl, r.HiIncl)
		if err != nil {
			return nil, err
		}
		rows, err = drain(ctx, it)
		if err != nil {
			return nil, err
		}
	} else {
		rows, err = evalChild(ctx, qc, r.Child)
		if err != nil {
			return nil, err
		}
		idx := r.Schema().IndexOf(r.Column)
		var kept []catalog.Row
		for _, row := range rows {
			cl, errLo := compareValues(row[idx], lo)
			ch, errHi := compareValues(row[idx], hi)
			okLo := r.Lo == nil || (errLo == nil && (cl > 0 || (cl == 0 && r.LoIncl)))
			okHi := r.Hi == nil || (errHi == nil && (ch < 0 || (ch == 0 && r.HiIncl)))
			if okLo && okHi {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	rows, err = filterRows(ctx, qc, r.Schema(), rows, r.ResidualPredicate)
	if err != nil {
		return nil, err
	}
	return newSliceIter(rows), nil
}

// SimpleSelectNode uses a SelectableScheme's exact-match Lookup,
// falling back to a scan + filter when no index covers Column.
type SimpleSelectNode struct {
	Child             Node
	Scheme            catalog.SelectableScheme
	Column            string
	Value             *expr.Expression
	ResidualPredicate *expr.Expression
}

func (s *SimpleSelectNode) Schema() catalog.Schema { return s.Child.Schema() }
func (s *SimpleSelectNode) TableNames() []string    { return s.Child.TableNames() }

func (s *SimpleSelectNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	rc := &expr.RowContext{Parent: qc.Parent, Funcs: qc.Funcs}
	val, err := s.Value.Eval(ctx, rc)
	if err != nil {
		return nil, err
	}

	var rows []catalog.Row
	if s.Scheme != nil {
		it, err := s.Scheme.Lookup(ctx, catalog.Row{val})
		if err != nil {
			return nil, err
		}
		rows, err = drain(ctx, it)
		if err != nil {
			return nil, err
		}
	} else {
		rows, err = evalChild(ctx, qc, s.Child)
		if err != nil {
			return nil, err
		}
		idx := s.Schema().IndexOf(s.Column)
		var kept []catalog.Row
		for _, row := range rows {
			if c, cerr := compareValues(row[idx], val); cerr == nil && c == 0 {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	rows, err = filterRows(ctx, qc, s.Schema(), rows, s.ResidualPredicate)
	if err != nil {
		return nil, err
	}
	return newSliceIter(rows), nil
}

// SimplePatternSelectNode implements `v LIKE 'constant'`.
type SimplePatternSelectNode struct {
	Child   Node
	Column  string
	Pattern *expr.Expression
}

func (s *SimplePatternSelectNode) Schema() catalog.Schema { return s.Child.Schema() }
func (s *SimplePatternSelectNode) TableNames() []string    { return s.Child.TableNames() }

func (s *SimplePatternSelectNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	rows, err := evalChild(ctx, qc, s.Child)
	if err != nil {
		return nil, err
	}
	schema := s.Schema()
	idx := schema.IndexOf(s.Column)
	rc := &expr.RowContext{Parent: qc.Parent, Funcs: qc.Funcs}
	pat, err := s.Pattern.Eval(ctx, rc)
	if err != nil {
		return nil, err
	}
	patStr, _ := pat.(string)

	var out []catalog.Row
	for _, row := range rows {
		v, _ := row[idx].(string)
		if likeMatch(v, patStr) {
			out = append(out, row)
		}
	}
	return newSliceIter(out), nil
}

func likeMatch(s, pattern string) bool {
	// identical semantics to expr's unexported likeMatch; duplicated at the
	// package boundary rather than exported purely for index-path convenience.
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

// ExhaustiveSelectNode scans and filters row-by-row; the
// fallback plan for any predicate that can't be routed through an index.
type ExhaustiveSelectNode struct {
	Child     Node
	Predicate *expr.Expression
}

func NewExhaustiveSelect(child Node, predicate *expr.Expression) *ExhaustiveSelectNode {
	return &ExhaustiveSelectNode{Child: child, Predicate: predicate}
}

func (e *ExhaustiveSelectNode) Schema() catalog.Schema { return e.Child.Schema() }
func (e *ExhaustiveSelectNode) TableNames() []string    { return e.Child.TableNames() }

func (e *ExhaustiveSelectNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	rows, err := evalChild(ctx, qc, e.Child)
	if err != nil {
		return nil, err
	}
	rows, err = filterRows(ctx, qc, e.Schema(), rows, e.Predicate)
	if err != nil {
		return nil, err
	}
	return newSliceIter(rows), nil
}

// NonCorrelatedAnyAllNode implements `a IN (SELECT ...)` for a non-correlated
// sub-query: the sub-query is evaluated once
// via its CachePointNode and collapsed into a set, then every child row is
// tested for membership.
type NonCorrelatedAnyAllNode struct {
	Child    Node
	Variable *expr.Variable
	Sub      *CachePointNode
	Negate   bool
}

func NewNonCorrelatedAnyAll(child Node, v *expr.Variable, sub *CachePointNode, negate bool) *NonCorrelatedAnyAllNode {
	return &NonCorrelatedAnyAllNode{Child: child, Variable: v, Sub: sub, Negate: negate}
}

func (n *NonCorrelatedAnyAllNode) Schema() catalog.Schema { return n.Child.Schema() }
func (n *NonCorrelatedAnyAllNode) TableNames() []string {
	return unionTableNames(n.Child, n.Sub)
}

func (n *NonCorrelatedAnyAllNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	subRows, err := evalChild(ctx, qc, n.Sub)
	if err != nil {
		return nil, err
	}
	set := map[interface{}]bool{}
	for _, r := range subRows {
		if len(r) > 0 {
			set[r[0]] = true
		}
	}

	rows, err := evalChild(ctx, qc, n.Child)
	if err != nil {
		return nil, err
	}
	schema := n.Schema()
	idx := schema.IndexOf(n.Variable.Column)

	var out []catalog.Row
	for _, row := range rows {
		present := set[row[idx]]
		if present != n.Negate {
			out = append(out, row)
		}
	}
	return newSliceIter(out), nil
}
