package plan

import (
	"context"
	"fmt"
	"sort"

	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/expr"
)

// SortKey is one ORDER BY position: a column index into the child's schema and
// a direction.
type SortKey struct {
	Index int
	Desc  bool
}

// SortNode orders its child's rows.
type SortNode struct {
	Child Node
	Keys  []SortKey
}

func NewSort(child Node, keys []SortKey) *SortNode { return &SortNode{Child: child, Keys: keys} }

func (s *SortNode) Schema() catalog.Schema { return s.Child.Schema() }
func (s *SortNode) TableNames() []string    { return s.Child.TableNames() }

func (s *SortNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	rows, err := evalChild(ctx, qc, s.Child)
	if err != nil {
		return nil, err
	}
	out := append([]catalog.Row{}, rows...)
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range s.Keys {
			c, err := compareValuesNullsFirst(out[i][k.Index], out[j][k.Index])
			if err != nil {
				sortErr = err
				return false
			}
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return newSliceIter(out), nil
}

func compareValuesNullsFirst(a, b interface{}) (int, error) {
	if a == nil && b == nil {
		return 0, nil
	}
	if a == nil {
		return -1, nil
	}
	if b == nil {
		return 1, nil
	}
	return compareValues(a, b)
}

// DistinctNode removes duplicate rows, applied before ORDER BY.
type DistinctNode struct {
	Child Node
}

func NewDistinct(child Node) *DistinctNode { return &DistinctNode{Child: child} }

func (d *DistinctNode) Schema() catalog.Schema { return d.Child.Schema() }
func (d *DistinctNode) TableNames() []string    { return d.Child.TableNames() }

func (d *DistinctNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	rows, err := evalChild(ctx, qc, d.Child)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []catalog.Row
	for _, row := range rows {
		key := fmt.Sprint([]interface{}(row))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return newSliceIter(out), nil
}

// SubsetNode renames/reorders/projects the child's columns to the originally
// requested SELECT list.
type SubsetNode struct {
	Child   Node
	Indices []int
	Names   []string
}

func NewSubset(child Node, indices []int, names []string) *SubsetNode {
	return &SubsetNode{Child: child, Indices: indices, Names: names}
}

func (s *SubsetNode) Schema() catalog.Schema {
	child := s.Child.Schema()
	out := make(catalog.Schema, len(s.Indices))
	for i, idx := range s.Indices {
		cp := *child[idx]
		cp.Name = s.Names[i]
		out[i] = &cp
	}
	return out
}
func (s *SubsetNode) TableNames() []string { return s.Child.TableNames() }

func (s *SubsetNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	rows, err := evalChild(ctx, qc, s.Child)
	if err != nil {
		return nil, err
	}
	var out []catalog.Row
	for _, row := range rows {
		projected := make(catalog.Row, len(s.Indices))
		for i, idx := range s.Indices {
			projected[i] = row[idx]
		}
		out = append(out, projected)
	}
	return newSliceIter(out), nil
}

// AliasNode renames the owning-table qualifier of its child's schema to Alias
// without touching column names.
type AliasNode struct {
	Child Node
	Alias string
}

func NewAlias(child Node, alias string) *AliasNode { return &AliasNode{Child: child, Alias: alias} }

func (a *AliasNode) Schema() catalog.Schema {
	child := a.Child.Schema()
	out := make(catalog.Schema, len(child))
	for i, c := range child {
		cp := *c
		cp.Source = a.Alias
		out[i] = &cp
	}
	return out
}
func (a *AliasNode) TableNames() []string { return []string{a.Alias} }

func (a *AliasNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	return a.Child.Evaluate(ctx, qc)
}

// LogicalUnionNode merges the row sets of two compatible OR-branches,
// deduplicating.
type LogicalUnionNode struct {
	Left, Right Node
}

func NewLogicalUnion(left, right Node) *LogicalUnionNode {
	return &LogicalUnionNode{Left: left, Right: right}
}

func (l *LogicalUnionNode) Schema() catalog.Schema { return l.Left.Schema() }
func (l *LogicalUnionNode) TableNames() []string    { return unionTableNames(l.Left, l.Right) }

func (l *LogicalUnionNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	left, err := evalChild(ctx, qc, l.Left)
	if err != nil {
		return nil, err
	}
	right, err := evalChild(ctx, qc, l.Right)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []catalog.Row
	for _, row := range append(append([]catalog.Row{}, left...), right...) {
		key := fmt.Sprint([]interface{}(row))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return newSliceIter(out), nil
}

// CompositeNode implements UNION/INTERSECT/EXCEPT [ALL] chaining two
// TableSelectExpressions.
type CompositeNode struct {
	Left, Right Node
	Op          string
	All         bool
}

func NewComposite(left, right Node, op string, all bool) *CompositeNode {
	return &CompositeNode{Left: left, Right: right, Op: op, All: all}
}

func (c *CompositeNode) Schema() catalog.Schema { return c.Left.Schema() }
func (c *CompositeNode) TableNames() []string    { return unionTableNames(c.Left, c.Right) }

func (c *CompositeNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	left, err := evalChild(ctx, qc, c.Left)
	if err != nil {
		return nil, err
	}
	right, err := evalChild(ctx, qc, c.Right)
	if err != nil {
		return nil, err
	}

	keyOf := func(r catalog.Row) string { return fmt.Sprint([]interface{}(r)) }
	rightSet := map[string]bool{}
	for _, r := range right {
		rightSet[keyOf(r)] = true
	}

	var out []catalog.Row
	switch c.Op {
	case "UNION":
		out = append(out, left...)
		out = append(out, right...)
		if !c.All {
			seen := map[string]bool{}
			var deduped []catalog.Row
			for _, r := range out {
				k := keyOf(r)
				if seen[k] {
					continue
				}
				seen[k] = true
				deduped = append(deduped, r)
			}
			out = deduped
		}
	case "INTERSECT":
		for _, r := range left {
			if rightSet[keyOf(r)] {
				out = append(out, r)
			}
		}
		if !c.All {
			seen := map[string]bool{}
			var deduped []catalog.Row
			for _, r := range out {
				k := keyOf(r)
				if seen[k] {
					continue
				}
				seen[k] = true
				deduped = append(deduped, r)
			}
			out = deduped
		}
	case "EXCEPT":
		seen := map[string]bool{}
		for _, r := range left {
			k := keyOf(r)
			if rightSet[k] {
				continue
			}
			if !c.All {
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			out = append(out, r)
		}
	}
	return newSliceIter(out), nil
}

// SingleRowNode produces exactly one row from a list of column expressions: the
// empty-FROM-clause SELECT.
type SingleRowNode struct {
	Values []*expr.Expression
	Names  []string
	Types  []catalog.Column
}

func NewSingleRow(values []*expr.Expression, names []string) *SingleRowNode {
	return &SingleRowNode{Values: values, Names: names}
}

func (s *SingleRowNode) Schema() catalog.Schema {
	out := make(catalog.Schema, len(s.Names))
	for i, n := range s.Names {
		out[i] = &catalog.Column{Name: n}
	}
	return out
}
func (s *SingleRowNode) TableNames() []string { return nil }

func (s *SingleRowNode) Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error) {
	row := make(catalog.Row, len(s.Values))
	rc := &expr.RowContext{Parent: qc.Parent, Funcs: qc.Funcs}
	for i, e := range s.Values {
		bindSubqueryOuter(e, rc)
		v, err := e.Eval(ctx, rc)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return newSliceIter([]catalog.Row{row}), nil
}
