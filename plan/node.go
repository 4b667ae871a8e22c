// Package plan is components D and E: the query planner
// that turns a TableSelectExpression + from-set into a physical QueryPlanNode
// tree, and the evaluator that runs that tree against live tables.
//
// Grounded on go-mysql-server's plan-node vocabulary as fixed by
// sql/parse/parse_test.go's plan.New* constructor calls (plan.NewProject,
// plan.NewCreateTable, ...) and on go-mysql-server's split of "build the tree"
// (sql/planbuilder) from "evaluate the tree" (sql/rowexec) — mirrored here as
// build.go (component D) versus this file and scan.go, select.go, join.go,
// group.go and misc.go (component E).
package plan

import (
	"context"

	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/expr"
)

// QueryContext carries what every node's Evaluate needs beyond the row data
// itself: the function registry for scalar/aggregate calls, and the parent
// RowContext chain used to resolve CorrelatedVariable references.
type QueryContext struct {
	Funcs  expr.FunctionRegistry
	Parent *expr.RowContext
}

func (qc *QueryContext) rowContext(schema catalog.Schema) *expr.RowContext {
	return &expr.RowContext{Schema: schema, Parent: qc.Parent, Funcs: qc.Funcs}
}

// Node is the QueryPlanNode tagged-variant capability: every
// variant has a deterministic Evaluate and declares its referenced table names.
type Node interface {
	Evaluate(ctx context.Context, qc *QueryContext) (catalog.RowIter, error)
	Schema() catalog.Schema
	TableNames() []string
}

// sliceIter is a materialized RowIter, the evaluation strategy this package
// uses throughout: every node fully computes its output before returning,
// trading streaming for the simplicity appropriate to a reference
// implementation (the storage layer's own iterators, consulted by fetch and by
// SelectableScheme, are the only place true streaming happens).
type sliceIter struct {
	rows []catalog.Row
	pos  int
}

func newSliceIter(rows []catalog.Row) *sliceIter { return &sliceIter{rows: rows} }

func (s *sliceIter) Next(ctx context.Context) (catalog.Row, error) {
	if s.pos >= len(s.rows) {
		return nil, catalog.ErrIterDone
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceIter) Close(ctx context.Context) error { return nil }

// drain fully consumes a RowIter into a slice, closing it afterward.
func drain(ctx context.Context, it catalog.RowIter) ([]catalog.Row, error) {
	defer it.Close(ctx)
	var out []catalog.Row
	for {
		row, err := it.Next(ctx)
		if err == catalog.ErrIterDone {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
}

// evalChild is a small helper every node uses to run its child to completion.
func evalChild(ctx context.Context, qc *QueryContext, n Node) ([]catalog.Row, error) {
	it, err := n.Evaluate(ctx, qc)
	if err != nil {
		return nil, err
	}
	return drain(ctx, it)
}

func unionTableNames(nodes ...Node) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range nodes {
		if n == nil {
			continue
		}
		for _, t := range n.TableNames() {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
