package plan_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/fromset"
	"github.com/relcore/relcore/plan"
	"github.com/relcore/relcore/types"
)

type singlePartitionIter struct{ done bool }

func (s *singlePartitionIter) Next(ctx context.Context) (catalog.Partition, error) {
	if s.done {
		return nil, catalog.ErrIterDone
	}
	s.done = true
	return fakePartition{}, nil
}
func (s *singlePartitionIter) Close(ctx context.Context) error { return nil }

type fakePartition struct{}

func (fakePartition) Key() []byte { return nil }

type fakeRowIter struct {
	rows []catalog.Row
	pos  int
}

func (f *fakeRowIter) Next(ctx context.Context) (catalog.Row, error) {
	if f.pos >= len(f.rows) {
		return nil, catalog.ErrIterDone
	}
	r := f.rows[f.pos]
	f.pos++
	return r, nil
}
func (f *fakeRowIter) Close(ctx context.Context) error { return nil }

type fakeTableDef struct {
	name   string
	schema catalog.Schema
	rows   []catalog.Row
}

func (f *fakeTableDef) Name() string           { return f.name }
func (f *fakeTableDef) Schema() catalog.Schema { return f.schema }
func (f *fakeTableDef) Partitions(ctx context.Context) (catalog.PartitionIter, error) {
	return &singlePartitionIter{}, nil
}
func (f *fakeTableDef) PartitionRows(ctx context.Context, p catalog.Partition) (catalog.RowIter, error) {
	return &fakeRowIter{rows: f.rows}, nil
}
func (f *fakeTableDef) PrimaryKey() []string                              { return nil }
func (f *fakeTableDef) UniqueGroups() [][]string                          { return nil }
func (f *fakeTableDef) ForeignKeys() []catalog.ForeignKey                 { return nil }
func (f *fakeTableDef) Checks() []catalog.CheckConstraint                 { return nil }
func (f *fakeTableDef) Insert(ctx context.Context, row catalog.Row) error { return nil }
func (f *fakeTableDef) Update(ctx context.Context, old, new catalog.Row) error { return nil }
func (f *fakeTableDef) Delete(ctx context.Context, row catalog.Row) error { return nil }
func (f *fakeTableDef) SelectableSchemes() []catalog.SelectableScheme     { return nil }

type fakeDB struct {
	t *fakeTableDef
}

func (d *fakeDB) Table(ctx context.Context, name string) (catalog.DataTableDef, bool, error) {
	if name != d.t.name {
		return nil, false, nil
	}
	return d.t, true, nil
}

func buildSelect(t *testing.T, tse *ast.TableSelectExpression, def *fakeTableDef) (plan.Node, []string, error) {
	t.Helper()
	ctx := context.Background()
	db := &fakeDB{t: def}
	fs, err := fromset.Build(ctx, tse, db, nil, true)
	require.NoError(t, err)
	return plan.Build(ctx, tse, fs, db, plan.NewDefaultFunctionRegistry(), true)
}

func TestOrderByOutOfRangePositionIsLiteralNoOp(t *testing.T) {
	require := require.New(t)

	def := &fakeTableDef{
		name:   "t",
		schema: catalog.Schema{{Name: "a", Type: types.Integer}},
		rows: []catalog.Row{
			{int64(3)},
			{int64(1)},
			{int64(2)},
		},
	}

	tse := &ast.TableSelectExpression{
		Columns: []*ast.SelectColumn{{Expr: expr.VarExpr(&expr.Variable{Column: "a"})}},
		From:    []*ast.FromItem{{Direct: &ast.TableRef{Table: "t"}}},
		OrderBy: []*ast.OrderByItem{{Expr: expr.Literal(int64(5), types.Integer)}},
	}

	node, names, err := buildSelect(t, tse, def)
	require.NoError(err, "ORDER BY position outside [1, select_list_size] must plan, not error")
	require.Equal([]string{"a"}, names)

	it, err := node.Evaluate(context.Background(), &plan.QueryContext{Funcs: plan.NewDefaultFunctionRegistry()})
	require.NoError(err)
	var got []interface{}
	for {
		row, err := it.Next(context.Background())
		if err == catalog.ErrIterDone {
			break
		}
		require.NoError(err)
		got = append(got, row[0])
	}
	// a literal ORDER BY key is a no-op: rows keep their original scan order.
	require.Equal([]interface{}{int64(3), int64(1), int64(2)}, got)
}

func TestOrderByValidPositionSorts(t *testing.T) {
	require := require.New(t)

	def := &fakeTableDef{
		name:   "t",
		schema: catalog.Schema{{Name: "a", Type: types.Integer}},
		rows: []catalog.Row{
			{int64(3)},
			{int64(1)},
			{int64(2)},
		},
	}

	tse := &ast.TableSelectExpression{
		Columns: []*ast.SelectColumn{{Expr: expr.VarExpr(&expr.Variable{Column: "a"})}},
		From:    []*ast.FromItem{{Direct: &ast.TableRef{Table: "t"}}},
		OrderBy: []*ast.OrderByItem{{Expr: expr.Literal(int64(1), types.Integer)}},
	}

	node, _, err := buildSelect(t, tse, def)
	require.NoError(err)

	it, err := node.Evaluate(context.Background(), &plan.QueryContext{Funcs: plan.NewDefaultFunctionRegistry()})
	require.NoError(err)
	var got []interface{}
	for {
		row, err := it.Next(context.Background())
		if err == catalog.ErrIterDone {
			break
		}
		require.NoError(err)
		got = append(got, row[0])
	}
	require.Equal([]interface{}{int64(1), int64(2), int64(3)}, got)
}

func TestOrderByZeroPositionIsLiteralNoOp(t *testing.T) {
	require := require.New(t)

	def := &fakeTableDef{
		name:   "t",
		schema: catalog.Schema{{Name: "a", Type: types.Integer}},
		rows: []catalog.Row{
			{int64(3)},
			{int64(1)},
		},
	}

	tse := &ast.TableSelectExpression{
		Columns: []*ast.SelectColumn{{Expr: expr.VarExpr(&expr.Variable{Column: "a"})}},
		From:    []*ast.FromItem{{Direct: &ast.TableRef{Table: "t"}}},
		OrderBy: []*ast.OrderByItem{{Expr: expr.Literal(int64(0), types.Integer)}},
	}

	_, _, err := buildSelect(t, tse, def)
	require.NoError(err, "position 0 is out of [1, select_list_size] and must be a no-op, not an error")
}
