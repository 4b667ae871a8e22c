package fromset_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/fromset"
	"github.com/relcore/relcore/types"
)

type fakeTableDef struct {
	name   string
	schema catalog.Schema
}

func (f *fakeTableDef) Name() string                                       { return f.name }
func (f *fakeTableDef) Schema() catalog.Schema                             { return f.schema }
func (f *fakeTableDef) Partitions(ctx context.Context) (catalog.PartitionIter, error) { return nil, nil }
func (f *fakeTableDef) PartitionRows(ctx context.Context, p catalog.Partition) (catalog.RowIter, error) {
	return nil, nil
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
	tables map[string]*fakeTableDef
}

func (d *fakeDB) Table(ctx context.Context, name string) (catalog.DataTableDef, bool, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, false, nil
	}
	return t, true, nil
}

func newDB() *fakeDB {
	return &fakeDB{tables: map[string]*fakeTableDef{
		"orders": {name: "orders", schema: catalog.Schema{
			{Name: "id", Type: types.Integer},
			{Name: "customer_id", Type: types.Integer},
		}},
		"customers": {name: "customers", schema: catalog.Schema{
			{Name: "id", Type: types.Integer},
			{Name: "name", Type: types.Varchar(40)},
		}},
	}}
}

func selectStarFrom(tables ...*ast.FromItem) *ast.TableSelectExpression {
	return &ast.TableSelectExpression{
		Columns: []*ast.SelectColumn{{Glob: true}},
		From:    tables,
	}
}

func TestBuildExposesGlobColumns(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newDB()

	tse := selectStarFrom(&ast.FromItem{Direct: &ast.TableRef{Table: "orders"}})
	fs, err := fromset.Build(ctx, tse, db, nil, true)
	require.NoError(err)
	require.Len(fs.Exposed, 2)
	require.Equal("id", fs.Exposed[0].Column)
	require.Equal("customer_id", fs.Exposed[1].Column)
}

func TestBuildUnknownTable(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newDB()

	tse := selectStarFrom(&ast.FromItem{Direct: &ast.TableRef{Table: "missing"}})
	_, err := fromset.Build(ctx, tse, db, nil, true)
	require.Error(err)
	require.True(errs.ErrTableNotFound.Is(err))
}

func TestResolveUnqualifiedColumn(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newDB()

	tse := selectStarFrom(&ast.FromItem{Direct: &ast.TableRef{Table: "orders"}})
	fs, err := fromset.Build(ctx, tse, db, nil, true)
	require.NoError(err)

	v, cv, err := fs.Resolve("", "customer_id")
	require.NoError(err)
	require.Nil(cv)
	require.NotNil(v)
	require.Equal("customer_id", v.Column)
	require.True(v.Resolved)
}

func TestResolveAmbiguousColumnAcrossJoin(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newDB()

	tse := selectStarFrom(
		&ast.FromItem{Direct: &ast.TableRef{Table: "orders"}},
		&ast.FromItem{Direct: &ast.TableRef{Table: "customers"}, Join: ast.JoinInner},
	)
	fs, err := fromset.Build(ctx, tse, db, nil, true)
	require.NoError(err)

	_, _, err = fs.Resolve("", "id")
	require.Error(err)
	require.True(errs.ErrAmbiguousColumn.Is(err))

	v, _, err := fs.Resolve("orders", "id")
	require.NoError(err)
	require.Equal("orders", v.Table)
}

func TestResolveUnknownColumnErrors(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newDB()

	tse := selectStarFrom(&ast.FromItem{Direct: &ast.TableRef{Table: "orders"}})
	fs, err := fromset.Build(ctx, tse, db, nil, true)
	require.NoError(err)

	_, _, err = fs.Resolve("", "does_not_exist")
	require.Error(err)
	require.True(errs.ErrColumnNotFound.Is(err))
}

func TestResolveCorrelatedVariableWalksParent(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newDB()

	outer := selectStarFrom(&ast.FromItem{Direct: &ast.TableRef{Table: "orders"}})
	outerFS, err := fromset.Build(ctx, outer, db, nil, true)
	require.NoError(err)

	inner := selectStarFrom(&ast.FromItem{Direct: &ast.TableRef{Table: "customers"}})
	innerFS, err := fromset.Build(ctx, inner, db, outerFS, true)
	require.NoError(err)

	v, cv, err := innerFS.Resolve("", "customer_id")
	require.NoError(err)
	require.Nil(v)
	require.NotNil(cv)
	require.Equal(1, cv.Level)
	require.Equal("customer_id", cv.Variable.Column)
}

func TestQualifyPreparesVariables(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := newDB()

	tse := selectStarFrom(&ast.FromItem{Direct: &ast.TableRef{Table: "orders"}})
	fs, err := fromset.Build(ctx, tse, db, nil, true)
	require.NoError(err)

	where := expr.New(
		expr.VariableElement(&expr.Variable{Column: "customer_id"}),
		expr.ValueElement(int64(5), types.Integer),
		expr.OperatorElement(expr.OpEq),
	)
	qualified, err := fs.Qualify(where)
	require.NoError(err)
	require.True(qualified.Elements[0].Var.Resolved)
	require.Equal("orders", qualified.Elements[0].Var.Table)
}
