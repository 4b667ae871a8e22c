package exec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/exec"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/types"
)

func TestSelectProjectsRequestedColumns(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newFakeDatabase()
	require.NoError(db.CreateTable(ctx, "widgets", catalog.Schema{
		{Name: "id", Type: types.Integer},
		{Name: "name", Type: types.Varchar(20)},
	}))
	db.tables["widgets"].rows = []catalog.Row{
		{int64(1), "bolt"},
		{int64(2), "nut"},
	}
	ec := newECWith(db)

	tse := &ast.TableSelectExpression{
		Columns: []*ast.SelectColumn{{Expr: expr.VarExpr(&expr.Variable{Column: "name"})}},
		From:    []*ast.FromItem{{Direct: &ast.TableRef{Table: "widgets"}}},
	}
	sel := exec.NewSelect(tse)
	require.NoError(sel.Prepare(ctx, ec))

	schema, it, err := sel.Evaluate(ctx, ec)
	require.NoError(err)
	require.Len(schema, 1)
	require.Equal("name", schema[0].Name)

	var got []interface{}
	for {
		row, err := it.Next(ctx)
		if err == catalog.ErrIterDone {
			break
		}
		require.NoError(err)
		got = append(got, row[0])
	}
	require.Equal([]interface{}{"bolt", "nut"}, got)
}

func TestSelectWithWhereFiltersRows(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newFakeDatabase()
	require.NoError(db.CreateTable(ctx, "widgets", catalog.Schema{
		{Name: "id", Type: types.Integer},
	}))
	db.tables["widgets"].rows = []catalog.Row{{int64(1)}, {int64(2)}, {int64(3)}}
	ec := newECWith(db)

	where := expr.New(
		expr.VariableElement(&expr.Variable{Column: "id"}),
		expr.ValueElement(int64(2), types.Integer),
		expr.OperatorElement(expr.OpGe),
	)
	tse := &ast.TableSelectExpression{
		Columns: []*ast.SelectColumn{{Expr: expr.VarExpr(&expr.Variable{Column: "id"})}},
		From:    []*ast.FromItem{{Direct: &ast.TableRef{Table: "widgets"}}},
		Where:   where,
	}
	sel := exec.NewSelect(tse)
	require.NoError(sel.Prepare(ctx, ec))

	_, it, err := sel.Evaluate(ctx, ec)
	require.NoError(err)
	var got []interface{}
	for {
		row, err := it.Next(ctx)
		if err == catalog.ErrIterDone {
			break
		}
		require.NoError(err)
		got = append(got, row[0])
	}
	require.Equal([]interface{}{int64(2), int64(3)}, got)
}

func TestSelectUnknownTableErrors(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newFakeDatabase()
	ec := newECWith(db)

	tse := &ast.TableSelectExpression{
		Columns: []*ast.SelectColumn{{Glob: true}},
		From:    []*ast.FromItem{{Direct: &ast.TableRef{Table: "missing"}}},
	}
	sel := exec.NewSelect(tse)
	require.Error(sel.Prepare(ctx, ec))
}
