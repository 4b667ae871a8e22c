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

func TestUpdateAppliesAssignmentsMatchingWhere(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newFakeDatabase()
	require.NoError(db.CreateTable(ctx, "widgets", catalog.Schema{
		{Name: "id", Type: types.Integer},
		{Name: "qty", Type: types.Integer},
	}))
	db.tables["widgets"].rows = []catalog.Row{
		{int64(1), int64(10)},
		{int64(2), int64(20)},
	}
	ec := newECWith(db)

	where := expr.New(
		expr.VariableElement(&expr.Variable{Column: "id"}),
		expr.ValueElement(int64(1), types.Integer),
		expr.OperatorElement(expr.OpEq),
	)
	stmt := &ast.UpdateStatement{
		Table: &ast.TableRef{Table: "widgets"},
		Assignments: []ast.Assignment{
			{Column: "qty", Expr: expr.Literal(int64(99), types.Integer)},
		},
		Where: where,
	}
	upd := exec.NewUpdate(stmt)
	require.NoError(upd.Prepare(ctx, ec))

	_, it, err := upd.Evaluate(ctx, ec)
	require.NoError(err)
	row, err := it.Next(ctx)
	require.NoError(err)
	require.Equal(int64(1), row[0])

	require.Len(db.tables["widgets"].rows, 2)
	require.Equal(int64(99), db.tables["widgets"].rows[0][1])
	require.Equal(int64(20), db.tables["widgets"].rows[1][1])
}

func TestUpdateRejectsUnknownColumn(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newFakeDatabase()
	require.NoError(db.CreateTable(ctx, "widgets", catalog.Schema{{Name: "id", Type: types.Integer}}))
	ec := newECWith(db)

	stmt := &ast.UpdateStatement{
		Table: &ast.TableRef{Table: "widgets"},
		Assignments: []ast.Assignment{
			{Column: "does_not_exist", Expr: expr.Literal(int64(1), types.Integer)},
		},
	}
	upd := exec.NewUpdate(stmt)
	require.Error(upd.Prepare(ctx, ec))
}

func TestUpdateRejectsOnReadOnly(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newFakeDatabase()
	require.NoError(db.CreateTable(ctx, "widgets", catalog.Schema{{Name: "id", Type: types.Integer}}))
	db.tables["widgets"].rows = []catalog.Row{{int64(1)}}
	ec := newECWith(db)

	stmt := &ast.UpdateStatement{
		Table: &ast.TableRef{Table: "widgets"},
		Assignments: []ast.Assignment{
			{Column: "id", Expr: expr.Literal(int64(2), types.Integer)},
		},
	}
	upd := exec.NewUpdate(stmt)
	require.NoError(upd.Prepare(ctx, ec))
	ec.ReadOnly = true
	_, _, err := upd.Evaluate(ctx, ec)
	require.Error(err)
}
