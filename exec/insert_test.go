package exec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/exec"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/plan"
	"github.com/relcore/relcore/types"
)

func newECWith(db *fakeDatabase) *exec.ExecContext {
	return &exec.ExecContext{
		DB:            db,
		Funcs:         plan.NewDefaultFunctionRegistry(),
		CaseSensitive: true,
	}
}

func TestInsertValuesWritesRow(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newFakeDatabase()
	require.NoError(db.CreateTable(ctx, "widgets", catalog.Schema{
		{Name: "id", Type: types.Integer},
		{Name: "name", Type: types.Varchar(20)},
	}))
	ec := newECWith(db)

	stmt := &ast.InsertStatement{
		Table: &ast.TableRef{Table: "widgets"},
		Mode:  ast.InsertValues,
		Values: [][]*expr.Expression{
			{expr.Literal(int64(1), types.Integer), expr.Literal("bolt", types.Varchar(20))},
		},
	}
	ins := exec.NewInsert(stmt)
	require.NoError(ins.Prepare(ctx, ec))

	schema, it, err := ins.Evaluate(ctx, ec)
	require.NoError(err)
	require.Equal("ROWCOUNT", schema[0].Name)
	row, err := it.Next(ctx)
	require.NoError(err)
	require.Equal(int64(1), row[0])

	require.Len(db.tables["widgets"].rows, 1)
	require.Equal(int64(1), db.tables["widgets"].rows[0][0])
	require.Equal("bolt", db.tables["widgets"].rows[0][1])
}

func TestInsertRejectsColumnCountMismatch(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newFakeDatabase()
	require.NoError(db.CreateTable(ctx, "widgets", catalog.Schema{
		{Name: "id", Type: types.Integer},
		{Name: "name", Type: types.Varchar(20)},
	}))
	ec := newECWith(db)

	stmt := &ast.InsertStatement{
		Table: &ast.TableRef{Table: "widgets"},
		Mode:  ast.InsertValues,
		Values: [][]*expr.Expression{
			{expr.Literal(int64(1), types.Integer)},
		},
	}
	ins := exec.NewInsert(stmt)
	require.Error(ins.Prepare(ctx, ec))
}

func TestInsertRejectsOnReadOnly(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newFakeDatabase()
	require.NoError(db.CreateTable(ctx, "widgets", catalog.Schema{{Name: "id", Type: types.Integer}}))
	ec := newECWith(db)
	ec.ReadOnly = true

	stmt := &ast.InsertStatement{
		Table:  &ast.TableRef{Table: "widgets"},
		Mode:   ast.InsertValues,
		Values: [][]*expr.Expression{{expr.Literal(int64(1), types.Integer)}},
	}
	ins := exec.NewInsert(stmt)
	require.NoError(ins.Prepare(ctx, ec))
	_, _, err := ins.Evaluate(ctx, ec)
	require.Error(err)
}
