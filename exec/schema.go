package exec

import (
	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
)

// CreateSchemaExecutor / DropSchemaExecutor implement Schema
// executor kind.
type CreateSchemaExecutor struct {
	Stmt   *ast.CreateSchemaStatement
	exists bool
}

func NewCreateSchema(stmt *ast.CreateSchemaStatement) *CreateSchemaExecutor {
	return &CreateSchemaExecutor{Stmt: stmt}
}

func (c *CreateSchemaExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	_, ok, err := ec.Provider.Database(ctx, c.Stmt.Name)
	if err != nil {
		return wrap(err, "create schema: looking up schema")
	}
	c.exists = ok
	if ok && !c.Stmt.IfNotExists {
		return errs.ErrDatabase.New("schema already exists: " + c.Stmt.Name)
	}
	return nil
}

func (c *CreateSchemaExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if c.exists && c.Stmt.IfNotExists {
		return ast.EmptyResultSchema(), emptyResult(), nil
	}
	if err := ec.Provider.CreateDatabase(ctx, c.Stmt.Name); err != nil {
		return nil, nil, wrap(err, "create schema: creating")
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

type DropSchemaExecutor struct {
	Stmt   *ast.DropSchemaStatement
	exists bool
}

func NewDropSchema(stmt *ast.DropSchemaStatement) *DropSchemaExecutor {
	return &DropSchemaExecutor{Stmt: stmt}
}

func (d *DropSchemaExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	_, ok, err := ec.Provider.Database(ctx, d.Stmt.Name)
	if err != nil {
		return wrap(err, "drop schema: looking up schema")
	}
	d.exists = ok
	if !ok && !d.Stmt.IfExists {
		return notFound("schema", d.Stmt.Name)
	}
	return nil
}

func (d *DropSchemaExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if !d.exists {
		return ast.EmptyResultSchema(), emptyResult(), nil
	}
	if err := ec.Provider.DropDatabase(ctx, d.Stmt.Name); err != nil {
		return nil, nil, wrap(err, "drop schema: dropping")
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}
