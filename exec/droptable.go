package exec

import (
	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
)

// DropTableExecutor implements DropTable executor kind.
type DropTableExecutor struct {
	Stmt *ast.DropTableStatement

	exists bool
}

func NewDropTable(stmt *ast.DropTableStatement) *DropTableExecutor {
	return &DropTableExecutor{Stmt: stmt}
}

func (d *DropTableExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	_, ok, err := ec.DB.Table(ctx, d.Stmt.Table)
	if err != nil {
		return wrap(err, "drop table: looking up table")
	}
	d.exists = ok
	if !ok && !d.Stmt.IfExists {
		return notFound("table", d.Stmt.Table)
	}
	return nil
}

func (d *DropTableExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if !d.exists {
		return ast.EmptyResultSchema(), emptyResult(), nil
	}
	linked, err := collectLinkedTables(ctx, ec, d.Stmt.Table)
	if err != nil {
		return nil, nil, wrap(err, "drop table: checking references")
	}
	if len(linked) > 0 {
		return nil, nil, errs.ErrDropTableViolation.New(d.Stmt.Table, linked[0].Name())
	}
	if err := ec.DB.DropTable(ctx, d.Stmt.Table); err != nil {
		return nil, nil, wrap(err, "drop table: dropping")
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}
