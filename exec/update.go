package exec

import (
	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/fromset"
	"github.com/relcore/relcore/plan"
)

// qualifiedAssignment pairs a target column with its RHS expression once
// resolved against the UPDATE statement's single-table from-set.
type qualifiedAssignment struct {
	Column string
	Expr   *expr.Expression
}

// UpdateExecutor implements Update executor kind.
type UpdateExecutor struct {
	Stmt *ast.UpdateStatement

	def         catalog.DataTableDef
	node        plan.Node
	assignments []qualifiedAssignment
}

func NewUpdate(stmt *ast.UpdateStatement) *UpdateExecutor {
	return &UpdateExecutor{Stmt: stmt}
}

// selectAllTSE builds the synthetic "SELECT * FROM t WHERE where_clause" every
// Update/Delete plans against.
func selectAllTSE(table *ast.TableRef, where *expr.Expression) *ast.TableSelectExpression {
	return &ast.TableSelectExpression{
		Columns: []*ast.SelectColumn{{Glob: true}},
		From:    []*ast.FromItem{{Direct: table}},
		Where:   where,
	}
}

func (u *UpdateExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	def, ok, err := ec.DB.Table(ctx, u.Stmt.Table.Table)
	if err != nil {
		return wrap(err, "update: looking up table")
	}
	if !ok {
		return notFound("table", u.Stmt.Table.Table)
	}
	u.def = def

	tse := selectAllTSE(u.Stmt.Table, u.Stmt.Where)
	fs, err := fromset.Build(ctx, tse, ec.DB, nil, ec.CaseSensitive)
	if err != nil {
		return wrap(err, "update: building from-set")
	}
	node, _, err := plan.Build(ctx, tse, fs, ec.DB, ec.Funcs, ec.CaseSensitive)
	if err != nil {
		return wrap(err, "update: building plan")
	}
	u.node = node

	for _, a := range u.Stmt.Assignments {
		if def.Schema().IndexOf(a.Column) < 0 {
			return errs.ErrColumnNotFound.New(a.Column)
		}
		qe, err := fs.Qualify(a.Expr)
		if err != nil {
			return wrap(err, "update: qualifying assignment")
		}
		u.assignments = append(u.assignments, qualifiedAssignment{Column: a.Column, Expr: qe})
	}

	if _, err := collectLinkedTables(ctx, ec, u.def.Name()); err != nil {
		return wrap(err, "update: collecting relationally-linked tables")
	}
	return nil
}

func (u *UpdateExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	for _, a := range u.assignments {
		if err := ec.checkPrivilege(ctx, ec.DB.Name(), u.def.Name(), a.Column, ast.PrivUpdate); err != nil {
			return nil, nil, err
		}
	}

	it, err := u.node.Evaluate(ctx, &plan.QueryContext{Funcs: ec.Funcs})
	if err != nil {
		return nil, nil, wrap(err, "update: evaluating plan")
	}
	schema := u.def.Schema()

	var updated []catalog.Row
	for {
		if u.Stmt.Limit > 0 && len(updated) >= u.Stmt.Limit {
			break
		}
		old, err := it.Next(ctx)
		if err == catalog.ErrIterDone {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		newRow := old.Copy()
		rc := &expr.RowContext{Schema: schema, Row: old, Funcs: ec.Funcs}
		for _, a := range u.assignments {
			idx := schema.IndexOf(a.Column)
			v, err := a.Expr.Eval(ctx, rc)
			if err != nil {
				return nil, nil, wrap(err, "update: evaluating assignment")
			}
			newRow[idx] = v
		}
		if err := u.def.Update(ctx, old, newRow); err != nil {
			return nil, nil, wrap(err, "update: writing row")
		}
		updated = append(updated, newRow)
	}
	it.Close(ctx)

	if len(updated) > 0 {
		if err := ec.notifier().Notify(ctx, u.def.Name(), EventUpdate, updated); err != nil {
			return nil, nil, wrap(err, "update: notifying trigger")
		}
	}
	return rowCountSchema(), rowCountResult(int64(len(updated))), nil
}

// collectLinkedTables gathers every DataTableDef whose foreign keys reference
// tableName. Update only calls it at prepare time; Delete's evaluate reads
// the returned tables as a deliberate read-lock pin (see exec/delete.go), and
// DropTable and ALTER TABLE ... DROP PRIMARY KEY refuse when it is non-empty.
func collectLinkedTables(ctx context.Context, ec *ExecContext, tableName string) ([]catalog.DataTableDef, error) {
	names, err := ec.DB.TableNames(ctx)
	if err != nil {
		return nil, err
	}
	var linked []catalog.DataTableDef
	for _, name := range names {
		def, ok, err := ec.DB.Table(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, fk := range def.ForeignKeys() {
			if fk.RefTable == tableName {
				linked = append(linked, def)
				break
			}
		}
	}
	return linked, nil
}
