package exec

import (
	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/fromset"
	"github.com/relcore/relcore/plan"
)

// DeleteExecutor implements Delete executor kind.
type DeleteExecutor struct {
	Stmt *ast.DeleteStatement

	def    catalog.DataTableDef
	node   plan.Node
	linked []catalog.DataTableDef
}

func NewDelete(stmt *ast.DeleteStatement) *DeleteExecutor {
	return &DeleteExecutor{Stmt: stmt}
}

func (d *DeleteExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	def, ok, err := ec.DB.Table(ctx, d.Stmt.Table.Table)
	if err != nil {
		return wrap(err, "delete: looking up table")
	}
	if !ok {
		return notFound("table", d.Stmt.Table.Table)
	}
	d.def = def

	tse := selectAllTSE(d.Stmt.Table, d.Stmt.Where)
	fs, err := fromset.Build(ctx, tse, ec.DB, nil, ec.CaseSensitive)
	if err != nil {
		return wrap(err, "delete: building from-set")
	}
	node, _, err := plan.Build(ctx, tse, fs, ec.DB, ec.Funcs, ec.CaseSensitive)
	if err != nil {
		return wrap(err, "delete: building plan")
	}
	d.node = node

	linked, err := collectLinkedTables(ctx, ec, d.def.Name())
	if err != nil {
		return wrap(err, "delete: collecting relationally-linked tables")
	}
	d.linked = linked
	return nil
}

// pinLinkedTables reads every relationally-linked table in full before the
// delete itself runs, a read-lock side effect pinning their partitions for
// the duration of the statement (see exec/update.go's collectLinkedTables).
func (d *DeleteExecutor) pinLinkedTables(ctx context.Context) error {
	for _, linked := range d.linked {
		parts, err := linked.Partitions(ctx)
		if err != nil {
			return err
		}
		for {
			p, err := parts.Next(ctx)
			if err == catalog.ErrIterDone {
				break
			}
			if err != nil {
				parts.Close(ctx)
				return err
			}
			it, err := linked.PartitionRows(ctx, p)
			if err != nil {
				parts.Close(ctx)
				return err
			}
			for {
				_, err := it.Next(ctx)
				if err == catalog.ErrIterDone {
					break
				}
				if err != nil {
					it.Close(ctx)
					parts.Close(ctx)
					return err
				}
			}
			it.Close(ctx)
		}
		parts.Close(ctx)
	}
	return nil
}

func (d *DeleteExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if err := ec.checkPrivilege(ctx, ec.DB.Name(), d.def.Name(), "", ast.PrivDelete); err != nil {
		return nil, nil, err
	}
	if err := d.pinLinkedTables(ctx); err != nil {
		return nil, nil, wrap(err, "delete: reading relationally-linked tables")
	}

	it, err := d.node.Evaluate(ctx, &plan.QueryContext{Funcs: ec.Funcs})
	if err != nil {
		return nil, nil, wrap(err, "delete: evaluating plan")
	}

	var removed []catalog.Row
	for {
		if d.Stmt.Limit > 0 && len(removed) >= d.Stmt.Limit {
			break
		}
		row, err := it.Next(ctx)
		if err == catalog.ErrIterDone {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if err := d.def.Delete(ctx, row); err != nil {
			return nil, nil, wrap(err, "delete: removing row")
		}
		removed = append(removed, row)
	}
	it.Close(ctx)

	if len(removed) > 0 {
		if err := ec.notifier().Notify(ctx, d.def.Name(), EventDelete, removed); err != nil {
			return nil, nil, wrap(err, "delete: notifying trigger")
		}
	}
	return rowCountSchema(), rowCountResult(int64(len(removed))), nil
}
