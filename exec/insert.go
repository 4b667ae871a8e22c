package exec

import (
	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/types"
)

// InsertExecutor implements Insert executor kind: VALUES, FROM
// SELECT, and SET modes, validated at prepare time and applied row-by-row at
// evaluate time, firing the INSERT trigger event on a non-zero row count.
type InsertExecutor struct {
	Stmt *ast.InsertStatement

	def     catalog.DataTableDef
	columns []string // explicit or schema-order column list
	fromSelect *SelectExecutor
}

func NewInsert(stmt *ast.InsertStatement) *InsertExecutor {
	return &InsertExecutor{Stmt: stmt}
}

func (ins *InsertExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	def, ok, err := ec.DB.Table(ctx, ins.Stmt.Table.Table)
	if err != nil {
		return wrap(err, "insert: looking up table")
	}
	if !ok {
		return notFound("table", ins.Stmt.Table.Table)
	}
	ins.def = def

	columns := ins.Stmt.Columns
	if len(columns) == 0 {
		for _, c := range def.Schema() {
			columns = append(columns, c.Name)
		}
	}
	for _, name := range columns {
		if def.Schema().IndexOf(name) < 0 {
			return errs.ErrColumnNotFound.New(name)
		}
	}
	ins.columns = columns

	switch ins.Stmt.Mode {
	case ast.InsertValues:
		for _, row := range ins.Stmt.Values {
			if len(row) != len(columns) {
				return errs.ErrStatement.New("INSERT value count does not match column count")
			}
			for _, e := range row {
				if e.HasSubquery() {
					return errs.ErrSubqueryInColumns.New()
				}
			}
		}
	case ast.InsertFromSelect:
		sel := NewSelect(ins.Stmt.Select)
		if err := sel.Prepare(ctx, ec); err != nil {
			return wrap(err, "insert: preparing FROM SELECT")
		}
		ins.fromSelect = sel
	case ast.InsertSet:
		for _, a := range ins.Stmt.Set {
			if def.Schema().IndexOf(a.Column) < 0 {
				return errs.ErrColumnNotFound.New(a.Column)
			}
			if a.Expr.HasSubquery() {
				return errs.ErrSubqueryInColumns.New()
			}
		}
	}
	return nil
}

func (ins *InsertExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if err := ec.checkPrivilege(ctx, ec.DB.Name(), ins.Stmt.Table.Table, "", ast.PrivInsert); err != nil {
		return nil, nil, err
	}

	var rows []catalog.Row
	switch ins.Stmt.Mode {
	case ast.InsertValues:
		for _, values := range ins.Stmt.Values {
			row, err := ins.buildRow(ctx, ec, ins.columns, values)
			if err != nil {
				return nil, nil, err
			}
			rows = append(rows, row)
		}
	case ast.InsertFromSelect:
		_, it, err := ins.fromSelect.Evaluate(ctx, ec)
		if err != nil {
			return nil, nil, err
		}
		for {
			src, err := it.Next(ctx)
			if err == catalog.ErrIterDone {
				break
			}
			if err != nil {
				return nil, nil, err
			}
			row, err := ins.copyRow(src)
			if err != nil {
				return nil, nil, err
			}
			rows = append(rows, row)
		}
	case ast.InsertSet:
		row, err := ins.buildRowFromAssignments(ctx, ec, ins.Stmt.Set)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}

	for _, row := range rows {
		if err := ins.def.Insert(ctx, row); err != nil {
			return nil, nil, wrap(err, "insert: writing row")
		}
	}
	if len(rows) > 0 {
		if err := ec.notifier().Notify(ctx, ins.def.Name(), EventInsert, rows); err != nil {
			return nil, nil, wrap(err, "insert: notifying trigger")
		}
	}
	return rowCountSchema(), rowCountResult(int64(len(rows))), nil
}

// buildRow constructs one physical row, positionally filling named columns
// from values and applying schema defaults to every unspecified column.
func (ins *InsertExecutor) buildRow(ctx context.Context, ec *ExecContext, columns []string, values []*expr.Expression) (catalog.Row, error) {
	schema := ins.def.Schema()
	row := make(catalog.Row, len(schema))
	set := make([]bool, len(schema))
	rc := &expr.RowContext{Funcs: ec.Funcs}
	for i, name := range columns {
		idx := schema.IndexOf(name)
		v, err := values[i].Eval(ctx, rc)
		if err != nil {
			return nil, wrap(err, "insert: evaluating value")
		}
		row[idx] = v
		set[idx] = true
	}
	return fillDefaults(schema, row, set)
}

func (ins *InsertExecutor) buildRowFromAssignments(ctx context.Context, ec *ExecContext, set []ast.Assignment) (catalog.Row, error) {
	schema := ins.def.Schema()
	row := make(catalog.Row, len(schema))
	seen := make([]bool, len(schema))
	rc := &expr.RowContext{Funcs: ec.Funcs}
	for _, a := range set {
		idx := schema.IndexOf(a.Column)
		v, err := a.Expr.Eval(ctx, rc)
		if err != nil {
			return nil, wrap(err, "insert: evaluating SET assignment")
		}
		row[idx] = v
		seen[idx] = true
	}
	return fillDefaults(schema, row, seen)
}

// copyRow copies a FROM SELECT result row into ins.columns' target positions,
// applying defaults to every column not covered by the select list.
func (ins *InsertExecutor) copyRow(src catalog.Row) (catalog.Row, error) {
	schema := ins.def.Schema()
	row := make(catalog.Row, len(schema))
	set := make([]bool, len(schema))
	for i, name := range ins.columns {
		idx := schema.IndexOf(name)
		row[idx] = src[i]
		set[idx] = true
	}
	return fillDefaults(schema, row, set)
}

func fillDefaults(schema catalog.Schema, row catalog.Row, set []bool) (catalog.Row, error) {
	for i, c := range schema {
		if set[i] {
			continue
		}
		v, err := defaultValue(c)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// defaultValue applies a column's raw default expression text (if any), or
// its type's zero value, to an unspecified column. Parsing a full default
// expression is out of scope; a default is read as a literal coercible by
// types.Convert.
func defaultValue(c *catalog.Column) (interface{}, error) {
	if c.Default != "" {
		if v, err := types.Convert(c.Type, c.Default); err == nil {
			return v, nil
		}
	}
	if c.Nullable {
		return nil, nil
	}
	return types.Zero(c.Type), nil
}
