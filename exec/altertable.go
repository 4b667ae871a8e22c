package exec

import (
	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
)

// AlterTableExecutor implements AlterTable executor kind: the
// legacy full-definition form and the explicit-actions form. Both ultimately
// rebuild the table under a new schema (catalog.Database.CreateTable takes no
// separate constraint argument, so constraint bookkeeping beyond PRIMARY KEY
// participation is validated here but otherwise left to the catalog that
// constructs the new DataTableDef — the storage engine's own concern);
// existing rows are migrated column-by-name, with catalog defaults
// applied to any newly added column.
type AlterTableExecutor struct {
	Stmt *ast.AlterTableStatement

	def       catalog.DataTableDef
	newSchema catalog.Schema
}

func NewAlterTable(stmt *ast.AlterTableStatement) *AlterTableExecutor {
	return &AlterTableExecutor{Stmt: stmt}
}

func (a *AlterTableExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	def, ok, err := ec.DB.Table(ctx, a.Stmt.Table)
	if err != nil {
		return wrap(err, "alter table: looking up table")
	}
	if !ok {
		return notFound("table", a.Stmt.Table)
	}
	a.def = def

	if a.Stmt.Legacy != nil {
		schema, err := columnsToSchema(a.Stmt.Table, a.Stmt.Legacy.Columns)
		if err != nil {
			return err
		}
		a.newSchema = schema
		return nil
	}

	schema := cloneSchema(def.Schema())
	for _, act := range a.Stmt.Actions {
		schema, err = a.applyAction(ctx, ec, schema, act)
		if err != nil {
			return err
		}
	}
	a.newSchema = schema
	return nil
}

func cloneSchema(schema catalog.Schema) catalog.Schema {
	out := make(catalog.Schema, len(schema))
	for i, c := range schema {
		cp := *c
		out[i] = &cp
	}
	return out
}

func (a *AlterTableExecutor) applyAction(ctx context.Context, ec *ExecContext, schema catalog.Schema, act ast.AlterAction) (catalog.Schema, error) {
	switch act.Kind {
	case ast.AlterSet:
		idx := schema.IndexOf(act.Column)
		if idx < 0 {
			return nil, errs.ErrColumnNotFound.New(act.Column)
		}
		if act.Default != nil {
			schema[idx].Default = exprText(act.Default)
		}
		return schema, nil

	case ast.AlterDropDefault:
		idx := schema.IndexOf(act.Column)
		if idx < 0 {
			return nil, errs.ErrColumnNotFound.New(act.Column)
		}
		schema[idx].Default = ""
		return schema, nil

	case ast.AlterDropColumn:
		idx := schema.IndexOf(act.Column)
		if idx < 0 {
			return nil, errs.ErrColumnNotFound.New(act.Column)
		}
		if name, ok := a.columnConstrained(act.Column); ok {
			return nil, errs.ErrDropColumnViolation.New(act.Column, name)
		}
		return append(schema[:idx:idx], schema[idx+1:]...), nil

	case ast.AlterAddColumn:
		if act.ColumnDef == nil {
			return nil, errs.ErrStatement.New("ADD COLUMN requires a column definition")
		}
		if schema.IndexOf(act.ColumnDef.Name) >= 0 {
			return nil, errs.ErrColumnExists.New(act.ColumnDef.Name)
		}
		col := &catalog.Column{
			Name:       act.ColumnDef.Name,
			Type:       act.ColumnDef.Type,
			Nullable:   act.ColumnDef.Nullable,
			PrimaryKey: act.ColumnDef.PrimaryKey,
			Source:     a.Stmt.Table,
		}
		if act.ColumnDef.Default != nil {
			col.Default = exprText(act.ColumnDef.Default)
		}
		return append(schema, col), nil

	case ast.AlterDropConstraint:
		if !a.constraintExists(act.Name) {
			return nil, errs.ErrDatabase.New("constraint not found: " + act.Name)
		}
		return schema, nil

	case ast.AlterDropConstraintPrimaryKey:
		if len(a.def.PrimaryKey()) == 0 {
			return nil, errs.ErrDatabase.New("table has no primary key")
		}
		linked, err := collectLinkedTables(ctx, ec, a.def.Name())
		if err != nil {
			return nil, wrap(err, "alter table: checking references")
		}
		if len(linked) > 0 {
			return nil, errs.ErrDropTableViolation.New(a.Stmt.Table, linked[0].Name())
		}
		return schema, nil

	case ast.AlterAddConstraint:
		if act.Constraint == nil {
			return nil, errs.ErrStatement.New("ADD CONSTRAINT requires a constraint definition")
		}
		for _, col := range act.Constraint.Columns {
			if schema.IndexOf(col) < 0 {
				return nil, errs.ErrColumnNotFound.New(col)
			}
		}
		return schema, nil
	}
	return schema, nil
}

// columnConstrained reports whether column participates in the table's
// primary key, a unique group, or a foreign key, and names the constraint
// that does.
func (a *AlterTableExecutor) columnConstrained(column string) (string, bool) {
	for _, pk := range a.def.PrimaryKey() {
		if pk == column {
			return "PRIMARY KEY", true
		}
	}
	for _, group := range a.def.UniqueGroups() {
		for _, c := range group {
			if c == column {
				return "UNIQUE", true
			}
		}
	}
	for _, fk := range a.def.ForeignKeys() {
		for _, c := range fk.Columns {
			if c == column {
				return fk.Name, true
			}
		}
	}
	return "", false
}

func (a *AlterTableExecutor) constraintExists(name string) bool {
	for _, fk := range a.def.ForeignKeys() {
		if fk.Name == name {
			return true
		}
	}
	for _, c := range a.def.Checks() {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (a *AlterTableExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}

	oldSchema := a.def.Schema()
	rows, err := readAllRows(ctx, a.def)
	if err != nil {
		return nil, nil, wrap(err, "alter table: reading existing rows")
	}

	migrated := make([]catalog.Row, 0, len(rows))
	for _, old := range rows {
		newRow := make(catalog.Row, len(a.newSchema))
		for i, c := range a.newSchema {
			if oldIdx := oldSchema.IndexOf(c.Name); oldIdx >= 0 {
				newRow[i] = old[oldIdx]
				continue
			}
			v, err := defaultValue(c)
			if err != nil {
				return nil, nil, err
			}
			newRow[i] = v
		}
		migrated = append(migrated, newRow)
	}

	if err := ec.DB.DropTable(ctx, a.Stmt.Table); err != nil {
		return nil, nil, wrap(err, "alter table: dropping old definition")
	}
	if err := ec.DB.CreateTable(ctx, a.Stmt.Table, a.newSchema); err != nil {
		return nil, nil, wrap(err, "alter table: creating new definition")
	}
	newDef, ok, err := ec.DB.Table(ctx, a.Stmt.Table)
	if err != nil {
		return nil, nil, wrap(err, "alter table: looking up new definition")
	}
	if !ok {
		return nil, nil, notFound("table", a.Stmt.Table)
	}
	for _, row := range migrated {
		if err := newDef.Insert(ctx, row); err != nil {
			return nil, nil, wrap(err, "alter table: migrating row")
		}
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

// readAllRows drains every partition of a table into memory (used by
// AlterTable's rebuild and available to any executor needing a full scan
// outside the planner).
func readAllRows(ctx context.Context, t catalog.Table) ([]catalog.Row, error) {
	parts, err := t.Partitions(ctx)
	if err != nil {
		return nil, err
	}
	defer parts.Close(ctx)
	var rows []catalog.Row
	for {
		p, err := parts.Next(ctx)
		if err == catalog.ErrIterDone {
			break
		}
		if err != nil {
			return nil, err
		}
		it, err := t.PartitionRows(ctx, p)
		if err != nil {
			return nil, err
		}
		for {
			row, err := it.Next(ctx)
			if err == catalog.ErrIterDone {
				break
			}
			if err != nil {
				it.Close(ctx)
				return nil, err
			}
			rows = append(rows, row)
		}
		it.Close(ctx)
	}
	return rows, nil
}
