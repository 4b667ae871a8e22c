package exec

import (
	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
)

// CreateTableExecutor implements CreateTable executor kind.
type CreateTableExecutor struct {
	Stmt *ast.CreateTableStatement

	exists bool
	schema catalog.Schema
}

func NewCreateTable(stmt *ast.CreateTableStatement) *CreateTableExecutor {
	return &CreateTableExecutor{Stmt: stmt}
}

func (c *CreateTableExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	_, ok, err := ec.DB.Table(ctx, c.Stmt.Table)
	if err != nil {
		return wrap(err, "create table: looking up table")
	}
	c.exists = ok
	if ok && !c.Stmt.IfNotExists {
		return errs.ErrTableExists.New(c.Stmt.Table)
	}

	schema, err := columnsToSchema(c.Stmt.Table, c.Stmt.Columns)
	if err != nil {
		return err
	}
	c.schema = schema
	return nil
}

func (c *CreateTableExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if c.exists && c.Stmt.IfNotExists {
		return ast.EmptyResultSchema(), emptyResult(), nil
	}
	if err := ec.DB.CreateTable(ctx, c.Stmt.Table, c.schema); err != nil {
		return nil, nil, wrap(err, "create table: creating")
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

// columnsToSchema converts the parser's ColumnDef list into a catalog.Schema,
// stamping Source with the owning table name.
func columnsToSchema(table string, cols []ast.ColumnDef) (catalog.Schema, error) {
	if len(cols) == 0 {
		return nil, errs.ErrNoColumns.New()
	}
	seen := map[string]bool{}
	schema := make(catalog.Schema, 0, len(cols))
	for _, c := range cols {
		if seen[c.Name] {
			return nil, errs.ErrColumnExists.New(c.Name)
		}
		seen[c.Name] = true
		col := &catalog.Column{
			Name:       c.Name,
			Type:       c.Type,
			Nullable:   c.Nullable,
			PrimaryKey: c.PrimaryKey,
			Source:     table,
		}
		if c.Default != nil {
			col.Default = exprText(c.Default)
		}
		schema = append(schema, col)
	}
	return schema, nil
}

// exprText renders a default-value expression into catalog.Column.Default's
// raw-text form. Only literal defaults are meaningfully round-tripped through
// types.Convert (see defaultValue in exec/insert.go); anything more elaborate
// is out of scope since parsing a full expression at catalog-load time would
// require the SQL grammar itself.
func exprText(e interface{ String() string }) string {
	return e.String()
}
