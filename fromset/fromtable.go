// Package fromset is component B: it maps names, aliases, globs
// and correlated references to concrete columns across a sub-query hierarchy.
//
// Grounded directly on sql/analyzer's scope-resolution shape (no go-mysql-server
// source for it survived retrieval; its test files, e.g.
// resolve_orderby_test.go, fix the ambiguity-error and per-source-match
// vocabulary this package follows).
package fromset

import (
	"context"
	"fmt"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/expr"
)

// FromTable is the polymorphic FROM-clause source capability.
type FromTable interface {
	ID() string
	Matches(schema, table string) bool
	ResolveColumnCount(qualifier, column string) int
	ResolveColumn(qualifier, column string) (*expr.Variable, error)
	AllColumns() []*expr.Variable
}

// DirectTable is a direct schema.table[ alias ] FROM entry.
type DirectTable struct {
	Schema string
	Table  string
	Alias  string
	Def    catalog.DataTableDef
}

func NewDirectTable(schema, table, alias string, def catalog.DataTableDef) *DirectTable {
	return &DirectTable{Schema: schema, Table: table, Alias: alias, Def: def}
}

func (d *DirectTable) ID() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.Table
}

func (d *DirectTable) Matches(schema, table string) bool {
	if table != d.ID() && table != d.Table {
		return false
	}
	if schema != "" && schema != d.Schema {
		return false
	}
	return true
}

func (d *DirectTable) ResolveColumnCount(qualifier, column string) int {
	if qualifier != "" && !d.Matches("", qualifier) {
		return 0
	}
	count := 0
	for _, c := range d.Def.Schema() {
		if c.Name == column {
			count++
		}
	}
	return count
}

func (d *DirectTable) ResolveColumn(qualifier, column string) (*expr.Variable, error) {
	if qualifier != "" && !d.Matches("", qualifier) {
		return nil, nil
	}
	for _, c := range d.Def.Schema() {
		if c.Name == column {
			return &expr.Variable{Schema: d.Schema, Table: d.ID(), Column: column, Resolved: true}, nil
		}
	}
	return nil, nil
}

func (d *DirectTable) AllColumns() []*expr.Variable {
	out := make([]*expr.Variable, 0, len(d.Def.Schema()))
	for _, c := range d.Def.Schema() {
		out = append(out, &expr.Variable{Schema: d.Schema, Table: d.ID(), Column: c.Name, Resolved: true})
	}
	return out
}

// SubqueryTable wraps a nested TableSelectExpression's own from-set, exposed
// under an alias as a single FROM source.
type SubqueryTable struct {
	Alias string
	Inner *FromSet
}

func (s *SubqueryTable) ID() string { return s.Alias }

func (s *SubqueryTable) Matches(schema, table string) bool {
	return schema == "" && table == s.Alias
}

func (s *SubqueryTable) ResolveColumnCount(qualifier, column string) int {
	if qualifier != "" && qualifier != s.Alias {
		return 0
	}
	count := 0
	for _, v := range s.Inner.Exposed {
		if v.Column == column {
			count++
		}
	}
	return count
}

func (s *SubqueryTable) ResolveColumn(qualifier, column string) (*expr.Variable, error) {
	if qualifier != "" && qualifier != s.Alias {
		return nil, nil
	}
	for _, v := range s.Inner.Exposed {
		if v.Column == column {
			return &expr.Variable{Schema: "", Table: s.Alias, Column: column, Resolved: true}, nil
		}
	}
	return nil, nil
}

func (s *SubqueryTable) AllColumns() []*expr.Variable {
	out := make([]*expr.Variable, 0, len(s.Inner.Exposed))
	for _, v := range s.Inner.Exposed {
		out = append(out, &expr.Variable{Schema: "", Table: s.Alias, Column: v.Column, Resolved: true})
	}
	return out
}

// FuncAlias is a name -> expression alias exposed by the SELECT list, resolvable
// unqualified only.
type FuncAlias struct {
	Name string
	Expr *expr.Expression
}

// FromSet is the scoped naming environment of one SELECT.
type FromSet struct {
	Sources       []FromTable
	FuncAliases   []FuncAlias
	Exposed       []*expr.Variable
	CaseSensitive bool
	Parent        *FromSet
}

// Database resolves schema-qualified table lookups; the catalog's named
// external collaborator.
type Database interface {
	Table(ctx context.Context, name string) (catalog.DataTableDef, bool, error)
}

// Build constructs the FromSet for tse: one FromTable per FROM entry (direct or
// recursively-built sub-query), then exposes every SELECT-list output variable.
func Build(ctx context.Context, tse *ast.TableSelectExpression, db Database, parent *FromSet, caseSensitive bool) (*FromSet, error) {
	fs := &FromSet{CaseSensitive: caseSensitive, Parent: parent}

	for _, item := range tse.From {
		if item.Subquery != nil {
			inner, err := Build(ctx, item.Subquery, db, fs, caseSensitive)
			if err != nil {
				return nil, err
			}
			alias := item.Alias
			if alias == "" {
				return nil, errs.ErrStatement.New("sub-query in FROM clause requires an alias")
			}
			fs.Sources = append(fs.Sources, &SubqueryTable{Alias: alias, Inner: inner})
		} else {
			def, ok, err := db.Table(ctx, item.Direct.Table)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errs.ErrTableNotFound.New(item.Direct.Table)
			}
			alias := item.Alias
			if alias == "" {
				alias = item.Direct.Alias
			}
			fs.Sources = append(fs.Sources, NewDirectTable(item.Direct.Schema, item.Direct.Table, alias, def))
		}
	}

	if err := expose(fs, tse); err != nil {
		return nil, err
	}

	return fs, nil
}

// expose builds the Exposed list: a glob `*` exposes
// every column of every source in order; `T.*` exposes every column of the one
// source whose unique name matches T; a plain expression exposes one variable
// named by its alias if given, else by its variable, else by its textual form.
func expose(fs *FromSet, tse *ast.TableSelectExpression) error {
	for _, col := range tse.Columns {
		if col.Glob {
			if col.GlobTable == "" {
				for _, src := range fs.Sources {
					fs.Exposed = append(fs.Exposed, src.AllColumns()...)
				}
				continue
			}
			found := false
			for _, src := range fs.Sources {
				if src.Matches("", col.GlobTable) {
					fs.Exposed = append(fs.Exposed, src.AllColumns()...)
					found = true
					break
				}
			}
			if !found {
				return errs.ErrTableNotFound.New(col.GlobTable)
			}
			continue
		}

		name := col.Alias
		if name == "" {
			if v, ok := col.Expr.IsSingleVariable(); ok {
				name = v.Column
			} else {
				name = exprText(col.Expr)
			}
		}
		fs.Exposed = append(fs.Exposed, &expr.Variable{Column: name})
	}
	return nil
}

// exprText is the "textual form" fallback naming rule: it names the column
// after the expression's address ("expr#0x..."), unique per expression object
// but not a rendering of its SQL.
func exprText(e *expr.Expression) string {
	return fmt.Sprintf("expr#%p", e)
}

// resolveLocal checks the function aliases (unqualified references only) and
// the table sources, erroring on ambiguity, including a name that matches both
// an alias and a table column.
func (fs *FromSet) resolveLocal(qualifier, column string) (*expr.Variable, error) {
	var fromAlias *expr.Variable
	if qualifier == "" {
		matches := 0
		for _, fa := range fs.FuncAliases {
			if fa.Name == column {
				matches++
				fromAlias = &expr.Variable{Column: column}
			}
		}
		if matches > 1 {
			return nil, errs.ErrAmbiguousColumn.New(column)
		}
	}

	var fromTables *expr.Variable
	tableMatches := 0
	for _, src := range fs.Sources {
		switch src.ResolveColumnCount(qualifier, column) {
		case 0:
			continue
		case 1:
			v, err := src.ResolveColumn(qualifier, column)
			if err != nil {
				return nil, err
			}
			fromTables = v
			tableMatches++
		default:
			return nil, errs.ErrAmbiguousColumn.New(column)
		}
	}
	if tableMatches > 1 {
		return nil, errs.ErrAmbiguousColumn.New(column)
	}

	total := 0
	var result *expr.Variable
	if fromAlias != nil {
		total++
		result = fromAlias
	}
	if fromTables != nil {
		total++
		result = fromTables
	}
	switch {
	case total == 0:
		return nil, nil
	case total == 1:
		return result, nil
	default:
		return nil, errs.ErrAmbiguousColumn.New(column)
	}
}

// Resolve resolves locally first; if
// null and a parent exists, recurse with level incremented and wrap the result in
// a CorrelatedVariable; if null everywhere, raise "reference not found".
func (fs *FromSet) Resolve(qualifier, column string) (*expr.Variable, *expr.CorrelatedVariable, error) {
	v, err := fs.resolveLocal(qualifier, column)
	if err != nil {
		return nil, nil, err
	}
	if v != nil {
		return v, nil, nil
	}
	if fs.Parent == nil {
		return nil, nil, errs.ErrColumnNotFound.New(column)
	}
	pv, pcv, err := fs.Parent.Resolve(qualifier, column)
	if err != nil {
		return nil, nil, err
	}
	level := 1
	if pcv != nil {
		level = pcv.Level + 1
		pv = pcv.Variable
	}
	return nil, &expr.CorrelatedVariable{Variable: pv, Level: level}, nil
}

// Preparer returns the universal qualifier transform used to bind names in
// WHERE, HAVING, ORDER BY, GROUP BY, JOIN ON and column expressions. It recognizes Variable elements and replaces each
// with either a canonical Variable or a CorrelatedVariable.
func (fs *FromSet) Preparer() expr.Transform {
	return expr.Transform{
		CanPrepare: func(el expr.Element) bool { return el.Kind == expr.ElemVariable },
		Prepare: func(el expr.Element) (expr.Element, error) {
			v, cv, err := fs.Resolve(el.Var.Table, el.Var.Column)
			if err != nil {
				return expr.Element{}, err
			}
			if cv != nil {
				return expr.CorrelatedElement(cv), nil
			}
			return expr.VariableElement(v), nil
		},
	}
}

// Qualify runs e through fs's Preparer, returning the bound expression. A nil e returns nil unchanged (WHERE/HAVING are optional).
func (fs *FromSet) Qualify(e *expr.Expression) (*expr.Expression, error) {
	if e == nil {
		return nil, nil
	}
	return e.WalkPrepare(fs.Preparer())
}
