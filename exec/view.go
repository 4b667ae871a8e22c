package exec

import (
	"context"
	"sync"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
)

// ViewRegistry holds view definitions by name. A view is never materialized:
// it is re-prepared against its backing select each time it is referenced, so
// this registry stores only the parsed select and its column aliases, not
// rows.
type ViewRegistry struct {
	mu    sync.RWMutex
	views map[string]*viewDef
}

type viewDef struct {
	Columns []string
	Select  *ast.TableSelectExpression
}

func NewViewRegistry() *ViewRegistry {
	return &ViewRegistry{views: map[string]*viewDef{}}
}

func (r *ViewRegistry) Lookup(name string) (*ast.TableSelectExpression, []string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[name]
	if !ok {
		return nil, nil, false
	}
	return v.Select, v.Columns, true
}

func (r *ViewRegistry) set(name string, v *viewDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[name] = v
}

func (r *ViewRegistry) exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.views[name]
	return ok
}

func (r *ViewRegistry) drop(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.views[name]; !ok {
		return false
	}
	delete(r.views, name)
	return true
}

// CreateViewExecutor implements the View executor kind's CREATE form.
type CreateViewExecutor struct {
	Stmt *ast.CreateViewStatement
}

func NewCreateView(stmt *ast.CreateViewStatement) *CreateViewExecutor {
	return &CreateViewExecutor{Stmt: stmt}
}

func (c *CreateViewExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	if ec.Views.exists(c.Stmt.Name) && !c.Stmt.OrReplace {
		return errs.ErrDatabase.New("view already exists: " + c.Stmt.Name)
	}
	sel := NewSelect(c.Stmt.Select)
	if err := sel.Prepare(ctx, ec); err != nil {
		return wrap(err, "create view: preparing backing select")
	}
	return nil
}

func (c *CreateViewExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	ec.Views.set(c.Stmt.Name, &viewDef{Columns: c.Stmt.Columns, Select: c.Stmt.Select})
	return ast.EmptyResultSchema(), emptyResult(), nil
}

// DropViewExecutor implements the View executor kind's DROP form.
type DropViewExecutor struct {
	Stmt   *ast.DropViewStatement
	exists bool
}

func NewDropView(stmt *ast.DropViewStatement) *DropViewExecutor {
	return &DropViewExecutor{Stmt: stmt}
}

func (d *DropViewExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	d.exists = ec.Views.exists(d.Stmt.Name)
	if !d.exists && !d.Stmt.IfExists {
		return errs.ErrViewNotFound.New(d.Stmt.Name)
	}
	return nil
}

func (d *DropViewExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	ec.Views.drop(d.Stmt.Name)
	return ast.EmptyResultSchema(), emptyResult(), nil
}

// ViewSelectExecutor implements a SELECT that references a view: it
// re-prepares the view's backing select against the current catalog every
// time, so schema/data drift in the underlying table is always reflected.
type ViewSelectExecutor struct {
	Name string

	inner *SelectExecutor
}

func NewViewSelect(name string) *ViewSelectExecutor { return &ViewSelectExecutor{Name: name} }

func (v *ViewSelectExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	tse, _, ok := ec.Views.Lookup(v.Name)
	if !ok {
		return errs.ErrViewNotFound.New(v.Name)
	}
	inner := NewSelect(tse)
	if err := inner.Prepare(ctx, ec); err != nil {
		return wrap(err, "view select: preparing backing select")
	}
	v.inner = inner
	return nil
}

func (v *ViewSelectExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	return v.inner.Evaluate(ctx, ec)
}
