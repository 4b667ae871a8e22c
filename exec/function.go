package exec

import (
	"sync"

	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
)

// functionDef is one stored procedure's definition: its positional parameter
// names and body. Invocation plumbing is out of scope; this
// registry only stores the definition for the out-of-scope catalog to invoke.
type functionDef struct {
	Params []string
	Body   *ast.StatementTree
}

// FunctionRegistry holds procedure definitions by name (
// "Function (procedure)" executor kind).
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]*functionDef
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: map[string]*functionDef{}}
}

// Lookup returns a procedure's definition, the seam the out-of-scope catalog
// uses to invoke it.
func (r *FunctionRegistry) Lookup(name string) ([]string, *ast.StatementTree, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.functions[name]
	if !ok {
		return nil, nil, false
	}
	return f.Params, f.Body, true
}

func (r *FunctionRegistry) exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[name]
	return ok
}

func (r *FunctionRegistry) set(name string, d *functionDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[name] = d
}

func (r *FunctionRegistry) drop(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.functions[name]; !ok {
		return false
	}
	delete(r.functions, name)
	return true
}

// CreateFunctionExecutor / DropFunctionExecutor implement // "Function (procedure)" executor kind.
type CreateFunctionExecutor struct {
	Stmt *ast.CreateFunctionStatement
}

func NewCreateFunction(stmt *ast.CreateFunctionStatement) *CreateFunctionExecutor {
	return &CreateFunctionExecutor{Stmt: stmt}
}

func (c *CreateFunctionExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	if ec.Functions != nil && ec.Functions.exists(c.Stmt.Name) {
		return errs.ErrDatabase.New("function already exists: " + c.Stmt.Name)
	}
	return nil
}

func (c *CreateFunctionExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if ec.Functions != nil {
		ec.Functions.set(c.Stmt.Name, &functionDef{Params: c.Stmt.Params, Body: c.Stmt.Body})
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

type DropFunctionExecutor struct {
	Stmt   *ast.DropFunctionStatement
	exists bool
}

func NewDropFunction(stmt *ast.DropFunctionStatement) *DropFunctionExecutor {
	return &DropFunctionExecutor{Stmt: stmt}
}

func (d *DropFunctionExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	if ec.Functions != nil {
		d.exists = ec.Functions.exists(d.Stmt.Name)
	}
	if !d.exists {
		return errs.ErrDatabase.New("function not found: " + d.Stmt.Name)
	}
	return nil
}

func (d *DropFunctionExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if ec.Functions != nil {
		ec.Functions.drop(d.Stmt.Name)
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}
