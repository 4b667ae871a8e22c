package exec

import (
	"context"
	"sync"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
)

// triggerDef is one trigger's stored definition: the table it fires on, its
// timing/event, and its body. Firing itself is out of scope; the
// out-of-scope catalog looks the definition up through TriggerRegistry.Lookup
// when it decides to invoke it.
type triggerDef struct {
	Table  string
	Timing ast.TriggerTiming
	Event  ast.TriggerEvent
	Body   *ast.StatementTree
}

// TriggerRegistry holds trigger definitions by name: table, timing/event, and
// its body. Firing itself is out of scope; this is definition storage only.
type TriggerRegistry struct {
	mu       sync.RWMutex
	triggers map[string]*triggerDef
}

func NewTriggerRegistry() *TriggerRegistry {
	return &TriggerRegistry{triggers: map[string]*triggerDef{}}
}

// Lookup returns the triggers defined on a table for a given timing/event, the
// seam the out-of-scope catalog uses to decide what to fire.
func (r *TriggerRegistry) Lookup(table string, timing ast.TriggerTiming, event ast.TriggerEvent) []*ast.StatementTree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var bodies []*ast.StatementTree
	for _, t := range r.triggers {
		if t.Table == table && t.Timing == timing && t.Event == event {
			bodies = append(bodies, t.Body)
		}
	}
	return bodies
}

func (r *TriggerRegistry) exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.triggers[name]
	return ok
}

func (r *TriggerRegistry) set(name string, d *triggerDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers[name] = d
}

func (r *TriggerRegistry) drop(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.triggers[name]; !ok {
		return false
	}
	delete(r.triggers, name)
	return true
}

// CreateTriggerExecutor / DropTriggerExecutor implement // CreateTrigger executor kind.
type CreateTriggerExecutor struct {
	Stmt *ast.CreateTriggerStatement
}

func NewCreateTrigger(stmt *ast.CreateTriggerStatement) *CreateTriggerExecutor {
	return &CreateTriggerExecutor{Stmt: stmt}
}

func (c *CreateTriggerExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	if ec.Triggers != nil && ec.Triggers.exists(c.Stmt.Name) {
		return errs.ErrDatabase.New("trigger already exists: " + c.Stmt.Name)
	}
	if _, ok, err := ec.DB.Table(ctx, c.Stmt.Table); err != nil {
		return wrap(err, "create trigger: looking up table")
	} else if !ok {
		return notFound("table", c.Stmt.Table)
	}
	return nil
}

func (c *CreateTriggerExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if ec.Triggers != nil {
		ec.Triggers.set(c.Stmt.Name, &triggerDef{
			Table:  c.Stmt.Table,
			Timing: c.Stmt.Timing,
			Event:  c.Stmt.Event,
			Body:   c.Stmt.Body,
		})
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

type DropTriggerExecutor struct {
	Stmt   *ast.DropTriggerStatement
	exists bool
}

func NewDropTrigger(stmt *ast.DropTriggerStatement) *DropTriggerExecutor {
	return &DropTriggerExecutor{Stmt: stmt}
}

func (d *DropTriggerExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	if ec.Triggers != nil {
		d.exists = ec.Triggers.exists(d.Stmt.Name)
	}
	if !d.exists && !d.Stmt.IfExists {
		return errs.ErrDatabase.New("trigger not found: " + d.Stmt.Name)
	}
	return nil
}

func (d *DropTriggerExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if ec.Triggers != nil {
		ec.Triggers.drop(d.Stmt.Name)
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}
