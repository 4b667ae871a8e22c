package exec

import (
	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/expr"
)

// SetExecutor implements Set executor kind: `SET name = expr`
// pairs mutate session-level state (autocommit, isolation level, current
// schema) through the named SessionVarSetter collaborator. Prepare only
// validates that each assignment's expression has no variables to resolve
// (session vars are assigned from constants, not column references); evaluate
// performs the mutation.
type SetExecutor struct {
	Stmt *ast.SetStatement

	values []interface{}
}

func NewSet(stmt *ast.SetStatement) *SetExecutor { return &SetExecutor{Stmt: stmt} }

func (s *SetExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	s.values = make([]interface{}, len(s.Stmt.Vars))
	for i, v := range s.Stmt.Vars {
		if len(v.Expr.Variables()) > 0 {
			return errs.ErrStatement.New("SET " + v.Name + " may not reference a column")
		}
		val, err := v.Expr.Eval(ctx, &expr.RowContext{Funcs: ec.Funcs})
		if err != nil {
			return wrap(err, "set: evaluating "+v.Name)
		}
		s.values[i] = val
	}
	return nil
}

func (s *SetExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.Vars == nil {
		return ast.EmptyResultSchema(), emptyResult(), nil
	}
	for i, v := range s.Stmt.Vars {
		if err := ec.Vars.SetVar(ctx, v.Name, s.values[i]); err != nil {
			return nil, nil, wrap(err, "set: applying "+v.Name)
		}
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

// CompleteTransactionExecutor implements CompleteTransaction
// executor kind: BEGIN/COMMIT/ROLLBACK. The actual locking and deferred
// constraint re-check live in session; this executor only forwards to
// the TransactionController named collaborator.
type CompleteTransactionExecutor struct {
	Stmt *ast.CompleteTransactionStatement
}

func NewCompleteTransaction(stmt *ast.CompleteTransactionStatement) *CompleteTransactionExecutor {
	return &CompleteTransactionExecutor{Stmt: stmt}
}

func (c *CompleteTransactionExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	return nil
}

func (c *CompleteTransactionExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.Txn == nil {
		return ast.EmptyResultSchema(), emptyResult(), nil
	}
	var err error
	switch c.Stmt.Kind {
	case ast.TxnBegin:
		err = ec.Txn.Begin(ctx)
	case ast.TxnCommit:
		err = ec.Txn.Commit(ctx)
	case ast.TxnRollback:
		err = ec.Txn.Rollback(ctx)
	}
	if err != nil {
		return nil, nil, wrap(err, "complete transaction")
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

// CompactExecutor implements Compact executor kind: asks the
// conglomerate to reclaim space for one table, an out-of-scope storage-layer
// operation the core only triggers.
type CompactExecutor struct {
	Stmt *ast.CompactStatement
}

func NewCompact(stmt *ast.CompactStatement) *CompactExecutor {
	return &CompactExecutor{Stmt: stmt}
}

func (c *CompactExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	if _, ok, err := ec.DB.Table(ctx, c.Stmt.Table); err != nil {
		return wrap(err, "compact: looking up table")
	} else if !ok {
		return notFound("table", c.Stmt.Table)
	}
	return nil
}

func (c *CompactExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if ec.Compactor != nil {
		if err := ec.Compactor.Compact(ctx, c.Stmt.Table); err != nil {
			return nil, nil, wrap(err, "compact")
		}
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}
