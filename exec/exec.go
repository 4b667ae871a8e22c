// Package exec is component C: the per-statement-kind
// prepare/evaluate executors for DDL, DML, session, grant, view, sequence and
// trigger statements.
//
// Grounded on the prepare/evaluate split
// mirrored by go-mysql-server's sql.Node lifecycle (a node must be Resolved()
// before RowIter runs) and by engine.go's own two-phase shape (AnalyzeQuery /
// PrepareQuery versus QueryWithBindings's execution half). Error wrapping
// follows engine.go's github.com/pkg/errors.Wrap usage.
package exec

import (
	"context"

	"github.com/pkg/errors"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/types"
)

// Executor is the two-phase contract every statement kind obeys: prepare is
// pure and read-only; evaluate runs under the caller's lock mode and may
// inspect or modify data.
type Executor interface {
	// Prepare binds names, validates types and resolves references. It must
	// not inspect row contents, row counts, or selectable schemes.
	Prepare(ctx context.Context, ec *ExecContext) error
	// Evaluate runs the statement and returns its result schema and rows. DML
	// returns a one-cell row-count table (see rowCountResult); DDL and
	// session statements return EmptyResultSchema with no rows.
	Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error)
}

// PrivilegeChecker is the named collaborator Select/Insert/Update/Delete and
// the grant executor consult. session.Context supplies the
// concrete implementation backed by the PrivManager executor's grant table.
type PrivilegeChecker interface {
	Check(ctx context.Context, user, schema, table, column string, priv ast.Privilege) error
}

// TriggerEvent mirrors ast.TriggerEvent without importing ast into callers
// that only need the notifier contract.
type TriggerEvent int

const (
	EventInsert TriggerEvent = iota
	EventUpdate
	EventDelete
)

// TriggerNotifier is the named collaborator Insert/Update/Delete call on
// non-zero row counts. Actual
// trigger firing is out of scope; this interface is the seam the
// out-of-scope catalog hooks into.
type TriggerNotifier interface {
	Notify(ctx context.Context, table string, event TriggerEvent, rows []catalog.Row) error
}

// NopTriggerNotifier is the default TriggerNotifier when no trigger catalog
// is wired in; it is a no-op so every DML executor can call it unconditionally.
type NopTriggerNotifier struct{}

func (NopTriggerNotifier) Notify(ctx context.Context, table string, event TriggerEvent, rows []catalog.Row) error {
	return nil
}

// ExecContext carries what every executor's prepare/evaluate needs beyond the
// statement itself: the catalog, the function registry, and the session-level
// collaborators (privilege checking, trigger notification) that 
// otherwise threads through session.Context. Kept independent of package
// session so session may depend on exec without a import cycle.
type ExecContext struct {
	DB            catalog.Database
	Provider      catalog.Provider
	Funcs         expr.FunctionRegistry
	CaseSensitive bool

	User       string
	Privileges PrivilegeChecker
	Notifier   TriggerNotifier
	ReadOnly   bool

	// Sequences is the named collaborator the CREATE/ALTER/DROP SEQUENCE
	// executors consult; its Next hands out values, and no expression calls it.
	Sequences *SequenceRegistry

	// Views is the named collaborator the View executor kind consults.
	Views *ViewRegistry

	// Grants is the named collaborator the PrivManager (GRANT/REVOKE) and
	// UserManager executor kinds consult. Privilege checks use Privileges only
	// and never read Grants.
	Grants *GrantTable

	// Txn is the named collaborator the CompleteTransaction executor kind
	// calls: BEGIN/COMMIT/ROLLBACK are session
	// operations the core only triggers from here.
	Txn TransactionController

	// Vars is the named collaborator the Set executor kind consults.
	Vars SessionVarSetter

	// Compactor is the named collaborator the Compact executor kind calls;
	// actual space reclamation is an out-of-scope storage-layer operation
	// the core only triggers.
	Compactor Compactor

	// Triggers is the named collaborator the CreateTrigger/DropTrigger
	// executor kind consults.
	Triggers *TriggerRegistry

	// Functions is the named collaborator the CreateFunction/DropFunction
	// executor kind consults ( "Function (procedure)" executor
	// kind, exec/function.go).
	Functions *FunctionRegistry
}

// TransactionController is the session-level collaborator backing the
// CompleteTransaction executor kind.
type TransactionController interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SessionVarSetter is the session-level collaborator backing the Set executor
// kind.
type SessionVarSetter interface {
	SetVar(ctx context.Context, name string, value interface{}) error
}

// Compactor is the out-of-scope storage-layer collaborator the Compact
// executor kind triggers.
type Compactor interface {
	Compact(ctx context.Context, table string) error
}

func (ec *ExecContext) notifier() TriggerNotifier {
	if ec.Notifier == nil {
		return NopTriggerNotifier{}
	}
	return ec.Notifier
}

func (ec *ExecContext) checkPrivilege(ctx context.Context, schema, table, column string, priv ast.Privilege) error {
	if ec.Privileges == nil {
		return nil
	}
	return ec.Privileges.Check(ctx, ec.User, schema, table, column, priv)
}

// rowsIter adapts a materialized []catalog.Row to catalog.RowIter, the shape
// every executor's Evaluate hands back (plan.Node's own sliceIter is
// unexported to package plan; executors need the same materialize-then-drain
// strategy for their own one-cell/zero-row results).
type rowsIter struct {
	rows []catalog.Row
	pos  int
}

func newRowsIter(rows []catalog.Row) *rowsIter { return &rowsIter{rows: rows} }

func (r *rowsIter) Next(ctx context.Context) (catalog.Row, error) {
	if r.pos >= len(r.rows) {
		return nil, catalog.ErrIterDone
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

func (r *rowsIter) Close(ctx context.Context) error { return nil }

// rowCountSchema / rowCountResult implement "DML returns a
// one-cell count table".
func rowCountSchema() catalog.Schema {
	return catalog.Schema{{Name: "ROWCOUNT", Type: types.Integer}}
}

func rowCountResult(n int64) catalog.RowIter {
	return newRowsIter([]catalog.Row{{n}})
}

// emptyResult is the shape used by every DDL/session executor that produces
// no rows.
func emptyResult() catalog.RowIter { return newRowsIter(nil) }

func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

func notFound(kind, name string) error {
	switch kind {
	case "table":
		return errs.ErrTableNotFound.New(name)
	case "schema":
		return errs.ErrDatabase.New("schema not found: " + name)
	default:
		return errs.ErrDatabase.New(kind + " not found: " + name)
	}
}
