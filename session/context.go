package session

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/auth"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
	"github.com/relcore/relcore/exec"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/internal/config"
)

// Shared holds the catalog-wide collaborators every connection's Context is
// built from: the conglomerate, the authentication/authorization store, and
// the registries the exec executors consult for views/sequences/grants/
// triggers/procedures.
type Shared struct {
	Conglomerate catalog.Conglomerate
	Auth         auth.Auth
	Users        *auth.Native
	Funcs        expr.FunctionRegistry

	Views     *exec.ViewRegistry
	Sequences *exec.SequenceRegistry
	Grants    *exec.GrantTable
	Triggers  *exec.TriggerRegistry
	Functions *exec.FunctionRegistry

	// Config carries the loaded properties-file settings (read_only,
	// ignore_case_for_identifiers, maximum_worker_threads, ...) every fresh
	// Context is seeded from. Defaults to config.Defaults() until SetConfig
	// is called with a parsed file.
	Config *config.Config

	Log    *logrus.Logger
	Tracer opentracing.Tracer
}

// NewShared wires up the registries a fresh engine needs, defaulting Log to
// logrus.StandardLogger(), Tracer to the no-op tracer, and Config to
// config.Defaults() when unset.
func NewShared(cong catalog.Conglomerate, a auth.Auth, users *auth.Native, funcs expr.FunctionRegistry) *Shared {
	return &Shared{
		Conglomerate: cong,
		Auth:         a,
		Users:        users,
		Funcs:        funcs,
		Views:        exec.NewViewRegistry(),
		Sequences:    exec.NewSequenceRegistry(),
		Grants:       exec.NewGrantTable(),
		Triggers:     exec.NewTriggerRegistry(),
		Functions:    exec.NewFunctionRegistry(),
		Config:       config.Defaults(),
		Log:          logrus.StandardLogger(),
		Tracer:       opentracing.NoopTracer{},
	}
}

// SetConfig installs cfg as the settings every subsequently-created Context
// is seeded from (read_only, ignore_case_for_identifiers). Callers load cfg
// with config.Load before accepting connections.
func (s *Shared) SetConfig(cfg *config.Config) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	s.Config = cfg
}

// Context is the per-connection session: one at a time per
// connection, carrying the authenticated user, the current schema, the
// autocommit flag, the connection's LockingMechanism, and its result-set and
// upload bookkeeping. It implements exec.PrivilegeChecker, exec.
// TransactionController, exec.SessionVarSetter, exec.Compactor and exec.
// TriggerNotifier so it can hand itself to exec.ExecContext for every
// statement it dispatches.
type Context struct {
	shared *Shared

	ConnID uint32
	User   string

	schema        string
	autoCommit    bool
	readOnly      bool
	caseSensitive bool

	lock LockingMechanism
	txn  catalog.Transaction

	results *resultRegistry
	uploads *uploadRegistry

	log *logrus.Entry
}

// NewContext constructs a fresh per-connection Context after LOGIN succeeds.
// The default schema and autocommit-on-by-default match ordinary SQL session
// semantics; readOnly and caseSensitive are seeded from shared.Config's
// read_only and ignore_case_for_identifiers settings (config.Defaults() if
// shared.Config was never set).
func NewContext(shared *Shared, connID uint32, user, defaultSchema string) *Context {
	cfg := shared.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	return &Context{
		shared:        shared,
		ConnID:        connID,
		User:          user,
		schema:        defaultSchema,
		autoCommit:    true,
		readOnly:      cfg.ReadOnly,
		caseSensitive: !cfg.IgnoreCaseForIdentifiers,
		results:       newResultRegistry(),
		uploads:       newUploadRegistry(),
		log:           shared.Log.WithFields(logrus.Fields{"conn": connID, "user": user}),
	}
}

// SetReadOnly toggles the session-wide read-only flag.
func (c *Context) SetReadOnly(ro bool) { c.readOnly = ro }

// database resolves the session's current schema to a catalog.Database.
func (c *Context) database(ctx context.Context) (catalog.Database, error) {
	db, ok, err := c.shared.Conglomerate.Database(ctx, c.schema)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrDatabase.New("no such schema: " + c.schema)
	}
	return db, nil
}

func (c *Context) execContext(db catalog.Database) *exec.ExecContext {
	return &exec.ExecContext{
		DB:            db,
		Provider:      c.shared.Conglomerate,
		Funcs:         c.shared.Funcs,
		CaseSensitive: c.caseSensitive,
		User:          c.User,
		Privileges:    c.shared.Grants,
		Notifier:      c,
		ReadOnly:      c.readOnly,
		Sequences:     c.shared.Sequences,
		Views:         c.shared.Views,
		Grants:        c.shared.Grants,
		Txn:           c,
		Vars:          c,
		Compactor:     c,
		Triggers:      c.shared.Triggers,
		Functions:     c.shared.Functions,
	}
}

// newExecutor maps one parsed statement onto its exec.Executor, following
// the FROM-clause view-resolution rule: a bare single-table, unjoined SELECT
// whose table name is a registered view (and not a real table) dispatches to
// exec.NewViewSelect instead of exec.NewSelect.
func (c *Context) newExecutor(ctx context.Context, db catalog.Database, stmt interface{}) (exec.Executor, error) {
	switch s := stmt.(type) {
	case *ast.TableSelectExpression:
		if name, ok := bareViewCandidate(s); ok {
			if _, _, ok2, err := lookupTable(ctx, db, name); err != nil {
				return nil, err
			} else if !ok2 {
				if _, _, ok3 := c.shared.Views.Lookup(name); ok3 {
					return exec.NewViewSelect(name), nil
				}
			}
		}
		return exec.NewSelect(s), nil
	case *ast.InsertStatement:
		return exec.NewInsert(s), nil
	case *ast.UpdateStatement:
		return exec.NewUpdate(s), nil
	case *ast.DeleteStatement:
		return exec.NewDelete(s), nil
	case *ast.CreateTableStatement:
		return exec.NewCreateTable(s), nil
	case *ast.DropTableStatement:
		return exec.NewDropTable(s), nil
	case *ast.AlterTableStatement:
		return exec.NewAlterTable(s), nil
	case *ast.CreateSchemaStatement:
		return exec.NewCreateSchema(s), nil
	case *ast.DropSchemaStatement:
		return exec.NewDropSchema(s), nil
	case *ast.CreateSequenceStatement:
		return exec.NewCreateSequence(s), nil
	case *ast.AlterSequenceStatement:
		return exec.NewAlterSequence(s), nil
	case *ast.DropSequenceStatement:
		return exec.NewDropSequence(s), nil
	case *ast.CreateViewStatement:
		return exec.NewCreateView(s), nil
	case *ast.DropViewStatement:
		return exec.NewDropView(s), nil
	case *ast.CreateTriggerStatement:
		return exec.NewCreateTrigger(s), nil
	case *ast.DropTriggerStatement:
		return exec.NewDropTrigger(s), nil
	case *ast.GrantStatement:
		return exec.NewGrant(s), nil
	case *ast.RevokeStatement:
		return exec.NewRevoke(s), nil
	case *ast.CreateUserStatement:
		return exec.NewCreateUser(s, c.shared.Users), nil
	case *ast.AlterUserStatement:
		return exec.NewAlterUser(s, c.shared.Users), nil
	case *ast.DropUserStatement:
		return exec.NewDropUser(s, c.shared.Users), nil
	case *ast.SetStatement:
		return exec.NewSet(s), nil
	case *ast.CompleteTransactionStatement:
		return exec.NewCompleteTransaction(s), nil
	case *ast.CompactStatement:
		return exec.NewCompact(s), nil
	case *ast.CreateFunctionStatement:
		return exec.NewCreateFunction(s), nil
	case *ast.DropFunctionStatement:
		return exec.NewDropFunction(s), nil
	default:
		return nil, errs.ErrStatement.New(fmt.Sprintf("unsupported statement type %T", stmt))
	}
}

func bareViewCandidate(s *ast.TableSelectExpression) (string, bool) {
	if len(s.From) != 1 || s.From[0].Direct == nil || s.From[0].Join != ast.JoinNone {
		return "", false
	}
	ref := s.From[0].Direct
	if ref.Schema != "" {
		return "", false
	}
	return ref.Table, true
}

func lookupTable(ctx context.Context, db catalog.Database, name string) (catalog.DataTableDef, catalog.Schema, bool, error) {
	t, ok, err := db.Table(ctx, name)
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	return t, t.Schema(), true, nil
}

// Execute runs one statement end to end following auto-commit
// discipline: prepare under Shared lock, evaluate under Exclusive lock, and
// — for statements other than BEGIN/COMMIT/ROLLBACK, which manage the
// transaction themselves — commit or roll back again under Exclusive lock
// when autocommit is on.
func (c *Context) Execute(ctx context.Context, stmt interface{}, query string) (*ResultSet, error) {
	span := c.shared.Tracer.StartSpan("session.Execute")
	defer span.Finish()

	db, err := c.database(ctx)
	if err != nil {
		return nil, err
	}
	executor, err := c.newExecutor(ctx, db, stmt)
	if err != nil {
		return nil, err
	}
	ec := c.execContext(db)

	release := c.lock.Acquire(Shared)
	err = executor.Prepare(ctx, ec)
	release()
	if err != nil {
		return nil, err
	}

	release = c.lock.Acquire(Exclusive)
	schema, it, evalErr := executor.Evaluate(ctx, ec)
	var rows []catalog.Row
	if evalErr == nil {
		rows, evalErr = drain(ctx, it)
	}
	release()

	_, isTxnStmt := stmt.(*ast.CompleteTransactionStatement)

	var rs *ResultSet
	if evalErr == nil {
		rs = c.results.register(schema, rows, query)
	}

	if c.autoCommit && !isTxnStmt {
		release = c.lock.Acquire(Exclusive)
		if evalErr != nil {
			c.rollbackLocked(ctx)
		} else if err := c.commitLocked(ctx); err != nil {
			if rs != nil {
				c.results.dispose(rs.ID)
			}
			release()
			return nil, err
		}
		release()
	}

	if evalErr != nil {
		return nil, evalErr
	}
	return rs, nil
}

func drain(ctx context.Context, it catalog.RowIter) ([]catalog.Row, error) {
	if it == nil {
		return nil, nil
	}
	defer it.Close(ctx)
	var rows []catalog.Row
	for {
		row, err := it.Next(ctx)
		if err == catalog.ErrIterDone {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// Check implements exec.PrivilegeChecker by delegating straight to the
// shared grant table.
func (c *Context) Check(ctx context.Context, user, schema, table, column string, priv ast.Privilege) error {
	return c.shared.Grants.Check(ctx, user, schema, table, column, priv)
}

// Notify implements exec.TriggerNotifier. Firing a trigger body is out of
// scope; this only confirms a matching definition exists, the
// seam an out-of-scope catalog would use to actually invoke it.
func (c *Context) Notify(ctx context.Context, table string, event exec.TriggerEvent, rows []catalog.Row) error {
	if c.shared.Triggers == nil || len(rows) == 0 {
		return nil
	}
	timing := ast.TriggerAfter
	var astEvent ast.TriggerEvent
	switch event {
	case exec.EventInsert:
		astEvent = ast.TriggerInsert
	case exec.EventUpdate:
		astEvent = ast.TriggerUpdate
	case exec.EventDelete:
		astEvent = ast.TriggerDelete
	}
	if bodies := c.shared.Triggers.Lookup(table, timing, astEvent); len(bodies) > 0 {
		c.log.WithField("table", table).Tracef("%d trigger(s) matched, firing out of scope", len(bodies))
	}
	return nil
}

// Close tears down the session: rolls back any open transaction, discards
// every registered result set, and syncs the conglomerate. Errors from each
// step are aggregated rather than short-circuited, since every step must be
// attempted regardless of an earlier failure.
func (c *Context) Close(ctx context.Context) error {
	var result *multierror.Error
	release := c.lock.Acquire(Exclusive)
	if c.txn != nil {
		if err := c.txn.Rollback(ctx); err != nil {
			result = multierror.Append(result, err)
		}
		c.txn = nil
	}
	release()
	c.results.disposeAll()
	if err := c.shared.Conglomerate.Sync(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
