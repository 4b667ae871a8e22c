// Package errs defines the engine's error taxonomy.
//
// Every kind is a gopkg.in/src-d/go-errors.v1 Kind, the same pattern go-mysql-server
// uses in auth/auth.go and auth/native.go: declare with errors.NewKind, raise with
// .New(args...), chain with .Wrap(cause). Each kind also carries the SQL error code
// assigned to it, retrieved with Code.
package errs

import (
	"gopkg.in/src-d/go-errors.v1"
)

// Code is the SQL error code reported to the client over the wire protocol.
type Code int

const (
	CodeParse       Code = 35
	CodeStatement   Code = 1
	CodeDatabase    Code = 1
	CodeUserAccess  Code = 1
	CodeConstraint  Code = 1
	CodeTransaction Code = 200
	CodeIO          Code = 250
)

// kinds maps each declared *errors.Kind to the SQL error code it reports.
var kinds = map[*errors.Kind]Code{}

func register(k *errors.Kind, code Code) *errors.Kind {
	kinds[k] = code
	return k
}

// CodeOf returns the SQL error code for err, walking through go-errors.v1 wrapping.
// Unknown errors report CodeDatabase, matching the default mapping of
// unclassified semantic failures.
func CodeOf(err error) Code {
	for k, code := range kinds {
		if k.Is(err) {
			return code
		}
	}
	return CodeDatabase
}

var (
	// ErrParse is produced by the (out-of-scope) parser; surfaced verbatim.
	ErrParse = register(errors.NewKind("parse error: %s"), CodeParse)

	// ErrStatement covers ambiguity, unresolved reference, and illegal constructs
	// (sub-query in a column list, aggregate in GROUP BY, duplicate view column...).
	ErrStatement          = register(errors.NewKind("%s"), CodeStatement)
	ErrAmbiguousColumn    = register(errors.NewKind("column reference %q is ambiguous"), CodeStatement)
	ErrColumnNotFound     = register(errors.NewKind("column %q could not be found in any table"), CodeStatement)
	ErrSubqueryInColumns  = register(errors.NewKind("sub-query not allowed in this position"), CodeStatement)
	ErrAggregateInGroupBy = register(errors.NewKind("aggregate function not allowed in GROUP BY"), CodeStatement)
	ErrAggregateNoFrom    = register(errors.NewKind("aggregate function not allowed without a FROM clause"), CodeStatement)

	// ErrDatabase covers semantic violations against the catalog.
	ErrDatabase         = register(errors.NewKind("%s"), CodeDatabase)
	ErrTableNotFound    = register(errors.NewKind("table not found: %s"), CodeDatabase)
	ErrTableExists      = register(errors.NewKind("table already exists: %s"), CodeDatabase)
	ErrColumnExists     = register(errors.NewKind("column already exists: %s"), CodeDatabase)
	ErrReadOnly         = register(errors.NewKind("the database is read-only"), CodeDatabase)
	ErrNoColumns        = register(errors.NewKind("a table must have at least one column"), CodeDatabase)
	ErrUnknownSequence  = register(errors.NewKind("sequence not found: %s"), CodeDatabase)
	ErrViewNotFound     = register(errors.NewKind("view not found: %s"), CodeDatabase)
	ErrUnknownResultSet = register(errors.NewKind("unknown result set id: %d"), CodeDatabase)
	ErrUnknownUpload    = register(errors.NewKind("unknown streamable object id: %d"), CodeDatabase)

	// ErrUserAccess covers permission failures.
	ErrUserAccess  = register(errors.NewKind("%s"), CodeUserAccess)
	ErrNoPrivilege = register(errors.NewKind("user %q lacks %s privilege on %s"), CodeUserAccess)

	// ErrConstraint and its sub-kinds.
	ErrDropColumnViolation = register(errors.NewKind("cannot drop column %q: referenced by constraint %q"), CodeConstraint)
	ErrDropTableViolation  = register(errors.NewKind("cannot drop table %q: referenced by constraint %q"), CodeConstraint)
	ErrUniqueViolation     = register(errors.NewKind("unique constraint %q violated"), CodeConstraint)
	ErrCheckViolation      = register(errors.NewKind("check constraint %q violated"), CodeConstraint)
	ErrForeignKeyViolation = register(errors.NewKind("foreign key constraint %q violated"), CodeConstraint)
	ErrDeferredViolation   = register(errors.NewKind("deferred constraint %q violated at commit"), CodeConstraint)

	// ErrTransaction covers conflict, dirty-select, and deadlock.
	ErrTransactionConflict = register(errors.NewKind("transaction conflict: %s"), CodeTransaction)
	ErrDirtySelect         = register(errors.NewKind("dirty read detected on table %q"), CodeTransaction)
	ErrDeadlock            = register(errors.NewKind("deadlock detected"), CodeTransaction)

	// ErrIO covers socket and disk failures; propagates to session teardown.
	ErrIO = register(errors.NewKind("i/o error: %s"), CodeIO)
)
