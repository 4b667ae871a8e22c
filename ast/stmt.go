package ast

import (
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/expr"
	"github.com/relcore/relcore/types"
)

// Assignment is one `column = expr` pair, the shape shared by UPDATE's SET
// list, INSERT's SET mode and column defaults.
type Assignment struct {
	Column string
	Expr   *expr.Expression
}

// InsertMode tags which of INSERT's three shapes a InsertStatement carries.
type InsertMode int

const (
	InsertValues InsertMode = iota
	InsertFromSelect
	InsertSet
)

// InsertStatement is the parser's typed view of an INSERT.
type InsertStatement struct {
	Table   *TableRef
	Columns []string // explicit column list for VALUES/FROM SELECT; empty means "all columns in schema order"
	Mode    InsertMode

	Values [][]*expr.Expression // InsertValues: one row per entry
	Select *TableSelectExpression // InsertFromSelect
	Set    []Assignment           // InsertSet
}

// UpdateStatement is the parser's typed view of an UPDATE.
type UpdateStatement struct {
	Table       *TableRef
	Assignments []Assignment
	Where       *expr.Expression
	Limit       int // 0 means unbounded
}

// DeleteStatement is the parser's typed view of a DELETE.
type DeleteStatement struct {
	Table *TableRef
	Where *expr.Expression
	Limit int // 0 means unbounded
}

// ColumnDef is one column of a CREATE TABLE / legacy ALTER TABLE definition.
type ColumnDef struct {
	Name       string
	Type       types.Type
	Nullable   bool
	PrimaryKey bool
	Default    *expr.Expression
}

// ConstraintDef names a table-level constraint supplied either at CREATE TABLE
// time or via ALTER TABLE ... ADD CONSTRAINT.
type ConstraintDef struct {
	Kind    string // "PRIMARY" | "UNIQUE" | "FOREIGN" | "CHECK"
	Name    string
	Columns []string

	RefTable   string // FOREIGN
	RefColumns []string
	Deferred   bool

	Check *expr.Expression // CHECK
}

// CreateTableStatement is the parser's typed view of CREATE TABLE, and also
// the shape the legacy ALTER TABLE form supplies wholesale.
type CreateTableStatement struct {
	Table       string
	IfNotExists bool
	Columns     []ColumnDef
	Constraints []ConstraintDef
}

// DropTableStatement is the parser's typed view of DROP TABLE.
type DropTableStatement struct {
	Table    string
	IfExists bool
}

// AlterActionKind enumerates explicit-actions form.
type AlterActionKind int

const (
	AlterSet AlterActionKind = iota
	AlterDropDefault
	AlterDropColumn
	AlterAddColumn
	AlterDropConstraint
	AlterDropConstraintPrimaryKey
	AlterAddConstraint
)

// AlterAction is one action of the explicit-actions ALTER TABLE form.
type AlterAction struct {
	Kind       AlterActionKind
	Column     string         // ALTERSET, DROPDEFAULT, DROP, ADD
	Default    *expr.Expression // ALTERSET
	ColumnDef  *ColumnDef     // ADD
	Constraint *ConstraintDef // ADD_CONSTRAINT
	Name       string         // DROP_CONSTRAINT
}

// AlterTableStatement is the parser's typed view of ALTER TABLE: either the
// legacy full-definition form, or a list of explicit actions.
type AlterTableStatement struct {
	Table  string
	Legacy *CreateTableStatement
	Actions []AlterAction
}

// CreateSchemaStatement / DropSchemaStatement implement the Schema
// executor kind.
type CreateSchemaStatement struct {
	Name        string
	IfNotExists bool
}
type DropSchemaStatement struct {
	Name     string
	IfExists bool
}

// CreateSequenceStatement / AlterSequenceStatement / DropSequenceStatement
// implement the Sequence executor kind (exec/sequence.go).
type CreateSequenceStatement struct {
	Name        string
	StartWith   int64
	IncrementBy int64
	Cycle       bool
}
type AlterSequenceStatement struct {
	Name        string
	RestartWith *int64
	IncrementBy *int64
	Cycle       *bool
}
type DropSequenceStatement struct {
	Name string
}

// CreateViewStatement / DropViewStatement implement the View executor
// kind (exec/view.go).
type CreateViewStatement struct {
	Name        string
	Columns     []string // explicit column aliases, empty means use the select list's own names
	Select      *TableSelectExpression
	OrReplace   bool
}
type DropViewStatement struct {
	Name     string
	IfExists bool
}

// TriggerTiming / TriggerEvent tag a trigger's firing point.
type TriggerTiming int

const (
	TriggerBefore TriggerTiming = iota
	TriggerAfter
)

type TriggerEvent int

const (
	TriggerInsert TriggerEvent = iota
	TriggerUpdate
	TriggerDelete
)

type CreateTriggerStatement struct {
	Name   string
	Table  string
	Timing TriggerTiming
	Event  TriggerEvent
	Body   *StatementTree
}
type DropTriggerStatement struct {
	Name     string
	IfExists bool
}

// Privilege is one grantable capability.
type Privilege int

const (
	PrivSelect Privilege = 1 << iota
	PrivInsert
	PrivUpdate
	PrivDelete
	PrivReferences
)

// PrivilegeGrant names what's being granted: a schema/table, and optionally a
// specific column (UPDATE/SELECT/REFERENCES may be column-scoped).
type PrivilegeGrant struct {
	Privileges Privilege
	Schema     string
	Table      string  // "" means schema-level
	Column     string  // "" means table-wide
}

type GrantStatement struct {
	Grants        []PrivilegeGrant
	Grantee       string
	WithGrantOption bool
}
type RevokeStatement struct {
	Grants  []PrivilegeGrant
	Grantee string
}

// CreateUserStatement / DropUserStatement / AlterUserStatement implement
// UserManager executor kind.
type CreateUserStatement struct {
	Name     string
	Password string
}
type AlterUserStatement struct {
	Name        string
	NewPassword string
}
type DropUserStatement struct {
	Name string
}

// SessionVar is one `SET name = expr` pair.
type SessionVar struct {
	Name string
	Expr *expr.Expression
}
type SetStatement struct {
	Vars []SessionVar
}

// TxnKind enumerates the CompleteTransaction executor kind's shapes.
type TxnKind int

const (
	TxnBegin TxnKind = iota
	TxnCommit
	TxnRollback
)

type CompleteTransactionStatement struct {
	Kind TxnKind
}

// CompactStatement implements Compact executor kind: ask the
// conglomerate to reclaim space for one table (an out-of-scope storage-layer
// operation the core only triggers).
type CompactStatement struct {
	Table string
}

// FunctionStatement implements "Function (procedure)" executor
// kind: a named, parameterized StatementTree body, invoked with a positional
// argument list. Trigger/procedure *invocation* plumbing is out of scope
//; this type only records the definition for the out-of-scope
// catalog to invoke later.
type CreateFunctionStatement struct {
	Name   string
	Params []string
	Body   *StatementTree
}
type DropFunctionStatement struct {
	Name string
}

// EmptyResultSchema is the schema shared by every DDL/session executor whose
// evaluate produces no rows of its own.
func EmptyResultSchema() catalog.Schema { return catalog.Schema{} }
