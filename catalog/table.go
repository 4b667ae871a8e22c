// Package catalog defines the named external interfaces for collaborators:
// the on-disk storage engine (row files, indices, journal, blob
// store) is out of scope. The core only ever sees Table, DataTableDef,
// SelectableScheme and Ref.
//
// Grounded on go-mysql-server's sql.Table / sql.RowIter contract (memory package,
// its tests are the only surviving grounding since the source itself was not
// retained) and on the "virtual table" idea: any plan node's
// output is a Table whether it is materialized or a row-id projection over
// another table.
package catalog

import (
	"context"

	"github.com/relcore/relcore/types"
)

// Column is one column of a Schema.
type Column struct {
	Name          string
	Type          types.Type
	Nullable      bool
	PrimaryKey    bool
	Default       string // raw default expression text, empty if none
	Source        string // owning table name, filled in by the from-set resolver
}

// Schema is an ordered list of Columns. Column order is significant: it is the
// physical row layout.
type Schema []*Column

// IndexOf returns the position of the named column, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Row is one tuple of column values, positionally aligned with a Schema.
type Row []interface{}

// Copy returns a shallow copy of the row, since plan nodes may rewrite cells
// in place when materializing synthetic function-table columns.
func (r Row) Copy() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// RowIter is the pull-based iteration contract every QueryPlanNode's evaluate
// result implements. Next returns (nil, io.EOF)-equivalent via a
// sentinel error to avoid importing io just for this.
type RowIter interface {
	Next(ctx context.Context) (Row, error)
	Close(ctx context.Context) error
}

// ErrIterDone is returned by RowIter.Next when iteration is exhausted.
var ErrIterDone = rowIterDone{}

type rowIterDone struct{}

func (rowIterDone) Error() string { return "iterator exhausted" }

// Table is the virtual-table contract: any plan node's output,
// whether materialized or a row-id projection over another table.
type Table interface {
	Name() string
	Schema() Schema
	Partitions(ctx context.Context) (PartitionIter, error)
	PartitionRows(ctx context.Context, p Partition) (RowIter, error)
}

// Partition is an opaque chunk of a Table's rows; the storage layer decides what
// a partition is (a page range, a file, a single synthetic chunk for a purely
// in-memory table). The core never inspects its contents.
type Partition interface {
	Key() []byte
}

// PartitionIter enumerates a Table's Partitions.
type PartitionIter interface {
	Next(ctx context.Context) (Partition, error)
	Close(ctx context.Context) error
}

// DataTableDef is the catalog's physical definition of a base table: its schema,
// constraints and the handle used to mutate it. The core consults it during
// prepare (to validate columns and constraints) and evaluate (to insert/update/
// delete rows) but never reaches past it into file/b-tree internals.
type DataTableDef interface {
	Table
	PrimaryKey() []string
	UniqueGroups() [][]string
	ForeignKeys() []ForeignKey
	Checks() []CheckConstraint
	Insert(ctx context.Context, row Row) error
	Update(ctx context.Context, old, new Row) error
	Delete(ctx context.Context, row Row) error
	// SelectableSchemes returns the indices available for planning range/simple
	// selects in lieu of a full scan.
	SelectableSchemes() []SelectableScheme
}

// ForeignKey names a deferred referential constraint.
type ForeignKey struct {
	Name        string
	Columns     []string
	RefTable    string
	RefColumns  []string
	Deferred    bool
}

// CheckConstraint is a named boolean-valued constraint, checked at statement time
// or deferred to commit.
type CheckConstraint struct {
	Name     string
	Deferred bool
	// Evaluate is supplied by the exec layer once the check expression has been
	// prepared; the catalog only stores the constraint's identity and deferral.
	Evaluate func(ctx context.Context, row Row) (bool, error)
}

// SelectableScheme is an index on one or more columns, consulted by the plan
// evaluator's range-select/simple-select/simple-pattern-select nodes in place of
// an exhaustive scan.
type SelectableScheme interface {
	Columns() []string
	// Lookup returns rows whose indexed columns equal key exactly (simple-select).
	Lookup(ctx context.Context, key Row) (RowIter, error)
	// Range returns rows whose indexed leading column falls within [lo, hi]; a nil
	// bound is open-ended (range-select).
	Range(ctx context.Context, lo, hi interface{}, loInclusive, hiInclusive bool) (RowIter, error)
}

// Ref is a handle over the blob store: chunked
// write/read during upload/download, identified by (Type, TotalLength, ID).
type Ref interface {
	Type() types.Type
	TotalLength() int64
	ID() int64
	Write(ctx context.Context, offset int64, buf []byte) (int, error)
	Complete(ctx context.Context) error
	Read(ctx context.Context, offset int64, length int) ([]byte, error)
}

// Database groups the tables of one schema; the core asks it for DataTableDefs by
// name during from-set construction and DDL execution.
type Database interface {
	Name() string
	Table(ctx context.Context, name string) (DataTableDef, bool, error)
	TableNames(ctx context.Context) ([]string, error)
	CreateTable(ctx context.Context, name string, schema Schema) error
	DropTable(ctx context.Context, name string) error
}

// Provider resolves a schema name to its Database, the catalog-level named
// collaborator the From-set resolver and statement executors depend on.
type Provider interface {
	Database(ctx context.Context, name string) (Database, bool, error)
	AllDatabases(ctx context.Context) []Database
	CreateDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error
}
