package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/auth"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/session"
	"github.com/relcore/relcore/types"
)

type fakeTable struct {
	name   string
	schema catalog.Schema
	rows   []catalog.Row
}

func (f *fakeTable) Name() string          { return f.name }
func (f *fakeTable) Schema() catalog.Schema { return f.schema }
func (f *fakeTable) Partitions(ctx context.Context) (catalog.PartitionIter, error) {
	return &singlePartitionIter{}, nil
}
func (f *fakeTable) PartitionRows(ctx context.Context, p catalog.Partition) (catalog.RowIter, error) {
	return &fakeRowIter{rows: f.rows}, nil
}
func (f *fakeTable) PrimaryKey() []string                                    { return nil }
func (f *fakeTable) UniqueGroups() [][]string                                { return nil }
func (f *fakeTable) ForeignKeys() []catalog.ForeignKey                       { return nil }
func (f *fakeTable) Checks() []catalog.CheckConstraint                       { return nil }
func (f *fakeTable) Insert(ctx context.Context, row catalog.Row) error       { f.rows = append(f.rows, row); return nil }
func (f *fakeTable) Update(ctx context.Context, old, new catalog.Row) error  { return nil }
func (f *fakeTable) Delete(ctx context.Context, row catalog.Row) error       { return nil }
func (f *fakeTable) SelectableSchemes() []catalog.SelectableScheme           { return nil }

type singlePartitionIter struct{ done bool }

func (s *singlePartitionIter) Next(ctx context.Context) (catalog.Partition, error) {
	if s.done {
		return nil, catalog.ErrIterDone
	}
	s.done = true
	return fakePartition{}, nil
}
func (s *singlePartitionIter) Close(ctx context.Context) error { return nil }

type fakePartition struct{}

func (fakePartition) Key() []byte { return nil }

type fakeRowIter struct {
	rows []catalog.Row
	pos  int
}

func (f *fakeRowIter) Next(ctx context.Context) (catalog.Row, error) {
	if f.pos >= len(f.rows) {
		return nil, catalog.ErrIterDone
	}
	r := f.rows[f.pos]
	f.pos++
	return r, nil
}
func (f *fakeRowIter) Close(ctx context.Context) error { return nil }

type fakeDatabase struct {
	name   string
	tables map[string]*fakeTable
}

func (d *fakeDatabase) Name() string { return d.name }
func (d *fakeDatabase) Table(ctx context.Context, name string) (catalog.DataTableDef, bool, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, false, nil
	}
	return t, true, nil
}
func (d *fakeDatabase) TableNames(ctx context.Context) ([]string, error) {
	var names []string
	for n := range d.tables {
		names = append(names, n)
	}
	return names, nil
}
func (d *fakeDatabase) CreateTable(ctx context.Context, name string, schema catalog.Schema) error {
	d.tables[name] = &fakeTable{name: name, schema: schema}
	return nil
}
func (d *fakeDatabase) DropTable(ctx context.Context, name string) error {
	delete(d.tables, name)
	return nil
}

type fakeTransaction struct {
	committed, rolledBack bool
}

func (t *fakeTransaction) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTransaction) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }
func (t *fakeTransaction) Defer(c catalog.DeferredConstraint) {}

type fakeConglomerate struct {
	dbs  map[string]*fakeDatabase
	last *fakeTransaction
}

func newFakeConglomerate() *fakeConglomerate {
	return &fakeConglomerate{dbs: map[string]*fakeDatabase{
		"main": {name: "main", tables: map[string]*fakeTable{}},
	}}
}

func (c *fakeConglomerate) Database(ctx context.Context, name string) (catalog.Database, bool, error) {
	db, ok := c.dbs[name]
	if !ok {
		return nil, false, nil
	}
	return db, true, nil
}
func (c *fakeConglomerate) AllDatabases(ctx context.Context) []catalog.Database {
	var dbs []catalog.Database
	for _, d := range c.dbs {
		dbs = append(dbs, d)
	}
	return dbs
}
func (c *fakeConglomerate) CreateDatabase(ctx context.Context, name string) error {
	c.dbs[name] = &fakeDatabase{name: name, tables: map[string]*fakeTable{}}
	return nil
}
func (c *fakeConglomerate) DropDatabase(ctx context.Context, name string) error {
	delete(c.dbs, name)
	return nil
}
func (c *fakeConglomerate) Begin(ctx context.Context) (catalog.Transaction, error) {
	t := &fakeTransaction{}
	c.last = t
	return t, nil
}
func (c *fakeConglomerate) NewRef(ctx context.Context, typ types.Type, totalLength int64) (catalog.Ref, error) {
	return nil, nil
}
func (c *fakeConglomerate) Sync(ctx context.Context) error                { return nil }
func (c *fakeConglomerate) AddCommitListener(l catalog.CommitListener)    {}

func newTestContext() (*session.Context, *fakeConglomerate) {
	cong := newFakeConglomerate()
	shared := session.NewShared(cong, &auth.None{}, auth.NewNativeSingle("tester", "", auth.AllPermissions), nil)
	return session.NewContext(shared, 1, "tester", "main"), cong
}

func TestExecuteCreateTableThenDropTable(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, _ := newTestContext()

	_, err := c.Execute(ctx, &ast.CreateTableStatement{Table: "widgets", Columns: []ast.ColumnDef{{Name: "ID", Type: types.Integer}}}, "create table")
	require.NoError(err)

	_, err = c.Execute(ctx, &ast.DropTableStatement{Table: "widgets"}, "drop table")
	require.NoError(err)
}

func TestSetAutocommitAndExplicitTransaction(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, _ := newTestContext()

	rs, err := c.Execute(ctx, &ast.CompleteTransactionStatement{Kind: ast.TxnBegin}, "begin")
	require.NoError(err)
	require.NotNil(rs)

	rs, err = c.Execute(ctx, &ast.CompleteTransactionStatement{Kind: ast.TxnCommit}, "commit")
	require.NoError(err)
	require.NotNil(rs)
}

func TestCloseRollsBackOpenTransaction(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, cong := newTestContext()

	_, err := c.Execute(ctx, &ast.CompleteTransactionStatement{Kind: ast.TxnBegin}, "begin")
	require.NoError(err)
	require.NoError(c.Close(ctx))
	require.True(cong.last.rolledBack)
}
