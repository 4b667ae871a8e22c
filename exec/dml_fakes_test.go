package exec_test

import (
	"context"
	"reflect"

	"github.com/relcore/relcore/catalog"
)

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

// fakeTableDef is a mutable in-memory DataTableDef: Insert/Update/Delete apply
// directly to rows so DML executors can be exercised end-to-end.
type fakeTableDef struct {
	name       string
	schema     catalog.Schema
	rows       []catalog.Row
	primaryKey []string
}

func (f *fakeTableDef) Name() string           { return f.name }
func (f *fakeTableDef) Schema() catalog.Schema { return f.schema }
func (f *fakeTableDef) Partitions(ctx context.Context) (catalog.PartitionIter, error) {
	return &singlePartitionIter{}, nil
}
func (f *fakeTableDef) PartitionRows(ctx context.Context, p catalog.Partition) (catalog.RowIter, error) {
	rows := make([]catalog.Row, len(f.rows))
	copy(rows, f.rows)
	return &fakeRowIter{rows: rows}, nil
}
func (f *fakeTableDef) PrimaryKey() []string              { return f.primaryKey }
func (f *fakeTableDef) UniqueGroups() [][]string           { return nil }
func (f *fakeTableDef) ForeignKeys() []catalog.ForeignKey  { return nil }
func (f *fakeTableDef) Checks() []catalog.CheckConstraint  { return nil }

func (f *fakeTableDef) Insert(ctx context.Context, row catalog.Row) error {
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeTableDef) Update(ctx context.Context, old, new catalog.Row) error {
	for i, r := range f.rows {
		if reflect.DeepEqual([]interface{}(r), []interface{}(old)) {
			f.rows[i] = new
			return nil
		}
	}
	return nil
}

func (f *fakeTableDef) Delete(ctx context.Context, row catalog.Row) error {
	for i, r := range f.rows {
		if reflect.DeepEqual([]interface{}(r), []interface{}(row)) {
			f.rows = append(f.rows[:i:i], f.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeTableDef) SelectableSchemes() []catalog.SelectableScheme { return nil }

type fakeDatabase struct {
	name   string
	tables map[string]*fakeTableDef
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{name: "main", tables: map[string]*fakeTableDef{}}
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
	d.tables[name] = &fakeTableDef{name: name, schema: schema}
	return nil
}

func (d *fakeDatabase) DropTable(ctx context.Context, name string) error {
	delete(d.tables, name)
	return nil
}
