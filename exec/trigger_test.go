package exec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/exec"
)

type fakeTriggerTable struct{ name string }

func (f fakeTriggerTable) Name() string          { return f.name }
func (f fakeTriggerTable) Schema() catalog.Schema { return catalog.Schema{} }
func (f fakeTriggerTable) Partitions(ctx context.Context) (catalog.PartitionIter, error) {
	return nil, nil
}
func (f fakeTriggerTable) PartitionRows(ctx context.Context, p catalog.Partition) (catalog.RowIter, error) {
	return nil, nil
}
func (f fakeTriggerTable) PrimaryKey() []string                                 { return nil }
func (f fakeTriggerTable) UniqueGroups() [][]string                            { return nil }
func (f fakeTriggerTable) ForeignKeys() []catalog.ForeignKey                   { return nil }
func (f fakeTriggerTable) Checks() []catalog.CheckConstraint                   { return nil }
func (f fakeTriggerTable) Insert(ctx context.Context, row catalog.Row) error   { return nil }
func (f fakeTriggerTable) Update(ctx context.Context, old, new catalog.Row) error { return nil }
func (f fakeTriggerTable) Delete(ctx context.Context, row catalog.Row) error   { return nil }
func (f fakeTriggerTable) SelectableSchemes() []catalog.SelectableScheme       { return nil }

type fakeTriggerDB struct{}

func (fakeTriggerDB) Name() string { return "db" }
func (fakeTriggerDB) Table(ctx context.Context, name string) (catalog.DataTableDef, bool, error) {
	if name != "orders" {
		return nil, false, nil
	}
	return fakeTriggerTable{name: name}, true, nil
}
func (fakeTriggerDB) TableNames(ctx context.Context) ([]string, error) { return nil, nil }
func (fakeTriggerDB) CreateTable(ctx context.Context, name string, s catalog.Schema) error {
	return nil
}
func (fakeTriggerDB) DropTable(ctx context.Context, name string) error { return nil }

func TestTriggerRegistryLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	tr := exec.NewTriggerRegistry()

	c := exec.NewCreateTrigger(&ast.CreateTriggerStatement{
		Name:   "t1",
		Table:  "orders",
		Timing: ast.TriggerAfter,
		Event:  ast.TriggerInsert,
		Body:   ast.NewStatementTree(""),
	})
	ec := &exec.ExecContext{DB: fakeTriggerDB{}, Triggers: tr}
	require.NoError(c.Prepare(ctx, ec))
	_, _, err := c.Evaluate(ctx, ec)
	require.NoError(err)

	bodies := tr.Lookup("orders", ast.TriggerAfter, ast.TriggerInsert)
	require.Len(bodies, 1)
	require.Empty(tr.Lookup("orders", ast.TriggerBefore, ast.TriggerInsert))

	d := exec.NewDropTrigger(&ast.DropTriggerStatement{Name: "t1"})
	require.NoError(d.Prepare(ctx, ec))
	_, _, err = d.Evaluate(ctx, ec)
	require.NoError(err)
	require.Empty(tr.Lookup("orders", ast.TriggerAfter, ast.TriggerInsert))
}

func TestFunctionRegistryLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	fr := exec.NewFunctionRegistry()
	ec := &exec.ExecContext{Functions: fr}

	c := exec.NewCreateFunction(&ast.CreateFunctionStatement{
		Name:   "f1",
		Params: []string{"a", "b"},
		Body:   ast.NewStatementTree(""),
	})
	require.NoError(c.Prepare(ctx, ec))
	_, _, err := c.Evaluate(ctx, ec)
	require.NoError(err)

	params, _, ok := fr.Lookup("f1")
	require.True(ok)
	require.Equal([]string{"a", "b"}, params)

	d := exec.NewDropFunction(&ast.DropFunctionStatement{Name: "f1"})
	require.NoError(d.Prepare(ctx, ec))
	_, _, err = d.Evaluate(ctx, ec)
	require.NoError(err)

	_, _, ok = fr.Lookup("f1")
	require.False(ok)
}
