package exec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/exec"
)

func TestGrantTableCheck(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	gt := exec.NewGrantTable()
	g := exec.NewGrant(&ast.GrantStatement{
		Grantee: "alice",
		Grants: []ast.PrivilegeGrant{
			{Privileges: ast.PrivSelect | ast.PrivUpdate, Schema: "s", Table: "t", Column: "c"},
		},
	})
	require.NoError(g.Prepare(ctx, &exec.ExecContext{Grants: gt}))
	_, _, err := g.Evaluate(ctx, &exec.ExecContext{Grants: gt})
	require.NoError(err)

	require.NoError(gt.Check(ctx, "alice", "s", "t", "c", ast.PrivSelect))
	require.Error(gt.Check(ctx, "alice", "s", "t", "c", ast.PrivDelete))
	require.Error(gt.Check(ctx, "alice", "s", "t", "other", ast.PrivSelect))
	require.Error(gt.Check(ctx, "bob", "s", "t", "c", ast.PrivSelect))

	r := exec.NewRevoke(&ast.RevokeStatement{
		Grantee: "alice",
		Grants: []ast.PrivilegeGrant{
			{Privileges: ast.PrivSelect, Schema: "s", Table: "t", Column: "c"},
		},
	})
	_, _, err = r.Evaluate(ctx, &exec.ExecContext{Grants: gt})
	require.NoError(err)
	require.Error(gt.Check(ctx, "alice", "s", "t", "c", ast.PrivSelect))
	require.NoError(gt.Check(ctx, "alice", "s", "t", "c", ast.PrivUpdate))
}

func TestGrantTableTableWideCoversColumn(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	gt := exec.NewGrantTable()
	gt2 := exec.NewGrant(&ast.GrantStatement{
		Grantee: "alice",
		Grants: []ast.PrivilegeGrant{
			{Privileges: ast.PrivUpdate, Schema: "s", Table: "t"},
		},
	})
	_, _, err := gt2.Evaluate(ctx, &exec.ExecContext{Grants: gt})
	require.NoError(err)
	require.NoError(gt.Check(ctx, "alice", "s", "t", "any_column", ast.PrivUpdate))
}

type fakeUserDirectory struct {
	created, altered, dropped string
}

func (f *fakeUserDirectory) CreateUser(name, password string) error { f.created = name; return nil }
func (f *fakeUserDirectory) AlterUser(name, newPassword string) error {
	f.altered = name
	return nil
}
func (f *fakeUserDirectory) DropUser(name string) error { f.dropped = name; return nil }

func TestUserManagerExecutors(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	dir := &fakeUserDirectory{}

	c := exec.NewCreateUser(&ast.CreateUserStatement{Name: "bob", Password: "pw"}, dir)
	_, _, err := c.Evaluate(ctx, &exec.ExecContext{})
	require.NoError(err)
	require.Equal("bob", dir.created)

	a := exec.NewAlterUser(&ast.AlterUserStatement{Name: "bob", NewPassword: "pw2"}, dir)
	_, _, err = a.Evaluate(ctx, &exec.ExecContext{})
	require.NoError(err)
	require.Equal("bob", dir.altered)

	d := exec.NewDropUser(&ast.DropUserStatement{Name: "bob"}, dir)
	_, _, err = d.Evaluate(ctx, &exec.ExecContext{})
	require.NoError(err)
	require.Equal("bob", dir.dropped)
}
