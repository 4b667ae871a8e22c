// exec/priv.go implements PrivManager and UserManager executor
// kinds.
package exec

import (
	"sync"

	"context"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/auth"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
)

// grantKey identifies one (schema, table, column) grant target; column is ""
// for a table-wide or schema-wide grant.
type grantKey struct {
	schema, table, column string
}

// GrantTable holds the fine-grained privilege bitmask per (user, schema,
// table, column), reusing ast.Privilege's bitmask for
// SELECT/INSERT/UPDATE/DELETE/REFERENCES.
type GrantTable struct {
	mu     sync.RWMutex
	grants map[string]map[grantKey]ast.Privilege
}

func NewGrantTable() *GrantTable {
	return &GrantTable{grants: map[string]map[grantKey]ast.Privilege{}}
}

func (g *GrantTable) grant(user string, k grantKey, p ast.Privilege) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.grants[user] == nil {
		g.grants[user] = map[grantKey]ast.Privilege{}
	}
	g.grants[user][k] |= p
}

func (g *GrantTable) revoke(user string, k grantKey, p ast.Privilege) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.grants[user] == nil {
		return
	}
	g.grants[user][k] &^= p
}

// Check implements the PrivilegeChecker contract every DML executor consults.
// A grant at the table level (column == "") satisfies any column-qualified
// check against that table, matching "column-level for UPDATE"
// note (a table-wide UPDATE grant covers every column).
func (g *GrantTable) Check(ctx context.Context, user, schema, table, column string, priv ast.Privilege) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	byUser := g.grants[user]
	if byUser != nil {
		if byUser[grantKey{schema, table, ""}]&priv == priv {
			return nil
		}
		if column != "" && byUser[grantKey{schema, table, column}]&priv == priv {
			return nil
		}
	}
	return errs.ErrNoPrivilege.New(user, priv, table)
}

// GrantExecutor implements the PrivManager executor kind's GRANT form.
type GrantExecutor struct {
	Stmt *ast.GrantStatement
}

func NewGrant(stmt *ast.GrantStatement) *GrantExecutor { return &GrantExecutor{Stmt: stmt} }

func (g *GrantExecutor) Prepare(ctx context.Context, ec *ExecContext) error { return nil }

func (g *GrantExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.Grants == nil {
		return ast.EmptyResultSchema(), emptyResult(), nil
	}
	for _, grant := range g.Stmt.Grants {
		ec.Grants.grant(g.Stmt.Grantee, grantKey{grant.Schema, grant.Table, grant.Column}, grant.Privileges)
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

// RevokeExecutor implements the PrivManager executor kind's REVOKE form.
type RevokeExecutor struct {
	Stmt *ast.RevokeStatement
}

func NewRevoke(stmt *ast.RevokeStatement) *RevokeExecutor { return &RevokeExecutor{Stmt: stmt} }

func (r *RevokeExecutor) Prepare(ctx context.Context, ec *ExecContext) error { return nil }

func (r *RevokeExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.Grants == nil {
		return ast.EmptyResultSchema(), emptyResult(), nil
	}
	for _, grant := range r.Stmt.Grants {
		ec.Grants.revoke(r.Stmt.Grantee, grantKey{grant.Schema, grant.Table, grant.Column}, grant.Privileges)
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

// UserDirectory is the named collaborator the UserManager executor kind
// consults; session.Context backs it with the auth.Native user store so
// CREATE/ALTER/DROP USER take effect on the next LOGIN.
type UserDirectory interface {
	CreateUser(name, password string) error
	AlterUser(name, newPassword string) error
	DropUser(name string) error
}

// CreateUserExecutor / AlterUserExecutor / DropUserExecutor implement
// the UserManager executor kind.
type CreateUserExecutor struct {
	Stmt *ast.CreateUserStatement
	Dir  UserDirectory
}

func NewCreateUser(stmt *ast.CreateUserStatement, dir UserDirectory) *CreateUserExecutor {
	return &CreateUserExecutor{Stmt: stmt, Dir: dir}
}

func (c *CreateUserExecutor) Prepare(ctx context.Context, ec *ExecContext) error { return nil }

func (c *CreateUserExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if c.Dir != nil {
		if err := c.Dir.CreateUser(c.Stmt.Name, c.Stmt.Password); err != nil {
			return nil, nil, wrap(err, "create user")
		}
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

type AlterUserExecutor struct {
	Stmt *ast.AlterUserStatement
	Dir  UserDirectory
}

func NewAlterUser(stmt *ast.AlterUserStatement, dir UserDirectory) *AlterUserExecutor {
	return &AlterUserExecutor{Stmt: stmt, Dir: dir}
}

func (a *AlterUserExecutor) Prepare(ctx context.Context, ec *ExecContext) error { return nil }

func (a *AlterUserExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if a.Dir != nil {
		if err := a.Dir.AlterUser(a.Stmt.Name, a.Stmt.NewPassword); err != nil {
			return nil, nil, wrap(err, "alter user")
		}
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

type DropUserExecutor struct {
	Stmt *ast.DropUserStatement
	Dir  UserDirectory
}

func NewDropUser(stmt *ast.DropUserStatement, dir UserDirectory) *DropUserExecutor {
	return &DropUserExecutor{Stmt: stmt, Dir: dir}
}

func (d *DropUserExecutor) Prepare(ctx context.Context, ec *ExecContext) error { return nil }

func (d *DropUserExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if d.Dir != nil {
		if err := d.Dir.DropUser(d.Stmt.Name); err != nil {
			return nil, nil, wrap(err, "drop user")
		}
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

var _ auth.Permission // keep auth imported for the Permission<->Privilege mapping note below.

// PrivilegeForPermission maps the coarse auth.Permission model onto the
// fine-grained ast.Privilege bitmask GrantTable stores, so session.Context can
// consult either layer with one user-facing permission check.
func PrivilegeForPermission(p auth.Permission) ast.Privilege {
	if p&auth.WritePerm != 0 {
		return ast.PrivSelect | ast.PrivInsert | ast.PrivUpdate | ast.PrivDelete | ast.PrivReferences
	}
	return ast.PrivSelect
}
