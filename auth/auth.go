// Package auth implements per-connection authentication and the
// read/write permission check consulted ahead of every statement evaluate.
// exec.ExecContext's PrivilegeChecker named collaborator and exec/priv.go's
// finer-grained GRANT/REVOKE table both sit on top of this package's coarse
// Permission model.
//
// Grounded on go-mysql-server's auth package (auth/auth.go, auth/native.go,
// auth/none.go, auth/audit.go): same Permission bitmask, same
// gopkg.in/src-d/go-errors.v1 error-kind convention, same Audit-wraps-Auth
// shape. Its Allowed/Mysql split collapses to a single
// Authenticate/Allowed contract here since wire protocol is this
// engine's own opcode framing, not MySQL's (see DESIGN.md for why
// github.com/dolthub/vitess/go/mysql was dropped).
package auth

import (
	"strings"

	"gopkg.in/src-d/go-errors.v1"
)

// Permission holds permissions required by a query or granted to a user.
type Permission int

const (
	// ReadPerm means that it reads.
	ReadPerm Permission = 1 << iota
	// WritePerm means that it writes.
	WritePerm
)

var (
	// AllPermissions hold all defined permissions.
	AllPermissions = ReadPerm | WritePerm
	// DefaultPermissions are the permissions granted to a user if not defined.
	DefaultPermissions = ReadPerm

	// PermissionNames is used to translate from human to machine
	// representations.
	PermissionNames = map[string]Permission{
		"read":  ReadPerm,
		"write": WritePerm,
	}

	// ErrNotAuthorized is returned when the user is not allowed to use a
	// permission.
	ErrNotAuthorized = errors.NewKind("not authorized")
	// ErrNoPermission is returned when the user lacks needed permissions.
	ErrNoPermission = errors.NewKind("user does not have permission: %s")
	// ErrAuthenticationFailed is returned on a bad username/password pair
	// during LOGIN step.
	ErrAuthenticationFailed = errors.NewKind("authentication failed for user %q")
)

// String returns all the permissions set to on.
func (p Permission) String() string {
	var str []string
	for k, v := range PermissionNames {
		if p&v != 0 {
			str = append(str, k)
		}
	}

	return strings.Join(str, ", ")
}

// Auth authenticates a LOGIN command and checks a session's
// standing read/write permission ahead of every statement evaluate.
type Auth interface {
	// Authenticate validates a username/password pair, returning
	// ErrAuthenticationFailed on mismatch.
	Authenticate(user, password string) error
	// Allowed checks user's permissions against needed. If the user does not
	// have enough, it returns ErrNotAuthorized wrapping ErrNoPermission.
	Allowed(user string, permission Permission) error
}
