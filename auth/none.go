package auth

// None is an Auth method that always succeeds, matching go-mysql-server's
// no-authentication test double.
type None struct{}

// Authenticate implements Auth.
func (n *None) Authenticate(user, password string) error { return nil }

// Allowed implements Auth.
func (n *None) Allowed(user string, permission Permission) error { return nil }
