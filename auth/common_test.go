package auth_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/auth"
)

type authenticationTest struct {
	user     string
	password string
	success  bool
}

func testAuthentication(
	t *testing.T,
	a auth.Auth,
	tests []authenticationTest,
	extra func(t *testing.T, c authenticationTest),
) {
	t.Helper()

	for _, c := range tests {
		t.Run(fmt.Sprintf("%s-%s", c.user, c.password), func(t *testing.T) {
			r := require.New(t)

			err := a.Authenticate(c.user, c.password)
			if c.success {
				r.NoError(err)
			} else {
				r.Error(err)
			}

			if extra != nil {
				extra(t, c)
			}
		})
	}
}

var permissionsByQuery = map[string]auth.Permission{
	"select":       auth.ReadPerm,
	"create_index": auth.WritePerm,
	"drop_index":   auth.WritePerm,
	"insert":       auth.WritePerm,
	"lock":         auth.WritePerm,
	"unlock":       auth.WritePerm,
}

var queries = map[string]string{
	"select":       "select",
	"create_index": "create_index",
	"drop_index":   "drop_index",
	"insert":       "insert",
	"lock":         "lock",
	"unlock":       "unlock",
}

type authorizationTest struct {
	user    string
	query   string
	success bool
}

func testAuthorization(
	t *testing.T,
	a auth.Auth,
	tests []authorizationTest,
	extra func(t *testing.T, c authorizationTest),
) {
	t.Helper()

	for _, c := range tests {
		t.Run(fmt.Sprintf("%s-%s", c.user, c.query), func(t *testing.T) {
			req := require.New(t)

			err := a.Allowed(c.user, permissionsByQuery[c.query])
			if c.success {
				req.NoError(err)
				return
			}

			req.Error(err)
			if extra != nil {
				extra(t, c)
			} else {
				req.True(auth.ErrNotAuthorized.Is(err))
			}
		})
	}
}
