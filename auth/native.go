package auth

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/src-d/go-errors.v1"
)

var (
	regNative = regexp.MustCompile(`^\*[0-9A-F]{40}$`)

	// ErrParseUserFile is given when user file is malformed.
	ErrParseUserFile = errors.NewKind("error parsing user file")
	// ErrUnknownPermission happens when a user permission is not defined.
	ErrUnknownPermission = errors.NewKind("unknown permission, %s")
	// ErrDuplicateUser happens when a user appears more than once.
	ErrDuplicateUser = errors.NewKind("duplicate user, %s")
)

// nativeUser holds information about credentials and permissions for a user.
type nativeUser struct {
	Name            string
	Password        string
	JSONPermissions []string `json:"Permissions"`
	Permissions     Permission
}

// allowed checks if the user has certain permission.
func (u nativeUser) allowed(p Permission) error {
	if u.Permissions&p == p {
		return nil
	}

	// permissions needed but not granted to the user
	p2 := (^u.Permissions) & p

	return ErrNotAuthorized.Wrap(ErrNoPermission.New(p2))
}

// NativePassword generates a salted-hash password string, the same
// double-SHA1 shape mysql_native_password uses.
func NativePassword(password string) string {
	if len(password) == 0 {
		return ""
	}

	// native = sha1(sha1(password))

	hash := sha1.New()
	hash.Write([]byte(password))
	s1 := hash.Sum(nil)

	hash.Reset()
	hash.Write(s1)
	s2 := hash.Sum(nil)

	s := strings.ToUpper(hex.EncodeToString(s2))

	return fmt.Sprintf("*%s", s)
}

// Native holds file- or memory-backed native-password users. The map is guarded by mu since the
// UserManager executor kind (exec/priv.go's CreateUser/AlterUser/DropUser)
// mutates it concurrently with LOGIN-time reads.
type Native struct {
	mu    sync.RWMutex
	users map[string]nativeUser
}

// NewNativeSingle creates a Native with a single user with given permissions.
func NewNativeSingle(name, password string, perm Permission) *Native {
	users := make(map[string]nativeUser)
	users[name] = nativeUser{
		Name:        name,
		Password:    NativePassword(password),
		Permissions: perm,
	}

	return &Native{users: users}
}

// NewNativeFile creates a Native and loads users from a JSON file.
func NewNativeFile(file string) (*Native, error) {
	var data []nativeUser

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, ErrParseUserFile.New(err)
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, ErrParseUserFile.New(err)
	}

	users := make(map[string]nativeUser)
	for _, u := range data {
		_, ok := users[u.Name]
		if ok {
			return nil, ErrParseUserFile.Wrap(ErrDuplicateUser.New(u.Name))
		}

		if !regNative.MatchString(u.Password) {
			u.Password = NativePassword(u.Password)
		}

		if len(u.JSONPermissions) == 0 {
			u.Permissions = DefaultPermissions
		}

		for _, p := range u.JSONPermissions {
			perm, ok := PermissionNames[strings.ToLower(p)]
			if !ok {
				return nil, ErrParseUserFile.Wrap(ErrUnknownPermission.New(p))
			}

			u.Permissions |= perm
		}

		users[u.Name] = u
	}

	return &Native{users: users}, nil
}

// Authenticate implements Auth. A user with an empty stored password accepts
// any password, matching go-mysql-server's anonymous-user convention.
func (s *Native) Authenticate(user, password string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[user]
	if !ok {
		return ErrAuthenticationFailed.New(user)
	}
	if u.Password != "" && u.Password != NativePassword(password) {
		return ErrAuthenticationFailed.New(user)
	}
	return nil
}

// Allowed implements Auth.
func (s *Native) Allowed(user string, permission Permission) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[user]
	if !ok {
		return ErrNotAuthorized.Wrap(ErrNoPermission.New(permission))
	}

	return u.allowed(permission)
}

// CreateUser, AlterUser and DropUser implement exec.UserDirectory, letting
// the UserManager executor kind (exec/priv.go) take effect against this same
// store that LOGIN authenticates against.
func (s *Native) CreateUser(name, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; ok {
		return ErrDuplicateUser.New(name)
	}
	s.users[name] = nativeUser{
		Name:        name,
		Password:    NativePassword(password),
		Permissions: DefaultPermissions,
	}
	return nil
}

func (s *Native) AlterUser(name, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	if !ok {
		return ErrAuthenticationFailed.New(name)
	}
	u.Password = NativePassword(newPassword)
	s.users[name] = u
	return nil
}

func (s *Native) DropUser(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; !ok {
		return ErrAuthenticationFailed.New(name)
	}
	delete(s.users, name)
	return nil
}
