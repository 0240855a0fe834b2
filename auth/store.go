// Package auth holds the read-only credential store consulted by sessions.
// Credentials come from the server configuration: an ordered list of users
// plus an optional distinguished admin. An empty password means the account
// needs no password at all.
package auth

import (
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// User is one configured credential pair.
type User struct {
	Name     string
	Password string
}

// Account is the result of a successful lookup. The secret never leaves
// the package; sessions only get Verify.
type Account struct {
	Name   string
	Admin  bool
	secret string
}

// NeedsPassword reports whether a PASS exchange is required before the
// session may authenticate.
func (a Account) NeedsPassword() bool {
	return a.secret != ""
}

// Verify compares the client-supplied password against the stored secret.
// Secrets with a bcrypt prefix are verified as hashes; everything else is
// compared literally.
func (a Account) Verify(password string) bool {
	if a.secret == "" {
		return password == ""
	}
	if strings.HasPrefix(a.secret, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(a.secret), []byte(password)) == nil
	}
	return a.secret == password
}

// Store is the credential store. It is shared read-only across all session
// goroutines; Reload swaps the whole snapshot, which is the only
// cross-session synchronization the server has.
type Store struct {
	mu    sync.RWMutex
	users []User
	admin *User
}

// NewStore builds a store from the configured users and optional admin.
func NewStore(users []User, admin *User) *Store {
	s := &Store{}
	s.Reload(users, admin)
	return s
}

// Reload replaces the credential snapshot. In-flight sessions keep whatever
// Account they already looked up; the next USER command sees the new set.
func (s *Store) Reload(users []User, admin *User) {
	cp := make([]User, len(users))
	copy(cp, users)
	var ad *User
	if admin != nil {
		a := *admin
		ad = &a
	}
	s.mu.Lock()
	s.users = cp
	s.admin = ad
	s.mu.Unlock()
}

// Lookup finds the account for a login name. The admin credential is
// checked first, then the user list in configuration order.
func (s *Store) Lookup(name string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.admin != nil && s.admin.Name == name {
		return Account{Name: name, Admin: true, secret: s.admin.Password}, true
	}
	for _, u := range s.users {
		if u.Name == name {
			return Account{Name: name, secret: u.Password}, true
		}
	}
	return Account{}, false
}

// HashPassword creates a bcrypt hash suitable for the configuration file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
