// Package auth is the gate in front of the content API's mutating
// operations: a JSON-file user store with bcrypt secrets, and stateless JWT
// bearer sessions. There is no lockout and no server-side revocation in this
// design; a token is valid until it expires. Known limitation, accepted for
// a low-traffic admin surface.
package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rgeddes/contentd/internal/xerrors"
)

// User is one admin account. PasswordHash is a bcrypt hash; the old site
// stored plaintext, which is explicitly not carried forward.
type User struct {
	Username     string     `json:"username"`
	PasswordHash string     `json:"passwordHash"`
	Active       bool       `json:"active"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

// UserInfo is the secret-free view returned to clients.
type UserInfo struct {
	Username  string     `json:"username"`
	Active    bool       `json:"active"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

func (u User) info() UserInfo {
	return UserInfo{Username: u.Username, Active: u.Active, LastLogin: u.LastLogin}
}

// UserStore is a process-scoped store backed by one JSON file, loaded at
// startup and rewritten atomically on change. Usernames are unique.
type UserStore struct {
	path string

	mu    sync.Mutex
	users map[string]User
}

// LoadUserStore reads the users file. A missing file yields an empty store;
// callers may seed it afterwards.
func LoadUserStore(path string) (*UserStore, error) {
	s := &UserStore{path: path, users: make(map[string]User)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, xerrors.Wrapf(err, "read users file %s", path)
	}
	var list []User
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, xerrors.Wrapf(err, "parse users file %s", path)
	}
	for _, u := range list {
		s.users[u.Username] = u
	}
	return s, nil
}

// Empty reports whether the store holds no users.
func (s *UserStore) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users) == 0
}

func (s *UserStore) find(username string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	return u, ok
}

// Seed creates an active user with the given password if the username is not
// already taken. Used to bootstrap the admin account on first start.
func (s *UserStore) Seed(username, password string, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return xerrors.Wrap(err, "hash seed password")
	}
	s.mu.Lock()
	if _, exists := s.users[username]; exists {
		s.mu.Unlock()
		return nil
	}
	s.users[username] = User{Username: username, PasswordHash: string(hash), Active: true}
	s.mu.Unlock()
	return s.persist()
}

// setLastLogin records a login time and persists. Persistence failures
// propagate so the caller can decide how much to care (login does not).
func (s *UserStore) setLastLogin(username string, t time.Time) error {
	s.mu.Lock()
	u, ok := s.users[username]
	if !ok {
		s.mu.Unlock()
		return xerrors.Newf("no such user %q", username)
	}
	u.LastLogin = &t
	s.users[username] = u
	s.mu.Unlock()
	return s.persist()
}

// setPasswordHash replaces a user's secret and persists.
func (s *UserStore) setPasswordHash(username, hash string) error {
	s.mu.Lock()
	u, ok := s.users[username]
	if !ok {
		s.mu.Unlock()
		return xerrors.Newf("no such user %q", username)
	}
	u.PasswordHash = hash
	s.users[username] = u
	s.mu.Unlock()
	return s.persist()
}

// persist rewrites the users file via temp-and-rename so a crash mid-write
// cannot lose the store.
func (s *UserStore) persist() error {
	s.mu.Lock()
	list := make([]User, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return xerrors.Wrap(err, "marshal users")
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return xerrors.Wrapf(err, "create temp in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return xerrors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return xerrors.Wrapf(err, "rename %s -> %s", tmpName, s.path)
	}
	return nil
}
