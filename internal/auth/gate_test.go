package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rgeddes/contentd/internal/log"
)

type loginCounter struct {
	mu      sync.Mutex
	results map[string]int
}

func (c *loginCounter) IncLogin(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = map[string]int{}
	}
	c.results[result]++
}

func (c *loginCounter) count(result string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[result]
}

func newTestGate(t *testing.T, opts GateOptions) (*Gate, *UserStore) {
	t.Helper()
	users, err := LoadUserStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("LoadUserStore: %v", err)
	}
	if err := users.Seed("admin", "hunter22", bcrypt.MinCost); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	opts.Users = users
	if opts.Secret == nil {
		opts.Secret = []byte("0123456789abcdef")
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.MinCost
	}
	g, err := NewGate(opts)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g, users
}

func TestNewGate_RejectsShortSecret(t *testing.T) {
	_, err := NewGate(GateOptions{Secret: []byte("short")})
	if err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestGate_LoginSuccess(t *testing.T) {
	g, users := newTestGate(t, GateOptions{Logger: log.Nop()})
	ctx := context.Background()

	info, token, err := g.Login(ctx, "admin", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("no token issued")
	}
	if info.Username != "admin" || !info.Active {
		t.Fatalf("UserInfo = %+v", info)
	}
	if info.LastLogin == nil {
		t.Fatal("LastLogin not set on response")
	}

	// lastLogin was persisted to the store
	u, _ := users.find("admin")
	if u.LastLogin == nil {
		t.Fatal("lastLogin not persisted")
	}
}

func TestGate_LoginFailures(t *testing.T) {
	m := &loginCounter{}
	g, users := newTestGate(t, GateOptions{Logger: log.Nop(), Metrics: m})
	ctx := context.Background()

	// deactivated account
	u, _ := users.find("admin")
	u.Active = false
	users.mu.Lock()
	users.users["inactive"] = User{Username: "inactive", PasswordHash: u.PasswordHash, Active: false}
	users.mu.Unlock()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "admin", "wrong"},
		{"unknown user", "ghost", "hunter22"},
		{"inactive user", "inactive", "hunter22"},
		{"empty password", "admin", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := g.Login(ctx, tt.username, tt.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Login = %v, want ErrInvalidCredentials", err)
			}
		})
	}
	if m.count("failure") != len(tests) {
		t.Fatalf("failure metric = %d, want %d", m.count("failure"), len(tests))
	}
}

func TestGate_RepeatLoginsAreIndependent(t *testing.T) {
	g, _ := newTestGate(t, GateOptions{Logger: log.Nop()})
	ctx := context.Background()

	_, tok1, err := g.Login(ctx, "admin", "hunter22")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	_, tok2, err := g.Login(ctx, "admin", "hunter22")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if tok1 == tok2 {
		t.Fatal("repeat logins issued identical tokens")
	}
	// the first session keeps working after the second login
	if _, err := g.Verify(tok1); err != nil {
		t.Fatalf("Verify(tok1) after re-login: %v", err)
	}
	if _, err := g.Verify(tok2); err != nil {
		t.Fatalf("Verify(tok2): %v", err)
	}
}

func TestGate_Verify(t *testing.T) {
	g, users := newTestGate(t, GateOptions{Logger: log.Nop()})
	ctx := context.Background()

	_, token, err := g.Login(ctx, "admin", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	username, err := g.Verify(token)
	if err != nil || username != "admin" {
		t.Fatalf("Verify = (%q, %v)", username, err)
	}

	for _, bad := range []string{"", "garbage", token + "x"} {
		if _, err := g.Verify(bad); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Verify(%q) = %v, want ErrUnauthorized", bad, err)
		}
	}

	// token signed under a different secret
	other, err := NewGate(GateOptions{Users: users, Secret: []byte("another-secret-value")})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	foreign, err := other.issueToken("admin")
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	if _, err := g.Verify(foreign); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Verify(foreign) = %v, want ErrUnauthorized", err)
	}
}

func TestGate_VerifyExpiredToken(t *testing.T) {
	g, _ := newTestGate(t, GateOptions{Logger: log.Nop(), TokenTTL: time.Millisecond})
	ctx := context.Background()

	_, token, err := g.Login(ctx, "admin", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := g.Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Verify expired = %v, want ErrUnauthorized", err)
	}
}

func TestGate_VerifyRejectsDeactivatedUser(t *testing.T) {
	g, users := newTestGate(t, GateOptions{Logger: log.Nop()})
	ctx := context.Background()

	_, token, err := g.Login(ctx, "admin", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	users.mu.Lock()
	u := users.users["admin"]
	u.Active = false
	users.users["admin"] = u
	users.mu.Unlock()

	if _, err := g.Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Verify for deactivated user = %v, want ErrUnauthorized", err)
	}
}

func TestGate_ChangePassword(t *testing.T) {
	g, _ := newTestGate(t, GateOptions{Logger: log.Nop()})
	ctx := context.Background()

	// exactly one under the minimum
	err := g.ChangePassword(ctx, "admin", "hunter22", "12345")
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("5-char password = %v, want ErrPasswordTooShort", err)
	}

	if err := g.ChangePassword(ctx, "admin", "wrong-old", "123456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong old password = %v, want ErrInvalidCredentials", err)
	}

	// exactly the minimum is accepted
	if err := g.ChangePassword(ctx, "admin", "hunter22", "123456"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, _, err := g.Login(ctx, "admin", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, _, err := g.Login(ctx, "admin", "123456"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}
