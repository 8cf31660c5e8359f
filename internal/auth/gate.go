package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rgeddes/contentd/internal/log"
	"github.com/rgeddes/contentd/internal/xerrors"
)

// MinPasswordLen is the minimum accepted length for a new password.
const MinPasswordLen = 6

var (
	// ErrInvalidCredentials covers unknown username, inactive account, and
	// secret mismatch alike, so responses never reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized means a missing, malformed, or expired bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPasswordTooShort rejects new passwords under MinPasswordLen.
	ErrPasswordTooShort = errors.New("new password too short")
)

// GateMetrics observes authentication outcomes.
type GateMetrics interface {
	IncLogin(result string)
}

// GateOptions configures a Gate.
type GateOptions struct {
	Users      *UserStore
	Secret     []byte // HS256 signing key, required
	TokenTTL   time.Duration
	BcryptCost int
	Logger     log.Logger
	Metrics    GateMetrics
}

// Gate authenticates admin users and issues stateless bearer tokens. Only
// active users can log in; tokens carry the username and expire after the
// configured TTL, with no server-side session list to revoke.
type Gate struct {
	users   *UserStore
	secret  []byte
	ttl     time.Duration
	cost    int
	logger  log.Logger
	metrics GateMetrics
}

// NewGate validates the signing secret and returns a Gate.
func NewGate(opts GateOptions) (*Gate, error) {
	if len(opts.Secret) < 16 {
		return nil, xerrors.New("auth secret must be at least 16 bytes")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Gate{
		users:   opts.Users,
		secret:  opts.Secret,
		ttl:     opts.TokenTTL,
		cost:    opts.BcryptCost,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Login checks credentials and issues a token. lastLogin is updated
// best-effort: a failure to persist it is logged and does not fail the
// login. Repeat logins with the same credentials each succeed and get
// independent tokens (stateless, no single-session enforcement).
func (g *Gate) Login(ctx context.Context, username, password string) (UserInfo, string, error) {
	u, ok := g.users.find(username)
	if !ok || !u.Active {
		// burn a bcrypt comparison anyway so unknown and known usernames
		// take comparable time
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0123456789012345678901uFJCaevuGxWp1Nv6zZbFDAMwth9Fmsa"), []byte(password))
		g.incLogin("failure")
		return UserInfo{}, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		g.incLogin("failure")
		return UserInfo{}, "", ErrInvalidCredentials
	}

	token, err := g.issueToken(username)
	if err != nil {
		g.incLogin("error")
		return UserInfo{}, "", err
	}

	now := time.Now().UTC()
	if err := g.users.setLastLogin(username, now); err != nil {
		g.logger.Warn(ctx, "failed to persist lastLogin", "username", username, "error", err)
	}

	g.incLogin("success")
	g.logger.Info(ctx, "login succeeded", "username", username)
	u.LastLogin = &now
	return u.info(), token, nil
}

// Verify parses a bearer token and returns the username it was issued to.
func (g *Gate) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, xerrors.Newf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrUnauthorized
	}
	// the account must still be active at verification time
	if u, found := g.users.find(claims.Subject); !found || !u.Active {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// ChangePassword re-hashes after checking the old credentials against an
// active user. New passwords must be at least MinPasswordLen characters.
func (g *Gate) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLen {
		return ErrPasswordTooShort
	}
	u, ok := g.users.find(username)
	if !ok || !u.Active {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), g.cost)
	if err != nil {
		return xerrors.Wrap(err, "hash new password")
	}
	if err := g.users.setPasswordHash(username, string(hash)); err != nil {
		return xerrors.Wrap(err, "persist new password")
	}
	g.logger.Info(ctx, "password changed", "username", username)
	return nil
}

func (g *Gate) issueToken(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", xerrors.Wrap(err, "sign token")
	}
	return signed, nil
}

func (g *Gate) incLogin(result string) {
	if g.metrics != nil {
		g.metrics.IncLogin(result)
	}
}
