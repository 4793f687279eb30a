// Package auth issues and verifies bearer tokens for the static user
// set declared in configuration.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient role")
	ErrRateLimited        = errors.New("too many login attempts")
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	defaultTokenTTL = 60 * time.Minute
)

// User is one configured account.
type User struct {
	Username string
	Password string
	Role     string
}

// Options configures an Authenticator.
type Options struct {
	// TokenTTL bounds token lifetime; defaults to one hour.
	TokenTTL time.Duration

	// LoginPerMinute caps login attempts per username; 0 disables
	// the limiter.
	LoginPerMinute int
}

// Authenticator checks credentials and mints HS256 tokens.
type Authenticator struct {
	secret   []byte
	users    map[string]User
	tokenTTL time.Duration

	limitPerMinute int
	limitMu        stdsync.Mutex
	limiters       map[string]*rate.Limiter
}

func New(secret string, users []User, opts Options) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	byName := make(map[string]User, len(users))
	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("user with empty username")
		}
		if _, dup := byName[u.Username]; dup {
			return nil, fmt.Errorf("duplicate user %q", u.Username)
		}
		if u.Role == "" {
			u.Role = RoleUser
		}
		byName[u.Username] = u
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{
		secret:         []byte(secret),
		users:          byName,
		tokenTTL:       ttl,
		limitPerMinute: opts.LoginPerMinute,
		limiters:       map[string]*rate.Limiter{},
	}, nil
}

// Claims is the verified identity carried by a token.
type Claims struct {
	Username string
	Role     string
}

// Login verifies credentials and returns a signed access token.
func (a *Authenticator) Login(username, password string) (string, error) {
	if !a.allowAttempt(username) {
		return "", ErrRateLimited
	}

	u, ok := a.users[username]
	// Compare even for unknown users so the two failure modes are not
	// distinguishable by timing.
	expected := u.Password
	match := subtle.ConstantTimeCompare([]byte(expected), []byte(password)) == 1
	if !ok || !match {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  u.Username,
		"role": u.Role,
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(a.tokenTTL).Unix(),
	})
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and resolves it back to a configured user.
// A token for a user that has since been removed is rejected.
func (a *Authenticator) Verify(token string) (Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Claims{}, ErrInvalidToken
	}
	u, ok := a.users[sub]
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	return Claims{Username: u.Username, Role: u.Role}, nil
}

// RequireRole returns ErrForbidden unless the claims carry the role.
// Admins pass every check.
func RequireRole(c Claims, role string) error {
	if c.Role == role || c.Role == RoleAdmin {
		return nil
	}
	return fmt.Errorf("%w: need %s", ErrForbidden, role)
}

func (a *Authenticator) allowAttempt(username string) bool {
	if a.limitPerMinute <= 0 {
		return true
	}
	a.limitMu.Lock()
	lim, ok := a.limiters[username]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(a.limitPerMinute)/60.0), a.limitPerMinute)
		a.limiters[username] = lim
	}
	a.limitMu.Unlock()
	return lim.Allow()
}
