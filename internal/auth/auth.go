// Package auth provides the credential attached to engine requests.
//
// Two modes are supported:
//   - Static: a pre-issued bearer token sent as-is
//   - Minted: an HS256 JWT signed locally from a shared secret, re-minted
//     shortly before expiry
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoCredentials is returned by LoadCredentials when neither a token nor a
// signing secret is configured.
var ErrNoCredentials = errors.New("no engine credentials configured")

// refreshSkew is how long before expiry a minted token is replaced.
const refreshSkew = 30 * time.Second

// Credentials produces the Authorization header for engine requests.
type Credentials struct {
	token   string
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	minted    string
	expiresAt time.Time
}

// Options configures LoadCredentials.
type Options struct {
	Token     string        // Static bearer token
	JWTSecret string        // HS256 secret; takes precedence over Token
	Subject   string        // "sub" claim for minted tokens
	TTL       time.Duration // Lifetime of minted tokens
	Now       func() time.Time
}

// LoadCredentials builds Credentials from options.
func LoadCredentials(opts Options) (*Credentials, error) {
	if opts.Token == "" && opts.JWTSecret == "" {
		return nil, ErrNoCredentials
	}
	if opts.JWTSecret != "" && opts.TTL <= 0 {
		return nil, fmt.Errorf("jwt ttl must be positive, got %v", opts.TTL)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Credentials{
		token:   opts.Token,
		secret:  []byte(opts.JWTSecret),
		subject: opts.Subject,
		ttl:     opts.TTL,
		now:     now,
	}, nil
}

// Token returns the bearer token, minting a fresh JWT when needed.
func (c *Credentials) Token() (string, error) {
	if len(c.secret) == 0 {
		return c.token, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.minted != "" && now.Add(refreshSkew).Before(c.expiresAt) {
		return c.minted, nil
	}

	expiresAt := now.Add(c.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   c.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	c.minted = signed
	c.expiresAt = expiresAt
	return signed, nil
}

// Apply sets the Authorization header on h.
// A nil receiver leaves the header untouched.
func (c *Credentials) Apply(h http.Header) error {
	if c == nil {
		return nil
	}
	token, err := c.Token()
	if err != nil {
		return err
	}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// Redacted returns a description safe for logs and diagnostics.
func (c *Credentials) Redacted() string {
	switch {
	case c == nil:
		return "none"
	case len(c.secret) > 0:
		return "jwt(sub=" + c.subject + ")"
	default:
		return "bearer(****)"
	}
}
