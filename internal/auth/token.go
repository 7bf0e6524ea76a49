package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL bounds a bearer token's lifetime. There is no refresh
// mechanism; callers re-authenticate after expiry.
const DefaultTokenTTL = 20 * time.Minute

// TokenSettings is an immutable snapshot of the signing configuration.
type TokenSettings struct {
	Key      []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

func (s *TokenSettings) validate() error {
	if len(s.Key) == 0 {
		return errors.New("signing key is required")
	}
	if strings.TrimSpace(s.Issuer) == "" {
		return errors.New("issuer is required")
	}
	if strings.TrimSpace(s.Audience) == "" {
		return errors.New("audience is required")
	}
	return nil
}

// Claims is the verified claim bundle carried by a bearer token.
type Claims struct {
	Role   string   `json:"role"`
	Scopes []string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Username returns the token subject.
func (c *Claims) Username() string { return c.Subject }

// HasScope reports whether the claim bundle carries the named scope.
func (c *Claims) HasScope(name string) bool {
	for _, s := range c.Scopes {
		if s == name {
			return true
		}
	}
	return false
}

// IsAdministrator reports whether the role claim is the administrator role.
func (c *Claims) IsAdministrator() bool {
	return strings.EqualFold(c.Role, RoleAdministrator)
}

// Issuer signs and verifies HS256 bearer tokens. The settings snapshot is
// swapped atomically so issuance and verification always read a consistent
// key/issuer/audience triple, and the configuration can be reloaded at
// runtime without a restart.
type Issuer struct {
	settings atomic.Pointer[TokenSettings]
	now      func() time.Time
}

// NewIssuer constructs an Issuer from an initial settings snapshot.
func NewIssuer(settings TokenSettings) (*Issuer, error) {
	if settings.TTL <= 0 {
		settings.TTL = DefaultTokenTTL
	}
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("token settings: %w", err)
	}
	iss := &Issuer{now: time.Now}
	iss.settings.Store(&settings)
	return iss, nil
}

// Reload swaps the settings snapshot. In-flight calls finish with the
// snapshot they already read.
func (i *Issuer) Reload(settings TokenSettings) error {
	if settings.TTL <= 0 {
		settings.TTL = DefaultTokenTTL
	}
	if err := settings.validate(); err != nil {
		return fmt.Errorf("token settings: %w", err)
	}
	i.settings.Store(&settings)
	return nil
}

// WithClock overrides the time source. Intended for tests.
func (i *Issuer) WithClock(fn func() time.Time) *Issuer {
	if fn != nil {
		i.now = fn
	}
	return i
}

// Issue signs a token embedding the subject, a single role claim and one
// scope claim entry per non-blank scope. A token without an identity or a
// role must never exist, so blank username or role is an error.
func (i *Issuer) Issue(username, role string, scopes []string) (string, error) {
	username = strings.TrimSpace(username)
	role = strings.TrimSpace(role)
	if username == "" || role == "" {
		return "", fmt.Errorf("%w: username and role are required", ErrInvalidInput)
	}

	cfg := i.settings.Load()
	now := i.now().UTC()

	var kept []string
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		kept = append(kept, scope)
	}

	claims := Claims{
		Role:   role,
		Scopes: kept,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.Key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies signature, signing method, issuer, audience and
// lifetime, returning the decoded claims.
func (i *Issuer) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	cfg := i.settings.Load()

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return cfg.Key, nil
	},
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.Role) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
