// Package token signs and verifies short-lived HS256 access tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/and161185/authgate/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the access token lifetime when none is configured.
const DefaultTTL = 5 * time.Minute

// ErrInvalid is returned for tokens with a bad signature, an unexpected
// algorithm, a malformed body, a foreign issuer, or a passed expiry.
var ErrInvalid = errors.New("invalid token")

// Claims is the identity carried inside an access token.
type Claims struct {
	ID    string       `json:"id"`
	Email string       `json:"email"`
	Roles []model.Role `json:"roles"`
	jwt.RegisteredClaims
}

// Signer issues and checks access tokens. It holds no mutable state.
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner constructs a Signer; ttl <= 0 falls back to DefaultTTL.
func NewSigner(key []byte, issuer string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{key: key, issuer: issuer, ttl: ttl, now: time.Now}
}

// TTL reports the configured access token lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Sign issues a token for claims with the configured TTL.
func (s *Signer) Sign(c Claims) (string, time.Time, error) {
	return s.SignWithTTL(c, s.ttl)
}

// SignWithTTL issues a token for claims valid for ttl.
func (s *Signer) SignWithTTL(c Claims, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.ID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(s.key)
	return signed, exp, err
}

// Verify checks signature, algorithm, issuer and expiry and returns the claims.
func (s *Signer) Verify(raw string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	},
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	return &claims, nil
}
