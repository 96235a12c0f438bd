package token

import (
	"strings"
	"testing"
	"time"

	"github.com/and161185/authgate/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func sampleClaims() Claims {
	return Claims{ID: "0b6f1f5e-7c39-4c55-9a0c-7b6a3f0f9d10", Email: "a@example.com", Roles: []model.Role{model.RoleUser}}
}

func TestSigner_SignVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	s := NewSigner([]byte("secret"), "authgate", time.Minute)
	raw, exp, err := s.Sign(sampleClaims())
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	c, err := s.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "a@example.com", c.Email)
	require.Equal(t, []model.Role{model.RoleUser}, c.Roles)
	require.Equal(t, c.ID, c.Subject)
}

func TestSigner_DefaultTTL(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultTTL, NewSigner([]byte("k"), "", 0).TTL())
}

func TestSigner_Verify_Rejects(t *testing.T) {
	t.Parallel()

	s := NewSigner([]byte("secret"), "authgate", time.Minute)
	good, _, err := s.Sign(sampleClaims())
	require.NoError(t, err)

	expired, _, err := s.SignWithTTL(sampleClaims(), -time.Hour)
	require.NoError(t, err)

	foreignKey, _, err := NewSigner([]byte("other"), "authgate", time.Minute).Sign(sampleClaims())
	require.NoError(t, err)

	foreignIssuer, _, err := NewSigner([]byte("secret"), "someone-else", time.Minute).Sign(sampleClaims())
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, sampleClaims())
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	cases := map[string]string{
		"expired":        expired,
		"foreign key":    foreignKey,
		"foreign issuer": foreignIssuer,
		"alg none":       unsigned,
		"tampered":       tampered,
		"garbage":        "not-a-jwt",
		"empty":          "",
	}
	for name, raw := range cases {
		_, err := s.Verify(raw)
		require.ErrorIs(t, err, ErrInvalid, name)
	}
}

func TestSigner_Verify_WithinLeeway(t *testing.T) {
	t.Parallel()

	s := NewSigner([]byte("secret"), "authgate", time.Minute)
	raw, _, err := s.SignWithTTL(sampleClaims(), -10*time.Second)
	require.NoError(t, err)

	_, err = s.Verify(raw)
	require.NoError(t, err)
}
