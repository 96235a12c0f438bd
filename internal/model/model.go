// Package model defines domain entities used by services and repositories.
package model

import (
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is a coarse permission granted to a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// DefaultRoles is assigned to every newly created account.
func DefaultRoles() []Role { return []Role{RoleUser} }

// Provider identifies the identity provider an account last signed in with.
type Provider string

const (
	ProviderNone   Provider = ""
	ProviderGoogle Provider = "GOOGLE"
	ProviderYandex Provider = "YANDEX"
)

// Valid reports whether p is a federated provider tag.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderYandex
}

// User represents an account stored on the server.
type User struct {
	ID           uuid.UUID // PK
	Email        string    // unique, case-sensitive as stored
	PasswordHash *string   // argon2id PHC string; nil for provider-only accounts
	Roles        []Role    // never empty
	Provider     Provider  // last provider used to sign in
	IsBlocked    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user holds r.
func (u *User) HasRole(r Role) bool { return slices.Contains(u.Roles, r) }

// RefreshToken is a long-lived single-use secret bound to a device slot.
type RefreshToken struct {
	Token     string    // opaque secret, unique
	UserID    uuid.UUID // FK -> users.id
	UserAgent string    // device slot together with UserID
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// TokenPair is produced per issuance event and handed to the transport.
type TokenPair struct {
	AccessToken     string
	AccessExpiresAt time.Time // access token expiry (for diagnostics)
	RefreshToken    RefreshToken
}
