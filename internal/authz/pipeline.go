// Package authz decides whether a request may reach an operation: public
// routes pass, everything else needs a valid bearer token and, when the
// operation names roles, one of them.
package authz

import (
	"context"
	"slices"
	"strings"

	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/and161185/authgate/internal/token"
	"github.com/gofrs/uuid/v5"
)

// Policy is attached to every operation when it is registered.
type Policy struct {
	Public bool
	Roles  []model.Role // any of; empty means any authenticated caller
}

// Public marks an operation reachable without a token.
func Public() Policy { return Policy{Public: true} }

// Authenticated requires a valid token and no particular role.
func Authenticated() Policy { return Policy{} }

// RequireRoles requires a valid token carrying at least one of roles.
func RequireRoles(roles ...model.Role) Policy { return Policy{Roles: roles} }

// Identity is what the pipeline trusts after verifying the token signature.
type Identity struct {
	ID    uuid.UUID
	Email string
	Roles []model.Role
}

// HasRole reports whether the identity carries r.
func (i Identity) HasRole(r model.Role) bool { return slices.Contains(i.Roles, r) }

// IsZero reports whether no caller was authenticated.
func (i Identity) IsZero() bool { return i.ID == uuid.Nil }

// Verifier checks an access token; *token.Signer implements it.
type Verifier interface {
	Verify(raw string) (*token.Claims, error)
}

// Pipeline evaluates policies against bearer tokens without touching storage.
type Pipeline struct {
	verifier Verifier
}

// NewPipeline constructs a Pipeline.
func NewPipeline(v Verifier) *Pipeline { return &Pipeline{verifier: v} }

// Authorize runs, in order: public bypass, token verification, role check.
// A public operation yields the zero Identity and no error.
func (p *Pipeline) Authorize(accessToken string, pol Policy) (Identity, error) {
	if pol.Public {
		return Identity{}, nil
	}
	if accessToken == "" {
		return Identity{}, errs.ErrUnauthorized
	}
	claims, err := p.verifier.Verify(accessToken)
	if err != nil {
		return Identity{}, errs.ErrUnauthorized
	}
	id, err := uuid.FromString(claims.ID)
	if err != nil {
		return Identity{}, errs.ErrUnauthorized
	}
	ident := Identity{ID: id, Email: claims.Email, Roles: claims.Roles}
	if len(pol.Roles) > 0 && !slices.ContainsFunc(pol.Roles, ident.HasRole) {
		return Identity{}, errs.ErrForbidden
	}
	return ident, nil
}

// CanActOn allows acting on target when it is the caller's own record or the
// caller is an admin.
func CanActOn(actor Identity, target uuid.UUID) error {
	if actor.IsZero() {
		return errs.ErrUnauthorized
	}
	if actor.ID == target || actor.HasRole(model.RoleAdmin) {
		return nil
	}
	return errs.ErrForbidden
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(header[7:])
	return t, t != ""
}

type ctxKey string

const identityKey ctxKey = "authgate.identity"

// WithIdentity stores the authenticated identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext fetches the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && !id.IsZero()
}
