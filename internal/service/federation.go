package service

import (
	"context"

	"github.com/and161185/authgate/internal/cache"
	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/and161185/authgate/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// FederationResolver maps a provider-verified email to a local user.
type FederationResolver struct {
	users repository.UserRepository
	cache *cache.Users
	log   *zap.Logger
}

// NewFederationResolver constructs a resolver; c may be nil.
func NewFederationResolver(users repository.UserRepository, c *cache.Users, log *zap.Logger) *FederationResolver {
	return &FederationResolver{users: users, cache: c, log: log}
}

// ResolveOrCreate returns the user owning email, creating a password-less
// USER account when none exists. For an existing account only the provider
// is updated; password and roles stay as they were. The email is trusted:
// verifying it with the provider is the caller's job.
func (r *FederationResolver) ResolveOrCreate(ctx context.Context, email string, p model.Provider) (*model.User, error) {
	if email == "" || !p.Valid() {
		return nil, errs.ErrInvalidArgument
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u, err := r.users.UpsertProviderUser(ctx, id, email, p)
	if err != nil {
		return nil, unavailable(r.log, "users.upsert_provider", err, zap.String("provider", string(p)))
	}
	r.cache.InvalidateUser(u)
	if u.ID == id {
		r.log.Info("account created via provider", zap.Stringer("user_id", u.ID), zap.String("provider", string(p)))
	}
	return u, nil
}
