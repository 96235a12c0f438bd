package service

import (
	"context"
	"errors"

	"github.com/and161185/authgate/internal/authz"
	"github.com/and161185/authgate/internal/cache"
	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/and161185/authgate/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// UserService defines user lookup and administrative operations.
type UserService interface {
	// FindOne looks a user up by id or email, through the cache.
	FindOne(ctx context.Context, idOrEmail string) (*model.User, error)
	// DeleteByID removes a user; only the user itself or an admin may do it.
	DeleteByID(ctx context.Context, id uuid.UUID, actor authz.Identity) error
	// SetBlocked blocks or unblocks a user; admin only.
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool, actor authz.Identity) (*model.User, error)
}

type UserServiceImpl struct {
	users repository.UserRepository
	cache *cache.Users
	log   *zap.Logger
}

// NewUserService constructs UserService; c may be nil to disable caching.
func NewUserService(users repository.UserRepository, c *cache.Users, log *zap.Logger) *UserServiceImpl {
	return &UserServiceImpl{users: users, cache: c, log: log}
}

// FindOne checks the cache, falls back to the store and backfills the cache.
func (s *UserServiceImpl) FindOne(ctx context.Context, key string) (*model.User, error) {
	key = lookupKey(key)
	if u, ok := s.cache.Get(key); ok {
		return u, nil
	}
	return s.load(ctx, key)
}

// FindFresh skips the cache. Authentication paths use it so role and block
// changes apply immediately.
func (s *UserServiceImpl) FindFresh(ctx context.Context, key string) (*model.User, error) {
	key = lookupKey(key)
	s.cache.Invalidate(key)
	return s.load(ctx, key)
}

// load reads the store and caches the result under the user's id and
// email only, so InvalidateUser reaches every entry a lookup created.
func (s *UserServiceImpl) load(ctx context.Context, key string) (*model.User, error) {
	if key == "" {
		return nil, errs.ErrNotFound
	}
	u, err := s.users.FindByIDOrEmail(ctx, key)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(s.log, "users.find", err)
	}
	s.cache.SetUser(u)
	return u, nil
}

// lookupKey reduces every spelling of a uuid (upper case, braces, urn
// prefix) to its canonical form. Anything else is treated as an email.
func lookupKey(key string) string {
	if id, err := uuid.FromString(key); err == nil {
		return id.String()
	}
	return key
}

// Create inserts u and drops any cached entry for its id or email.
func (s *UserServiceImpl) Create(ctx context.Context, u *model.User) error {
	err := s.users.Create(ctx, u)
	if errors.Is(err, errs.ErrAlreadyExists) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return unavailable(s.log, "users.create", err)
	}
	s.cache.InvalidateUser(u)
	return nil
}

// DeleteByID removes the target after the ownership check.
func (s *UserServiceImpl) DeleteByID(ctx context.Context, id uuid.UUID, actor authz.Identity) error {
	if err := authz.CanActOn(actor, id); err != nil {
		return err
	}
	target, err := s.FindFresh(ctx, id.String())
	if err != nil {
		return err
	}
	err = s.users.Delete(ctx, id)
	s.cache.InvalidateUser(target)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrNotFound
	}
	if err != nil {
		return unavailable(s.log, "users.delete", err, zap.Stringer("user_id", id))
	}
	s.log.Info("user deleted", zap.Stringer("user_id", id), zap.Stringer("actor_id", actor.ID))
	return nil
}

// SetBlocked toggles the blocked flag. Existing access tokens stay valid
// until they expire; refresh is refused immediately.
func (s *UserServiceImpl) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool, actor authz.Identity) (*model.User, error) {
	if actor.IsZero() {
		return nil, errs.ErrUnauthorized
	}
	if !actor.HasRole(model.RoleAdmin) {
		return nil, errs.ErrForbidden
	}
	u, err := s.users.SetBlocked(ctx, id, blocked)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(s.log, "users.set_blocked", err, zap.Stringer("user_id", id))
	}
	s.cache.InvalidateUser(u)
	s.log.Info("user block changed", zap.Stringer("user_id", id), zap.Bool("blocked", blocked), zap.Stringer("actor_id", actor.ID))
	return u, nil
}
