// Package memory provides an in-process credential store for development
// runs and tests. Every method takes the store lock once, so each call is
// atomic in the same way a single SQL statement is.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/gofrs/uuid/v5"
)

type slot struct {
	userID    uuid.UUID
	userAgent string
}

// Store keeps users and refresh tokens in maps.
type Store struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*model.User
	byEmail map[string]uuid.UUID
	tokens  map[string]*model.RefreshToken
	slots   map[slot]string
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:   map[uuid.UUID]*model.User{},
		byEmail: map[string]uuid.UUID{},
		tokens:  map[string]*model.RefreshToken{},
		slots:   map[slot]string{},
		now:     time.Now,
	}
}

// Users exposes the store as a repository.UserRepository.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Tokens exposes the store as a repository.RefreshTokenRepository.
func (s *Store) Tokens() *TokenRepo { return &TokenRepo{s: s} }

// UserRepo is the user half of Store.
type UserRepo struct{ s *Store }

// FindByIDOrEmail implements repository.UserRepository.
func (r *UserRepo) FindByIDOrEmail(ctx context.Context, key string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.byEmail[key]; ok {
		return cloneUser(r.s.users[id]), nil
	}
	if id, err := uuid.FromString(key); err == nil {
		if u, ok := r.s.users[id]; ok {
			return cloneUser(u), nil
		}
	}
	return nil, errs.ErrNotFound
}

// Create implements repository.UserRepository.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.byEmail[u.Email]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := r.s.users[u.ID]; ok {
		return errs.ErrAlreadyExists
	}
	now := r.s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	if len(u.Roles) == 0 {
		u.Roles = model.DefaultRoles()
	}
	r.s.users[u.ID] = cloneUser(u)
	r.s.byEmail[u.Email] = u.ID
	return nil
}

// UpsertProviderUser implements repository.UserRepository.
func (r *UserRepo) UpsertProviderUser(ctx context.Context, id uuid.UUID, email string, provider model.Provider) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	if existing, ok := r.s.byEmail[email]; ok {
		u := r.s.users[existing]
		u.Provider = provider
		u.UpdatedAt = now
		return cloneUser(u), nil
	}
	u := &model.User{
		ID:        id,
		Email:     email,
		Roles:     model.DefaultRoles(),
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.users[id] = u
	r.s.byEmail[email] = id
	return cloneUser(u), nil
}

// SetBlocked implements repository.UserRepository.
func (r *UserRepo) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	u.IsBlocked = blocked
	u.UpdatedAt = r.s.now()
	return cloneUser(u), nil
}

// Delete implements repository.UserRepository and cascades to tokens.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	delete(r.s.users, id)
	delete(r.s.byEmail, u.Email)
	for value, t := range r.s.tokens {
		if t.UserID == id {
			delete(r.s.tokens, value)
			delete(r.s.slots, slot{t.UserID, t.UserAgent})
		}
	}
	return nil
}

// TokenRepo is the refresh token half of Store.
type TokenRepo struct{ s *Store }

// FindBySlot implements repository.RefreshTokenRepository.
func (r *TokenRepo) FindBySlot(ctx context.Context, userID uuid.UUID, userAgent string) (*model.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	value, ok := r.s.slots[slot{userID, userAgent}]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *r.s.tokens[value]
	return &cp, nil
}

// Upsert implements repository.RefreshTokenRepository.
func (r *TokenRepo) Upsert(ctx context.Context, t model.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[t.UserID]; !ok {
		return errs.ErrNotFound
	}
	k := slot{t.UserID, t.UserAgent}
	if _, taken := r.s.tokens[t.Token]; taken && r.s.slots[k] != t.Token {
		return errs.ErrAlreadyExists
	}
	if prev, ok := r.s.slots[k]; ok {
		delete(r.s.tokens, prev)
	}
	r.s.tokens[t.Token] = &t
	r.s.slots[k] = t.Token
	return nil
}

// Delete implements repository.RefreshTokenRepository.
func (r *TokenRepo) Delete(ctx context.Context, value string) (*model.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[value]
	if !ok {
		return nil, errs.ErrNotFound
	}
	delete(r.s.tokens, value)
	delete(r.s.slots, slot{t.UserID, t.UserAgent})
	return t, nil
}

// Len reports the number of stored refresh tokens.
func (r *TokenRepo) Len() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.tokens)
}

func cloneUser(u *model.User) *model.User {
	cp := *u
	cp.Roles = slices.Clone(u.Roles)
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		cp.PasswordHash = &h
	}
	return &cp
}
