package postgres

import (
	"context"
	"errors"

	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const userCols = `id, email, password_hash, roles, provider, is_blocked, created_at, updated_at`

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// FindByIDOrEmail selects a user by id or email. Any uuid spelling is
// canonicalised first, matching the forms the in-memory store accepts.
func (r *UserRepo) FindByIDOrEmail(ctx context.Context, key string) (*model.User, error) {
	if id, err := uuid.FromString(key); err == nil {
		key = id.String()
	}
	const q = `
SELECT ` + userCols + `
FROM users WHERE id::text = $1 OR email = $1
LIMIT 1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, key))
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, email, password_hash, roles, provider, is_blocked)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, u.ID, u.Email, u.PasswordHash, rolesToText(u.Roles), providerToText(u.Provider), u.IsBlocked).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UpsertProviderUser inserts a password-less user or only updates the provider
// of an existing one. Password and roles of an existing row are left as is.
func (r *UserRepo) UpsertProviderUser(ctx context.Context, id uuid.UUID, email string, provider model.Provider) (*model.User, error) {
	const q = `
INSERT INTO users (id, email, password_hash, roles, provider, is_blocked)
VALUES ($1, $2, NULL, $3, $4, false)
ON CONFLICT (email) DO UPDATE SET provider = EXCLUDED.provider, updated_at = now()
RETURNING ` + userCols
	return scanUser(r.db.Pool.QueryRow(ctx, q, id, email, rolesToText(model.DefaultRoles()), providerToText(provider)))
}

// SetBlocked updates the blocked flag.
func (r *UserRepo) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*model.User, error) {
	const q = `
UPDATE users SET is_blocked = $2, updated_at = now()
WHERE id = $1
RETURNING ` + userCols
	return scanUser(r.db.Pool.QueryRow(ctx, q, id, blocked))
}

// Delete removes a user; refresh tokens go with it via ON DELETE CASCADE.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM users WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u        model.User
		roles    []string
		provider *string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &roles, &provider, &u.IsBlocked, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Roles = make([]model.Role, 0, len(roles))
	for _, r := range roles {
		u.Roles = append(u.Roles, model.Role(r))
	}
	if provider != nil {
		u.Provider = model.Provider(*provider)
	}
	return &u, nil
}

func rolesToText(roles []model.Role) []string {
	if len(roles) == 0 {
		roles = model.DefaultRoles()
	}
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func providerToText(p model.Provider) *string {
	if p == model.ProviderNone {
		return nil
	}
	s := string(p)
	return &s
}
