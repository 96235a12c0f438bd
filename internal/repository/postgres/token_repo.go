package postgres

import (
	"context"
	"errors"

	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TokenRepo implements RefreshTokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a refresh token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// FindBySlot selects the token of a (user, user agent) slot.
func (r *TokenRepo) FindBySlot(ctx context.Context, userID uuid.UUID, userAgent string) (*model.RefreshToken, error) {
	const q = `
SELECT token, user_id, user_agent, expires_at
FROM refresh_tokens WHERE user_id = $1 AND user_agent = $2`
	return scanToken(r.db.Pool.QueryRow(ctx, q, userID, userAgent))
}

// Upsert writes the token into its slot in a single statement.
func (r *TokenRepo) Upsert(ctx context.Context, t model.RefreshToken) error {
	const q = `
INSERT INTO refresh_tokens (token, user_id, user_agent, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, user_agent)
DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at`
	_, err := r.db.Pool.Exec(ctx, q, t.Token, t.UserID, t.UserAgent, t.ExpiresAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Delete removes the token and returns the removed row. The DELETE is the
// only read, so two concurrent callers cannot both receive the record.
func (r *TokenRepo) Delete(ctx context.Context, value string) (*model.RefreshToken, error) {
	const q = `
DELETE FROM refresh_tokens WHERE token = $1
RETURNING token, user_id, user_agent, expires_at`
	return scanToken(r.db.Pool.QueryRow(ctx, q, value))
}

func scanToken(row pgx.Row) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := row.Scan(&t.Token, &t.UserID, &t.UserAgent, &t.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
