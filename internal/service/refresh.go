package service

import (
	"context"
	"errors"
	"time"

	pkgcrypto "github.com/and161185/authgate/internal/crypto"
	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/and161185/authgate/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// DefaultRefreshTTL is the lifetime of a refresh token (one month).
const DefaultRefreshTTL = 30 * 24 * time.Hour

// refreshTokenBytes is the entropy of a refresh token secret.
const refreshTokenBytes = 32

// RefreshManager owns rotation of refresh tokens per device slot.
type RefreshManager struct {
	tokens repository.RefreshTokenRepository
	ttl    time.Duration
	log    *zap.Logger
	now    func() time.Time
}

// NewRefreshManager constructs a RefreshManager; ttl <= 0 means DefaultRefreshTTL.
func NewRefreshManager(tokens repository.RefreshTokenRepository, ttl time.Duration, log *zap.Logger) *RefreshManager {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	return &RefreshManager{tokens: tokens, ttl: ttl, log: log, now: time.Now}
}

// Issue puts a fresh secret into the (userID, userAgent) slot. An existing
// token for the slot is overwritten in place rather than accumulated.
func (m *RefreshManager) Issue(ctx context.Context, userID uuid.UUID, userAgent string) (model.RefreshToken, error) {
	prev, err := m.tokens.FindBySlot(ctx, userID, userAgent)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.RefreshToken{}, unavailable(m.log, "refresh.find_slot", err,
			zap.Stringer("user_id", userID), zap.String("user_agent", userAgent))
	}

	value, err := pkgcrypto.RandToken(refreshTokenBytes)
	if err != nil {
		return model.RefreshToken{}, err
	}
	t := model.RefreshToken{
		Token:     value,
		UserID:    userID,
		UserAgent: userAgent,
		ExpiresAt: m.now().Add(m.ttl),
	}
	if err := m.tokens.Upsert(ctx, t); err != nil {
		return model.RefreshToken{}, unavailable(m.log, "refresh.upsert", err,
			zap.Stringer("user_id", userID), zap.String("user_agent", userAgent))
	}

	m.log.Debug("refresh token issued",
		zap.Stringer("user_id", userID),
		zap.String("user_agent", userAgent),
		zap.Bool("rotated", prev != nil),
	)
	return t, nil
}

// Redeem consumes a token value exactly once and returns its owner. The
// record is deleted before the expiry check, so an expired token is gone
// after its first presentation too.
func (m *RefreshManager) Redeem(ctx context.Context, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, errs.ErrUnauthorized
	}
	t, err := m.tokens.Delete(ctx, value)
	if errors.Is(err, errs.ErrNotFound) {
		return uuid.Nil, errs.ErrUnauthorized
	}
	if err != nil {
		return uuid.Nil, unavailable(m.log, "refresh.consume", err)
	}
	if t.Expired(m.now()) {
		m.log.Debug("expired refresh token presented", zap.Stringer("user_id", t.UserID))
		return uuid.Nil, errs.ErrUnauthorized
	}
	return t.UserID, nil
}

// Revoke deletes a token value if present. Unknown values are not an error.
func (m *RefreshManager) Revoke(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}
	_, err := m.tokens.Delete(ctx, value)
	if err == nil || errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	return unavailable(m.log, "refresh.revoke", err)
}
