package repository

import (
	"context"

	"github.com/and161185/authgate/internal/model"
	"github.com/gofrs/uuid/v5"
)

// RefreshTokenRepository stores refresh tokens keyed by value and device slot.
type RefreshTokenRepository interface {
	// FindBySlot loads the token currently occupying (userID, userAgent).
	FindBySlot(ctx context.Context, userID uuid.UUID, userAgent string) (*model.RefreshToken, error)
	// Upsert writes t into its device slot, replacing any previous value.
	Upsert(ctx context.Context, t model.RefreshToken) error
	// Delete removes the token with the given value and returns the removed
	// record. Of concurrent callers at most one observes the record.
	Delete(ctx context.Context, value string) (*model.RefreshToken, error)
}
