// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/authgate/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides single-statement access to user records.
type UserRepository interface {
	// FindByIDOrEmail loads a user whose id or email equals key.
	FindByIDOrEmail(ctx context.Context, key string) (*model.User, error)
	// Create inserts a new user; a taken email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// UpsertProviderUser creates a password-less user for email or, if one
	// exists, only sets its provider. Returns the resulting row.
	UpsertProviderUser(ctx context.Context, id uuid.UUID, email string, provider model.Provider) (*model.User, error)
	// SetBlocked updates the blocked flag and returns the updated row.
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*model.User, error)
	// Delete removes a user and, by cascade, its refresh tokens.
	Delete(ctx context.Context, id uuid.UUID) error
}
