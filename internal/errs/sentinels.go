// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates malformed or missing input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthorized indicates failed authentication. Bad credentials, unknown
	// accounts, blocked accounts and bad tokens all collapse into it.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller lacking role or ownership.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates a storage or upstream provider failure.
	ErrUnavailable = errors.New("service unavailable")
)
