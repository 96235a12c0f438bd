// Package service contains application services for authentication and users.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/limiter"
	"github.com/and161185/authgate/internal/model"
	"github.com/and161185/authgate/internal/token"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// MinPasswordLen is the shortest password accepted at registration.
const MinPasswordLen = 6

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// AuthService defines registration and session operations.
type AuthService interface {
	// Register creates a password account. It does not sign the user in.
	Register(ctx context.Context, email, password, passwordRepeat string) (*model.User, error)
	// Login checks credentials and issues a pair bound to userAgent.
	Login(ctx context.Context, email, password, userAgent, ip string) (model.TokenPair, error)
	// Refresh consumes a refresh token and issues a new pair.
	Refresh(ctx context.Context, refreshToken, userAgent string) (model.TokenPair, error)
	// Logout revokes a refresh token; unknown tokens are fine.
	Logout(ctx context.Context, refreshToken string) error
	// ProviderLogin signs in with a provider-verified email.
	ProviderLogin(ctx context.Context, email string, provider model.Provider, userAgent string) (model.TokenPair, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

// AccessSigner signs access tokens.
type AccessSigner interface {
	Sign(c token.Claims) (string, time.Time, error)
}

type AuthServiceImpl struct {
	users   *UserServiceImpl
	hasher  PasswordHasher
	signer  AccessSigner
	refresh *RefreshManager
	fed     *FederationResolver
	lim     limiter.Limiter
	log     *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService constructs AuthService with required dependencies. lim may be nil.
func NewAuthService(
	users *UserServiceImpl,
	hasher PasswordHasher,
	signer AccessSigner,
	refresh *RefreshManager,
	fed *FederationResolver,
	lim limiter.Limiter,
	log *zap.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		users:   users,
		hasher:  hasher,
		signer:  signer,
		refresh: refresh,
		fed:     fed,
		lim:     lim,
		log:     log,
	}
}

// Register validates input and creates a USER account with a hashed password.
func (s *AuthServiceImpl) Register(ctx context.Context, email, password, passwordRepeat string) (*model.User, error) {
	if !emailRe.MatchString(email) {
		return nil, fmt.Errorf("%w: email", errs.ErrInvalidArgument)
	}
	if len(password) < MinPasswordLen {
		return nil, fmt.Errorf("%w: password shorter than %d", errs.ErrInvalidArgument, MinPasswordLen)
	}
	if password != passwordRepeat {
		return nil, fmt.Errorf("%w: passwords do not match", errs.ErrInvalidArgument)
	}

	_, err := s.users.FindFresh(ctx, email)
	switch {
	case err == nil:
		return nil, errs.ErrAlreadyExists
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:           uid,
		Email:        email,
		PasswordHash: &hash,
		Roles:        model.DefaultRoles(),
	}
	// A concurrent registration that wins the insert surfaces here as
	// ErrAlreadyExists through the unique index.
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.Stringer("user_id", u.ID))
	return u, nil
}

// Login authenticates by email and password. Unknown email, wrong password,
// provider-only account and blocked account are all ErrUnauthorized.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, userAgent, ip string) (model.TokenPair, error) {
	ipHash := limiter.HashIP(ip)
	if s.lim != nil {
		allowed, _, err := s.lim.Allow(ctx, email, ipHash)
		if err != nil {
			return model.TokenPair{}, unavailable(s.log, "limiter.allow", err)
		}
		if !allowed {
			return model.TokenPair{}, errs.ErrRateLimited
		}
	}

	u, err := s.users.FindFresh(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.TokenPair{}, err
	}
	if !s.credentialsOK(u, password) {
		if s.lim != nil {
			// Record failure; if threshold reached, report rate limiting.
			blocked, _, ferr := s.lim.Failure(ctx, email, ipHash)
			if ferr != nil {
				s.log.Warn("limiter failure not recorded", zap.String("op", "limiter.failure"), zap.Error(ferr))
			} else if blocked {
				return model.TokenPair{}, errs.ErrRateLimited
			}
		}
		return model.TokenPair{}, errs.ErrUnauthorized
	}

	if s.lim != nil {
		// Success: reset counters (best-effort).
		if err := s.lim.Success(ctx, email, ipHash); err != nil {
			s.log.Warn("limiter reset failed", zap.String("op", "limiter.success"), zap.Error(err))
		}
	}
	return s.issuePair(ctx, u, userAgent)
}

// credentialsOK spends one hash verification whether or not u exists, so
// response time does not reveal registered emails.
func (s *AuthServiceImpl) credentialsOK(u *model.User, password string) bool {
	if u == nil || u.PasswordHash == nil {
		s.hasher.Verify(password, s.dummy())
		return false
	}
	ok := s.hasher.Verify(password, *u.PasswordHash)
	return ok && !u.IsBlocked
}

func (s *AuthServiceImpl) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("authgate-dummy-password")
	})
	return s.dummyHash
}

// Refresh rotates a refresh token. The user is re-read from the store so a
// block or role change since the last login takes effect here.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken, userAgent string) (model.TokenPair, error) {
	uid, err := s.refresh.Redeem(ctx, refreshToken)
	if err != nil {
		return model.TokenPair{}, err
	}
	u, err := s.users.FindFresh(ctx, uid.String())
	if errors.Is(err, errs.ErrNotFound) {
		return model.TokenPair{}, errs.ErrUnauthorized
	}
	if err != nil {
		return model.TokenPair{}, err
	}
	if u.IsBlocked {
		return model.TokenPair{}, errs.ErrUnauthorized
	}
	return s.issuePair(ctx, u, userAgent)
}

// Logout revokes the refresh token.
func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	return s.refresh.Revoke(ctx, refreshToken)
}

// ProviderLogin resolves or creates the user for a verified email and signs it in.
func (s *AuthServiceImpl) ProviderLogin(ctx context.Context, email string, provider model.Provider, userAgent string) (model.TokenPair, error) {
	u, err := s.fed.ResolveOrCreate(ctx, email, provider)
	if err != nil {
		return model.TokenPair{}, err
	}
	if u.IsBlocked {
		return model.TokenPair{}, errs.ErrUnauthorized
	}
	return s.issuePair(ctx, u, userAgent)
}

// issuePair signs the access token first: it is not stored, so a signing
// failure leaves no refresh token behind.
func (s *AuthServiceImpl) issuePair(ctx context.Context, u *model.User, userAgent string) (model.TokenPair, error) {
	access, exp, err := s.signer.Sign(token.Claims{ID: u.ID.String(), Email: u.Email, Roles: u.Roles})
	if err != nil {
		s.log.Error("sign access token", zap.Stringer("user_id", u.ID), zap.Error(err))
		return model.TokenPair{}, err
	}
	rt, err := s.refresh.Issue(ctx, u.ID, userAgent)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{AccessToken: access, AccessExpiresAt: exp, RefreshToken: rt}, nil
}
