package service

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/authgate/internal/authz"
	"github.com/and161185/authgate/internal/cache"
	pkgcrypto "github.com/and161185/authgate/internal/crypto"
	"github.com/and161185/authgate/internal/limiter"
	"github.com/and161185/authgate/internal/model"
	"github.com/and161185/authgate/internal/repository"
	"github.com/and161185/authgate/internal/repository/memory"
	"github.com/and161185/authgate/internal/token"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
)

const (
	testAgent = "Mozilla/5.0 test"
	testIP    = "10.0.0.1"
)

type testEnv struct {
	store   *memory.Store
	signer  *token.Signer
	cache   *cache.Users
	users   *UserServiceImpl
	refresh *RefreshManager
	auth    *AuthServiceImpl
	lim     *fakeLimiter
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnvWith(t, nil, nil)
}

// newEnvWith lets a test swap the repositories; nil keeps the memory store.
func newEnvWith(t *testing.T, users repository.UserRepository, tokens repository.RefreshTokenRepository) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	st := memory.New()
	if users == nil {
		users = st.Users()
	}
	if tokens == nil {
		tokens = st.Tokens()
	}
	c := cache.NewUsers(64, time.Minute)
	signer := token.NewSigner([]byte("test-secret"), "authgate-test", time.Minute)
	us := NewUserService(users, c, log)
	rm := NewRefreshManager(tokens, time.Hour, log)
	fed := NewFederationResolver(users, c, log)
	lim := &fakeLimiter{allowOK: true}
	return &testEnv{
		store:   st,
		signer:  signer,
		cache:   c,
		users:   us,
		refresh: rm,
		auth:    NewAuthService(us, pkgcrypto.NewHasher(1), signer, rm, fed, lim, log),
		lim:     lim,
	}
}

func (e *testEnv) register(t *testing.T, email, password string) *model.User {
	t.Helper()
	u, err := e.auth.Register(context.Background(), email, password, password)
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return u
}

func (e *testEnv) identity(t *testing.T, pair model.TokenPair) authz.Identity {
	t.Helper()
	id, err := authz.NewPipeline(e.signer).Authorize(pair.AccessToken, authz.Authenticated())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	return id
}

func admin() authz.Identity {
	return authz.Identity{ID: uuid.Must(uuid.NewV4()), Roles: []model.Role{model.RoleUser, model.RoleAdmin}}
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

// brokenTokens fails every call the way an unreachable database would.
type brokenTokens struct{ err error }

var _ repository.RefreshTokenRepository = brokenTokens{}

func (b brokenTokens) FindBySlot(context.Context, uuid.UUID, string) (*model.RefreshToken, error) {
	return nil, b.err
}
func (b brokenTokens) Upsert(context.Context, model.RefreshToken) error { return b.err }
func (b brokenTokens) Delete(context.Context, string) (*model.RefreshToken, error) {
	return nil, b.err
}
