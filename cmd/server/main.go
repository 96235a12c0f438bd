// Command authgate-server starts the authentication HTTP API and the gRPC
// health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/authgate/internal/authz"
	"github.com/and161185/authgate/internal/cache"
	"github.com/and161185/authgate/internal/config"
	pkgcrypto "github.com/and161185/authgate/internal/crypto"
	"github.com/and161185/authgate/internal/limiter"
	"github.com/and161185/authgate/internal/migrate"
	"github.com/and161185/authgate/internal/provider"
	"github.com/and161185/authgate/internal/repository"
	"github.com/and161185/authgate/internal/repository/memory"
	"github.com/and161185/authgate/internal/repository/postgres"
	grpcserver "github.com/and161185/authgate/internal/server/grpc"
	httpserver "github.com/and161185/authgate/internal/server/http"
	"github.com/and161185/authgate/internal/service"
	"github.com/and161185/authgate/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, prepares storage and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	var logger *zap.Logger
	if cfg.Production() {
		logger, _ = zap.NewProduction()
	} else {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("env", cfg.Env),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		users  repository.UserRepository
		tokens repository.RefreshTokenRepository
		lim    limiter.Limiter
	)
	if cfg.DSN != "" {
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			logger.Fatal("pgxpool.New", zap.Error(err))
		}
		defer db.Close()
		if err := db.Ping(ctx); err != nil {
			logger.Fatal("database ping", zap.Error(err))
		}
		users = postgres.NewUserRepo(db)
		tokens = postgres.NewTokenRepo(db)
		lim = limiter.NewPG(db.Pool, cfg.LimiterWindow, cfg.LimiterMaxFails, cfg.LimiterBlockFor)
	} else {
		logger.Warn("no DSN configured, using in-memory store; data is lost on exit")
		st := memory.New()
		users, tokens = st.Users(), st.Tokens()
	}

	// Services
	userCache := cache.NewUsers(cfg.CacheSize, cfg.AccessTTL)
	signer := token.NewSigner([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AccessTTL)
	userSvc := service.NewUserService(users, userCache, logger)
	authSvc := service.NewAuthService(
		userSvc,
		pkgcrypto.NewHasher(cfg.HashIterations),
		signer,
		service.NewRefreshManager(tokens, cfg.RefreshTTL, logger),
		service.NewFederationResolver(users, userCache, logger),
		lim,
		logger,
	)
	pipeline := authz.NewPipeline(signer)
	providers := provider.NewRegistry(&http.Client{Timeout: 10 * time.Second},
		provider.Config{Spec: provider.Google, ClientID: cfg.Google.ClientID, ClientSecret: cfg.Google.ClientSecret, RedirectURL: cfg.Google.RedirectURL},
		provider.Config{Spec: provider.Yandex, ClientID: cfg.Yandex.ClientID, ClientSecret: cfg.Yandex.ClientSecret, RedirectURL: cfg.Yandex.RedirectURL},
	)

	// HTTP
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpserver.NewRouter(httpserver.Deps{
			Auth:          authSvc,
			Users:         userSvc,
			Pipeline:      pipeline,
			Providers:     providers,
			Log:           logger,
			SecureCookies: cfg.Production(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// gRPC health
	grpcSrv, hs := grpcserver.New(logger, pipeline)
	if !cfg.Production() {
		reflection.Register(grpcSrv)
	}
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
			errCh <- grpcSrv.Serve(lis)
		}()
	}

	// Wait for stop
	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
	}

	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	done := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}

	logger.Info("shutdown complete")
	if exitCode != 0 {
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}
