// Package httpserver exposes the auth and user operations over HTTP.
package httpserver

import (
	"net/http"

	"github.com/and161185/authgate/internal/authz"
	"github.com/and161185/authgate/internal/model"
	"github.com/and161185/authgate/internal/provider"
	"github.com/and161185/authgate/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Auth      service.AuthService
	Users     service.UserService
	Pipeline  *authz.Pipeline
	Providers *provider.Registry
	Log       *zap.Logger
	// SecureCookies sets the Secure attribute on every cookie.
	SecureCookies bool
}

type handler struct {
	auth      service.AuthService
	users     service.UserService
	pipeline  *authz.Pipeline
	providers *provider.Registry
	log       *zap.Logger
	secure    bool
}

// NewRouter builds the HTTP handler. Every route declares its policy here.
func NewRouter(d Deps) http.Handler {
	h := &handler{
		auth:      d.Auth,
		users:     d.Users,
		pipeline:  d.Pipeline,
		providers: d.Providers,
		log:       d.Log,
		secure:    d.SecureCookies,
	}
	if h.providers == nil {
		h.providers = provider.NewRegistry(nil)
	}

	public := h.authorize(authz.Public())
	authenticated := h.authorize(authz.Authenticated())
	adminOnly := h.authorize(authz.RequireRoles(model.RoleAdmin))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(recoverer(h.log))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(public).Post("/register", h.register)
		r.With(public).Post("/login", h.login)
		r.With(public).Get("/refresh-tokens", h.refreshTokens)
		r.With(public).Get("/logout", h.logout)
		r.With(public).Get("/{provider}", h.providerRedirect)
		r.With(public).Get("/{provider}/callback", h.providerCallback)
		r.With(public).Get("/{provider}/token", h.providerToken)
	})
	r.Route("/api/user", func(r chi.Router) {
		r.With(adminOnly).Get("/", h.me)
		r.With(authenticated).Get("/{idOrEmail}", h.findUser)
		r.With(authenticated).Delete("/{id}", h.deleteUser)
		r.With(adminOnly).Put("/{id}/blocked", h.setBlocked)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}
