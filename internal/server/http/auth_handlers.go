package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	pkgcrypto "github.com/and161185/authgate/internal/crypto"
	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/and161185/authgate/internal/provider"
	"github.com/go-chi/chi/v5"
)

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	PasswordRepeat string `json:"passwordRepeat"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accessResponse struct {
	AccessToken string `json:"accessToken"`
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed json", errs.ErrInvalidArgument)
	}
	return nil
}

// clientIP strips the port RemoteAddr carries when RealIP found no header.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.auth.Register(r.Context(), req.Email, req.Password, req.PasswordRepeat)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(u))
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	pair, err := h.auth.Login(r.Context(), req.Email, req.Password, r.UserAgent(), clientIP(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writePair(w, pair)
}

func (h *handler) refreshTokens(w http.ResponseWriter, r *http.Request) {
	value := cookieValue(r, refreshCookie)
	if value == "" {
		h.fail(w, r, errs.ErrUnauthorized)
		return
	}
	pair, err := h.auth.Refresh(r.Context(), value, r.UserAgent())
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			h.clearRefreshCookie(w)
		}
		h.fail(w, r, err)
		return
	}
	h.writePair(w, pair)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), cookieValue(r, refreshCookie)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusOK)
}

// providerRedirect starts the authorization-code flow.
func (h *handler) providerRedirect(w http.ResponseWriter, r *http.Request) {
	c, ok := h.providerClient(r)
	if !ok || !c.CanRedirect() {
		writeError(w, http.StatusNotFound, "not_found", "provider not configured")
		return
	}
	state, err := pkgcrypto.RandToken(16)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setStateCookie(w, state)
	http.Redirect(w, r, c.AuthCodeURL(state), http.StatusFound)
}

func (h *handler) providerCallback(w http.ResponseWriter, r *http.Request) {
	c, ok := h.providerClient(r)
	if !ok || !c.CanRedirect() {
		writeError(w, http.StatusNotFound, "not_found", "provider not configured")
		return
	}
	q := r.URL.Query()
	want := cookieValue(r, stateCookie)
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(q.Get("state"))) != 1 {
		h.fail(w, r, errs.ErrUnauthorized)
		return
	}
	providerToken, err := c.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.signInWithProvider(w, r, c, providerToken)
}

// providerToken accepts an access token the client already obtained from
// the provider.
func (h *handler) providerToken(w http.ResponseWriter, r *http.Request) {
	c, ok := h.providerClient(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown provider")
		return
	}
	tok := r.URL.Query().Get("token")
	if tok == "" {
		h.fail(w, r, errs.ErrUnauthorized)
		return
	}
	h.signInWithProvider(w, r, c, tok)
}

func (h *handler) signInWithProvider(w http.ResponseWriter, r *http.Request, c *provider.Client, providerToken string) {
	email, err := c.Verify(r.Context(), providerToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pair, err := h.auth.ProviderLogin(r.Context(), email, providerFromPath(r), r.UserAgent())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writePair(w, pair)
}

func (h *handler) providerClient(r *http.Request) (*provider.Client, bool) {
	p := providerFromPath(r)
	if !p.Valid() {
		return nil, false
	}
	return h.providers.Get(p)
}

func providerFromPath(r *http.Request) model.Provider {
	return model.Provider(strings.ToUpper(chi.URLParam(r, "provider")))
}

func (h *handler) writePair(w http.ResponseWriter, pair model.TokenPair) {
	h.setRefreshCookie(w, pair.RefreshToken.Token, pair.RefreshToken.ExpiresAt)
	writeJSON(w, http.StatusOK, accessResponse{AccessToken: "Bearer " + pair.AccessToken})
}
