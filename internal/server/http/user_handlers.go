package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/authgate/internal/authz"
	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
)

// userView is the public shape of a user; the password hash never leaves.
type userView struct {
	ID        uuid.UUID      `json:"id"`
	Email     string         `json:"email"`
	Roles     []model.Role   `json:"roles"`
	Provider  model.Provider `json:"provider,omitempty"`
	IsBlocked bool           `json:"isBlocked"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func toUserView(u *model.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Roles:     u.Roles,
		Provider:  u.Provider,
		IsBlocked: u.IsBlocked,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type identityView struct {
	ID    uuid.UUID    `json:"id"`
	Email string       `json:"email"`
	Roles []model.Role `json:"roles"`
}

type blockedRequest struct {
	Blocked *bool `json:"blocked"`
}

type deletedResponse struct {
	ID uuid.UUID `json:"id"`
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad id", errs.ErrInvalidArgument)
	}
	return id, nil
}

// me returns the identity carried by the access token.
func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		h.fail(w, r, errs.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, identityView{ID: id.ID, Email: id.Email, Roles: id.Roles})
}

func (h *handler) findUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.FindOne(r.Context(), chi.URLParam(r, "idOrEmail"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	actor, _ := authz.IdentityFromContext(r.Context())
	if err := h.users.DeleteByID(r.Context(), id, actor); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{ID: id})
}

func (h *handler) setBlocked(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req blockedRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Blocked == nil {
		h.fail(w, r, fmt.Errorf("%w: blocked is required", errs.ErrInvalidArgument))
		return
	}
	actor, _ := authz.IdentityFromContext(r.Context())
	u, err := h.users.SetBlocked(r.Context(), id, *req.Blocked, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}
