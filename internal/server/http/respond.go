package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/provider"
	"go.uber.org/zap"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// statusFor maps an error class to one fixed status, code and message.
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", "request is invalid"
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, provider.ErrInvalid):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "forbidden", "forbidden"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "conflict", "already exists"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "too many attempts, try later"
	default:
		return http.StatusServiceUnavailable, "unavailable", "service unavailable"
	}
}

// fail writes the mapped error. Validation details are safe to return and
// are kept in the message; everything else gets the fixed text.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := statusFor(err)
	if status == http.StatusBadRequest {
		msg = err.Error()
	}
	if status == http.StatusServiceUnavailable && !errors.Is(err, errs.ErrUnavailable) {
		h.log.Error("unmapped error", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, code, msg)
}
