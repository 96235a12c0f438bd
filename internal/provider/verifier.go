// Package provider turns access tokens issued by external identity providers
// into verified email addresses. Providers differ only in data (endpoints,
// field names, token type), so one Verifier implementation serves all of them.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// ErrInvalid is returned when the provider does not vouch for the token.
var ErrInvalid = errors.New("provider rejected token")

// maxBody bounds how much of a userinfo response is read.
const maxBody = 1 << 20

// Verifier resolves a provider access token to a verified email.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (email string, err error)
}

// Spec describes one provider variant.
type Spec struct {
	Provider      model.Provider
	UserInfoURL   string
	EmailField    string
	VerifiedField string // optional; when present in the response it must be true
	TokenType     string // Authorization scheme for the userinfo call
	Endpoint      oauth2.Endpoint
	Scopes        []string
}

// Google verifies via the OpenID userinfo endpoint.
var Google = Spec{
	Provider:      model.ProviderGoogle,
	UserInfoURL:   "https://openidconnect.googleapis.com/v1/userinfo",
	EmailField:    "email",
	VerifiedField: "email_verified",
	TokenType:     "Bearer",
	Endpoint:      endpoints.Google,
	Scopes:        []string{"openid", "email"},
}

// Yandex verifies via login.yandex.ru, which expects the "OAuth" scheme.
var Yandex = Spec{
	Provider:    model.ProviderYandex,
	UserInfoURL: "https://login.yandex.ru/info?format=json",
	EmailField:  "default_email",
	TokenType:   "OAuth",
	Endpoint:    endpoints.Yandex,
	Scopes:      []string{"login:email"},
}

// HTTPVerifier calls the provider userinfo endpoint with the token.
type HTTPVerifier struct {
	spec Spec
	base *http.Client
}

// NewHTTPVerifier constructs a verifier; base may be nil for http.DefaultClient.
func NewHTTPVerifier(spec Spec, base *http.Client) *HTTPVerifier {
	return &HTTPVerifier{spec: spec, base: base}
}

// Verify implements Verifier.
func (v *HTTPVerifier) Verify(ctx context.Context, accessToken string) (string, error) {
	if strings.TrimSpace(accessToken) == "" {
		return "", ErrInvalid
	}
	if v.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, v.base)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   v.spec.TokenType,
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.spec.UserInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s userinfo: %v", errs.ErrUnavailable, v.spec.Provider, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", ErrInvalid
	default:
		return "", fmt.Errorf("%w: %s userinfo status %d", errs.ErrUnavailable, v.spec.Provider, resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode userinfo: %v", ErrInvalid, err)
	}
	email, _ := body[v.spec.EmailField].(string)
	if email == "" {
		return "", ErrInvalid
	}
	if v.spec.VerifiedField != "" {
		if raw, ok := body[v.spec.VerifiedField]; ok && !truthy(raw) {
			return "", ErrInvalid
		}
	}
	return email, nil
}

// truthy accepts both JSON true and the string "true" some endpoints return.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	default:
		return false
	}
}
