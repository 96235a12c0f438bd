package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"golang.org/x/oauth2"
)

// Config holds the OAuth client registration for one provider.
type Config struct {
	Spec         Spec
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Client bundles a provider's verifier with its authorization-code flow.
type Client struct {
	Verifier
	oauth *oauth2.Config
	base  *http.Client
}

// CanRedirect reports whether the authorization-code flow is configured.
func (c *Client) CanRedirect() bool { return c.oauth.ClientID != "" }

// AuthCodeURL returns the provider consent URL carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a provider access token.
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", ErrInvalid
	}
	if c.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	}
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return "", fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return "", fmt.Errorf("%w: exchange: %v", errs.ErrUnavailable, err)
	}
	return tok.AccessToken, nil
}

// Registry selects a provider client by tag.
type Registry struct {
	clients map[model.Provider]*Client
}

// NewRegistry builds a client per config; base may be nil.
func NewRegistry(base *http.Client, cfgs ...Config) *Registry {
	r := &Registry{clients: make(map[model.Provider]*Client, len(cfgs))}
	for _, cfg := range cfgs {
		r.clients[cfg.Spec.Provider] = &Client{
			Verifier: NewHTTPVerifier(cfg.Spec, base),
			oauth: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.RedirectURL,
				Endpoint:     cfg.Spec.Endpoint,
				Scopes:       cfg.Spec.Scopes,
			},
			base: base,
		}
	}
	return r
}

// Get returns the client for p.
func (r *Registry) Get(p model.Provider) (*Client, bool) {
	c, ok := r.clients[p]
	return c, ok
}
