package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func userinfoServer(t *testing.T, wantAuth string, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != wantAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func withURL(s Spec, url string) Spec {
	s.UserInfoURL = url
	return s
}

func TestHTTPVerifier_Google(t *testing.T) {
	t.Parallel()

	srv := userinfoServer(t, "Bearer g-token", http.StatusOK, `{"email":"g@example.com","email_verified":true}`)
	v := NewHTTPVerifier(withURL(Google, srv.URL), srv.Client())

	email, err := v.Verify(context.Background(), "g-token")
	require.NoError(t, err)
	require.Equal(t, "g@example.com", email)

	_, err = v.Verify(context.Background(), "wrong-token")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = v.Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestHTTPVerifier_Google_UnverifiedEmail(t *testing.T) {
	t.Parallel()

	srv := userinfoServer(t, "Bearer g", http.StatusOK, `{"email":"g@example.com","email_verified":"false"}`)
	v := NewHTTPVerifier(withURL(Google, srv.URL), srv.Client())

	_, err := v.Verify(context.Background(), "g")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestHTTPVerifier_Yandex_UsesOAuthScheme(t *testing.T) {
	t.Parallel()

	srv := userinfoServer(t, "OAuth y-token", http.StatusOK, `{"default_email":"y@example.ru","login":"y"}`)
	v := NewHTTPVerifier(withURL(Yandex, srv.URL), srv.Client())

	email, err := v.Verify(context.Background(), "y-token")
	require.NoError(t, err)
	require.Equal(t, "y@example.ru", email)
}

func TestHTTPVerifier_Failures(t *testing.T) {
	t.Parallel()

	noEmail := userinfoServer(t, "Bearer t", http.StatusOK, `{"login":"x"}`)
	_, err := NewHTTPVerifier(withURL(Google, noEmail.URL), noEmail.Client()).Verify(context.Background(), "t")
	require.ErrorIs(t, err, ErrInvalid)

	broken := userinfoServer(t, "Bearer t", http.StatusOK, `{not json`)
	_, err = NewHTTPVerifier(withURL(Google, broken.URL), broken.Client()).Verify(context.Background(), "t")
	require.ErrorIs(t, err, ErrInvalid)

	down := userinfoServer(t, "Bearer t", http.StatusBadGateway, ``)
	_, err = NewHTTPVerifier(withURL(Google, down.URL), down.Client()).Verify(context.Background(), "t")
	require.ErrorIs(t, err, errs.ErrUnavailable)

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	_, err = NewHTTPVerifier(withURL(Google, closed.URL), nil).Verify(context.Background(), "t")
	require.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestRegistry_ExchangeAndAuthURL(t *testing.T) {
	t.Parallel()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"provider-at","token_type":"bearer","expires_in":3600}`)
	}))
	t.Cleanup(tokenSrv.Close)

	spec := Yandex
	spec.Endpoint = oauth2.Endpoint{AuthURL: tokenSrv.URL + "/authorize", TokenURL: tokenSrv.URL + "/token"}
	reg := NewRegistry(tokenSrv.Client(), Config{Spec: spec, ClientID: "cid", ClientSecret: "sec", RedirectURL: "http://localhost/cb"})

	c, ok := reg.Get(model.ProviderYandex)
	require.True(t, ok)
	require.True(t, c.CanRedirect())
	require.Contains(t, c.AuthCodeURL("st4te"), "state=st4te")
	require.Contains(t, c.AuthCodeURL("st4te"), "client_id=cid")

	at, err := c.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	require.Equal(t, "provider-at", at)

	_, err = c.Exchange(context.Background(), "bad-code")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = c.Exchange(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalid)

	_, ok = reg.Get(model.ProviderGoogle)
	require.False(t, ok)
}
