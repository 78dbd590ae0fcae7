package server_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-token-authority/server"
	"github.com/stretchr/testify/require"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

func (f *fixture) spaConfig(scopes ...string) *xoauth2.Config {
	return &xoauth2.Config{
		ClientID:    spaClientID,
		RedirectURL: redirectURI,
		Scopes:      scopes,
		Endpoint: xoauth2.Endpoint{
			AuthURL:   f.url(server.RouteAuthorize),
			TokenURL:  f.url(server.RouteToken),
			AuthStyle: xoauth2.AuthStyleInParams,
		},
	}
}

func requireRetrieveError(t *testing.T, err error, code string) {
	t.Helper()
	var rerr *xoauth2.RetrieveError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, code, rerr.ErrorCode)
}

func TestPasswordGrantIssuesVerifiableIdentityToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tok, err := f.spaConfig("openid", "profile", "email").PasswordCredentialsToken(ctx, "alice", password)
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, "openid profile email", tok.Extra("scope"))

	rawID, ok := tok.Extra("id_token").(string)
	require.True(t, ok)

	idToken, err := f.idTokenVerifier().Verify(ctx, rawID)
	require.NoError(t, err)
	require.Equal(t, "user-1", idToken.Subject)

	var identity struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	require.NoError(t, idToken.Claims(&identity))
	require.Equal(t, "alice@example.test", identity.Email)
	require.True(t, identity.EmailVerified)
	require.Equal(t, "Alice Liddell", identity.Name)
}

func TestPasswordGrantWithoutOpenIDHasNoIdentityToken(t *testing.T) {
	f := newFixture(t, nil)

	tok, err := f.spaConfig("profile").PasswordCredentialsToken(context.Background(), "alice", password)
	require.NoError(t, err)
	require.Nil(t, tok.Extra("id_token"))
}

func TestRefreshRotatesAndDetectsReplay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cfg := f.spaConfig("openid", "offline_access")

	first, err := cfg.PasswordCredentialsToken(ctx, "alice", password)
	require.NoError(t, err)

	refresh := func(handle string) (*xoauth2.Token, error) {
		return cfg.TokenSource(ctx, &xoauth2.Token{RefreshToken: handle}).Token()
	}

	second, err := refresh(first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteSessions, second.AccessToken).StatusCode)

	// Presenting the spent handle again revokes the whole authorization.
	_, err = refresh(first.RefreshToken)
	requireRetrieveError(t, err, "invalid_grant")

	_, err = refresh(second.RefreshToken)
	requireRetrieveError(t, err, "invalid_grant")
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteSessions, second.AccessToken).StatusCode)
}

func TestRefreshRejectsDeactivatedUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cfg := f.spaConfig("openid")

	tok, err := cfg.PasswordCredentialsToken(ctx, "alice", password)
	require.NoError(t, err)

	alice, err := f.directory.GetByID(ctx, "user-1")
	require.NoError(t, err)
	alice.Active = false
	require.NoError(t, f.directory.Upsert(alice))

	_, err = cfg.TokenSource(ctx, &xoauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	requireRetrieveError(t, err, "invalid_grant")
}

func TestRefreshCannotWidenScope(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.login(t, "alice", "laptop", "openid")

	resp := f.postForm(t, server.RouteToken, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {spaClientID},
		"refresh_token": {tok.RefreshToken},
		"scope":         {"openid email"},
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_scope", decode[errorResponse](t, resp).Error)

	// The rejected request leaves the handle and its access token usable.
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteSessions, tok.AccessToken).StatusCode)
	resp = f.postForm(t, server.RouteToken, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {spaClientID},
		"refresh_token": {tok.RefreshToken},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[tokenResponse](t, resp)
	require.NotEqual(t, tok.RefreshToken, rotated.RefreshToken)
	require.Equal(t, "openid", rotated.Scope)
}

func TestClientCredentialsGrant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cfg := clientcredentials.Config{
		ClientID:     svcClientID,
		ClientSecret: svcSecret,
		TokenURL:     f.url(server.RouteToken),
		Scopes:       []string{"reports.read"},
		AuthStyle:    xoauth2.AuthStyleInHeader,
	}
	tok, err := cfg.Token(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
	require.Empty(t, tok.RefreshToken)
	require.Nil(t, tok.Extra("id_token"))

	// A client token carries no user, so userinfo has nothing to return.
	resp := f.do(t, http.MethodGet, server.RouteUserInfo, tok.AccessToken)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cfg.ClientSecret = "wrong"
	_, err = cfg.Token(ctx)
	requireRetrieveError(t, err, "invalid_client")
}

func TestUserInfoReleasesScopedClaims(t *testing.T) {
	f := newFixture(t, nil)

	narrow := f.login(t, "alice", "laptop", "openid")
	claims := decode[map[string]any](t, f.do(t, http.MethodGet, server.RouteUserInfo, narrow.AccessToken))
	require.Equal(t, "user-1", claims["sub"])
	require.NotContains(t, claims, "email")
	require.NotContains(t, claims, "name")

	wide := f.login(t, "alice", "laptop", "openid", "profile", "email")
	claims = decode[map[string]any](t, f.do(t, http.MethodGet, server.RouteUserInfo, wide.AccessToken))
	require.Equal(t, "alice@example.test", claims["email"])
	require.Equal(t, "Alice Liddell", claims["name"])
}

func TestAuthorizationCodeFlowWithPKCE(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	bearer := f.login(t, "alice", "phone")

	cfg := f.spaConfig("openid", "email")
	verifier := xoauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL("state-123", xoauth2.S256ChallengeOption(verifier), oidc.Nonce("nonce-456"))

	location := f.authorize(t, authURL, bearer.AccessToken)
	require.Equal(t, "app.example.test", location.Host)
	require.Equal(t, "state-123", location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	tok, err := cfg.Exchange(ctx, code, xoauth2.VerifierOption(verifier))
	require.NoError(t, err)

	rawID, ok := tok.Extra("id_token").(string)
	require.True(t, ok)
	idToken, err := f.idTokenVerifier().Verify(ctx, rawID)
	require.NoError(t, err)
	require.Equal(t, "user-1", idToken.Subject)
	require.Equal(t, "nonce-456", idToken.Nonce)

	// Codes are single use.
	_, err = cfg.Exchange(ctx, code, xoauth2.VerifierOption(verifier))
	requireRetrieveError(t, err, "invalid_grant")
}

func TestAuthorizationCodeRejectsWrongVerifier(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	bearer := f.login(t, "alice", "phone")

	cfg := f.spaConfig("openid")
	authURL := cfg.AuthCodeURL("s", xoauth2.S256ChallengeOption(xoauth2.GenerateVerifier()))
	code := f.authorize(t, authURL, bearer.AccessToken).Query().Get("code")
	require.NotEmpty(t, code)

	_, err := cfg.Exchange(ctx, code, xoauth2.VerifierOption(xoauth2.GenerateVerifier()))
	requireRetrieveError(t, err, "invalid_grant")
}

func TestAuthorizeErrors(t *testing.T) {
	f := newFixture(t, nil)
	bearer := f.login(t, "alice", "phone")
	challenge := xoauth2.S256ChallengeFromVerifier(xoauth2.GenerateVerifier())

	t.Run("unregistered redirect answers the caller", func(t *testing.T) {
		q := url.Values{
			"response_type": {"code"}, "client_id": {spaClientID},
			"redirect_uri": {"https://evil.example.test/cb"}, "code_challenge": {challenge},
			"code_challenge_method": {"S256"},
		}
		resp := f.do(t, http.MethodGet, server.RouteAuthorize+"?"+q.Encode(), bearer.AccessToken)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", decode[errorResponse](t, resp).Error)
	})

	t.Run("missing PKCE is redirected back", func(t *testing.T) {
		q := url.Values{
			"response_type": {"code"}, "client_id": {spaClientID},
			"redirect_uri": {redirectURI}, "state": {"abc"},
		}
		location := f.authorize(t, f.url(server.RouteAuthorize)+"?"+q.Encode(), bearer.AccessToken)
		require.Equal(t, "invalid_request", location.Query().Get("error"))
		require.Equal(t, "abc", location.Query().Get("state"))
	})

	t.Run("scope outside the client is redirected back", func(t *testing.T) {
		q := url.Values{
			"response_type": {"code"}, "client_id": {spaClientID},
			"redirect_uri": {redirectURI}, "scope": {"openid admin"},
			"code_challenge": {challenge}, "code_challenge_method": {"S256"},
		}
		location := f.authorize(t, f.url(server.RouteAuthorize)+"?"+q.Encode(), bearer.AccessToken)
		require.Equal(t, "invalid_scope", location.Query().Get("error"))
	})

	t.Run("requires a bearer", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, server.RouteAuthorize+"?client_id=spa", "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

// authorize calls the authorization endpoint with a bearer and returns the
// redirect it answered with.
func (f *fixture) authorize(t *testing.T, authURL, bearer string) *url.URL {
	t.Helper()
	noRedirect := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequest(http.MethodGet, authURL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := noRedirect.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return location
}

func TestAuthorizationCodeRejectsDeletedUser(t *testing.T) {
	f := newFixture(t, nil)
	bearer := f.login(t, "alice", "phone")
	require.NoError(t, f.directory.Delete("user-1"))

	q := url.Values{"response_type": {"code"}, "client_id": {spaClientID}, "redirect_uri": {redirectURI}}
	resp := f.do(t, http.MethodGet, server.RouteAuthorize+"?"+q.Encode(), bearer.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "access_denied", decode[errorResponse](t, resp).Error)
}
