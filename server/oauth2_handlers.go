package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"

	"github.com/jrsteele09/go-token-authority/auth"
	"github.com/jrsteele09/go-token-authority/claims"
	"github.com/jrsteele09/go-token-authority/clients"
	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/internal/utils"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/jrsteele09/go-token-authority/sessions"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeOAuthError(w http.ResponseWriter, oerr *oauth2.Error, status int) {
	writeJSON(w, status, oerr)
}

// statusFor maps a protocol error onto its HTTP status outside the token endpoint.
func statusFor(code oauth2.ErrorCode) int {
	switch code {
	case oauth2.ErrCodeInvalidClient, oauth2.ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case oauth2.ErrCodeAccessDenied:
		return http.StatusForbidden
	case oauth2.ErrCodeNotFound:
		return http.StatusNotFound
	case oauth2.ErrCodeServerError:
		return http.StatusInternalServerError
	case oauth2.ErrCodeTemporarilyUnavailable:
		return http.StatusTooManyRequests
	}
	return http.StatusBadRequest
}

// tokenStatusFor is statusFor for the token endpoint, where OAuth2 reports
// access_denied as a bad request.
func tokenStatusFor(code oauth2.ErrorCode) int {
	if code == oauth2.ErrCodeAccessDenied {
		return http.StatusBadRequest
	}
	return statusFor(code)
}

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer := s.Tokens.Issuer()

		algs := []string{}
		if jwks, err := s.Tokens.JWKS(); err == nil {
			for _, k := range jwks.Keys {
				if k.Alg != "" && !slices.Contains(algs, k.Alg) {
					algs = append(algs, k.Alg)
				}
			}
		}

		resp := map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + RouteAuthorize,
			"token_endpoint":         issuer + RouteToken,
			"userinfo_endpoint":      issuer + RouteUserInfo,
			"jwks_uri":               issuer + RouteWellKnownJWKS,

			"response_types_supported":              []oauth2.ResponseType{oauth2.CodeResponseType},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": algs,
			"scopes_supported": []string{
				oauth2.ScopeOpenID,
				oauth2.ScopeProfile,
				oauth2.ScopeEmail,
				oauth2.ScopeRoles,
				oauth2.ScopeOfflineAccess,
			},
			"token_endpoint_auth_methods_supported": []string{
				"client_secret_basic",
				"client_secret_post",
				"none", // public clients
			},
			"grant_types_supported": []oauth2.GrantType{
				oauth2.PasswordGrant,
				oauth2.AuthorizationCodeGrant,
				oauth2.RefreshTokenGrant,
				oauth2.ClientCredentialsGrant,
			},
			"code_challenge_methods_supported": []oauth2.CodeMethodType{oauth2.CodeMethodTypeS256, oauth2.CodeMethodTypePlain},
			"claims_supported": []string{
				claims.Subject,
				claims.Name,
				claims.Email,
				claims.EmailVerified,
				claims.Role,
			},
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.Tokens.JWKS()
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, jwks)
	}
}

// Token is the OAuth2 token endpoint.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")

		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, oauth2.InvalidRequest("malformed form body"), http.StatusBadRequest)
			return
		}

		grantType := oauth2.GrantType(r.PostForm.Get("grant_type"))
		if grantType == "" {
			writeOAuthError(w, oauth2.InvalidRequest("grant_type is required"), http.StatusBadRequest)
			return
		}
		if !grantType.Supported() {
			_, oerr := s.Dispatcher.Exchange(r.Context(), auth.GrantRequest{GrantType: grantType})
			writeOAuthError(w, oerr, tokenStatusFor(oerr.Code))
			return
		}

		client, oerr := s.authenticateClient(r)
		if oerr != nil {
			if oerr.Code == oauth2.ErrCodeInvalidClient {
				w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
			}
			writeOAuthError(w, oerr, tokenStatusFor(oerr.Code))
			return
		}

		resp, oerr := s.exchange(r, client, grantType)
		if oerr != nil {
			writeOAuthError(w, oerr, tokenStatusFor(oerr.Code))
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// authenticateClient reads client credentials from HTTP Basic or the form body.
func (s *Server) authenticateClient(r *http.Request) (*clients.Client, *oauth2.Error) {
	clientID, clientSecret, hasBasic := r.BasicAuth()
	if hasBasic {
		// RFC 6749 2.3.1 form-encodes both parts
		var err error
		if clientID, err = url.QueryUnescape(clientID); err != nil {
			return nil, oauth2.InvalidClient("malformed client credentials")
		}
		if clientSecret, err = url.QueryUnescape(clientSecret); err != nil {
			return nil, oauth2.InvalidClient("malformed client credentials")
		}
	} else {
		clientID = r.PostForm.Get("client_id")
		clientSecret = r.PostForm.Get("client_secret")
	}

	client, err := auth.AuthenticateClient(r.Context(), s.Clients, clientID, clientSecret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidClientID) || errors.Is(err, auth.ErrInvalidClientSecret) {
			return nil, oauth2.InvalidClient("client authentication failed")
		}
		return nil, s.logServerError(r, err)
	}
	return client, nil
}

func (s *Server) exchange(r *http.Request, client *clients.Client, grantType oauth2.GrantType) (*oauth2.TokenResponse, *oauth2.Error) {
	ctx := r.Context()
	form := r.PostForm

	if !client.AllowsGrant(grantType) {
		return nil, oauth2.UnauthorizedClient("the client is not allowed to use this grant type")
	}
	requested := form.Get("scope")
	if err := client.ValidateScopes(requested); err != nil {
		return nil, oauth2.InvalidScope("the requested scope is not allowed for this client")
	}

	var refresh *token.Token
	req := auth.GrantRequest{
		GrantType: grantType,
		ClientID:  client.ID,
		Scopes:    utils.SplitScopes(requested),
	}

	switch grantType {
	case oauth2.PasswordGrant:
		req.Username = form.Get("username")
		req.Password = form.Get("password")

	case oauth2.ClientCredentialsGrant:
		if client.IsPublic() {
			return nil, oauth2.InvalidClient("public clients cannot use client_credentials")
		}

	case oauth2.AuthorizationCodeGrant:
		principal, err := s.Authorizer.Redeem(ctx, form.Get("code"), client, form.Get("redirect_uri"), form.Get("code_verifier"))
		if err != nil {
			if isAuthorizationFailure(err) {
				return nil, oauth2.InvalidGrant(oauth2.MsgTokenNoLongerValid)
			}
			return nil, s.logServerError(r, err)
		}
		req.Principal = principal
		req.Scopes = principal.Scopes

	case oauth2.RefreshTokenGrant:
		principal, t, oerr := s.refreshPrincipal(r, form.Get("refresh_token"), req.Scopes)
		if oerr != nil {
			return nil, oerr
		}
		req.Principal = principal
		req.Scopes = principal.Scopes
		refresh = t
	}

	principal, oerr := s.Dispatcher.Exchange(ctx, req)
	if oerr != nil {
		return nil, oerr
	}

	// The handle is spent only once every check has passed.
	if refresh != nil {
		if err := s.Tokens.RedeemRefresh(ctx, refresh); err != nil {
			if isTokenFailure(err) {
				return nil, oauth2.InvalidGrant(oauth2.MsgTokenNoLongerValid)
			}
			return nil, s.logServerError(r, err)
		}
	}

	deviceID := principal.DeviceID
	if deviceID == "" {
		deviceID = string(sessions.ResolveDeviceID(r.Header))
	}

	resp, err := s.Tokens.Issue(ctx, token.IssueRequest{
		GrantType:       grantType,
		Subject:         principal.Subject,
		ClientID:        client.ID,
		Scopes:          principal.Scopes,
		Claims:          principal.Claims(),
		DeviceID:        deviceID,
		Nonce:           principal.Nonce,
		AuthorizationID: principal.AuthorizationID,
	})
	if err != nil {
		if isTokenFailure(err) {
			return nil, oauth2.InvalidGrant(oauth2.MsgTokenNoLongerValid)
		}
		return nil, s.logServerError(r, err)
	}
	return resp, nil
}

// refreshPrincipal checks the handle and rebuilds the principal it was issued
// to. A narrower scope may be requested; a wider one may not. The handle is not
// consumed here.
func (s *Server) refreshPrincipal(r *http.Request, handle string, requested []string) (*auth.Principal, *token.Token, *oauth2.Error) {
	if handle == "" {
		return nil, nil, oauth2.InvalidRequest("refresh_token is required")
	}

	t, err := s.Tokens.CheckRefresh(r.Context(), handle, requested)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidScope) {
			return nil, nil, oauth2.InvalidScope("the requested scope exceeds the original grant")
		}
		if isTokenFailure(err) {
			return nil, nil, oauth2.InvalidGrant(oauth2.MsgTokenNoLongerValid)
		}
		return nil, nil, s.logServerError(r, err)
	}

	scopes := t.Scopes
	if len(requested) > 0 {
		scopes = requested
	}

	return &auth.Principal{
		Subject:         t.Subject,
		ClientID:        t.ApplicationID,
		Scopes:          slices.Clone(scopes),
		AuthorizationID: t.AuthorizationID,
		DeviceID:        t.DeviceID,
		ExpiresAt:       t.ExpiresAt,
	}, t, nil
}

func isTokenFailure(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidToken) ||
		errors.Is(err, apperrors.ErrTokenExpired) ||
		errors.Is(err, apperrors.ErrTokenRevoked) ||
		errors.Is(err, apperrors.ErrTokenBlacklisted) ||
		errors.Is(err, apperrors.ErrNotFound)
}

func isAuthorizationFailure(err error) bool {
	for _, target := range []error{
		auth.ErrInvalidAuthorizationCode,
		auth.ErrInvalidRedirectURI,
		auth.ErrInvalidCodeVerifier,
		auth.ErrInvalidClientID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) logServerError(r *http.Request, err error) *oauth2.Error {
	log.Error().Err(err).Str("path", r.URL.Path).Msg("token request failed")
	captureError(r, err)
	return oauth2.ServerError()
}

// Authorize issues an authorization code to the bearer's user and redirects back
// to the client.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		introspection, _ := IntrospectionFromContext(r.Context())

		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, oauth2.InvalidRequest("malformed request"), http.StatusBadRequest)
			return
		}
		params := auth.ParseAuthorizationParameters(r.Form)

		user, err := s.Users.GetByID(r.Context(), introspection.Subject)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				writeOAuthError(w, oauth2.AccessDenied(oauth2.MsgUserNoLongerExists), http.StatusForbidden)
				return
			}
			s.internalError(w, r, err)
			return
		}
		if !user.Active {
			writeOAuthError(w, oauth2.AccessDenied("the user is not active"), http.StatusForbidden)
			return
		}

		principal := auth.PrincipalFromUser(user, params.ClientID, utils.SplitScopes(params.Scope))
		principal.DeviceID = introspection.DeviceID
		if principal.DeviceID == "" {
			principal.DeviceID = string(sessions.ResolveDeviceID(r.Header))
		}

		redirectURL, err := s.Authorizer.Authorize(r.Context(), params, principal)
		if err == nil {
			http.Redirect(w, r, redirectURL, http.StatusFound)
			return
		}

		oerr, redirectable := authorizeError(err)
		if oerr == nil {
			s.internalError(w, r, err)
			return
		}
		// Until the redirect URI is known to be registered, errors go back to the caller.
		if !redirectable {
			writeOAuthError(w, oerr, http.StatusBadRequest)
			return
		}
		target, rerr := auth.ErrorRedirect(params.RedirectURI, oerr, params.State)
		if rerr != nil {
			writeOAuthError(w, oerr, http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// authorizeError maps an authorization failure onto its protocol error and
// reports whether it was raised after the redirect URI was validated.
func authorizeError(err error) (*oauth2.Error, bool) {
	switch {
	case errors.Is(err, auth.ErrInvalidClientID):
		return oauth2.InvalidClient("unknown client"), false
	case errors.Is(err, auth.ErrInvalidRedirectURI):
		return oauth2.InvalidRequest("redirect_uri is not registered for the client"), false
	case errors.Is(err, auth.ErrInvalidResponseType):
		return oauth2.NewError(oauth2.ErrCodeUnsupportedResponseType, "only the code response type is supported"), false
	case errors.Is(err, auth.ErrGrantNotAllowed):
		return oauth2.UnauthorizedClient("the client may not use the authorization code flow"), false
	case errors.Is(err, auth.ErrPKCERequired):
		return oauth2.InvalidRequest("code_challenge is required for public clients"), true
	case errors.Is(err, auth.ErrInvalidCodeChallenge), errors.Is(err, auth.ErrInvalidCodeChallengeMethod):
		return oauth2.InvalidRequest("invalid code_challenge"), true
	case errors.Is(err, clients.ErrInvalidScope):
		return oauth2.InvalidScope("the requested scope is not allowed for this client"), true
	}
	return nil, false
}

// UserInfo returns the identity claims the access token's scopes release.
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		introspection, _ := IntrospectionFromContext(r.Context())

		user, err := s.Users.GetByID(r.Context(), introspection.Subject)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				writeBearerChallenge(w, oauth2.InvalidToken("the token does not belong to a user"))
				return
			}
			s.internalError(w, r, err)
			return
		}
		if !user.Active {
			writeBearerChallenge(w, oauth2.InvalidToken(oauth2.MsgTokenNoLongerValid))
			return
		}

		principal := auth.PrincipalFromUser(user, introspection.ClientID, introspection.Scopes)
		released := claims.ForScopes(claims.Filter(principal.Claims(), claims.IdentityToken), introspection.Scopes)

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, claims.ToMap(released))
	}
}
