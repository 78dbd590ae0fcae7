package auth

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-token-authority/clients"
	"github.com/jrsteele09/go-token-authority/oauth2"
)

// AuthorizationParameters holds parameters for the OAuth2 authorization request.
// These are received as query or form parameters at /connect/authorize.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	ClientID string

	// ResponseType must be "code".
	ResponseType oauth2.ResponseType

	// RedirectURI must exactly match a URI registered for the client.
	RedirectURI string

	// Scope is the space separated list of requested scopes.
	Scope string

	// State is echoed back on the redirect for CSRF protection by the client.
	State string

	// CodeChallenge is the PKCE challenge derived from the code_verifier.
	CodeChallenge string

	// CodeChallengeMethod is "S256" or "plain". Defaults to "plain" when a
	// challenge is present without a method.
	CodeChallengeMethod oauth2.CodeMethodType

	// Nonce is copied into the identity token.
	Nonce string
}

// ParseAuthorizationParameters reads the authorization request from url values.
func ParseAuthorizationParameters(values url.Values) *AuthorizationParameters {
	p := &AuthorizationParameters{
		ClientID:            values.Get("client_id"),
		ResponseType:        oauth2.ResponseType(values.Get("response_type")),
		RedirectURI:         values.Get("redirect_uri"),
		Scope:               values.Get("scope"),
		State:               values.Get("state"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: oauth2.CodeMethodType(values.Get("code_challenge_method")),
		Nonce:               values.Get("nonce"),
	}
	if p.CodeChallenge != "" && p.CodeChallengeMethod == "" {
		p.CodeChallengeMethod = oauth2.CodeMethodTypePlain
	}
	return p
}

// ValidateParametersWithClient validates the Authorization parameters against the client
func (p *AuthorizationParameters) ValidateParametersWithClient(client *clients.Client) error {
	if p.ResponseType != oauth2.CodeResponseType {
		return ErrInvalidResponseType
	}

	if !client.AllowsGrant(oauth2.AuthorizationCodeGrant) {
		return ErrGrantNotAllowed
	}

	// The redirect URI is checked before anything that would be reported back
	// through a redirect.
	if strings.TrimSpace(p.RedirectURI) == "" || !client.HasRedirectURI(p.RedirectURI) {
		return ErrInvalidRedirectURI
	}

	if err := ValidatePKCE(p.CodeChallenge, p.CodeChallengeMethod, client.IsPublic()); err != nil {
		return err
	}

	return client.ValidateScopes(p.Scope)
}
