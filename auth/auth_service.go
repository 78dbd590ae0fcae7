package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/jrsteele09/go-token-authority/clients"
	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/internal/utils"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/pkg/errors"
)

const (
	codeGenerationLength = 32
	DefaultCodeLifetime  = 5 * time.Minute
)

// AuthorizationService runs the authorization code flow for principals that have
// already authenticated with a bearer token.
type AuthorizationService struct {
	clients      clients.Repo
	codes        CodeRepo
	codeLifetime time.Duration
	nowTime      func() time.Time
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithServiceNowTime sets the now time function (primarily for testing)
func WithServiceNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

func WithCodeLifetime(d time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.codeLifetime = d
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(clientRepo clients.Repo, codes CodeRepo, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if clientRepo == nil {
		return nil, errors.New("[NewAuthorizationService] Clients repo is required")
	}
	if codes == nil {
		return nil, errors.New("[NewAuthorizationService] Code repo is required")
	}

	as := &AuthorizationService{
		clients:      clientRepo,
		codes:        codes,
		codeLifetime: DefaultCodeLifetime,
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(as)
	}
	return as, nil
}

// Authorize validates the request against the client, stores a one-time code for
// the principal and returns the redirect URL carrying it.
func (as *AuthorizationService) Authorize(ctx context.Context, params *AuthorizationParameters, principal *Principal) (string, error) {
	if principal == nil || principal.IsClient() {
		return "", errors.New("[AuthorizationService.Authorize] a user principal is required")
	}

	client, err := as.clients.Get(ctx, params.ClientID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", ErrInvalidClientID
		}
		return "", errors.Wrap(err, "[AuthorizationService.Authorize] Get")
	}

	if err := params.ValidateParametersWithClient(client); err != nil {
		return "", err
	}

	code, err := generateCode()
	if err != nil {
		return "", errors.Wrap(err, "[AuthorizationService.Authorize] generateCode")
	}

	expiresAt := as.nowTime().Add(as.codeLifetime)
	granted := &Principal{
		Subject:       principal.Subject,
		Username:      principal.Username,
		Email:         principal.Email,
		EmailVerified: principal.EmailVerified,
		Name:          principal.Name,
		Roles:         principal.Roles,
		Scopes:        utils.SplitScopes(params.Scope),
		ClientID:      client.ID,
		DeviceID:      principal.DeviceID,
		Nonce:         params.Nonce,
		ExpiresAt:     expiresAt,
	}
	if err := as.codes.Save(ctx, &AuthorizationCode{
		Code:                code,
		ClientID:            client.ID,
		RedirectURI:         params.RedirectURI,
		Principal:           clonePrincipal(granted),
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		Nonce:               params.Nonce,
		ExpiresAt:           expiresAt,
	}); err != nil {
		return "", errors.Wrap(err, "[AuthorizationService.Authorize] Save")
	}

	return redirectWith(params.RedirectURI, url.Values{"code": {code}}, params.State)
}

// Redeem consumes a code for the client. The redirect URI must repeat the one
// used at the authorization endpoint and the verifier must satisfy the stored
// PKCE challenge.
func (as *AuthorizationService) Redeem(ctx context.Context, code string, client *clients.Client, redirectURI, codeVerifier string) (*Principal, error) {
	if code == "" {
		return nil, ErrInvalidAuthorizationCode
	}
	if err := ValidateCodeVerifier(codeVerifier); err != nil {
		return nil, err
	}

	stored, err := as.codes.Consume(ctx, code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidAuthorizationCode
		}
		return nil, errors.Wrap(err, "[AuthorizationService.Redeem] Consume")
	}

	if stored.ClientID != client.ID {
		return nil, ErrInvalidAuthorizationCode
	}
	if stored.RedirectURI != redirectURI {
		return nil, ErrInvalidRedirectURI
	}
	if !checkCodeChallenge(stored.CodeChallenge, codeVerifier, stored.CodeChallengeMethod) {
		return nil, ErrInvalidCodeVerifier
	}
	return clonePrincipal(stored.Principal), nil
}

// ErrorRedirect reports an authorization failure back to a validated redirect URI.
func ErrorRedirect(redirectURI string, oerr *oauth2.Error, state string) (string, error) {
	values := url.Values{"error": {string(oerr.Code)}}
	if oerr.Description != "" {
		values.Set("error_description", oerr.Description)
	}
	return redirectWith(redirectURI, values, state)
}

func redirectWith(redirectURI string, values url.Values, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", errors.Wrap(err, "[redirectWith] url.Parse")
	}
	q := u.Query()
	for k, vs := range values {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func generateCode() (string, error) {
	b := make([]byte, codeGenerationLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
