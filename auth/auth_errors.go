package auth

import "errors"

// Authorization request failures. The HTTP layer maps them onto oauth2 error codes.
var (
	ErrInvalidClientID            = errors.New("invalid client id")
	ErrInvalidClientSecret        = errors.New("invalid client secret")
	ErrInvalidRedirectURI         = errors.New("invalid redirect uri")
	ErrInvalidResponseType        = errors.New("invalid response type")
	ErrInvalidCodeChallenge       = errors.New("invalid code challenge")
	ErrInvalidCodeChallengeMethod = errors.New("invalid code challenge method")
	ErrInvalidCodeVerifier        = errors.New("invalid code verifier")
	ErrPKCERequired               = errors.New("PKCE required for public clients")
	ErrGrantNotAllowed            = errors.New("grant type not allowed for client")
	ErrInvalidAuthorizationCode   = errors.New("invalid authorization code")
)
