package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-token-authority/oauth2"
)

// AuthorizationCode is the state held between the authorization and token endpoints.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	Principal           *Principal
	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeMethodType
	Nonce               string
	ExpiresAt           time.Time
}

// CodeRepo stores authorization codes. Consume returns a code at most once.
type CodeRepo interface {
	Save(ctx context.Context, code *AuthorizationCode) error
	Consume(ctx context.Context, code string) (*AuthorizationCode, error)
}
