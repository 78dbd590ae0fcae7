package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/jrsteele09/go-token-authority/clients"
	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/pkg/errors"
)

// RFC 7636 bounds for code verifiers and challenges.
const (
	minPKCELength = 43
	maxPKCELength = 128
)

// ValidatePKCE validates PKCE (Proof Key for Code Exchange) parameters
func ValidatePKCE(codeChallenge string, method oauth2.CodeMethodType, required bool) error {
	if codeChallenge == "" {
		if required {
			return ErrPKCERequired
		}
		return nil
	}

	if len(codeChallenge) < minPKCELength || len(codeChallenge) > maxPKCELength {
		return ErrInvalidCodeChallenge
	}

	switch method {
	case oauth2.CodeMethodTypeS256, oauth2.CodeMethodTypePlain:
		return nil
	}
	return ErrInvalidCodeChallengeMethod
}

// ValidateCodeVerifier checks the verifier presented at the token endpoint.
func ValidateCodeVerifier(verifier string) error {
	if verifier == "" {
		return nil
	}
	if len(verifier) < minPKCELength || len(verifier) > maxPKCELength {
		return ErrInvalidCodeVerifier
	}
	return nil
}

func checkCodeChallenge(storedChallenge, verifier string, method oauth2.CodeMethodType) bool {
	if storedChallenge == "" { // No PKCE code challenge
		return verifier == ""
	}
	switch method {
	case oauth2.CodeMethodTypeS256:
		hash := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(hash[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(storedChallenge)) == 1
	case oauth2.CodeMethodTypePlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(storedChallenge)) == 1
	}
	return false
}

// AuthenticateClient loads the client and checks its secret. Public clients must
// not present one; confidential clients must present the right one.
func AuthenticateClient(ctx context.Context, repo clients.Repo, clientID, clientSecret string) (*clients.Client, error) {
	if clientID == "" {
		return nil, ErrInvalidClientID
	}
	client, err := repo.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidClientID
		}
		return nil, errors.Wrap(err, "[AuthenticateClient] Get")
	}

	if client.IsPublic() {
		if clientSecret != "" {
			return nil, ErrInvalidClientSecret
		}
		return client, nil
	}
	if clientSecret == "" || !client.CheckSecret(clientSecret) {
		return nil, ErrInvalidClientSecret
	}
	return client, nil
}
