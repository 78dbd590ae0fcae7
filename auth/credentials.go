package auth

import (
	"context"

	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/users"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// Verifier checks a username and password.
type Verifier interface {
	Verify(ctx context.Context, username, password string) (*users.User, error)
}

// CredentialVerifier checks passwords against the directory's bcrypt hashes.
type CredentialVerifier struct {
	directory users.Directory
	dummyHash []byte
}

func NewCredentialVerifier(directory users.Directory) (*CredentialVerifier, error) {
	if directory == nil {
		return nil, errors.New("[NewCredentialVerifier] directory is required")
	}
	// Unknown usernames are compared against this hash so the response time
	// does not reveal whether the account exists.
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "[NewCredentialVerifier] GenerateFromPassword")
	}
	return &CredentialVerifier{directory: directory, dummyHash: dummy}, nil
}

// Verify returns the user when the password matches. It fails with
// ErrInvalidCredentials for unknown users and wrong passwords, and with
// ErrUserInactive for deactivated accounts.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password string) (*users.User, error) {
	user, err := v.directory.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "[CredentialVerifier.Verify] GetByUsername")
	}

	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, apperrors.ErrUserInactive
	}
	return user, nil
}

var _ Verifier = (*CredentialVerifier)(nil)
