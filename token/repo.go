package token

import "context"

// Store persists token metadata. Lookups returning collections return an empty,
// non-nil slice when nothing matches; single lookups return apperrors.ErrNotFound.
type Store interface {
	Get(ctx context.Context, id string) (*Token, error)
	GetByReferenceID(ctx context.Context, referenceID string) (*Token, error)
	GetBySubject(ctx context.Context, subject string) ([]*Token, error)
	GetByApplication(ctx context.Context, applicationID string) ([]*Token, error)
	GetByAuthorization(ctx context.Context, authorizationID string) ([]*Token, error)

	Insert(ctx context.Context, t *Token) error
	// Update is the only path for status changes. Expiry is immutable and a
	// terminal status never returns to valid.
	Update(ctx context.Context, t *Token) error
	Delete(ctx context.Context, t *Token) error

	// PruneExpired deletes every token past expiry, whatever its status.
	PruneExpired(ctx context.Context) (int, error)
	// RevokeAllBySubject moves every valid token of subject to revoked.
	RevokeAllBySubject(ctx context.Context, subject string) (int, error)
	// RevokeByID revokes a valid token. It reports false when the token is absent
	// or already terminal.
	RevokeByID(ctx context.Context, id string) (bool, error)
	// MarkRedeemed moves a valid refresh token to redeemed. It reports false when
	// another caller got there first.
	MarkRedeemed(ctx context.Context, id string) (bool, error)
}

// AuthorizationStore persists authorizations.
type AuthorizationStore interface {
	InsertAuthorization(ctx context.Context, a *Authorization) error
	GetAuthorization(ctx context.Context, id string) (*Authorization, error)
	// FindActiveAuthorization returns the newest valid authorization for the pair.
	FindActiveAuthorization(ctx context.Context, subject, applicationID string) (*Authorization, error)
	// RevokeAuthorization revokes the authorization and every valid token it owns.
	RevokeAuthorization(ctx context.Context, id string) (int, error)
}
