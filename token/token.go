package token

import (
	"slices"
	"time"

	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/pkg/errors"
)

// Type is the kind of artefact a Token record describes.
type Type string

const (
	TypeAccess    Type = "access_token"
	TypeRefresh   Type = "refresh_token"
	TypeIdentity  Type = "id_token"
	TypeReference Type = "reference"
)

// Status of a token. Valid is the only non-terminal state.
type Status string

const (
	StatusValid    Status = "valid"
	StatusRevoked  Status = "revoked"
	StatusRedeemed Status = "redeemed"
)

var (
	ErrExpiryImmutable   = errors.New("token expiry cannot change after creation")
	ErrInvalidTransition = errors.New("token cannot return to valid")
)

// Token is the persisted metadata of one issued artefact.
type Token struct {
	ID              string    `json:"id"`
	Type            Type      `json:"type"`
	Subject         string    `json:"subject"`
	ApplicationID   string    `json:"application_id"`
	AuthorizationID string    `json:"authorization_id,omitempty"` // empty for client credentials
	ReferenceID     string    `json:"reference_id,omitempty"`     // hash of the opaque handle for reference tokens
	DeviceID        string    `json:"device_id,omitempty"`
	Scopes          []string  `json:"scopes,omitempty"`
	Status          Status    `json:"status"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActive reports whether the token is valid and not yet expired.
func (t *Token) IsActive(now time.Time) bool {
	return t.Status == StatusValid && !t.IsExpired(now)
}

func (t *Token) Clone() *Token {
	c := *t
	c.Scopes = slices.Clone(t.Scopes)
	return &c
}

// checkUpdate enforces the immutable fields of a stored token.
func checkUpdate(existing, updated *Token) error {
	if !existing.ExpiresAt.Equal(updated.ExpiresAt) {
		return ErrExpiryImmutable
	}
	if existing.Status != StatusValid && updated.Status == StatusValid {
		return ErrInvalidTransition
	}
	return nil
}

type AuthorizationStatus string

const (
	AuthorizationValid   AuthorizationStatus = "valid"
	AuthorizationRevoked AuthorizationStatus = "revoked"
)

// Authorization links a subject to an application and owns the tokens issued under it.
type Authorization struct {
	ID            string              `json:"id"`
	Subject       string              `json:"subject"`
	ApplicationID string              `json:"application_id"`
	Status        AuthorizationStatus `json:"status"`
	Type          oauth2.GrantType    `json:"type"`
	Scopes        []string            `json:"scopes,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func (a *Authorization) IsValid() bool {
	return a.Status == AuthorizationValid
}

func (a *Authorization) Clone() *Authorization {
	c := *a
	c.Scopes = slices.Clone(a.Scopes)
	return &c
}
