package auth

import (
	"slices"
	"time"

	"github.com/jrsteele09/go-token-authority/claims"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/jrsteele09/go-token-authority/users"
)

// Principal is the authenticated identity a grant resolves to.
type Principal struct {
	Subject       string
	Username      string
	Email         string
	EmailVerified bool
	Name          string
	Roles         []string
	Scopes        []string
	ClientID      string

	// Set when the principal continues an earlier grant.
	AuthorizationID string
	DeviceID        string
	Nonce           string

	// ExpiresAt bounds how long a handed-over principal may be exchanged.
	// Zero means no bound.
	ExpiresAt time.Time
}

// PrincipalFromUser builds a user principal for the given client and scopes.
func PrincipalFromUser(u *users.User, clientID string, scopes []string) *Principal {
	return &Principal{
		Subject:       u.ID,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          u.DisplayName(),
		Roles:         slices.Clone(u.Roles),
		Scopes:        slices.Clone(scopes),
		ClientID:      clientID,
	}
}

// ClientPrincipal is the principal for the client credentials grant.
func ClientPrincipal(clientID string, scopes []string) *Principal {
	return &Principal{
		Subject:  clientID,
		Name:     clientID,
		Scopes:   slices.Clone(scopes),
		ClientID: clientID,
	}
}

// IsClient reports whether the principal is a client rather than a user.
func (p *Principal) IsClient() bool {
	return p.Username == "" && p.Subject == p.ClientID
}

func (p *Principal) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Claims lists the principal's claims. Destinations decide where each one lands.
func (p *Principal) Claims() []claims.Claim {
	cs := []claims.Claim{{Type: claims.Subject, Value: p.Subject}}
	if p.Name != "" {
		cs = append(cs, claims.Claim{Type: claims.Name, Value: p.Name})
	}
	if p.Email != "" {
		cs = append(cs,
			claims.Claim{Type: claims.Email, Value: p.Email},
			claims.Claim{Type: claims.EmailVerified, Value: p.EmailVerified},
		)
	}
	for _, r := range p.Roles {
		cs = append(cs, claims.Claim{Type: claims.Role, Value: r})
	}
	return cs
}

// GrantRequest is the input to Dispatcher.Exchange.
type GrantRequest struct {
	GrantType oauth2.GrantType
	ClientID  string
	Username  string
	Password  string
	Scopes    []string

	// Principal carries the identity established by an earlier authorization
	// code or refresh handshake.
	Principal *Principal
}
