package clients

import (
	"slices"

	"github.com/jrsteele09/go-token-authority/internal/utils"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/jrsteele09/go-token-authority/users"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (SPAs, mobile apps)
)

// Client is an OAuth2 application registered with the authority.
type Client struct {
	ID           string             `json:"id"`
	Type         ClientType         `json:"type"` // public or confidential
	Description  string             `json:"description"`
	SecretHash   string             `json:"-"` // bcrypt hash, empty for public clients
	GrantTypes   []oauth2.GrantType `json:"grantTypes"`
	RedirectURIs []string           `json:"redirectURIs"`
	Scopes       []string           `json:"scopes"` // Allowed scopes for this client
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// AllowsGrant reports whether the client may use the grant type
func (c *Client) AllowsGrant(grantType oauth2.GrantType) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// ValidateScopes checks if all requested scopes are allowed for this client
func (c *Client) ValidateScopes(requestedScopes string) error {
	for _, scope := range utils.SplitScopes(requestedScopes) {
		if !c.HasScope(scope) {
			return ErrInvalidScope
		}
	}
	return nil
}

// CheckSecret verifies a presented secret. Public clients have no secret and only
// match an empty one.
func (c *Client) CheckSecret(secret string) bool {
	if c.SecretHash == "" {
		return secret == ""
	}
	return users.CheckPasswordHash(secret, c.SecretHash)
}
