package oauth2

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749.
type TokenResponse struct {
	// AccessToken is the signed JWT used to access protected resources.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token containing user identity information.
	// Only present: When "openid" scope was granted for a user principal
	IdToken *string `json:"id_token,omitempty"`

	// TokenType indicates how to use the access token (always "Bearer").
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is an opaque reference handle used to obtain new access tokens.
	// Usage: Send to /connect/token with grant_type=refresh_token
	// Security: Rotates on each use, the redeemed handle is rejected afterwards
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope indicates the access token's granted permissions (space-separated).
	Scope string `json:"scope,omitempty"`
}
