package claims_test

import (
	"testing"

	"github.com/jrsteele09/go-token-authority/claims"
	"github.com/stretchr/testify/require"
)

func TestDestinations_Table(t *testing.T) {
	tests := []struct {
		claimType string
		access    bool
		identity  bool
	}{
		{claims.Subject, true, true},
		{claims.Name, true, true},
		{claims.Email, false, true},
		{claims.EmailVerified, false, true},
		{claims.Role, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.claimType, func(t *testing.T) {
			d := claims.Destinations(tt.claimType)
			require.Equal(t, tt.access, d.Has(claims.AccessToken))
			require.Equal(t, tt.identity, d.Has(claims.IdentityToken))
		})
	}
}

func TestDestinations_UnknownClaimIsDropped(t *testing.T) {
	for _, claimType := range []string{"", "phone_number", "amr", "SUB", "roles", "tenant"} {
		d := claims.Destinations(claimType)
		require.True(t, d.Empty(), "claim %q should have no destination", claimType)
		require.False(t, d.Has(claims.AccessToken))
		require.False(t, d.Has(claims.IdentityToken))
	}
}

func TestFilter(t *testing.T) {
	cs := []claims.Claim{
		{Type: claims.Subject, Value: "user-1"},
		{Type: claims.Name, Value: "John Doe"},
		{Type: claims.Email, Value: "john@example.com"},
		{Type: claims.EmailVerified, Value: true},
		{Type: claims.Role, Value: "admin"},
		{Type: claims.Role, Value: "user"},
		{Type: "secret_internal", Value: "x"},
	}

	access := claims.ToMap(claims.Filter(cs, claims.AccessToken))
	require.Equal(t, map[string]any{
		"sub":  "user-1",
		"name": "John Doe",
		"role": []any{"admin", "user"},
	}, access)

	identity := claims.ToMap(claims.Filter(cs, claims.IdentityToken))
	require.Equal(t, map[string]any{
		"sub":            "user-1",
		"name":           "John Doe",
		"email":          "john@example.com",
		"email_verified": true,
	}, identity)
}

func TestDestinationSet_String(t *testing.T) {
	require.Equal(t, "{access_token,id_token}", claims.Destinations(claims.Subject).String())
	require.Equal(t, "{}", claims.Destinations("unknown").String())
}

func TestForScopes(t *testing.T) {
	cs := []claims.Claim{
		{Type: claims.Subject, Value: "u1"},
		{Type: claims.Name, Value: "Alice Smith"},
		{Type: claims.Email, Value: "alice@example.com"},
		{Type: claims.EmailVerified, Value: true},
		{Type: claims.Role, Value: "admin"},
	}

	require.Equal(t, []claims.Claim{cs[0], cs[4]}, claims.ForScopes(cs, []string{"openid"}))
	require.Equal(t, []claims.Claim{cs[0], cs[1], cs[4]}, claims.ForScopes(cs, []string{"openid", "profile"}))
	require.Equal(t, cs, claims.ForScopes(cs, []string{"profile", "email"}))
}
