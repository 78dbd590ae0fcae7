package passwordpolicy_test

import (
	"strings"
	"testing"

	"github.com/jrsteele09/go-token-authority/passwordpolicy"
	"github.com/stretchr/testify/require"
)

func TestValidate_CollectsEveryViolation(t *testing.T) {
	v := passwordpolicy.NewValidator(passwordpolicy.DefaultPolicy())

	result := v.Validate("abc")

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 4)
	require.Contains(t, result.Errors, "password must be at least 8 characters long")
	require.Contains(t, result.Errors, "password must contain at least one uppercase letter")
	require.Contains(t, result.Errors, "password must contain at least one digit")
	require.True(t, strings.HasPrefix(result.Errors[3], "password must contain at least one special character"))
}

func TestValidate_Empty(t *testing.T) {
	v := passwordpolicy.NewValidator(passwordpolicy.DefaultPolicy())

	result := v.Validate("")

	require.False(t, result.Valid)
	require.Equal(t, []string{"password is required"}, result.Errors)
}

func TestValidate_StrongPassword(t *testing.T) {
	v := passwordpolicy.NewValidator(passwordpolicy.DefaultPolicy())

	result := v.Validate("Correct-Horse-9")

	require.True(t, result.Valid)
	require.Empty(t, result.Errors)
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name     string
		policy   func(p *passwordpolicy.Policy)
		password string
		valid    bool
		contains string
	}{
		{
			name:     "too long",
			policy:   func(p *passwordpolicy.Policy) { p.MaxLength = 10 },
			password: "Abcdefgh1!xyz",
			contains: "at most 10 characters",
		},
		{
			name:     "missing lowercase",
			password: "ABCDEFG1!",
			contains: "lowercase",
		},
		{
			name:     "uppercase toggle off",
			policy:   func(p *passwordpolicy.Policy) { p.RequireUppercase = false },
			password: "abcdefg1!",
			valid:    true,
		},
		{
			name:     "custom special set",
			policy:   func(p *passwordpolicy.Policy) { p.SpecialCharacters = "#" },
			password: "Abcdefg1!",
			contains: "special character (#)",
		},
		{
			name:     "custom special set satisfied",
			policy:   func(p *passwordpolicy.Policy) { p.SpecialCharacters = "#" },
			password: "Abcdefg1#",
			valid:    true,
		},
		{
			name: "common password rejected case-insensitively",
			policy: func(p *passwordpolicy.Policy) {
				p.RequireSpecial = false
				p.RequireUppercase = false
				p.CommonPasswords = []string{"Password123"}
			},
			password: "PASSWORD123",
			contains: "too common",
		},
		{
			name: "all toggles off only length applies",
			policy: func(p *passwordpolicy.Policy) {
				p.RequireUppercase = false
				p.RequireLowercase = false
				p.RequireDigit = false
				p.RequireSpecial = false
				p.CommonPasswords = nil
			},
			password: "aaaaaaaa",
			valid:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := passwordpolicy.DefaultPolicy()
			if tt.policy != nil {
				tt.policy(&policy)
			}
			result := passwordpolicy.NewValidator(policy).Validate(tt.password)
			require.Equal(t, tt.valid, result.Valid, "errors: %v", result.Errors)
			if tt.contains != "" {
				require.Condition(t, func() bool {
					for _, e := range result.Errors {
						if strings.Contains(e, tt.contains) {
							return true
						}
					}
					return false
				}, "expected an error containing %q, got %v", tt.contains, result.Errors)
			}
		})
	}
}
