package passwordpolicy

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSpecialCharacters is the punctuation set used when a policy does not name one.
const DefaultSpecialCharacters = "!@#$%^&*()_+-=[]{}|;':\",./<>?`~\\"

// Policy is an immutable snapshot of the password rules.
type Policy struct {
	MinLength         int
	MaxLength         int
	RequireUppercase  bool
	RequireLowercase  bool
	RequireDigit      bool
	RequireSpecial    bool
	SpecialCharacters string
	CommonPasswords   []string
}

// DefaultPolicy requires 8 to 128 characters with upper, lower, digit and special
// characters, and rejects the built-in list of common passwords.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:         8,
		MaxLength:         128,
		RequireUppercase:  true,
		RequireLowercase:  true,
		RequireDigit:      true,
		RequireSpecial:    true,
		SpecialCharacters: DefaultSpecialCharacters,
		CommonPasswords:   DefaultCommonPasswords(),
	}
}

// DefaultCommonPasswords returns a copy of the built-in denylist.
func DefaultCommonPasswords() []string {
	return []string{
		"password", "password1", "password123", "passw0rd", "p@ssw0rd", "p@ssword1",
		"123456", "12345678", "123456789", "1234567890", "qwerty", "qwerty123",
		"abc123", "111111", "letmein", "welcome", "welcome1", "admin", "admin123",
		"iloveyou", "monkey", "dragon", "football", "baseball", "sunshine",
		"princess", "trustno1", "changeme", "secret", "master",
	}
}

// Result is the outcome of a validation. Errors holds every violated rule.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validator checks passwords against a policy snapshot.
type Validator struct {
	policy Policy
	common map[string]struct{}
}

func NewValidator(policy Policy) *Validator {
	if policy.SpecialCharacters == "" {
		policy.SpecialCharacters = DefaultSpecialCharacters
	}
	common := make(map[string]struct{}, len(policy.CommonPasswords))
	for _, p := range policy.CommonPasswords {
		common[strings.ToLower(p)] = struct{}{}
	}
	return &Validator{policy: policy, common: common}
}

// Policy returns the snapshot the validator was built with.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Validate checks every rule and collects all violations.
func (v *Validator) Validate(password string) Result {
	if password == "" {
		return Result{Valid: false, Errors: []string{"password is required"}}
	}

	var errs []string
	p := v.policy

	length := utf8.RuneCountInString(password)
	if p.MinLength > 0 && length < p.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		errs = append(errs, fmt.Sprintf("password must be at most %d characters long", p.MaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(p.SpecialCharacters, r) {
			hasSpecial = true
		}
	}

	if p.RequireUppercase && !hasUpper {
		errs = append(errs, "password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		errs = append(errs, "password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		errs = append(errs, "password must contain at least one digit")
	}
	if p.RequireSpecial && !hasSpecial {
		errs = append(errs, fmt.Sprintf("password must contain at least one special character (%s)", p.SpecialCharacters))
	}
	if _, ok := v.common[strings.ToLower(password)]; ok {
		errs = append(errs, "password is too common")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}
