package config

import (
	"strings"

	"github.com/jrsteele09/go-token-authority/passwordpolicy"
)

type PasswordPolicyConfig interface {
	GetPasswordMinLength() int
	GetPasswordMaxLength() int
	GetPasswordRequireUppercase() bool
	GetPasswordRequireLowercase() bool
	GetPasswordRequireDigit() bool
	GetPasswordRequireSpecial() bool
	GetPasswordSpecialCharacters() string
	GetPasswordCommonList() []string
}

type Password struct{}

var _ PasswordPolicyConfig = Password{}

func (Password) GetPasswordMinLength() int {
	return GetEnvInt("PASSWORD_MIN_LENGTH", 8)
}

func (Password) GetPasswordMaxLength() int {
	return GetEnvInt("PASSWORD_MAX_LENGTH", 128)
}

func (Password) GetPasswordRequireUppercase() bool {
	return GetEnvBool("PASSWORD_REQUIRE_UPPERCASE", true)
}

func (Password) GetPasswordRequireLowercase() bool {
	return GetEnvBool("PASSWORD_REQUIRE_LOWERCASE", true)
}

func (Password) GetPasswordRequireDigit() bool {
	return GetEnvBool("PASSWORD_REQUIRE_DIGIT", true)
}

func (Password) GetPasswordRequireSpecial() bool {
	return GetEnvBool("PASSWORD_REQUIRE_SPECIAL", true)
}

func (Password) GetPasswordSpecialCharacters() string {
	return GetEnv("PASSWORD_SPECIAL_CHARACTERS", passwordpolicy.DefaultSpecialCharacters)
}

// GetPasswordCommonList returns nil when the built-in list should be used.
func (Password) GetPasswordCommonList() []string {
	raw := GetEnv("PASSWORD_COMMON_LIST", "")
	if raw == "" {
		return nil
	}
	var list []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}

// PasswordPolicy resolves the password policy snapshot once.
func PasswordPolicy(c PasswordPolicyConfig) passwordpolicy.Policy {
	p := passwordpolicy.DefaultPolicy()
	if n := c.GetPasswordMinLength(); n > 0 {
		p.MinLength = n
	}
	if n := c.GetPasswordMaxLength(); n >= p.MinLength {
		p.MaxLength = n
	}
	p.RequireUppercase = c.GetPasswordRequireUppercase()
	p.RequireLowercase = c.GetPasswordRequireLowercase()
	p.RequireDigit = c.GetPasswordRequireDigit()
	p.RequireSpecial = c.GetPasswordRequireSpecial()
	p.SpecialCharacters = c.GetPasswordSpecialCharacters()
	if list := c.GetPasswordCommonList(); list != nil {
		p.CommonPasswords = list
	}
	return p
}
