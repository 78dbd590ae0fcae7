package users

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Well known roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID            string   `json:"id,omitempty"`             // Unique identifier for the user
	Username      string   `json:"username,omitempty"`       // Unique login name
	Email         string   `json:"email,omitempty"`          // User's email address
	EmailVerified bool     `json:"email_verified,omitempty"` // Has the user verified their email address
	PasswordHash  string   `json:"-"`                        // bcrypt hash of the password - never serialize
	FirstName     string   `json:"first_name,omitempty"`     // First name of the user
	LastName      string   `json:"last_name,omitempty"`      // Last name of the user
	Active        bool     `json:"active"`                   // Inactive users cannot authenticate or refresh
	Roles         []string `json:"roles,omitempty"`          // Role names embedded in access tokens

	// Lockout counters, owned by the directory and mutated only through it
	FailedLoginCount int        `json:"failed_login_count"`
	LockoutEnd       *time.Time `json:"lockout_end,omitempty"`

	DateJoined time.Time `json:"date_joined,omitempty"`
	LastLogin  time.Time `json:"last_login,omitempty"`
}

// LockoutState is the result of an atomic failed-login increment.
type LockoutState struct {
	FailedCount int
	LockoutEnd  *time.Time
}

// DisplayName is the "name" claim value.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// HasRole checks if the user has the named role
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// Clone returns a copy that shares nothing mutable with u.
func (u *User) Clone() *User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	if u.LockoutEnd != nil {
		end := *u.LockoutEnd
		c.LockoutEnd = &end
	}
	return &c
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
