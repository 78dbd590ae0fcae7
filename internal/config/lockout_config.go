package config

import (
	"time"

	"github.com/jrsteele09/go-token-authority/lockout"
)

type LockoutConfig interface {
	GetLockoutEnabled() bool
	GetLockoutMaxFailedAttempts() int
	GetLockoutDuration() time.Duration
}

type Lockout struct{}

var _ LockoutConfig = Lockout{}

func (Lockout) GetLockoutEnabled() bool {
	return GetEnvBool("LOCKOUT_ENABLED", true)
}

func (Lockout) GetLockoutMaxFailedAttempts() int {
	return GetEnvInt("LOCKOUT_MAX_FAILED_ATTEMPTS", 5)
}

func (Lockout) GetLockoutDuration() time.Duration {
	return getEnvDuration("LOCKOUT_DURATION_MINUTES", 15, time.Minute)
}

// LockoutSettings resolves the lockout snapshot once. Non-positive values fall
// back to the defaults.
func LockoutSettings(c LockoutConfig) lockout.Settings {
	s := lockout.DefaultSettings()
	s.Enabled = c.GetLockoutEnabled()
	if n := c.GetLockoutMaxFailedAttempts(); n > 0 {
		s.MaxFailedAttempts = n
	}
	if d := c.GetLockoutDuration(); d > 0 {
		s.LockoutDuration = d
	}
	return s
}
