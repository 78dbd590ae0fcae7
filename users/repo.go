package users

import (
	"context"
	"time"
)

// Directory is the user lookup capability consumed by the authority. User CRUD lives
// elsewhere; the authority only reads users and mutates their lockout counters.
type Directory interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)

	// RecordFailedLogin atomically increments the failed-login counter. A lockout that
	// ended at or before now restarts the count. When the new count reaches maxAttempts
	// the lockout end is set to lockoutEnd.
	RecordFailedLogin(ctx context.Context, username string, maxAttempts int, now, lockoutEnd time.Time) (LockoutState, error)

	// ResetFailedLogin zeroes the counter and clears the lockout end.
	ResetFailedLogin(ctx context.Context, username string) error
	ResetFailedLoginByID(ctx context.Context, userID string) error
}
