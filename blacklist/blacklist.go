package blacklist

import (
	"context"
	"time"
)

// DefaultWindow covers the longest refresh token lifetime.
const DefaultWindow = 30 * 24 * time.Hour

// Entry marks every token for Subject issued at or before CreatedAt as invalid
// until ExpiresAt, whatever the token's own status.
type Entry struct {
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Covers reports whether a token issued at issuedAt is rejected by the entry at now.
func (e Entry) Covers(issuedAt, now time.Time) bool {
	if !now.Before(e.ExpiresAt) {
		return false
	}
	return !issuedAt.After(e.CreatedAt)
}

// Blacklist is the subject denylist consulted on every authenticated request.
// Consumers always hold a non-nil value; use Noop when the feature is off.
type Blacklist interface {
	// Add writes or replaces the entry for subject, valid for window from now.
	Add(ctx context.Context, subject string, window time.Duration) (Entry, error)
	// IsBlacklisted reports whether a token for subject issued at issuedAt must be rejected.
	IsBlacklisted(ctx context.Context, subject string, issuedAt time.Time) (bool, error)
}

// Noop never blacklists anything.
type Noop struct{}

func (Noop) Add(_ context.Context, subject string, window time.Duration) (Entry, error) {
	now := time.Now()
	return Entry{Subject: subject, CreatedAt: now, ExpiresAt: now.Add(window)}, nil
}

func (Noop) IsBlacklisted(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

var _ Blacklist = Noop{}
