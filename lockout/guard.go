package lockout

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/internal/metrics"
	"github.com/jrsteele09/go-token-authority/notify"
	"github.com/jrsteele09/go-token-authority/users"
	"github.com/pkg/errors"
)

// Settings is the resolved lockout configuration. It is captured once when the
// Guard is built and never re-read during a decision.
type Settings struct {
	Enabled           bool          `json:"enabled"`
	MaxFailedAttempts int           `json:"max_failed_attempts"`
	LockoutDuration   time.Duration `json:"-"`
}

// DefaultSettings locks an account for 15 minutes after 5 failed attempts.
func DefaultSettings() Settings {
	return Settings{
		Enabled:           true,
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
	}
}

// SettingsView is the display form returned by GetLockoutSettings.
type SettingsView struct {
	Enabled                bool `json:"enabled"`
	MaxFailedAttempts      int  `json:"max_failed_attempts"`
	LockoutDurationMinutes int  `json:"lockout_duration_minutes"`
}

// State is the outcome of recording a failed login.
type State struct {
	FailedCount int
	LockedOut   bool
	LockoutEnd  *time.Time
}

// Guard tracks failed logins per username and decides whether an account is
// currently locked. Counter increments are delegated to the directory as a
// single atomic operation.
type Guard struct {
	directory users.Directory
	settings  Settings
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	nowTime   func() time.Time
}

type GuardOption func(*Guard)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(nowFunc func() time.Time) GuardOption {
	return func(g *Guard) {
		g.nowTime = nowFunc
	}
}

func WithNotifier(n notify.Notifier) GuardOption {
	return func(g *Guard) {
		if n != nil {
			g.notifier = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = m
	}
}

func NewGuard(directory users.Directory, settings Settings, options ...GuardOption) (*Guard, error) {
	if directory == nil {
		return nil, errors.New("[NewGuard] directory is required")
	}
	if settings.Enabled && settings.MaxFailedAttempts <= 0 {
		return nil, errors.New("[NewGuard] max failed attempts must be positive when lockout is enabled")
	}

	g := &Guard{
		directory: directory,
		settings:  settings,
		notifier:  notify.Noop{},
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// IsLockedOut returns the lockout end when the account is locked, or nil. Expired
// lockouts are ignored without being cleared. Unknown usernames are never locked.
func (g *Guard) IsLockedOut(ctx context.Context, username string) (*time.Time, error) {
	if !g.settings.Enabled {
		return nil, nil
	}

	user, err := g.directory.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Guard.IsLockedOut] GetByUsername")
	}

	if user.LockoutEnd == nil || !user.LockoutEnd.After(g.nowTime()) {
		return nil, nil
	}
	end := *user.LockoutEnd
	return &end, nil
}

// RecordFailedLogin increments the failed counter and locks the account once the
// threshold is reached.
func (g *Guard) RecordFailedLogin(ctx context.Context, username string) (State, error) {
	if !g.settings.Enabled {
		return State{}, nil
	}

	now := g.nowTime()
	state, err := g.directory.RecordFailedLogin(ctx, username, g.settings.MaxFailedAttempts, now, now.Add(g.settings.LockoutDuration))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return State{}, nil
		}
		return State{}, errors.Wrap(err, "[Guard.RecordFailedLogin] RecordFailedLogin")
	}

	result := State{
		FailedCount: state.FailedCount,
		LockoutEnd:  state.LockoutEnd,
		LockedOut:   state.LockoutEnd != nil && state.LockoutEnd.After(now),
	}

	// Only the attempt that crosses the threshold activates the lockout.
	if result.LockedOut && state.FailedCount == g.settings.MaxFailedAttempts {
		g.metrics.IncLockoutActivation()
		g.notifier.Notify(ctx, notify.Event{
			Type:       notify.EventUserLockedOut,
			Subject:    username,
			Count:      state.FailedCount,
			OccurredAt: now,
			Fields:     map[string]string{"lockout_end": result.LockoutEnd.UTC().Format(time.RFC3339)},
		})
	}
	return result, nil
}

// ResetFailedCount clears the counter and any lockout after a successful login.
func (g *Guard) ResetFailedCount(ctx context.Context, username string) error {
	if err := g.directory.ResetFailedLogin(ctx, username); err != nil {
		return errors.Wrap(err, "[Guard.ResetFailedCount] ResetFailedLogin")
	}
	return nil
}

// UnlockUser is the administrative override. It has the same effect as a reset.
func (g *Guard) UnlockUser(ctx context.Context, userID string) error {
	if err := g.directory.ResetFailedLoginByID(ctx, userID); err != nil {
		return errors.Wrap(err, "[Guard.UnlockUser] ResetFailedLoginByID")
	}
	return nil
}

// GetLockoutSettings is for display only.
func (g *Guard) GetLockoutSettings() SettingsView {
	return SettingsView{
		Enabled:                g.settings.Enabled,
		MaxFailedAttempts:      g.settings.MaxFailedAttempts,
		LockoutDurationMinutes: int(g.settings.LockoutDuration / time.Minute),
	}
}
