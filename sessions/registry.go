package sessions

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/jrsteele09/go-token-authority/blacklist"
	"github.com/jrsteele09/go-token-authority/internal/metrics"
	"github.com/jrsteele09/go-token-authority/notify"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrNoSession is returned when a device has no active tokens.
var ErrNoSession = errors.New("no active session for device")

// Session is one device's view over the subject's active tokens.
type Session struct {
	DeviceID     DeviceID  `json:"device_id"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Applications []string  `json:"applications"`
	TokenCount   int       `json:"token_count"`
	IsCurrent    bool      `json:"is_current"`
}

// Registry lists and revokes sessions. It has no state of its own.
type Registry struct {
	store     token.Store
	blacklist blacklist.Blacklist
	window    time.Duration
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	nowTime   func() time.Time
}

type RegistryOption func(*Registry)

// WithBlacklistWindow sets how long RevokeAll keeps the subject blacklisted.
func WithBlacklistWindow(window time.Duration) RegistryOption {
	return func(r *Registry) {
		r.window = window
	}
}

func WithNowFunc(nowFunc func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowFunc
	}
}

func WithNotifier(n notify.Notifier) RegistryOption {
	return func(r *Registry) {
		if n != nil {
			r.notifier = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(store token.Store, bl blacklist.Blacklist, options ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, errors.New("[NewRegistry] store is required")
	}
	if bl == nil {
		bl = blacklist.Noop{}
	}
	r := &Registry{
		store:     store,
		blacklist: bl,
		window:    blacklist.DefaultWindow,
		notifier:  notify.Noop{},
		logger:    zerolog.Nop(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// List groups the subject's active tokens by device, newest first. The session
// holding currentTokenID is flagged as current.
func (r *Registry) List(ctx context.Context, subject, currentTokenID string) ([]Session, error) {
	tokens, err := r.activeTokens(ctx, subject)
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.List]")
	}

	byDevice := make(map[DeviceID]*Session)
	for _, t := range tokens {
		device := deviceOf(t)
		s, ok := byDevice[device]
		if !ok {
			s = &Session{DeviceID: device, Applications: []string{}}
			byDevice[device] = s
		}
		s.TokenCount++
		if t.IssuedAt.After(s.IssuedAt) {
			s.IssuedAt = t.IssuedAt
		}
		if t.ExpiresAt.After(s.ExpiresAt) {
			s.ExpiresAt = t.ExpiresAt
		}
		if !slices.Contains(s.Applications, t.ApplicationID) {
			s.Applications = append(s.Applications, t.ApplicationID)
		}
		if currentTokenID != "" && t.ID == currentTokenID {
			s.IsCurrent = true
		}
	}

	result := make([]Session, 0, len(byDevice))
	for _, s := range byDevice {
		sort.Strings(s.Applications)
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IssuedAt.Equal(result[j].IssuedAt) {
			return result[i].DeviceID < result[j].DeviceID
		}
		return result[i].IssuedAt.After(result[j].IssuedAt)
	})
	return result, nil
}

// RevokeDevice revokes every active token the subject holds on device.
func (r *Registry) RevokeDevice(ctx context.Context, subject string, device DeviceID) (int, error) {
	tokens, err := r.activeTokens(ctx, subject)
	if err != nil {
		return 0, errors.Wrap(err, "[Registry.RevokeDevice]")
	}

	matched := 0
	revoked := 0
	for _, t := range tokens {
		if deviceOf(t) != device {
			continue
		}
		matched++
		ok, err := r.store.RevokeByID(ctx, t.ID)
		if err != nil {
			return revoked, errors.Wrap(err, "[Registry.RevokeDevice] RevokeByID")
		}
		if ok {
			revoked++
		}
	}
	if matched == 0 {
		return 0, ErrNoSession
	}

	r.metrics.AddRevoked(metrics.ScopeDevice, revoked)
	r.notifier.Notify(ctx, notify.Event{
		Type:       notify.EventSessionsRevoked,
		Subject:    subject,
		Count:      revoked,
		OccurredAt: r.nowTime(),
		Fields:     map[string]string{"device_id": string(device)},
	})
	r.logger.Info().Str("subject", subject).Str("device_id", string(device)).Int("revoked", revoked).Msg("device session revoked")
	return revoked, nil
}

// RevokeOthers revokes every session except the one on current.
func (r *Registry) RevokeOthers(ctx context.Context, subject string, current DeviceID) (int, error) {
	tokens, err := r.activeTokens(ctx, subject)
	if err != nil {
		return 0, errors.Wrap(err, "[Registry.RevokeOthers]")
	}

	revoked := 0
	devices := 0
	seen := make(map[DeviceID]struct{})
	for _, t := range tokens {
		device := deviceOf(t)
		if device == current {
			continue
		}
		if _, ok := seen[device]; !ok {
			seen[device] = struct{}{}
			devices++
		}
		ok, err := r.store.RevokeByID(ctx, t.ID)
		if err != nil {
			return revoked, errors.Wrap(err, "[Registry.RevokeOthers] RevokeByID")
		}
		if ok {
			revoked++
		}
	}

	r.metrics.AddRevoked(metrics.ScopeOthers, revoked)
	if revoked > 0 {
		r.notifier.Notify(ctx, notify.Event{
			Type:       notify.EventSessionsRevoked,
			Subject:    subject,
			Count:      revoked,
			OccurredAt: r.nowTime(),
			Fields:     map[string]string{"kept_device_id": string(current)},
		})
	}
	r.logger.Info().Str("subject", subject).Int("devices", devices).Int("revoked", revoked).Msg("other sessions revoked")
	return revoked, nil
}

// RevokeAll revokes every valid token of subject and blacklists the subject so
// tokens minted concurrently with the revoke are rejected on first use.
func (r *Registry) RevokeAll(ctx context.Context, subject string) (int, error) {
	revoked, err := r.store.RevokeAllBySubject(ctx, subject)
	if err != nil {
		return 0, errors.Wrap(err, "[Registry.RevokeAll] RevokeAllBySubject")
	}

	entry, err := r.blacklist.Add(ctx, subject, r.window)
	if err != nil {
		return revoked, errors.Wrap(err, "[Registry.RevokeAll] blacklist Add")
	}

	r.metrics.AddRevoked(metrics.ScopeSubject, revoked)
	r.notifier.Notify(ctx, notify.Event{
		Type:       notify.EventAllSessionsRevoked,
		Subject:    subject,
		Count:      revoked,
		OccurredAt: entry.CreatedAt,
		Fields:     map[string]string{"blacklisted_until": entry.ExpiresAt.UTC().Format(time.RFC3339)},
	})
	r.logger.Info().Str("subject", subject).Int("revoked", revoked).Time("blacklisted_until", entry.ExpiresAt).Msg("all sessions revoked")
	return revoked, nil
}

func (r *Registry) activeTokens(ctx context.Context, subject string) ([]*token.Token, error) {
	tokens, err := r.store.GetBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	now := r.nowTime()
	active := make([]*token.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.IsActive(now) {
			active = append(active, t)
		}
	}
	return active, nil
}

func deviceOf(t *token.Token) DeviceID {
	if t.DeviceID == "" {
		return UnknownDevice
	}
	return DeviceID(t.DeviceID)
}
