package auth

import (
	"context"
	"slices"
	"time"

	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/internal/metrics"
	"github.com/jrsteele09/go-token-authority/lockout"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/jrsteele09/go-token-authority/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// LockoutGuard is the part of lockout.Guard the dispatcher uses.
type LockoutGuard interface {
	IsLockedOut(ctx context.Context, username string) (*time.Time, error)
	RecordFailedLogin(ctx context.Context, username string) (lockout.State, error)
	ResetFailedCount(ctx context.Context, username string) error
}

// Dispatcher turns a grant request into an authenticated principal.
type Dispatcher struct {
	directory users.Directory
	guard     LockoutGuard
	verifier  Verifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	nowTime   func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.nowTime = nowFunc
	}
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(directory users.Directory, guard LockoutGuard, verifier Verifier, options ...DispatcherOption) (*Dispatcher, error) {
	if directory == nil {
		return nil, errors.New("[NewDispatcher] directory is required")
	}
	if guard == nil {
		return nil, errors.New("[NewDispatcher] lockout guard is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewDispatcher] verifier is required")
	}

	d := &Dispatcher{
		directory: directory,
		guard:     guard,
		verifier:  verifier,
		logger:    zerolog.Nop(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(d)
	}
	return d, nil
}

// Exchange routes the request to its grant handler. Every failure is returned as
// an *oauth2.Error; internal causes are logged and reported as server_error.
func (d *Dispatcher) Exchange(ctx context.Context, req GrantRequest) (*Principal, *oauth2.Error) {
	var (
		principal *Principal
		oerr      *oauth2.Error
	)

	switch req.GrantType {
	case oauth2.PasswordGrant:
		principal, oerr = d.passwordGrant(ctx, req)
	case oauth2.ClientCredentialsGrant:
		principal, oerr = d.clientCredentialsGrant(req)
	case oauth2.AuthorizationCodeGrant:
		principal, oerr = d.authorizationCodeGrant(req)
	case oauth2.RefreshTokenGrant:
		principal, oerr = d.refreshTokenGrant(ctx, req)
	default:
		oerr = oauth2.UnsupportedGrantType(req.GrantType)
	}

	if oerr != nil {
		d.metrics.ObserveGrant(string(req.GrantType), metrics.ResultFailure)
		d.logger.Info().
			Str("grant_type", string(req.GrantType)).
			Str("client_id", req.ClientID).
			Str("error", string(oerr.Code)).
			Msg("grant rejected")
		return nil, oerr
	}
	d.metrics.ObserveGrant(string(req.GrantType), metrics.ResultSuccess)
	return principal, nil
}

func (d *Dispatcher) passwordGrant(ctx context.Context, req GrantRequest) (*Principal, *oauth2.Error) {
	if req.Username == "" || req.Password == "" {
		return nil, oauth2.InvalidRequest("username and password are required")
	}

	// A locked account never reaches the verifier, so attempts during the
	// window cannot extend it.
	lockoutEnd, err := d.guard.IsLockedOut(ctx, req.Username)
	if err != nil {
		return nil, d.serverError(err, "IsLockedOut")
	}
	if lockoutEnd != nil {
		return nil, oauth2.AccessDenied(oauth2.MsgLockedOut)
	}

	user, err := d.verifier.Verify(ctx, req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, apperrors.ErrInvalidCredentials) && !errors.Is(err, apperrors.ErrUserInactive) {
			return nil, d.serverError(err, "Verify")
		}
		if _, err := d.guard.RecordFailedLogin(ctx, req.Username); err != nil {
			return nil, d.serverError(err, "RecordFailedLogin")
		}
		return nil, oauth2.InvalidGrant(oauth2.MsgInvalidCredentials)
	}

	if err := d.guard.ResetFailedCount(ctx, req.Username); err != nil {
		return nil, d.serverError(err, "ResetFailedCount")
	}
	return PrincipalFromUser(user, req.ClientID, req.Scopes), nil
}

// Clients are not lockout protected.
func (d *Dispatcher) clientCredentialsGrant(req GrantRequest) (*Principal, *oauth2.Error) {
	if req.ClientID == "" {
		return nil, oauth2.InvalidClient("client_id is required")
	}
	return ClientPrincipal(req.ClientID, req.Scopes), nil
}

func (d *Dispatcher) authorizationCodeGrant(req GrantRequest) (*Principal, *oauth2.Error) {
	p := req.Principal
	if p == nil || p.Expired(d.nowTime()) {
		return nil, oauth2.InvalidGrant(oauth2.MsgTokenNoLongerValid)
	}
	if req.ClientID != "" && p.ClientID != req.ClientID {
		return nil, oauth2.InvalidGrant(oauth2.MsgTokenNoLongerValid)
	}
	return clonePrincipal(p), nil
}

// The subject is resolved again so refresh handles do not outlive a deleted or
// deactivated account.
func (d *Dispatcher) refreshTokenGrant(ctx context.Context, req GrantRequest) (*Principal, *oauth2.Error) {
	p := req.Principal
	if p == nil || p.Expired(d.nowTime()) {
		return nil, oauth2.InvalidGrant(oauth2.MsgTokenNoLongerValid)
	}
	if req.ClientID != "" && p.ClientID != req.ClientID {
		return nil, oauth2.InvalidGrant(oauth2.MsgTokenNoLongerValid)
	}

	user, err := d.directory.GetByID(ctx, p.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, oauth2.InvalidGrant(oauth2.MsgUserNoLongerExists)
		}
		return nil, d.serverError(err, "GetByID")
	}
	if !user.Active {
		return nil, oauth2.InvalidGrant(oauth2.MsgUserNoLongerExists)
	}

	refreshed := PrincipalFromUser(user, p.ClientID, p.Scopes)
	refreshed.AuthorizationID = p.AuthorizationID
	refreshed.DeviceID = p.DeviceID
	return refreshed, nil
}

func (d *Dispatcher) serverError(err error, op string) *oauth2.Error {
	d.logger.Error().Err(err).Str("op", op).Msg("grant failed with internal error")
	return oauth2.ServerError()
}

func clonePrincipal(p *Principal) *Principal {
	c := *p
	c.Roles = slices.Clone(p.Roles)
	c.Scopes = slices.Clone(p.Scopes)
	return &c
}
