package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-authority/blacklist"
	"github.com/jrsteele09/go-token-authority/claims"
	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/internal/metrics"
	"github.com/jrsteele09/go-token-authority/internal/utils"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/pkg/errors"
)

const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 14 * 24 * time.Hour

	refreshHandleBytes = 32
)

// IssueRequest describes the principal a token set is minted for.
type IssueRequest struct {
	GrantType oauth2.GrantType
	Subject   string
	ClientID  string
	Scopes    []string
	Claims    []claims.Claim
	DeviceID  string
	Nonce     string

	// AuthorizationID continues an existing authorization. Required for the
	// refresh grant.
	AuthorizationID string
}

// Introspection is the validated view of an access token.
type Introspection struct {
	Active          bool      `json:"active"`
	TokenID         string    `json:"jti,omitempty"`
	Subject         string    `json:"sub,omitempty"`
	ClientID        string    `json:"client_id,omitempty"`
	AuthorizationID string    `json:"-"`
	DeviceID        string    `json:"-"`
	Scopes          []string  `json:"-"`
	Scope           string    `json:"scope,omitempty"`
	Roles           []string  `json:"roles,omitempty"`
	IssuedAt        time.Time `json:"-"`
	ExpiresAt       time.Time `json:"-"`
}

func (i *Introspection) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// Manager mints, validates and rotates tokens, persisting one Token record per
// artefact.
type Manager struct {
	store          Store
	authorizations AuthorizationStore
	signer         Signer
	blacklist      blacklist.Blacklist
	metrics        *metrics.Metrics
	issuer         string
	accessTTL      time.Duration
	refreshTTL     time.Duration
	nowFunc        func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenLifetimes(access, refresh time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTTL = access
		m.refreshTTL = refresh
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithBlacklist(b blacklist.Blacklist) ManagerOption {
	return func(m *Manager) {
		if b != nil {
			m.blacklist = b
		}
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func NewManager(store Store, authorizations AuthorizationStore, signer Signer, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}
	if authorizations == nil {
		return nil, errors.New("[NewManager] authorization store is required")
	}
	if signer == nil {
		return nil, errors.New("[NewManager] signer is required")
	}

	m := &Manager{
		store:          store,
		authorizations: authorizations,
		signer:         signer,
		blacklist:      blacklist.Noop{},
		accessTTL:      DefaultAccessTokenTTL,
		refreshTTL:     DefaultRefreshTokenTTL,
		nowFunc:        time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.accessTTL <= 0 {
		m.accessTTL = DefaultAccessTokenTTL
	}
	return m, nil
}

func (m *Manager) Issuer() string {
	return m.issuer
}

func (m *Manager) AccessTokenTTL() time.Duration {
	return m.accessTTL
}

// JWKS publishes the verification key. Only asymmetric signers have one.
func (m *Manager) JWKS() (*JWKS, error) {
	kp, ok := m.signer.(*KeyPairSigner)
	if !ok {
		return nil, errors.New("JWKS only supported for asymmetric signing (RSA/ECDSA)")
	}
	return kp.JWKS()
}

// Issue mints the token set for a principal that already passed the grant checks.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (*oauth2.TokenResponse, error) {
	now := m.nowFunc()

	authorizationID, err := m.resolveAuthorization(ctx, req, now)
	if err != nil {
		return nil, err
	}

	scope := utils.JoinScopes(req.Scopes)
	record := func(id string, typ Type, expiresAt time.Time) *Token {
		return &Token{
			ID:              id,
			Type:            typ,
			Subject:         req.Subject,
			ApplicationID:   req.ClientID,
			AuthorizationID: authorizationID,
			DeviceID:        req.DeviceID,
			Scopes:          slices.Clone(req.Scopes),
			Status:          StatusValid,
			IssuedAt:        now,
			ExpiresAt:       expiresAt,
		}
	}

	accessExpiry := now.Add(m.accessTTL)
	accessID := uuid.NewString()
	accessClaims := m.baseClaims(claims.Filter(req.Claims, claims.AccessToken), req, accessID, now, accessExpiry)
	accessClaims["scope"] = scope
	accessClaims["client_id"] = req.ClientID

	accessToken, err := m.signer.Sign(accessClaims)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Issue] sign access token")
	}
	if err := m.store.Insert(ctx, record(accessID, TypeAccess, accessExpiry)); err != nil {
		return nil, errors.Wrap(err, "[Manager.Issue] insert access token")
	}

	response := &oauth2.TokenResponse{
		AccessToken: &accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(m.accessTTL.Seconds()),
		Scope:       scope,
	}

	if req.GrantType != oauth2.ClientCredentialsGrant && slices.Contains(req.Scopes, oauth2.ScopeOpenID) {
		idID := uuid.NewString()
		identity := claims.ForScopes(claims.Filter(req.Claims, claims.IdentityToken), req.Scopes)
		idClaims := m.baseClaims(identity, req, idID, now, accessExpiry)
		if req.Nonce != "" {
			idClaims["nonce"] = req.Nonce
		}

		idToken, err := m.signer.Sign(idClaims)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.Issue] sign id token")
		}
		if err := m.store.Insert(ctx, record(idID, TypeIdentity, accessExpiry)); err != nil {
			return nil, errors.Wrap(err, "[Manager.Issue] insert id token")
		}
		response.IdToken = &idToken
	}

	if m.issuesRefresh(req) {
		handle, err := newRefreshHandle()
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.Issue] refresh handle")
		}
		refresh := record(uuid.NewString(), TypeRefresh, now.Add(m.refreshTTL))
		refresh.ReferenceID = HashReference(handle)
		if err := m.store.Insert(ctx, refresh); err != nil {
			return nil, errors.Wrap(err, "[Manager.Issue] insert refresh token")
		}
		response.RefreshToken = &handle
	}

	return response, nil
}

func (m *Manager) baseClaims(cs []claims.Claim, req IssueRequest, jti string, now, expiresAt time.Time) jwt.MapClaims {
	mc := jwt.MapClaims(claims.ToMap(cs))
	mc["iss"] = m.issuer
	mc["sub"] = req.Subject
	mc["aud"] = req.ClientID
	mc["iat"] = now.Unix()
	mc["exp"] = expiresAt.Unix()
	mc["jti"] = jti
	return mc
}

func (m *Manager) issuesRefresh(req IssueRequest) bool {
	if m.refreshTTL <= 0 || req.GrantType == oauth2.ClientCredentialsGrant {
		return false
	}
	switch req.GrantType {
	case oauth2.PasswordGrant, oauth2.RefreshTokenGrant:
		return true
	}
	return slices.Contains(req.Scopes, oauth2.ScopeOfflineAccess)
}

// resolveAuthorization returns the authorization the new tokens belong to.
// Password logins always start a new one; the code flow reuses an active one.
func (m *Manager) resolveAuthorization(ctx context.Context, req IssueRequest, now time.Time) (string, error) {
	switch req.GrantType {
	case oauth2.ClientCredentialsGrant:
		return "", nil

	case oauth2.RefreshTokenGrant:
		if req.AuthorizationID == "" {
			return "", apperrors.ErrInvalidToken
		}
		a, err := m.authorizations.GetAuthorization(ctx, req.AuthorizationID)
		if err != nil {
			return "", errors.Wrap(err, "[Manager.resolveAuthorization] GetAuthorization")
		}
		if !a.IsValid() {
			return "", apperrors.ErrTokenRevoked
		}
		return a.ID, nil

	case oauth2.AuthorizationCodeGrant:
		a, err := m.authorizations.FindActiveAuthorization(ctx, req.Subject, req.ClientID)
		if err == nil {
			return a.ID, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return "", errors.Wrap(err, "[Manager.resolveAuthorization] FindActiveAuthorization")
		}
	}

	a := &Authorization{
		ID:            uuid.NewString(),
		Subject:       req.Subject,
		ApplicationID: req.ClientID,
		Status:        AuthorizationValid,
		Type:          req.GrantType,
		Scopes:        slices.Clone(req.Scopes),
		CreatedAt:     now,
	}
	if err := m.authorizations.InsertAuthorization(ctx, a); err != nil {
		return "", errors.Wrap(err, "[Manager.resolveAuthorization] InsertAuthorization")
	}
	return a.ID, nil
}

// Validate verifies a bearer access token against its signature, its stored
// record and the subject blacklist.
func (m *Manager) Validate(ctx context.Context, rawToken string) (*Introspection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrInvalidToken
	}

	parsed, err := jwt.Parse(rawToken, m.signer.Keyfunc,
		jwt.WithValidMethods([]string{m.signer.Method().Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, errors.Wrap(apperrors.ErrInvalidToken, err.Error())
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	jti, _ := mc["jti"].(string)
	if jti == "" {
		return nil, apperrors.ErrInvalidToken
	}

	t, err := m.store.Get(ctx, jti)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, errors.Wrap(err, "[Manager.Validate] Get")
	}
	if t.Type != TypeAccess {
		return nil, apperrors.ErrInvalidToken
	}
	if t.Status != StatusValid {
		return nil, apperrors.ErrTokenRevoked
	}
	if t.IsExpired(m.nowFunc()) {
		return nil, apperrors.ErrTokenExpired
	}
	if err := m.checkBlacklist(ctx, t); err != nil {
		return nil, err
	}

	return &Introspection{
		Active:          true,
		TokenID:         t.ID,
		Subject:         t.Subject,
		ClientID:        t.ApplicationID,
		AuthorizationID: t.AuthorizationID,
		DeviceID:        t.DeviceID,
		Scopes:          t.Scopes,
		Scope:           utils.JoinScopes(t.Scopes),
		Roles:           stringValues(mc[claims.Role]),
		IssuedAt:        t.IssuedAt,
		ExpiresAt:       t.ExpiresAt,
	}, nil
}

// CheckRefresh resolves a refresh handle without consuming it. requested may
// narrow the scopes of the original grant but never widen them. Presenting an
// already redeemed handle revokes the whole authorization.
func (m *Manager) CheckRefresh(ctx context.Context, handle string, requested []string) (*Token, error) {
	if handle == "" {
		return nil, apperrors.ErrInvalidToken
	}

	t, err := m.store.GetByReferenceID(ctx, HashReference(handle))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, errors.Wrap(err, "[Manager.CheckRefresh] GetByReferenceID")
	}
	if t.Type != TypeRefresh {
		return nil, apperrors.ErrInvalidToken
	}

	switch {
	case t.Status == StatusRedeemed:
		if t.AuthorizationID != "" {
			if _, err := m.authorizations.RevokeAuthorization(ctx, t.AuthorizationID); err != nil {
				return nil, errors.Wrap(err, "[Manager.CheckRefresh] RevokeAuthorization")
			}
		}
		return nil, apperrors.ErrTokenRevoked
	case t.Status != StatusValid:
		return nil, apperrors.ErrTokenRevoked
	case t.IsExpired(m.nowFunc()):
		return nil, apperrors.ErrTokenExpired
	}

	if err := m.checkBlacklist(ctx, t); err != nil {
		return nil, err
	}

	for _, scope := range requested {
		if !slices.Contains(t.Scopes, scope) {
			return nil, apperrors.ErrInvalidScope
		}
	}
	return t, nil
}

// RedeemRefresh consumes a refresh token returned by CheckRefresh. Of two
// concurrent redemptions only one succeeds.
func (m *Manager) RedeemRefresh(ctx context.Context, t *Token) error {
	redeemed, err := m.store.MarkRedeemed(ctx, t.ID)
	if err != nil {
		return errors.Wrap(err, "[Manager.RedeemRefresh] MarkRedeemed")
	}
	if !redeemed {
		return apperrors.ErrTokenRevoked
	}
	t.Status = StatusRedeemed
	return nil
}

func (m *Manager) checkBlacklist(ctx context.Context, t *Token) error {
	blocked, err := m.blacklist.IsBlacklisted(ctx, t.Subject, t.IssuedAt)
	if err != nil {
		return errors.Wrap(err, "[Manager.checkBlacklist] IsBlacklisted")
	}
	if blocked {
		m.metrics.IncBlacklistRejection()
		return apperrors.ErrTokenBlacklisted
	}
	return nil
}

// HashReference is the stored form of an opaque handle.
func HashReference(handle string) string {
	sum := sha256.Sum256([]byte(handle))
	return hex.EncodeToString(sum[:])
}

func newRefreshHandle() (string, error) {
	b := make([]byte, refreshHandleBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func stringValues(v any) []string {
	switch vals := v.(type) {
	case []any:
		out := make([]string, 0, len(vals))
		for _, val := range vals {
			if s, ok := val.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{vals}
	}
	return nil
}
