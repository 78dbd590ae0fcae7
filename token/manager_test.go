package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-token-authority/blacklist"
	"github.com/jrsteele09/go-token-authority/claims"
	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/stretchr/testify/require"
)

const issuer = "https://auth.example.com"

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	manager   *token.Manager
	store     *token.InMemoryStore
	blacklist *blacklist.InMemory
	signer    *token.KeyPairSigner
	clock     *clock
}

func setupManager(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: baseTime}
	kp, err := token.GenerateECDSAKeyPair()
	require.NoError(t, err)
	signer := token.NewKeyPairSigner(kp)
	store := token.NewInMemoryStore(token.WithStoreNowFunc(clk.Now))
	bl := blacklist.NewInMemory(blacklist.WithNowFunc(clk.Now))

	m, err := token.NewManager(store, store, signer,
		token.WithIssuer(issuer),
		token.WithNowFunc(clk.Now),
		token.WithBlacklist(bl),
		token.WithTokenLifetimes(time.Hour, 24*time.Hour),
	)
	require.NoError(t, err)
	return &fixture{manager: m, store: store, blacklist: bl, signer: signer, clock: clk}
}

func userClaims() []claims.Claim {
	return []claims.Claim{
		{Type: claims.Subject, Value: "user-1"},
		{Type: claims.Name, Value: "Alice Smith"},
		{Type: claims.Email, Value: "alice@example.com"},
		{Type: claims.EmailVerified, Value: true},
		{Type: claims.Role, Value: "admin"},
		{Type: "department", Value: "finance"},
	}
}

func passwordRequest(scopes ...string) token.IssueRequest {
	return token.IssueRequest{
		GrantType: oauth2.PasswordGrant,
		Subject:   "user-1",
		ClientID:  "web",
		Scopes:    scopes,
		Claims:    userClaims(),
		DeviceID:  "laptop",
	}
}

func parseClaims(t *testing.T, f *fixture, raw string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(raw, f.signer.Keyfunc, jwt.WithTimeFunc(f.clock.Now))
	require.NoError(t, err)
	return parsed.Claims.(jwt.MapClaims)
}

func TestManager_IssuePassword(t *testing.T) {
	ctx := context.Background()
	f := setupManager(t)

	resp, err := f.manager.Issue(ctx, passwordRequest("openid", "profile"))
	require.NoError(t, err)
	require.NotNil(t, resp.AccessToken)
	require.NotNil(t, resp.IdToken)
	require.NotNil(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, 3600, resp.ExpiresIn)
	require.Equal(t, "openid profile", resp.Scope)

	access := parseClaims(t, f, *resp.AccessToken)
	require.Equal(t, "user-1", access["sub"])
	require.Equal(t, "Alice Smith", access["name"])
	require.Equal(t, []any{"admin"}, access["role"])
	require.NotContains(t, access, "email")
	require.NotContains(t, access, "department")
	require.Equal(t, issuer, access["iss"])

	identity := parseClaims(t, f, *resp.IdToken)
	require.Equal(t, "Alice Smith", identity["name"])
	require.NotContains(t, identity, "role")
	require.NotContains(t, identity, "email", "email scope was not granted")

	records, err := f.store.GetBySubject(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	authorizationID := records[0].AuthorizationID
	require.NotEmpty(t, authorizationID)
	for _, r := range records {
		require.Equal(t, authorizationID, r.AuthorizationID)
		require.Equal(t, "laptop", r.DeviceID)
		require.Equal(t, token.StatusValid, r.Status)
	}
}

func TestManager_IssueClientCredentials(t *testing.T) {
	ctx := context.Background()
	f := setupManager(t)

	resp, err := f.manager.Issue(ctx, token.IssueRequest{
		GrantType: oauth2.ClientCredentialsGrant,
		Subject:   "service",
		ClientID:  "service",
		Scopes:    []string{"openid", "offline_access"},
		Claims:    []claims.Claim{{Type: claims.Subject, Value: "service"}},
	})
	require.NoError(t, err)
	require.Nil(t, resp.IdToken)
	require.Nil(t, resp.RefreshToken)

	records, err := f.store.GetBySubject(ctx, "service")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Empty(t, records[0].AuthorizationID)
}

func TestManager_AuthorizationCodeReusesAuthorization(t *testing.T) {
	ctx := context.Background()
	f := setupManager(t)

	req := passwordRequest("openid")
	req.GrantType = oauth2.AuthorizationCodeGrant

	first, err := f.manager.Issue(ctx, req)
	require.NoError(t, err)
	require.Nil(t, first.RefreshToken, "no offline_access requested")

	second, err := f.manager.Issue(ctx, req)
	require.NoError(t, err)

	a, err := f.manager.Validate(ctx, *first.AccessToken)
	require.NoError(t, err)
	b, err := f.manager.Validate(ctx, *second.AccessToken)
	require.NoError(t, err)
	require.Equal(t, a.AuthorizationID, b.AuthorizationID)
}

func TestManager_Validate(t *testing.T) {
	ctx := context.Background()
	f := setupManager(t)

	resp, err := f.manager.Issue(ctx, passwordRequest("openid"))
	require.NoError(t, err)

	info, err := f.manager.Validate(ctx, *resp.AccessToken)
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, "user-1", info.Subject)
	require.Equal(t, "web", info.ClientID)
	require.Equal(t, "laptop", info.DeviceID)
	require.True(t, info.HasRole("admin"))

	_, err = f.manager.Validate(ctx, *resp.IdToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken, "identity tokens are not bearer tokens")

	_, err = f.manager.Validate(ctx, "not-a-jwt")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	_, err = f.manager.Validate(ctx, "")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	ok, err := f.store.RevokeByID(ctx, info.TokenID)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.manager.Validate(ctx, *resp.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
}

func TestManager_ValidateExpired(t *testing.T) {
	ctx := context.Background()
	f := setupManager(t)

	resp, err := f.manager.Issue(ctx, passwordRequest())
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(time.Hour)
	_, err = f.manager.Validate(ctx, *resp.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestManager_ValidateForeignSignature(t *testing.T) {
	ctx := context.Background()
	f := setupManager(t)
	other := setupManager(t)

	resp, err := other.manager.Issue(ctx, passwordRequest())
	require.NoError(t, err)

	_, err = f.manager.Validate(ctx, *resp.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestManager_BlacklistPrecedence(t *testing.T) {
	ctx := context.Background()
	f := setupManager(t)

	resp, err := f.manager.Issue(ctx, passwordRequest())
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(time.Second)
	_, err = f.blacklist.Add(ctx, "user-1", blacklist.DefaultWindow)
	require.NoError(t, err)

	// The record is still valid; only the blacklist rejects it.
	info, err := f.store.GetBySubject(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, token.StatusValid, info[0].Status)

	_, err = f.manager.Validate(ctx, *resp.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrTokenBlacklisted)
	_, err = f.manager.CheckRefresh(ctx, *resp.RefreshToken, nil)
	require.ErrorIs(t, err, apperrors.ErrTokenBlacklisted)

	f.clock.now = f.clock.now.Add(time.Second)
	fresh, err := f.manager.Issue(ctx, passwordRequest())
	require.NoError(t, err)
	_, err = f.manager.Validate(ctx, *fresh.AccessToken)
	require.NoError(t, err, "a login after the entry was written is accepted")
}

func TestManager_RefreshRotation(t *testing.T) {
	ctx := context.Background()
	f := setupManager(t)

	resp, err := f.manager.Issue(ctx, passwordRequest("openid"))
	require.NoError(t, err)

	old, err := f.manager.CheckRefresh(ctx, *resp.RefreshToken, nil)
	require.NoError(t, err)
	require.Equal(t, token.StatusValid, old.Status)
	require.NoError(t, f.manager.RedeemRefresh(ctx, old))
	require.Equal(t, token.StatusRedeemed, old.Status)
	require.ErrorIs(t, f.manager.RedeemRefresh(ctx, old), apperrors.ErrTokenRevoked, "a token is consumed once")
	require.Equal(t, "user-1", old.Subject)
	require.Equal(t, "laptop", old.DeviceID)

	rotated, err := f.manager.Issue(ctx, token.IssueRequest{
		GrantType:       oauth2.RefreshTokenGrant,
		Subject:         old.Subject,
		ClientID:        old.ApplicationID,
		Scopes:          old.Scopes,
		Claims:          userClaims(),
		DeviceID:        old.DeviceID,
		AuthorizationID: old.AuthorizationID,
	})
	require.NoError(t, err)
	require.NotNil(t, rotated.RefreshToken)
	require.NotEqual(t, *resp.RefreshToken, *rotated.RefreshToken)

	// Replaying the redeemed handle revokes the whole authorization.
	_, err = f.manager.CheckRefresh(ctx, *resp.RefreshToken, nil)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	_, err = f.manager.Validate(ctx, *rotated.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
	_, err = f.manager.CheckRefresh(ctx, *rotated.RefreshToken, nil)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	_, err = f.manager.Issue(ctx, token.IssueRequest{
		GrantType:       oauth2.RefreshTokenGrant,
		Subject:         old.Subject,
		ClientID:        old.ApplicationID,
		AuthorizationID: old.AuthorizationID,
	})
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
}

func TestManager_CheckRefreshErrors(t *testing.T) {
	ctx := context.Background()
	f := setupManager(t)

	_, err := f.manager.CheckRefresh(ctx, "", nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	_, err = f.manager.CheckRefresh(ctx, "unknown", nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	resp, err := f.manager.Issue(ctx, passwordRequest())
	require.NoError(t, err)
	f.clock.now = f.clock.now.Add(25 * time.Hour)
	_, err = f.manager.CheckRefresh(ctx, *resp.RefreshToken, nil)
	require.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestManager_CheckRefreshDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	f := setupManager(t)

	resp, err := f.manager.Issue(ctx, passwordRequest("openid"))
	require.NoError(t, err)

	_, err = f.manager.CheckRefresh(ctx, *resp.RefreshToken, []string{"openid", "email"})
	require.ErrorIs(t, err, apperrors.ErrInvalidScope)

	narrowed, err := f.manager.CheckRefresh(ctx, *resp.RefreshToken, []string{"openid"})
	require.NoError(t, err)
	require.Equal(t, token.StatusValid, narrowed.Status)

	_, err = f.manager.Validate(ctx, *resp.AccessToken)
	require.NoError(t, err, "failed checks leave the authorization intact")
}

func TestManager_JWKS(t *testing.T) {
	f := setupManager(t)

	jwks, err := f.manager.JWKS()
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, f.signer.KeyPair().KeyID, jwks.Keys[0].Kid)

	m, err := token.NewManager(f.store, f.store, token.NewHMACSigner("secret"))
	require.NoError(t, err)
	_, err = m.JWKS()
	require.Error(t, err)
}

func TestNewManager_RequiresCollaborators(t *testing.T) {
	store := token.NewInMemoryStore()
	_, err := token.NewManager(nil, store, token.NewHMACSigner("s"))
	require.Error(t, err)
	_, err = token.NewManager(store, nil, token.NewHMACSigner("s"))
	require.Error(t, err)
	_, err = token.NewManager(store, store, nil)
	require.Error(t, err)
}
