package server_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/jrsteele09/go-token-authority/server"
	"github.com/stretchr/testify/require"
)

func (f *fixture) failLogin(t *testing.T, username string) *http.Response {
	t.Helper()
	return f.postForm(t, server.RouteToken, url.Values{
		"grant_type": {"password"}, "client_id": {spaClientID},
		"username": {username}, "password": {"wrong"},
	}, nil)
}

func TestAdminRevokeRequiresAdminRole(t *testing.T) {
	f := newFixture(t, nil)

	alice := f.login(t, "alice", "laptop")
	admin := f.login(t, "root", "desk")

	resp := f.do(t, http.MethodPost, "/admin/revoke/user-admin", alice.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "access_denied", decode[errorResponse](t, resp).Error)

	resp = f.do(t, http.MethodPost, "/admin/revoke/user-1", admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Positive(t, decode[revoked](t, resp).Revoked)

	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteSessions, alice.AccessToken).StatusCode)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteSessions, admin.AccessToken).StatusCode)
}

func TestAdminRevokeUnknownUser(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.login(t, "root", "desk")

	resp := f.do(t, http.MethodPost, "/admin/revoke/user-missing", admin.AccessToken)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", decode[errorResponse](t, resp).Error)

	// No blacklist entry was written for the admin's own tokens either.
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteSessions, admin.AccessToken).StatusCode)
}

type unlocked struct {
	UserID   string `json:"user_id"`
	Unlocked bool   `json:"unlocked"`
}

func TestAdminUnlockUser(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.login(t, "root", "desk")
	alice := f.login(t, "alice", "phone")

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusBadRequest, f.failLogin(t, "alice").StatusCode)
	}
	resp := f.postForm(t, server.RouteToken, url.Values{
		"grant_type": {"password"}, "client_id": {spaClientID},
		"username": {"alice"}, "password": {password},
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "access_denied", decode[errorResponse](t, resp).Error)

	resp = f.do(t, http.MethodPost, "/admin/users/user-1/unlock", alice.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "access_denied", decode[errorResponse](t, resp).Error)

	resp = f.do(t, http.MethodPost, "/admin/users/user-1/unlock", admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, unlocked{UserID: "user-1", Unlocked: true}, decode[unlocked](t, resp))

	stored, err := f.directory.GetByID(t.Context(), "user-1")
	require.NoError(t, err)
	require.Zero(t, stored.FailedLoginCount)
	require.Nil(t, stored.LockoutEnd)

	// The next correct password goes straight through.
	f.login(t, "alice", "laptop")

	resp = f.do(t, http.MethodPost, "/admin/users/user-missing/unlock", admin.AccessToken)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminLockoutSettings(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, server.RouteAdminLockoutSettings, f.login(t, "alice", "phone").AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodGet, server.RouteAdminLockoutSettings, f.login(t, "root", "desk").AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	settings := decode[map[string]any](t, resp)
	require.Equal(t, true, settings["enabled"])
	require.EqualValues(t, 3, settings["max_failed_attempts"])
	require.EqualValues(t, 15, settings["lockout_duration_minutes"])
}
