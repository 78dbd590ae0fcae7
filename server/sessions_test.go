package server_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-authority/server"
	"github.com/jrsteele09/go-token-authority/sessions"
	"github.com/stretchr/testify/require"
)

type revoked struct {
	Revoked int `json:"revoked"`
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	phone := f.login(t, "alice", "phone")
	f.clock.Advance(time.Second)
	tablet := f.login(t, "alice", "tablet")
	f.clock.Advance(time.Second)
	laptop := f.login(t, "alice", "laptop")

	resp := f.do(t, http.MethodGet, server.RouteSessions, laptop.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]sessions.Session](t, resp)
	require.Len(t, list, 3)
	byDevice := map[sessions.DeviceID]sessions.Session{}
	for _, s := range list {
		byDevice[s.DeviceID] = s
	}
	require.True(t, byDevice["laptop"].IsCurrent)
	require.False(t, byDevice["phone"].IsCurrent)
	require.Equal(t, []string{spaClientID}, byDevice["phone"].Applications)

	t.Run("unknown device is not found", func(t *testing.T) {
		resp := f.do(t, http.MethodDelete, "/sessions/watch", laptop.AccessToken)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, "not_found", decode[errorResponse](t, resp).Error)
	})

	t.Run("revoke one device", func(t *testing.T) {
		resp := f.do(t, http.MethodDelete, "/sessions/phone", laptop.AccessToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Positive(t, decode[revoked](t, resp).Revoked)

		require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteSessions, phone.AccessToken).StatusCode)
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteSessions, tablet.AccessToken).StatusCode)
	})

	t.Run("revoke others keeps the caller", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, server.RouteSessionsRevokeOthers, laptop.AccessToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Positive(t, decode[revoked](t, resp).Revoked)

		require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteSessions, tablet.AccessToken).StatusCode)
		list := decode[[]sessions.Session](t, f.do(t, http.MethodGet, server.RouteSessions, laptop.AccessToken))
		require.Len(t, list, 1)
		require.Equal(t, sessions.DeviceID("laptop"), list[0].DeviceID)
	})

	t.Run("revoke all signs out everywhere", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, server.RouteRevokeAll, laptop.AccessToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteSessions, laptop.AccessToken).StatusCode)

		// Tokens issued after the revocation are unaffected.
		f.clock.Advance(time.Second)
		fresh := f.login(t, "alice", "laptop")
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteSessions, fresh.AccessToken).StatusCode)
	})
}
