package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	// OAuth2 / OIDC API routes
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.Token(), s.APIMiddleware(s.RateLimitMiddleware)...))

	// Bearer protected endpoints
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.Authorize(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteAuthorize, ChainMiddleware(s.Authorize(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware(s.RequireAuth())...))

	s.RegisterRouteHandler("GET "+RouteSessions, ChainMiddleware(s.ListSessions(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("DELETE "+RouteSessionByDevice, ChainMiddleware(s.RevokeDevice(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteSessionsRevokeOthers, ChainMiddleware(s.RevokeOtherSessions(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteRevokeAll, ChainMiddleware(s.RevokeAllSessions(), s.APIMiddleware(s.RequireAuth())...))

	// Admin endpoints
	s.RegisterRouteHandler("POST "+RouteAdminRevokeUser, ChainMiddleware(s.AdminRevokeUser(), s.APIMiddleware(s.RequireAuth(), s.RequireAdmin())...))
	s.RegisterRouteHandler("POST "+RouteAdminUnlockUser, ChainMiddleware(s.AdminUnlockUser(), s.APIMiddleware(s.RequireAuth(), s.RequireAdmin())...))
	s.RegisterRouteHandler("GET "+RouteAdminLockoutSettings, ChainMiddleware(s.AdminLockoutSettings(), s.APIMiddleware(s.RequireAuth(), s.RequireAdmin())...))

	// API routes
	s.RegisterRouteHandler("POST "+RouteAPIValidatePassword, ChainMiddleware(s.ValidatePasswordHandler(), s.APIMiddleware()...))

	// Ops
	s.RegisterRouteHandler("GET "+RouteMetrics, s.Metrics.Handler())
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.Health(), s.RecoverMiddleware))

	// CORS preflight for every route
	s.RegisterRouteHandler("OPTIONS /{path...}", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.CorsMiddleware))
}
