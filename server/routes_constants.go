package server

// Route path constants
const (
	// OAuth2 / OIDC Routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteAuthorize             = "/connect/authorize"
	RouteToken                 = "/connect/token"
	RouteUserInfo              = "/connect/userinfo"

	// Session Routes
	RouteSessions             = "/sessions"
	RouteSessionByDevice      = "/sessions/{deviceId}"
	RouteSessionsRevokeOthers = "/sessions/revoke-others"
	RouteRevokeAll            = "/revoke-all"

	// Admin Routes
	RouteAdminRevokeUser      = "/admin/revoke/{userId}"
	RouteAdminUnlockUser      = "/admin/users/{userId}/unlock"
	RouteAdminLockoutSettings = "/admin/lockout-settings"

	// API Routes
	RouteAPIValidatePassword = "/api/validate-password"

	// Ops Routes
	RouteMetrics = "/metrics"
	RouteHealth  = "/health"
)
