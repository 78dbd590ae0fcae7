package config

import "time"

type SecurityConfig interface {
	GetBlacklistWindow() time.Duration
	GetTokenRateLimit() float64
	GetTokenRateBurst() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetBlacklistWindow is how long a revoke-all keeps rejecting older tokens.
func (Security) GetBlacklistWindow() time.Duration {
	return getEnvDuration("BLACKLIST_WINDOW_DAYS", 30, 24*time.Hour)
}

// GetTokenRateLimit is requests per second per client IP at the token endpoint.
// Zero or less disables the limiter.
func (Security) GetTokenRateLimit() float64 {
	return GetEnvFloat("RATE_LIMIT_TOKEN_RPS", 5)
}

func (Security) GetTokenRateBurst() int {
	return GetEnvInt("RATE_LIMIT_TOKEN_BURST", 10)
}
