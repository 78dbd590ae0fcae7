package config

import "time"

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetSigningKeyPEM() string
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetAuthCodeTimeout() time.Duration {
	return 5 * time.Minute
}

// GetAccessTokenTTL also bounds identity tokens.
func (OAuth) GetAccessTokenTTL() time.Duration {
	return getEnvDuration("ACCESS_TOKEN_TTL_MINUTES", 60, time.Minute)
}

func (OAuth) GetRefreshTokenTTL() time.Duration {
	return getEnvDuration("REFRESH_TOKEN_TTL_DAYS", 14, 24*time.Hour)
}

// GetSigningKeyPEM is empty when a key should be generated at start-up.
func (OAuth) GetSigningKeyPEM() string {
	return GetEnv("SIGNING_KEY_PEM", "")
}
