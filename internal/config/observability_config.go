package config

type ObservabilityConfig interface {
	GetLogLevel() string
	GetSentryDSN() string
}

type Observability struct{}

var _ ObservabilityConfig = Observability{}

func (Observability) GetLogLevel() string {
	return GetEnv("LOG_LEVEL", "info")
}

// GetSentryDSN is empty when Sentry capture is disabled.
func (Observability) GetSentryDSN() string {
	return GetEnv("SENTRY_DSN", "")
}
