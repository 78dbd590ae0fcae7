package config

import "time"

type StorageConfig interface {
	GetDatabaseURL() string
	GetRedisURL() string
	GetRedisKeyPrefix() string
	GetPruneInterval() time.Duration
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetDatabaseURL is empty when the in-memory stores should be used.
func (Storage) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}

// GetRedisURL is empty when the blacklist should live in the primary store.
func (Storage) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

func (Storage) GetRedisKeyPrefix() string {
	return GetEnv("REDIS_KEY_PREFIX", "token-authority:")
}

func (Storage) GetPruneInterval() time.Duration {
	return getEnvDuration("PRUNE_INTERVAL_MINUTES", 60, time.Minute)
}
