package blacklist

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Redis stores one JSON entry per subject with a TTL equal to the window, so
// Redis expires entries itself.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
	nowTime   func() time.Time
}

type RedisOption func(*Redis)

// WithRedisNowFunc sets the clock (primarily for testing).
func WithRedisNowFunc(nowFunc func() time.Time) RedisOption {
	return func(r *Redis) {
		r.nowTime = nowFunc
	}
}

// NewRedis connects to the server described by a redis:// URL and checks the connection.
func NewRedis(ctx context.Context, redisURL, keyPrefix string, options ...RedisOption) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewRedis] ParseURL")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[NewRedis] Ping")
	}
	return NewRedisWithClient(client, keyPrefix, options...), nil
}

// NewRedisWithClient wraps a pre-configured client. Tests use it with miniredis.
func NewRedisWithClient(client redis.UniversalClient, keyPrefix string, options ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		keyPrefix: keyPrefix,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Redis) key(subject string) string {
	return r.keyPrefix + "blacklist:" + subject
}

func (r *Redis) Add(ctx context.Context, subject string, window time.Duration) (Entry, error) {
	now := r.nowTime()
	entry := Entry{Subject: subject, CreatedAt: now, ExpiresAt: now.Add(window)}

	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, errors.Wrap(err, "[Redis.Add] Marshal")
	}
	if err := r.client.Set(ctx, r.key(subject), data, window).Err(); err != nil {
		return Entry{}, errors.Wrap(err, "[Redis.Add] Set")
	}
	return entry, nil
}

func (r *Redis) IsBlacklisted(ctx context.Context, subject string, issuedAt time.Time) (bool, error) {
	data, err := r.client.Get(ctx, r.key(subject)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errors.Wrap(err, "[Redis.IsBlacklisted] Get")
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return false, errors.Wrap(err, "[Redis.IsBlacklisted] Unmarshal")
	}
	return entry.Covers(issuedAt, r.nowTime()), nil
}

// Ping checks connectivity for health checks.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Blacklist = (*Redis)(nil)
