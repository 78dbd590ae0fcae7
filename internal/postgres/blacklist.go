package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-token-authority/blacklist"
	"github.com/pkg/errors"
)

var _ blacklist.Blacklist = (*Blacklist)(nil)

// Blacklist stores one row per subject.
type Blacklist struct {
	pool    *pgxpool.Pool
	nowTime func() time.Time
}

type BlacklistOption func(*Blacklist)

func WithBlacklistNowFunc(nowFunc func() time.Time) BlacklistOption {
	return func(b *Blacklist) {
		b.nowTime = nowFunc
	}
}

func NewBlacklist(pool *pgxpool.Pool, options ...BlacklistOption) *Blacklist {
	b := &Blacklist{pool: pool, nowTime: time.Now}
	for _, opt := range options {
		opt(b)
	}
	return b
}

func (b *Blacklist) Add(ctx context.Context, subject string, window time.Duration) (blacklist.Entry, error) {
	now := b.nowTime()
	entry := blacklist.Entry{Subject: subject, CreatedAt: now, ExpiresAt: now.Add(window)}
	_, err := b.pool.Exec(ctx, `INSERT INTO blacklist (subject, created_at, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (subject) DO UPDATE SET created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		entry.Subject, entry.CreatedAt, entry.ExpiresAt)
	if err != nil {
		return blacklist.Entry{}, errors.Wrap(err, "[Blacklist.Add]")
	}
	return entry, nil
}

func (b *Blacklist) IsBlacklisted(ctx context.Context, subject string, issuedAt time.Time) (bool, error) {
	entry := blacklist.Entry{Subject: subject}
	err := b.pool.QueryRow(ctx, `SELECT created_at, expires_at FROM blacklist WHERE subject = $1`, subject).
		Scan(&entry.CreatedAt, &entry.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Blacklist.IsBlacklisted]")
	}
	return entry.Covers(issuedAt, b.nowTime()), nil
}

// Cleanup deletes expired rows and reports how many were removed.
func (b *Blacklist) Cleanup(ctx context.Context) (int, error) {
	tag, err := b.pool.Exec(ctx, `DELETE FROM blacklist WHERE expires_at <= $1`, b.nowTime())
	if err != nil {
		return 0, errors.Wrap(err, "[Blacklist.Cleanup]")
	}
	return int(tag.RowsAffected()), nil
}
