package blacklist

import (
	"context"
	"sync"
	"time"
)

// InMemory keeps entries in a map. Expired entries are ignored on read and
// removed by Cleanup.
type InMemory struct {
	entries map[string]Entry
	mu      sync.RWMutex
	nowTime func() time.Time
}

type InMemoryOption func(*InMemory)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(nowFunc func() time.Time) InMemoryOption {
	return func(b *InMemory) {
		b.nowTime = nowFunc
	}
}

func NewInMemory(options ...InMemoryOption) *InMemory {
	b := &InMemory{
		entries: make(map[string]Entry),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

func (b *InMemory) Add(_ context.Context, subject string, window time.Duration) (Entry, error) {
	now := b.nowTime()
	entry := Entry{Subject: subject, CreatedAt: now, ExpiresAt: now.Add(window)}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[subject] = entry
	return entry, nil
}

func (b *InMemory) IsBlacklisted(_ context.Context, subject string, issuedAt time.Time) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[subject]
	if !ok {
		return false, nil
	}
	return entry.Covers(issuedAt, b.nowTime()), nil
}

// Cleanup removes expired entries and returns how many were dropped.
func (b *InMemory) Cleanup() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowTime()
	removed := 0
	for subject, entry := range b.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(b.entries, subject)
			removed++
		}
	}
	return removed
}

var _ Blacklist = (*InMemory)(nil)
