package auth

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
)

var _ CodeRepo = (*InMemoryCodeRepo)(nil)

type InMemoryCodeRepo struct {
	codes   map[string]*AuthorizationCode
	lock    sync.Mutex
	nowTime func() time.Time
}

func NewInMemoryCodeRepo(nowFunc func() time.Time) *InMemoryCodeRepo {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &InMemoryCodeRepo{
		codes:   make(map[string]*AuthorizationCode),
		nowTime: nowFunc,
	}
}

func (r *InMemoryCodeRepo) Save(_ context.Context, code *AuthorizationCode) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.codes[code.Code]; ok {
		return apperrors.ErrConflict
	}
	c := *code
	r.codes[code.Code] = &c
	return nil
}

// Consume removes the code whether or not it has expired.
func (r *InMemoryCodeRepo) Consume(_ context.Context, code string) (*AuthorizationCode, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	c, ok := r.codes[code]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	delete(r.codes, code)
	if !r.nowTime().Before(c.ExpiresAt) {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

// Cleanup drops expired codes and reports how many were removed.
func (r *InMemoryCodeRepo) Cleanup() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := r.nowTime()
	removed := 0
	for k, c := range r.codes {
		if !now.Before(c.ExpiresAt) {
			delete(r.codes, k)
			removed++
		}
	}
	return removed
}
