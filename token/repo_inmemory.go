package token

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
)

// InMemoryStore implements Store and AuthorizationStore behind a single lock.
type InMemoryStore struct {
	lock           sync.RWMutex
	tokens         map[string]*Token
	referenceIDs   map[string]string
	authorizations map[string]*Authorization
	nowTime        func() time.Time
}

type InMemoryStoreOption func(*InMemoryStore)

// WithStoreNowFunc sets the clock used by PruneExpired (primarily for testing).
func WithStoreNowFunc(nowFunc func() time.Time) InMemoryStoreOption {
	return func(s *InMemoryStore) {
		s.nowTime = nowFunc
	}
}

func NewInMemoryStore(options ...InMemoryStoreOption) *InMemoryStore {
	s := &InMemoryStore{
		tokens:         make(map[string]*Token),
		referenceIDs:   make(map[string]string),
		authorizations: make(map[string]*Authorization),
		nowTime:        time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Token, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	t, ok := s.tokens[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *InMemoryStore) GetByReferenceID(_ context.Context, referenceID string) (*Token, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	id, ok := s.referenceIDs[referenceID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s.tokens[id].Clone(), nil
}

func (s *InMemoryStore) GetBySubject(_ context.Context, subject string) ([]*Token, error) {
	return s.filter(func(t *Token) bool { return t.Subject == subject }), nil
}

func (s *InMemoryStore) GetByApplication(_ context.Context, applicationID string) ([]*Token, error) {
	return s.filter(func(t *Token) bool { return t.ApplicationID == applicationID }), nil
}

func (s *InMemoryStore) GetByAuthorization(_ context.Context, authorizationID string) ([]*Token, error) {
	return s.filter(func(t *Token) bool { return t.AuthorizationID != "" && t.AuthorizationID == authorizationID }), nil
}

// filter returns clones ordered by issue time.
func (s *InMemoryStore) filter(match func(*Token) bool) []*Token {
	s.lock.RLock()
	defer s.lock.RUnlock()

	result := make([]*Token, 0)
	for _, t := range s.tokens {
		if match(t) {
			result = append(result, t.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IssuedAt.Equal(result[j].IssuedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].IssuedAt.Before(result[j].IssuedAt)
	})
	return result
}

func (s *InMemoryStore) Insert(_ context.Context, t *Token) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, exists := s.tokens[t.ID]; exists {
		return apperrors.ErrConflict
	}
	if t.ReferenceID != "" {
		if _, exists := s.referenceIDs[t.ReferenceID]; exists {
			return apperrors.ErrConflict
		}
		s.referenceIDs[t.ReferenceID] = t.ID
	}
	s.tokens[t.ID] = t.Clone()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, t *Token) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	existing, ok := s.tokens[t.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if err := checkUpdate(existing, t); err != nil {
		return err
	}
	if existing.ReferenceID != t.ReferenceID {
		delete(s.referenceIDs, existing.ReferenceID)
		if t.ReferenceID != "" {
			s.referenceIDs[t.ReferenceID] = t.ID
		}
	}
	s.tokens[t.ID] = t.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, t *Token) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	existing, ok := s.tokens[t.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	s.deleteLocked(existing)
	return nil
}

func (s *InMemoryStore) deleteLocked(t *Token) {
	if t.ReferenceID != "" {
		delete(s.referenceIDs, t.ReferenceID)
	}
	delete(s.tokens, t.ID)
}

func (s *InMemoryStore) PruneExpired(_ context.Context) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.nowTime()
	pruned := 0
	for _, t := range s.tokens {
		if t.IsExpired(now) {
			s.deleteLocked(t)
			pruned++
		}
	}
	return pruned, nil
}

func (s *InMemoryStore) RevokeAllBySubject(_ context.Context, subject string) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	revoked := 0
	for _, t := range s.tokens {
		if t.Subject == subject && t.Status == StatusValid {
			t.Status = StatusRevoked
			revoked++
		}
	}
	return revoked, nil
}

func (s *InMemoryStore) RevokeByID(_ context.Context, id string) (bool, error) {
	return s.transition(id, StatusRevoked, func(*Token) bool { return true }), nil
}

func (s *InMemoryStore) MarkRedeemed(_ context.Context, id string) (bool, error) {
	return s.transition(id, StatusRedeemed, func(t *Token) bool { return t.Type == TypeRefresh }), nil
}

func (s *InMemoryStore) transition(id string, to Status, allowed func(*Token) bool) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	t, ok := s.tokens[id]
	if !ok || t.Status != StatusValid || !allowed(t) {
		return false
	}
	t.Status = to
	return true
}

func (s *InMemoryStore) InsertAuthorization(_ context.Context, a *Authorization) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, exists := s.authorizations[a.ID]; exists {
		return apperrors.ErrConflict
	}
	s.authorizations[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryStore) GetAuthorization(_ context.Context, id string) (*Authorization, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	a, ok := s.authorizations[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *InMemoryStore) FindActiveAuthorization(_ context.Context, subject, applicationID string) (*Authorization, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var newest *Authorization
	for _, a := range s.authorizations {
		if a.Subject != subject || a.ApplicationID != applicationID || !a.IsValid() {
			continue
		}
		if newest == nil || a.CreatedAt.After(newest.CreatedAt) {
			newest = a
		}
	}
	if newest == nil {
		return nil, apperrors.ErrNotFound
	}
	return newest.Clone(), nil
}

func (s *InMemoryStore) RevokeAuthorization(_ context.Context, id string) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	a, ok := s.authorizations[id]
	if !ok {
		return 0, apperrors.ErrNotFound
	}
	a.Status = AuthorizationRevoked

	revoked := 0
	for _, t := range s.tokens {
		if t.AuthorizationID == id && t.Status == StatusValid {
			t.Status = StatusRevoked
			revoked++
		}
	}
	return revoked, nil
}

var (
	_ Store              = (*InMemoryStore)(nil)
	_ AuthorizationStore = (*InMemoryStore)(nil)
)
