package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
)

var _ Directory = (*InMemoryDirectory)(nil)

// InMemoryDirectory is a Directory held in process memory. Usernames are matched
// case-insensitively.
type InMemoryDirectory struct {
	users       map[string]*User
	usernameIDs map[string]string // lower-cased username to user id
	lock        sync.RWMutex
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		users:       make(map[string]*User),
		usernameIDs: make(map[string]string),
	}
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Upsert stores a copy of user, assigning an ID when it has none.
func (d *InMemoryDirectory) Upsert(user *User) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if existingID, ok := d.usernameIDs[usernameKey(user.Username)]; ok && existingID != user.ID {
		return apperrors.ErrConflict
	}
	if previous, ok := d.users[user.ID]; ok {
		delete(d.usernameIDs, usernameKey(previous.Username))
	}
	d.users[user.ID] = user.Clone()
	d.usernameIDs[usernameKey(user.Username)] = user.ID
	return nil
}

func (d *InMemoryDirectory) Delete(id string) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	user, ok := d.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	delete(d.usernameIDs, usernameKey(user.Username))
	delete(d.users, id)
	return nil
}

func (d *InMemoryDirectory) GetByID(_ context.Context, id string) (*User, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	user, ok := d.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return user.Clone(), nil
}

func (d *InMemoryDirectory) GetByUsername(_ context.Context, username string) (*User, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	id, ok := d.usernameIDs[usernameKey(username)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return d.users[id].Clone(), nil
}

func (d *InMemoryDirectory) RecordFailedLogin(_ context.Context, username string, maxAttempts int, now, lockoutEnd time.Time) (LockoutState, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	id, ok := d.usernameIDs[usernameKey(username)]
	if !ok {
		return LockoutState{}, apperrors.ErrNotFound
	}
	user := d.users[id]
	if user.LockoutEnd != nil && !user.LockoutEnd.After(now) {
		user.FailedLoginCount = 0
		user.LockoutEnd = nil
	}
	user.FailedLoginCount++
	if maxAttempts > 0 && user.FailedLoginCount >= maxAttempts {
		end := lockoutEnd
		user.LockoutEnd = &end
	}

	state := LockoutState{FailedCount: user.FailedLoginCount}
	if user.LockoutEnd != nil {
		end := *user.LockoutEnd
		state.LockoutEnd = &end
	}
	return state, nil
}

func (d *InMemoryDirectory) ResetFailedLogin(_ context.Context, username string) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	id, ok := d.usernameIDs[usernameKey(username)]
	if !ok {
		return apperrors.ErrNotFound
	}
	d.users[id].FailedLoginCount = 0
	d.users[id].LockoutEnd = nil
	return nil
}

func (d *InMemoryDirectory) ResetFailedLoginByID(_ context.Context, userID string) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	user, ok := d.users[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	user.FailedLoginCount = 0
	user.LockoutEnd = nil
	return nil
}
