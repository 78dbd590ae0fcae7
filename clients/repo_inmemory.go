package clients

import (
	"context"
	"sync"

	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

type InMemoryRepo struct {
	clients map[string]*Client
	lock    sync.RWMutex
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		clients: make(map[string]*Client),
	}
}

func (r *InMemoryRepo) Upsert(client *Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	c := *client
	r.clients[client.ID] = &c
	return nil
}

func (r *InMemoryRepo) Delete(clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.clients[clientID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.clients, clientID)
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, clientID string) (*Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *c
	return &clone, nil
}
