package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type InMemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*User
	byExternal map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:       make(map[string]*User),
		byExternal: make(map[string]string),
	}
}

func (s *InMemoryStore) Upsert(_ context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byExternal[u.ExternalID]; ok {
		existing := s.byID[id]
		existing.Name = u.Name
		existing.Email = u.Email
		existing.AvatarURL = u.AvatarURL
		c := *existing
		return &c, nil
	}
	stored := *u
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.byID[stored.ID] = &stored
	s.byExternal[stored.ExternalID] = stored.ID
	c := stored
	return &c, nil
}

func (s *InMemoryStore) GetByExternalID(_ context.Context, externalID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s.byID[id]
	return &c, nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *InMemoryStore) Close() error { return nil }
