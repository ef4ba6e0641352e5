package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is an in-process store for local/dev use and tests. A single
// mutex around every mutation gives it the same conditional-update semantics
// the Postgres store gets from atomic UPDATE predicates.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session)}
}

func (s *InMemoryStore) Insert(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.CallID == sess.CallID {
			return ErrDuplicateCallID
		}
		if existing.HostID == sess.HostID && existing.Status == StatusActive {
			return ErrHostHasActive
		}
	}
	s.sessions[sess.ID] = clone(sess)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(sess), nil
}

func (s *InMemoryStore) FindActiveByHost(_ context.Context, hostID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.HostID == hostID && sess.Status == StatusActive {
			return clone(sess), nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) ClaimParticipant(_ context.Context, sessionID, joinerID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrClaimFailed
	}
	if sess.Status != StatusActive || sess.ParticipantID != nil || sess.HostID == joinerID {
		return nil, ErrClaimFailed
	}
	joiner := joinerID
	sess.ParticipantID = &joiner
	return clone(sess), nil
}

func (s *InMemoryStore) Complete(_ context.Context, sessionID string, endedAt time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != StatusActive {
		return nil, ErrNotActive
	}
	sess.Status = StatusCompleted
	ended := endedAt.UTC()
	sess.EndedAt = &ended
	return clone(sess), nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *InMemoryStore) ListActive(_ context.Context, page, limit int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*Session, 0)
	for _, sess := range s.sessions {
		if sess.Status == StatusActive {
			matched = append(matched, sess)
		}
	}
	return paginate(matched, page, limit), nil
}

func (s *InMemoryStore) ListRecentForUser(_ context.Context, userID string, page, limit int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*Session, 0)
	for _, sess := range s.sessions {
		if sess.Status != StatusCompleted {
			continue
		}
		if sess.HostID == userID || (sess.ParticipantID != nil && *sess.ParticipantID == userID) {
			matched = append(matched, sess)
		}
	}
	return paginate(matched, page, limit), nil
}

func (s *InMemoryStore) Close() error { return nil }

func paginate(matched []*Session, page, limit int) []*Session {
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []*Session{}
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]*Session, 0, end-start)
	for _, sess := range matched[start:end] {
		out = append(out, clone(sess))
	}
	return out
}
