package store

import (
	"context"
	"fmt"

	"github.com/fjod/go_loyalty/internal/domain"
)

func (s *MemoryStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok || !s.clock.Now().Before(e.expiresAt) {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return e.session.Clone(), nil
}

// SaveSession stores the session and restarts its TTL.
func (s *MemoryStore) SaveSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = &sessionEntry{
		session:   session.Clone(),
		expiresAt: s.clock.Now().Add(s.sessionTTL),
	}
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}
