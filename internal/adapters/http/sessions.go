package httpadapter

import (
	"sync"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

// SessionStore is the in-memory conversation store. History is copied on
// both read and write so callers can never alias the stored slice.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.ConversationTurn
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string][]domain.ConversationTurn)}
}

func (s *SessionStore) History(sessionID string) []domain.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return append([]domain.ConversationTurn(nil), history...)
}

func (s *SessionStore) Save(sessionID string, history []domain.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append([]domain.ConversationTurn(nil), history...)
}

func (s *SessionStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
