package memory

import (
	"context"
	"sync"

	"broadcast-quiz-service/internal/domain"
)

// StateStore is an in-memory implementation of app.StateRepository.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]domain.ConversationState
}

func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]domain.ConversationState)}
}

func (s *StateStore) Get(_ context.Context, participantID string) (domain.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[participantID], nil
}

func (s *StateStore) Set(_ context.Context, participantID string, state domain.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == domain.StateNone {
		delete(s.states, participantID)
		return nil
	}
	s.states[participantID] = state
	return nil
}
