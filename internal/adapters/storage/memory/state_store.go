// Package memory holds in-process store implementations. Nothing here is
// persistent; they back local mode and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mentatlabs/mentat/internal/domain"
)

type StateStore struct {
	mu     sync.RWMutex
	states map[domain.ConversationID]domain.SessionState
}

func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[domain.ConversationID]domain.SessionState),
	}
}

func (s *StateStore) LoadSessionState(_ context.Context, id domain.ConversationID) (domain.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[id]
	if !ok {
		return domain.SessionState{}, fmt.Errorf("session state for %s: %w", id, domain.ErrNotFound)
	}
	return state.Clone(), nil
}

func (s *StateStore) SaveSessionState(_ context.Context, state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.ConversationID] = state.Clone()
	return nil
}
