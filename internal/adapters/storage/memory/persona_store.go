package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mentatlabs/mentat/internal/domain"
)

type PersonaStore struct {
	mu       sync.RWMutex
	personas map[domain.UserID]domain.Persona
}

func NewPersonaStore() *PersonaStore {
	return &PersonaStore{
		personas: make(map[domain.UserID]domain.Persona),
	}
}

// LoadPersona returns an empty persona for unknown users.
func (s *PersonaStore) LoadPersona(_ context.Context, userID domain.UserID) (domain.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.personas[userID].Clone(), nil
}

func (s *PersonaStore) SavePersona(_ context.Context, userID domain.UserID, p domain.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.personas[userID] = p.Clone()
	return nil
}

type GoalStore struct {
	mu    sync.RWMutex
	goals map[string]*domain.Goal
}

func NewGoalStore() *GoalStore {
	return &GoalStore{
		goals: make(map[string]*domain.Goal),
	}
}

func (s *GoalStore) SaveGoal(_ context.Context, goal *domain.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := *goal
	s.goals[goal.ID] = &g
	return nil
}

func (s *GoalStore) ListGoalsByUser(_ context.Context, userID domain.UserID, limit int) ([]*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Goal
	for _, g := range s.goals {
		if g.UserID == userID {
			goal := *g
			result = append(result, &goal)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
