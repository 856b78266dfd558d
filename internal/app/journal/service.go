package journal

import (
	"context"

	"github.com/mentatlabs/mentat/internal/domain"
)

// Service holds the read side of journaling and goals.
type Service struct {
	journals domain.JournalStore
	goals    domain.GoalStore
}

// NewService creates a journal service.
func NewService(journals domain.JournalStore, goals domain.GoalStore) *Service {
	return &Service{journals: journals, goals: goals}
}

// GetUserJournal returns the last `limit` journal entries for a user.
// If limit <= 0, a reasonable default value is used.
func (s *Service) GetUserJournal(ctx context.Context, userID domain.UserID, limit int) ([]*domain.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.journals.ListJournalEntriesByUser(ctx, userID, limit)
}

// GetUserGoals returns the user's coaching goals.
func (s *Service) GetUserGoals(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Goal, error) {
	return s.goals.ListGoalsByUser(ctx, userID, limit)
}
