package domain

import "time"

// JournalEntryID identifies a journal entry
type JournalEntryID string

// JournalItemStatus represents the status of one committed step
type JournalItemStatus string

const (
	JournalItemPending JournalItemStatus = "pending"
	JournalItemDone    JournalItemStatus = "done"
)

// JournalItem represents a concrete step the user committed to.
type JournalItem struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Status      JournalItemStatus `json:"status"`
	Notes       string            `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// JournalEntry is the long-term record of a turn or coaching session:
// what was worked on, what the user reflected, and how they felt.
type JournalEntry struct {
	ID             JournalEntryID `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	UserID         UserID         `json:"user_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// A brief summary of the problem worked on
	ProblemSummary string `json:"problem_summary"`

	// Committed steps (2-4 items, typically)
	Items []JournalItem `json:"items"`

	// Final reflection, written by the coach agent or the user
	Reflection string `json:"reflection"`

	// Emotional state before and after
	MoodBefore string `json:"mood_before"`
	MoodAfter  string `json:"mood_after"`
}
