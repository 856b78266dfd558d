package domain

import "context"

// CompletionRequest is one logical call to the model transport.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int32
	// JSONOutput asks the transport for a machine-parseable response when
	// the backend supports constrained output.
	JSONOutput bool
}

// ModelClient is the underlying model invocation transport. It may fail
// with a transport error, which is distinct from a validation failure.
type ModelClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Retriever is the document retrieval collaborator (vector similarity
// search over the user's stored material).
type Retriever interface {
	Search(ctx context.Context, userID UserID, queries []string, k int) ([]RetrievedChunk, error)
}

// DocumentIndexer ingests user material into the retrieval store.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, userID UserID, sourceID, text string) error
}

// StateStore persists SessionState between turns, keyed by conversation.
type StateStore interface {
	LoadSessionState(ctx context.Context, id ConversationID) (SessionState, error)
	SaveSessionState(ctx context.Context, state SessionState) error
}

// PersonaStore persists the synthesized persona, keyed by user.
type PersonaStore interface {
	LoadPersona(ctx context.Context, userID UserID) (Persona, error)
	SavePersona(ctx context.Context, userID UserID, p Persona) error
}

// GoalStore persists coaching goals, keyed by user.
type GoalStore interface {
	SaveGoal(ctx context.Context, goal *Goal) error
	ListGoalsByUser(ctx context.Context, userID UserID, limit int) ([]*Goal, error)
}

// JournalStore persists journal entries.
type JournalStore interface {
	AppendJournalEntry(ctx context.Context, entry *JournalEntry) error
	ListJournalEntriesByUser(ctx context.Context, userID UserID, limit int) ([]*JournalEntry, error)
}

// ConversationStore persists conversation records.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	UpdateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id ConversationID) (*Conversation, error)
	ListConversationsByUser(ctx context.Context, userID UserID, limit int) ([]*Conversation, error)
}

// MessageStore persists the conversation timeline.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, id ConversationID, limit int) ([]*Message, error)
}
