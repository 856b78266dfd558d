package domain

// Message represents any message in a conversation timeline (user or agent).
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	Author         Role
	Text           string
	CreatedAt      Timestamp
}

// Conversation is a concrete "relationship" between a user and the coach;
// it can span many coaching sessions.
type Conversation struct {
	ID        ConversationID
	UserID    UserID
	Title     string
	CreatedAt Timestamp
	UpdatedAt Timestamp
}
