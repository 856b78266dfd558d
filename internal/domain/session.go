package domain

// Stage is one phase of the coaching session state machine. Stages are
// linear within a session; a new session always starts at Contract and
// closing Review wraps around to Contract.
type Stage string

const (
	StageContract Stage = "contract"
	StageListen   Stage = "listen"
	StageExplore  Stage = "explore"
	StagePlan     Stage = "plan"
	StageReview   Stage = "review"
)

// StageOrder lists the stages in session order.
var StageOrder = []Stage{StageContract, StageListen, StageExplore, StagePlan, StageReview}

// StageDescriptions feed the coaching prompt so the model knows where in
// the session it is.
var StageDescriptions = map[Stage]string{
	StageContract: "Establish the purpose of the session, confirm long-term goals, and clarify expectations.",
	StageListen:   "Encourage deep reflection and open expression; explore emotions, beliefs, and challenges.",
	StageExplore:  "Help uncover patterns, obstacles, and possibilities; link discoveries to long-term objectives.",
	StagePlan:     "Build an actionable commitment: goal, reality, options, will.",
	StageReview:   "Reflect on insights gained, offer assignments, reinforce connection to long-term goals.",
}

// SessionState is the only cross-turn mutable state of the pipeline. It is
// owned by the session state machine and persisted per conversation.
type SessionState struct {
	ConversationID    ConversationID `json:"conversation_id"`
	UserID            UserID         `json:"user_id"`
	Stage             Stage          `json:"stage"`
	TurnCount         int            `json:"turn_count"`
	SessionCount      int            `json:"session_count"`
	PendingDirectives []Action       `json:"pending_directives,omitempty"`
	LastIntent        Intent         `json:"last_intent,omitempty"`
}

// NewSessionState returns the initial state for a fresh conversation.
func NewSessionState(conversationID ConversationID, userID UserID) SessionState {
	return SessionState{
		ConversationID: conversationID,
		UserID:         userID,
		Stage:          StageContract,
	}
}

// Clone returns a deep copy; the controller works on a copy so a failed
// turn cannot leak partial mutations into the stored state.
func (s SessionState) Clone() SessionState {
	out := s
	out.PendingDirectives = append([]Action(nil), s.PendingDirectives...)
	return out
}
