package domain

// Intent classifies what the user wants from this turn.
type Intent string

const (
	IntentSimpleMessage  Intent = "simple_message"
	IntentCoachingQuery  Intent = "coaching_query"
	IntentJournalEntry   Intent = "journal_entry"
	IntentDocumentUpload Intent = "document_upload"
)

// Intents is the closed set the classifier may choose from.
var Intents = []Intent{
	IntentSimpleMessage,
	IntentCoachingQuery,
	IntentJournalEntry,
	IntentDocumentUpload,
}

// IntentDescriptions feed the classifier prompt, one line per intent.
var IntentDescriptions = map[Intent]string{
	IntentSimpleMessage:  "General conversation, questions, or statements that can be answered directly.",
	IntentCoachingQuery:  "A request for coaching, feedback, or help with a professional challenge. Be proactive about spotting these.",
	IntentJournalEntry:   "The user is reflecting on their day or a past event and wants it recorded.",
	IntentDocumentUpload: "The user is sharing a document, feedback text, or notes to be stored for later retrieval.",
}

// IntentResult is produced once per turn by the Intent Router and is
// immutable afterwards.
type IntentResult struct {
	Intent     Intent
	Confidence int // 0-100
	Reasoning  string
}

// ActionKind names an operation the plan can ask the pipeline to perform.
type ActionKind string

const (
	ActionRetrieveDocuments  ActionKind = "retrieve_documents"
	ActionUpdatePersona      ActionKind = "update_persona"
	ActionUpdateGoals        ActionKind = "update_goals"
	ActionRecordJournal      ActionKind = "record_journal"
	ActionGenerateReply      ActionKind = "generate_reply"
	ActionAgreeFocus         ActionKind = "agree_focus"
	ActionAcknowledgeStory   ActionKind = "acknowledge_story"
	ActionSurfaceInsight     ActionKind = "surface_insight"
	ActionFinalizeCommitment ActionKind = "finalize_commitment"
	ActionCloseSession       ActionKind = "close_session"
)

// ActionKinds is the closed set offered to the planning agent.
var ActionKinds = []ActionKind{
	ActionRetrieveDocuments,
	ActionUpdatePersona,
	ActionUpdateGoals,
	ActionRecordJournal,
	ActionGenerateReply,
	ActionAgreeFocus,
	ActionAcknowledgeStory,
	ActionSurfaceInsight,
	ActionFinalizeCommitment,
	ActionCloseSession,
}

// actionNeedsDirective marks the kinds that are meaningless without a
// free-text parameter (a semantic query, a goal description, ...).
var actionNeedsDirective = map[ActionKind]bool{
	ActionRetrieveDocuments: true,
	ActionUpdateGoals:       true,
	ActionRecordJournal:     true,
}

// RequiresDirective reports whether k must carry a directive to be executable.
func (k ActionKind) RequiresDirective() bool {
	return actionNeedsDirective[k]
}

// Valid reports whether k belongs to the closed action set.
func (k ActionKind) Valid() bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ActionDescriptions feed the planning prompt.
var ActionDescriptions = map[ActionKind]string{
	ActionRetrieveDocuments:  "Fetch stored documents, feedback, or past conversations. Directive: the semantic query to run.",
	ActionUpdatePersona:      "Re-synthesize the user's persona from stored material.",
	ActionUpdateGoals:        "Create or amend a coaching goal. Directive: the goal description.",
	ActionRecordJournal:      "Persist a journal entry for this turn. Directive: what the entry should focus on.",
	ActionGenerateReply:      "Generate the user-facing reply. Every plan ends with this.",
	ActionAgreeFocus:         "Mark that coach and user agreed on the session's focus (contracting).",
	ActionAcknowledgeStory:   "Mark that the user's situation has been heard and restated (listening).",
	ActionSurfaceInsight:     "Mark that a pattern or insight was surfaced (exploring).",
	ActionFinalizeCommitment: "Mark that the user committed to a concrete action plan.",
	ActionCloseSession:       "Mark that the coaching session was reviewed and closed.",
}

// Action is one named operation in a turn's plan, with an optional directive.
type Action struct {
	Kind      ActionKind
	Directive string
	Reasoning string
}

// ActionPlan is the ordered set of actions satisfying a turn's intent.
type ActionPlan []Action

// Contains reports whether the plan includes an action of the given kind.
func (p ActionPlan) Contains(kind ActionKind) bool {
	for _, a := range p {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// FallbackPlan is the minimal plan used when classification confidence is
// below threshold: answer directly, nothing else.
func FallbackPlan() ActionPlan {
	return ActionPlan{{Kind: ActionGenerateReply, Reasoning: "fallback: direct reply"}}
}
