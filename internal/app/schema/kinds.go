// Package schema declares the structural contract of every agent kind and
// validates raw model output against it. Each kind has exactly one output
// variant; agent output is never treated as an open-ended mapping.
package schema

// AgentKind names a single-purpose model capability. The value doubles as
// the prompt template name for that capability.
type AgentKind string

const (
	KindIntentDetection    AgentKind = "intent_detection"
	KindQueryFormulation   AgentKind = "query_formulation"
	KindPersonaSynthesis   AgentKind = "persona_synthesis"
	KindContextAggregation AgentKind = "context_aggregation"
	KindCoachingResponse   AgentKind = "coaching_response"
	KindFeedbackQA         AgentKind = "feedback_qa"
)

// Cardinality and length bounds shared across kinds.
const (
	MaxListItems    = 5   // persona descriptors, queries, insights
	MaxDirectives   = 8   // directives in one plan
	MaxSummaryChars = 700 // ~100 words
	MaxStyleChars   = 300 // single-sentence persona fields
)

// DirectiveOutput is one proposed action inside an intent detection output.
type DirectiveOutput struct {
	Action    string `json:"action"`
	Directive string `json:"directive"`
	Reasoning string `json:"reasoning"`
}

// IntentOutput is the orchestration variant of intent detection: the intent
// plus the proposed action plan and conversation digest.
type IntentOutput struct {
	Intent              string            `json:"intent"`
	Confidence          int               `json:"confidence"`
	Reasoning           string            `json:"reasoning"`
	ConversationSummary string            `json:"conversation_summary"`
	ResponseOutline     string            `json:"response_outline"`
	Directives          []DirectiveOutput `json:"directives"`
}

// QueryOutput carries formulated semantic queries.
type QueryOutput struct {
	Queries   []string `json:"queries"`
	Reasoning string   `json:"reasoning"`
}

// PersonaOutput mirrors the persisted persona shape.
type PersonaOutput struct {
	CoreValues             []string `json:"core_values"`
	Strengths              []string `json:"strengths"`
	GrowthAreas            []string `json:"growth_areas"`
	CommunicationStyle     string   `json:"communication_style"`
	PreferredFeedbackStyle string   `json:"preferred_feedback_style"`
	Motivators             []string `json:"motivators"`
}

// AggregationOutput condenses the conversation for the responder.
type AggregationOutput struct {
	ConversationSummary string `json:"conversation_summary"`
	ResponseInstruction string `json:"response_instruction"`
}

// CoachOutput is the user-facing reply with its reasoning and insights.
type CoachOutput struct {
	Response  string   `json:"response"`
	Reasoning string   `json:"reasoning"`
	Insights  []string `json:"insights"`
}

// FeedbackOutput is the critic's verdict on a drafted reply.
type FeedbackOutput struct {
	RewriteResponse bool   `json:"rewrite_response"`
	Feedback        string `json:"feedback"`
	Reasoning       string `json:"reasoning"`
}
