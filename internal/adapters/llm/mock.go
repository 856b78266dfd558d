package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mentatlabs/mentat/internal/domain"
)

// MockClient is a deterministic ModelClient for local mode and tests. It
// keys on distinctive fragments of each capability's system prompt and
// answers with schema-conforming JSON.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	system := strings.ToLower(req.System)

	switch {
	case strings.Contains(system, "orchestration brain"):
		return m.intent(req.User), nil
	case strings.Contains(system, "semantic search queries"):
		return marshal(map[string]any{
			"queries":   []string{"feedback about the user", "recent journal entries"},
			"reasoning": "generic retrieval over stored material",
		}), nil
	case strings.Contains(system, "persona summary"):
		return marshal(map[string]any{
			"core_values":              []string{"growth", "honesty"},
			"strengths":                []string{"curiosity"},
			"growth_areas":             []string{"delegation"},
			"communication_style":      "direct and reflective",
			"preferred_feedback_style": "specific and actionable",
			"motivators":               []string{"mastery"},
		}), nil
	case strings.Contains(system, "prepare context"):
		return marshal(map[string]any{
			"conversation_summary": "The user is discussing their professional development.",
			"response_instruction": "Acknowledge the message and ask one clarifying question.",
		}), nil
	case strings.Contains(system, "quality reviewer"):
		return marshal(map[string]any{
			"rewrite_response": false,
			"feedback":         "",
			"reasoning":        "draft is grounded and appropriately scoped",
		}), nil
	default:
		return m.coach(req.User), nil
	}
}

// intent does rough keyword routing so local mode exercises the real plans.
func (m *MockClient) intent(user string) string {
	lower := strings.ToLower(user)

	intent := string(domain.IntentSimpleMessage)
	confidence := 90
	directives := []map[string]string{}

	switch {
	case strings.Contains(lower, "goal"):
		intent = string(domain.IntentCoachingQuery)
		directives = append(directives,
			map[string]string{"action": string(domain.ActionRetrieveDocuments), "directive": "past goals and feedback", "reasoning": "ground the reply"},
			map[string]string{"action": string(domain.ActionUpdateGoals), "directive": extractGoal(user), "reasoning": "the user wants to set a goal"},
		)
	case strings.Contains(lower, "journal"), strings.Contains(lower, "today i"):
		intent = string(domain.IntentJournalEntry)
		directives = append(directives,
			map[string]string{"action": string(domain.ActionRecordJournal), "directive": "reflection on the user's day", "reasoning": "the user is journaling"},
		)
	case strings.Contains(lower, "document"), strings.Contains(lower, "here is my"):
		intent = string(domain.IntentDocumentUpload)
	case strings.Contains(lower, "coach"), strings.Contains(lower, "feedback"), strings.Contains(lower, "help me"):
		intent = string(domain.IntentCoachingQuery)
		directives = append(directives,
			map[string]string{"action": string(domain.ActionRetrieveDocuments), "directive": "relevant feedback and past conversations", "reasoning": "ground the reply"},
		)
	}

	directives = append(directives,
		map[string]string{"action": string(domain.ActionGenerateReply), "directive": "", "reasoning": "every plan ends with a reply"})

	return marshal(map[string]any{
		"intent":               intent,
		"confidence":           confidence,
		"reasoning":            "keyword match in mock classifier",
		"conversation_summary": "Mock summary of the conversation so far.",
		"response_outline":     "Respond helpfully and concretely.",
		"directives":           directives,
	})
}

func (m *MockClient) coach(user string) string {
	// Echo enough of the message that scenario tests can assert grounding.
	msg := user
	if idx := strings.LastIndex(msg, "New user message:"); idx >= 0 {
		msg = strings.TrimSpace(msg[idx+len("New user message:"):])
	}
	return marshal(map[string]any{
		"response":  "I hear you: " + msg + " — what would a first small step look like?",
		"reasoning": "reflect back, then prompt one concrete step",
		"insights":  []string{"responds well to concrete next steps"},
	})
}

// extractGoal pulls a goal description out of phrasing like "set a goal to X".
func extractGoal(user string) string {
	lower := strings.ToLower(user)
	if idx := strings.Index(lower, "goal to "); idx >= 0 {
		return strings.TrimSpace(user[idx+len("goal to "):])
	}
	return strings.TrimSpace(user)
}

func marshal(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
