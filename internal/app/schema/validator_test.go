package schema

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIntentValid(t *testing.T) {
	raw := []byte(`{
		"intent": "coaching_query",
		"confidence": 85,
		"reasoning": "the user asks for guidance",
		"conversation_summary": "user wants help with delegation",
		"response_outline": "acknowledge, then suggest a step",
		"directives": [
			{"action": "retrieve_documents", "directive": "past feedback", "reasoning": "ground the reply"},
			{"action": "generate_reply", "directive": "", "reasoning": "close the plan"}
		]
	}`)

	out, outcome := Validate(KindIntentDetection, raw)
	require.Equal(t, StatusValid, outcome.Status)

	intent, ok := out.(IntentOutput)
	require.True(t, ok)
	assert.Equal(t, "coaching_query", intent.Intent)
	assert.Equal(t, 85, intent.Confidence)
	require.Len(t, intent.Directives, 2)
	assert.Equal(t, "retrieve_documents", intent.Directives[0].Action)
}

func TestValidateStripsCodeFences(t *testing.T) {
	raw := []byte("```json\n{\"response\": \"hi\", \"reasoning\": \"greeting\", \"insights\": []}\n```")

	out, outcome := Validate(KindCoachingResponse, raw)
	require.Equal(t, StatusValid, outcome.Status)
	assert.Equal(t, "hi", out.(CoachOutput).Response)
}

func TestValidateMalformedJSONIsInvalid(t *testing.T) {
	_, outcome := Validate(KindCoachingResponse, []byte("I think the answer is..."))
	assert.Equal(t, StatusInvalid, outcome.Status)
	assert.NotEmpty(t, outcome.Errors)
}

func TestValidateUnknownIntentIsInvalid(t *testing.T) {
	raw := []byte(`{"intent": "small_talk", "confidence": 70, "reasoning": "r",
		"conversation_summary": "s", "response_outline": "o", "directives": []}`)

	_, outcome := Validate(KindIntentDetection, raw)
	require.Equal(t, StatusInvalid, outcome.Status)
	assert.Contains(t, outcome.Summary(), "intent")
}

func TestValidateUnknownActionIsInvalid(t *testing.T) {
	raw := []byte(`{"intent": "coaching_query", "confidence": 70, "reasoning": "r",
		"conversation_summary": "s", "response_outline": "o",
		"directives": [{"action": "send_email", "directive": "x", "reasoning": "y"}]}`)

	_, outcome := Validate(KindIntentDetection, raw)
	assert.Equal(t, StatusInvalid, outcome.Status)
}

func TestValidateConfidenceClampIsRepairable(t *testing.T) {
	raw := []byte(`{"intent": "simple_message", "confidence": 140, "reasoning": "r",
		"conversation_summary": "s", "response_outline": "o", "directives": []}`)

	out, outcome := Validate(KindIntentDetection, raw)
	require.Equal(t, StatusRepairable, outcome.Status)
	assert.Equal(t, 100, out.(IntentOutput).Confidence)
}

func TestValidatePersonaListTruncationIsRepairable(t *testing.T) {
	raw := []byte(`{
		"core_values": ["a", "b", "c", "d", "e", "f"],
		"strengths": ["s"],
		"growth_areas": ["g"],
		"communication_style": "direct",
		"preferred_feedback_style": "specific",
		"motivators": ["m"]
	}`)

	out, outcome := Validate(KindPersonaSynthesis, raw)
	require.Equal(t, StatusRepairable, outcome.Status)

	persona := out.(PersonaOutput)
	assert.Len(t, persona.CoreValues, MaxListItems)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, persona.CoreValues)
}

func TestValidatePersonaMissingFieldIsInvalid(t *testing.T) {
	raw := []byte(`{
		"core_values": ["a"],
		"strengths": ["s"],
		"growth_areas": ["g"],
		"communication_style": "direct",
		"motivators": ["m"]
	}`)

	_, outcome := Validate(KindPersonaSynthesis, raw)
	require.Equal(t, StatusInvalid, outcome.Status)
	assert.Contains(t, outcome.Summary(), "preferred_feedback_style")
}

func TestValidateSummaryTruncationIsRepairable(t *testing.T) {
	long := strings.Repeat("x", MaxSummaryChars+200)
	raw := fmt.Sprintf(`{"conversation_summary": %q, "response_instruction": "short"}`, long)

	out, outcome := Validate(KindContextAggregation, []byte(raw))
	require.Equal(t, StatusRepairable, outcome.Status)
	assert.LessOrEqual(t, len(out.(AggregationOutput).ConversationSummary), MaxSummaryChars)
}

func TestValidateQueriesRequireAtLeastOne(t *testing.T) {
	_, outcome := Validate(KindQueryFormulation, []byte(`{"queries": [], "reasoning": "r"}`))
	assert.Equal(t, StatusInvalid, outcome.Status)
}

func TestValidateFeedbackRequiresBool(t *testing.T) {
	_, outcome := Validate(KindFeedbackQA, []byte(`{"rewrite_response": "yes", "reasoning": "r"}`))
	assert.Equal(t, StatusInvalid, outcome.Status)

	out, outcome := Validate(KindFeedbackQA, []byte(`{"rewrite_response": true, "feedback": "too long", "reasoning": "r"}`))
	require.Equal(t, StatusValid, outcome.Status)
	assert.True(t, out.(FeedbackOutput).RewriteResponse)
}

// Validation is deterministic: same bytes, same outcome, including repairs.
func TestValidateIsIdempotent(t *testing.T) {
	raw := []byte(`{"intent": "simple_message", "confidence": -5, "reasoning": "r",
		"conversation_summary": "s", "response_outline": "o", "directives": []}`)

	first, firstOutcome := Validate(KindIntentDetection, raw)
	second, secondOutcome := Validate(KindIntentDetection, raw)

	assert.Equal(t, first, second)
	assert.Equal(t, firstOutcome, secondOutcome)
	assert.Equal(t, StatusRepairable, firstOutcome.Status)
	assert.Equal(t, 0, first.(IntentOutput).Confidence)
}
