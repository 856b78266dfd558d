package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentatlabs/mentat/internal/app/prompt"
	"github.com/mentatlabs/mentat/internal/app/schema"
	"github.com/mentatlabs/mentat/internal/domain"
)

// scriptedModel replays canned responses (or errors) in order and records
// every request it saw.
type scriptedModel struct {
	responses []string
	errs      []error
	requests  []domain.CompletionRequest
}

func (m *scriptedModel) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", errors.New("script exhausted")
}

func newTestInvoker(t *testing.T, model domain.ModelClient) *Invoker {
	t.Helper()
	prompts, err := prompt.LoadEmbedded()
	require.NoError(t, err)
	return NewInvoker(model, prompts, time.Second)
}

func aggregationVars() map[string]string {
	return map[string]string{
		"user_message": "I had a rough week",
		"history":      "(no prior messages)",
	}
}

func TestInvokeValidFirstAttempt(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"conversation_summary": "rough week", "response_instruction": "empathize first"}`,
	}}
	inv := newTestInvoker(t, model)

	out, outcome, err := inv.Invoke(context.Background(), schema.KindContextAggregation, aggregationVars(), 3)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusValid, outcome.Status)
	assert.Equal(t, "rough week", out.(schema.AggregationOutput).ConversationSummary)
	assert.Len(t, model.requests, 1)
	assert.True(t, model.requests[0].JSONOutput)
}

func TestInvokeRetriesWithCorrectiveInstruction(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"response_instruction": "only one field"}`,
		`{"conversation_summary": "fixed", "response_instruction": "empathize"}`,
	}}
	inv := newTestInvoker(t, model)

	out, outcome, err := inv.Invoke(context.Background(), schema.KindContextAggregation, aggregationVars(), 3)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusValid, outcome.Status)
	assert.Equal(t, "fixed", out.(schema.AggregationOutput).ConversationSummary)

	require.Len(t, model.requests, 2)
	assert.Contains(t, model.requests[1].User, "your previous output was invalid because:")
	assert.Contains(t, model.requests[1].User, "conversation_summary")
	// The base prompt itself is unchanged between attempts.
	assert.Contains(t, model.requests[1].User, "I had a rough week")
}

func TestInvokeExhaustionWrapsValidationError(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"not json", "still not json", "nope",
	}}
	inv := newTestInvoker(t, model)

	out, outcome, err := inv.Invoke(context.Background(), schema.KindContextAggregation, aggregationVars(), 3)
	assert.Nil(t, out)
	assert.Equal(t, schema.StatusInvalid, outcome.Status)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, model.requests, 3)
}

func TestInvokeTransportErrorsConsumeRetryBudget(t *testing.T) {
	boom := errors.New("connection reset")
	model := &scriptedModel{errs: []error{boom, boom}}
	inv := newTestInvoker(t, model)

	_, outcome, err := inv.Invoke(context.Background(), schema.KindContextAggregation, aggregationVars(), 2)
	assert.Equal(t, schema.StatusInvalid, outcome.Status)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Len(t, model.requests, 2)
}

func TestInvokeCancelledContextFailsFast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{}
	inv := newTestInvoker(t, model)

	_, outcome, err := inv.Invoke(ctx, schema.KindContextAggregation, aggregationVars(), 5)
	assert.Equal(t, schema.StatusInvalid, outcome.Status)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	// No transport calls are attempted against a context that is already done.
	assert.Empty(t, model.requests)
}

func TestInvokeRepairableReturnsValid(t *testing.T) {
	// Confidence above 100 is clamped, not retried.
	model := &scriptedModel{responses: []string{
		`{"intent": "simple_message", "confidence": 130, "reasoning": "r",
		  "conversation_summary": "s", "response_outline": "o", "directives": []}`,
	}}
	inv := newTestInvoker(t, model)

	out, outcome, err := inv.Invoke(context.Background(), schema.KindIntentDetection, map[string]string{
		"user_message": "hi",
		"history":      "(none)",
		"intents":      "simple_message: chit chat",
		"actions":      "generate_reply: reply",
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusValid, outcome.Status)
	assert.Equal(t, 100, out.(schema.IntentOutput).Confidence)
	assert.Len(t, model.requests, 1)
}

func TestInvokeUnknownTemplate(t *testing.T) {
	inv := newTestInvoker(t, &scriptedModel{})
	_, _, err := inv.Invoke(context.Background(), schema.AgentKind("no_such_kind"), nil, 1)
	assert.ErrorContains(t, err, "rendering prompt")
}
