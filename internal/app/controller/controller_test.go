package controller

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/mentatlabs/mentat/internal/adapters/storage/memory"
	"github.com/mentatlabs/mentat/internal/app/agent"
	"github.com/mentatlabs/mentat/internal/app/assemble"
	"github.com/mentatlabs/mentat/internal/app/prompt"
	"github.com/mentatlabs/mentat/internal/app/router"
	"github.com/mentatlabs/mentat/internal/config"
	"github.com/mentatlabs/mentat/internal/domain"
)

// fakeModel answers per capability, keyed on the system prompt. Individual
// responses are overridable per test; onCoach fires before the coaching
// response is returned. A non-empty rewrite makes the critic demand a rewrite
// with that feedback on every review; coachReqs records every coaching call.
type fakeModel struct {
	intent    string
	persona   string
	rewrite   string
	onCoach   func()
	coachReqs []domain.CompletionRequest
}

const validPersonaJSON = `{
	"core_values": ["growth"], "strengths": ["curiosity"],
	"growth_areas": ["delegation"], "communication_style": "direct",
	"preferred_feedback_style": "specific", "motivators": ["mastery"]
}`

func (m *fakeModel) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	system := strings.ToLower(req.System)
	switch {
	case strings.Contains(system, "orchestration brain"):
		return m.intent, nil
	case strings.Contains(system, "semantic search queries"):
		return `{"queries": ["feedback about the user"], "reasoning": "r"}`, nil
	case strings.Contains(system, "persona summary"):
		if m.persona != "" {
			return m.persona, nil
		}
		return validPersonaJSON, nil
	case strings.Contains(system, "prepare context"):
		return `{"conversation_summary": "s", "response_instruction": "i"}`, nil
	case strings.Contains(system, "quality reviewer"):
		if m.rewrite != "" {
			return `{"rewrite_response": true, "feedback": "` + m.rewrite + `", "reasoning": "needs work"}`, nil
		}
		return `{"rewrite_response": false, "feedback": "", "reasoning": "fine"}`, nil
	default:
		m.coachReqs = append(m.coachReqs, req)
		if m.onCoach != nil {
			m.onCoach()
		}
		return `{"response": "Let's work on delegation together.", "reasoning": "r", "insights": ["wants structure"]}`, nil
	}
}

type fixedRetriever struct {
	chunks []domain.RetrievedChunk
}

func (r *fixedRetriever) Search(context.Context, domain.UserID, []string, int) ([]domain.RetrievedChunk, error) {
	return r.chunks, nil
}

func (r *fixedRetriever) IndexDocument(context.Context, domain.UserID, string, string) error {
	return nil
}

type fixture struct {
	ctrl     *Controller
	personas *memstore.PersonaStore
	goals    *memstore.GoalStore
	journals *memstore.JournalStore
}

func newFixture(t *testing.T, model domain.ModelClient) *fixture {
	t.Helper()
	prompts, err := prompt.LoadEmbedded()
	require.NoError(t, err)

	cfg := config.PipelineConfig{
		ConfidenceThreshold: 50,
		MaxAttempts:         3,
		ModelTimeout:        5 * time.Second,
		RetrievalK:          5,
		MaxChunks:           8,
		ContextCharBudget:   8000,
		HistoryWindow:       20,
		FeedbackMaxRounds:   1,
	}

	inv := agent.NewInvoker(model, prompts, cfg.ModelTimeout)
	rtr := router.New(inv, cfg.ConfidenceThreshold, cfg.MaxAttempts, cfg.HistoryWindow)
	asm := assemble.New(cfg.MaxChunks, cfg.ContextCharBudget)

	retriever := &fixedRetriever{chunks: []domain.RetrievedChunk{
		{Text: "Peer feedback: struggles to delegate", Score: 0.9, SourceID: "doc:1"},
	}}

	f := &fixture{
		personas: memstore.NewPersonaStore(),
		goals:    memstore.NewGoalStore(),
		journals: memstore.NewJournalStore(),
	}
	f.ctrl = New(inv, rtr, asm, retriever, retriever, f.personas, f.goals, f.journals, cfg)
	return f
}

const delegationIntentJSON = `{
	"intent": "coaching_query", "confidence": 90, "reasoning": "goal setting",
	"conversation_summary": "user wants a delegation goal",
	"response_outline": "confirm the goal",
	"directives": [
		{"action": "retrieve_documents", "directive": "past goals and feedback", "reasoning": "ground"},
		{"action": "update_goals", "directive": "improve delegation", "reasoning": "user asked"},
		{"action": "generate_reply", "directive": "", "reasoning": "answer"}
	]
}`

func TestHandleTurnGoalScenario(t *testing.T) {
	f := newFixture(t, &fakeModel{intent: delegationIntentJSON})
	ctx := context.Background()

	// Existing persona keeps the bootstrap out of this scenario.
	require.NoError(t, f.personas.SavePersona(ctx, "user-1", domain.Persona{CoreValues: []string{"growth"}}))

	state := domain.NewSessionState("conv-1", "user-1")
	res, err := f.ctrl.HandleTurn(ctx, "I want to set a goal to improve delegation", state, nil)
	require.NoError(t, err)

	assert.False(t, res.Fallback)
	assert.Contains(t, res.Response, "delegation")
	assert.Equal(t, domain.IntentCoachingQuery, res.Intent.Intent)
	assert.Equal(t, 1, res.State.TurnCount)

	goals, err := f.goals.ListGoalsByUser(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "improve delegation", goals[0].Description)
	assert.Equal(t, domain.GoalInProgress, goals[0].Status)

	// The new goal entered the bundle before the reply was generated.
	found := false
	for _, ch := range res.Bundle.RetrievedChunks {
		if strings.Contains(ch.Text, "improve delegation") {
			found = true
		}
	}
	assert.True(t, found, "bundle should rank the new goal")
}

func TestHandleTurnBootstrapsEmptyPersona(t *testing.T) {
	f := newFixture(t, &fakeModel{intent: delegationIntentJSON})
	ctx := context.Background()

	state := domain.NewSessionState("conv-1", "user-1")
	res, err := f.ctrl.HandleTurn(ctx, "I want to set a goal to improve delegation", state, nil)
	require.NoError(t, err)
	assert.False(t, res.Fallback)

	persona, err := f.personas.LoadPersona(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, persona.IsEmpty())
	assert.Equal(t, []string{"delegation"}, persona.GrowthAreas)
}

func TestHandleTurnPersonaFailureFallsBack(t *testing.T) {
	// Persona synthesis never parses; retries exhaust and the turn degrades.
	f := newFixture(t, &fakeModel{
		intent:  delegationIntentJSON,
		persona: "I am not JSON",
	})
	ctx := context.Background()

	state := domain.NewSessionState("conv-1", "user-1")
	state.TurnCount = 7

	res, err := f.ctrl.HandleTurn(ctx, "I want to set a goal to improve delegation", state, nil)
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, FallbackResponse, res.Response)
	// State comes back exactly as it went in.
	assert.Equal(t, state, res.State)

	// No side effect of the failed turn was committed.
	persona, err := f.personas.LoadPersona(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, persona.IsEmpty())
	goals, err := f.goals.ListGoalsByUser(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestHandleTurnCancellationCommitsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	model := &fakeModel{intent: delegationIntentJSON, onCoach: cancel}
	f := newFixture(t, model)

	require.NoError(t, f.personas.SavePersona(context.Background(), "user-1", domain.Persona{CoreValues: []string{"growth"}}))

	state := domain.NewSessionState("conv-1", "user-1")
	_, err := f.ctrl.HandleTurn(ctx, "I want to set a goal to improve delegation", state, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The queued goal write never ran.
	goals, err := f.goals.ListGoalsByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestHandleTurnJournalEntryRecordsReflection(t *testing.T) {
	intent := `{
		"intent": "journal_entry", "confidence": 85, "reasoning": "journaling",
		"conversation_summary": "user reflects on the week",
		"response_outline": "acknowledge",
		"directives": [
			{"action": "record_journal", "directive": "rough week with the team", "reasoning": "log it"},
			{"action": "generate_reply", "directive": "", "reasoning": "answer"}
		]
	}`
	f := newFixture(t, &fakeModel{intent: intent})
	ctx := context.Background()

	require.NoError(t, f.personas.SavePersona(ctx, "user-1", domain.Persona{CoreValues: []string{"growth"}}))

	state := domain.NewSessionState("conv-1", "user-1")
	res, err := f.ctrl.HandleTurn(ctx, "journal: rough week with the team", state, nil)
	require.NoError(t, err)
	assert.False(t, res.Fallback)

	entries, err := f.journals.ListJournalEntriesByUser(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rough week with the team", entries[0].ProblemSummary)
	// The committed reflection carries the drafted reply and its insights.
	assert.Contains(t, entries[0].Reflection, "delegation")
	assert.Contains(t, entries[0].Reflection, "wants structure")
}

func TestHandleTurnStageSignalAdvancesState(t *testing.T) {
	intent := `{
		"intent": "coaching_query", "confidence": 90, "reasoning": "focus agreed",
		"conversation_summary": "s", "response_outline": "o",
		"directives": [
			{"action": "agree_focus", "directive": "", "reasoning": "both sides confirmed the topic"},
			{"action": "generate_reply", "directive": "", "reasoning": "answer"}
		]
	}`
	f := newFixture(t, &fakeModel{intent: intent})
	ctx := context.Background()

	require.NoError(t, f.personas.SavePersona(ctx, "user-1", domain.Persona{CoreValues: []string{"growth"}}))

	state := domain.NewSessionState("conv-1", "user-1")
	res, err := f.ctrl.HandleTurn(ctx, "yes, let's focus on delegation", state, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StageListen, res.State.Stage)
}

func TestHandleTurnRewriteVerdictBoundedByMaxRounds(t *testing.T) {
	// The critic is never satisfied; the loop must stop after the configured
	// number of rewrite rounds, so the responder runs rounds+1 times.
	model := &fakeModel{intent: delegationIntentJSON, rewrite: "too vague, name a first step"}
	f := newFixture(t, model)
	ctx := context.Background()

	require.NoError(t, f.personas.SavePersona(ctx, "user-1", domain.Persona{CoreValues: []string{"growth"}}))

	state := domain.NewSessionState("conv-1", "user-1")
	res, err := f.ctrl.HandleTurn(ctx, "I want to set a goal to improve delegation", state, nil)
	require.NoError(t, err)
	assert.False(t, res.Fallback)

	// FeedbackMaxRounds is 1 in the fixture.
	require.Len(t, model.coachReqs, 2)
	assert.NotContains(t, model.coachReqs[0].System, "too vague, name a first step")
	assert.Contains(t, model.coachReqs[1].System, "too vague, name a first step")
}

func TestHandleTurnTracksPendingDirectives(t *testing.T) {
	model := &fakeModel{intent: `{
		"intent": "coaching_query", "confidence": 90, "reasoning": "r",
		"conversation_summary": "s", "response_outline": "o",
		"directives": [
			{"action": "retrieve_documents", "directive": "", "reasoning": "no objective given"},
			{"action": "generate_reply", "directive": "", "reasoning": "answer"}
		]
	}`}
	f := newFixture(t, model)
	ctx := context.Background()

	require.NoError(t, f.personas.SavePersona(ctx, "user-1", domain.Persona{CoreValues: []string{"growth"}}))

	state := domain.NewSessionState("conv-1", "user-1")
	res, err := f.ctrl.HandleTurn(ctx, "can you look something up for me", state, nil)
	require.NoError(t, err)

	// The dropped retrieval stays pending on the session.
	require.Len(t, res.State.PendingDirectives, 1)
	assert.Equal(t, domain.ActionRetrieveDocuments, res.State.PendingDirectives[0].Kind)

	// A later plan that carries the action clears the pending entry.
	model.intent = delegationIntentJSON
	res2, err := f.ctrl.HandleTurn(ctx, "find my past feedback on delegation", res.State, nil)
	require.NoError(t, err)
	assert.Empty(t, res2.State.PendingDirectives)
}
