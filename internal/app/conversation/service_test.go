package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/mentatlabs/mentat/internal/adapters/storage/memory"
	"github.com/mentatlabs/mentat/internal/app/agent"
	"github.com/mentatlabs/mentat/internal/app/assemble"
	"github.com/mentatlabs/mentat/internal/app/controller"
	"github.com/mentatlabs/mentat/internal/app/prompt"
	"github.com/mentatlabs/mentat/internal/app/router"
	"github.com/mentatlabs/mentat/internal/config"
	"github.com/mentatlabs/mentat/internal/domain"
)

// chatModel answers every capability with minimal valid JSON. The intent is
// always simple_message so turns stay short.
type chatModel struct{}

func (chatModel) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	system := strings.ToLower(req.System)
	switch {
	case strings.Contains(system, "orchestration brain"):
		return `{"intent": "simple_message", "confidence": 95, "reasoning": "chit chat",
			"conversation_summary": "greeting", "response_outline": "greet back",
			"directives": [{"action": "generate_reply", "directive": "", "reasoning": "reply"}]}`, nil
	case strings.Contains(system, "quality reviewer"):
		return `{"rewrite_response": false, "feedback": "", "reasoning": "fine"}`, nil
	default:
		return `{"response": "Hello! How has your week been?", "reasoning": "greet", "insights": []}`, nil
	}
}

type nopRetriever struct{}

func (nopRetriever) Search(context.Context, domain.UserID, []string, int) ([]domain.RetrievedChunk, error) {
	return nil, nil
}

func (nopRetriever) IndexDocument(context.Context, domain.UserID, string, string) error {
	return nil
}

type harness struct {
	svc    *Service
	states *memstore.StateStore
	msgs   *memstore.MessageStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	prompts, err := prompt.LoadEmbedded()
	require.NoError(t, err)

	cfg := config.PipelineConfig{
		ConfidenceThreshold: 50,
		MaxAttempts:         2,
		ModelTimeout:        5 * time.Second,
		RetrievalK:          5,
		MaxChunks:           8,
		ContextCharBudget:   8000,
		HistoryWindow:       20,
		FeedbackMaxRounds:   0,
	}

	inv := agent.NewInvoker(chatModel{}, prompts, cfg.ModelTimeout)
	rtr := router.New(inv, cfg.ConfidenceThreshold, cfg.MaxAttempts, cfg.HistoryWindow)
	asm := assemble.New(cfg.MaxChunks, cfg.ContextCharBudget)

	ctrl := controller.New(inv, rtr, asm, nopRetriever{}, nopRetriever{},
		memstore.NewPersonaStore(), memstore.NewGoalStore(), memstore.NewJournalStore(), cfg)

	h := &harness{
		states: memstore.NewStateStore(),
		msgs:   memstore.NewMessageStore(),
	}
	h.svc = NewService(ctrl, memstore.NewConversationStore(), h.msgs, h.states, cfg.HistoryWindow)
	return h
}

func TestStartConversationInitializesState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.svc.StartConversation(ctx, StartConversationInput{
		UserID: "user-1",
		Title:  "first chat",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Conversation.ID)

	state, err := h.states.LoadSessionState(ctx, out.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageContract, state.Stage)
	assert.Equal(t, 0, state.TurnCount)
	assert.Equal(t, domain.UserID("user-1"), state.UserID)
}

func TestSendMessagePersistsTimelineAndState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	started, err := h.svc.StartConversation(ctx, StartConversationInput{UserID: "user-1"})
	require.NoError(t, err)

	out, err := h.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: started.Conversation.ID,
		UserID:         "user-1",
		Text:           "hi there",
	})
	require.NoError(t, err)

	assert.Equal(t, "hi there", out.UserMessage.Text)
	assert.NotEmpty(t, out.AgentMessage.Text)
	assert.Equal(t, domain.IntentSimpleMessage, out.Intent.Intent)
	assert.False(t, out.Fallback)

	conv, msgs, err := h.svc.GetTimeline(ctx, started.Conversation.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, started.Conversation.ID, conv.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Author)
	assert.Equal(t, domain.RoleAgent, msgs[1].Author)

	state, err := h.states.LoadSessionState(ctx, started.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.TurnCount)
}

func TestSendMessageUnknownConversation(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.SendMessage(context.Background(), SendMessageInput{
		ConversationID: "missing",
		UserID:         "user-1",
		Text:           "hello",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendMessageSerializesPerConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	started, err := h.svc.StartConversation(ctx, StartConversationInput{UserID: "user-1"})
	require.NoError(t, err)

	const turns = 8
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.SendMessage(ctx, SendMessageInput{
				ConversationID: started.Conversation.ID,
				UserID:         "user-1",
				Text:           "hello again",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every turn applied exactly once and left a user/agent message pair.
	state, err := h.states.LoadSessionState(ctx, started.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, turns, state.TurnCount)

	_, msgs, err := h.svc.GetTimeline(ctx, started.Conversation.ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2*turns)
}
