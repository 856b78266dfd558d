// Package conversation manages conversations and their timelines, and runs
// each user turn through the orchestration controller under a
// single-writer-per-conversation discipline.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mentatlabs/mentat/internal/app/controller"
	"github.com/mentatlabs/mentat/internal/domain"
	"github.com/mentatlabs/mentat/internal/observability"
)

type Service struct {
	ctrl       *controller.Controller
	convStore  domain.ConversationStore
	msgStore   domain.MessageStore
	stateStore domain.StateStore
	now        func() time.Time

	historyWindow int

	// locks serializes turns per conversation; turns for different
	// conversations proceed in parallel.
	locksMu sync.Mutex
	locks   map[domain.ConversationID]*sync.Mutex
}

func NewService(
	ctrl *controller.Controller,
	convStore domain.ConversationStore,
	msgStore domain.MessageStore,
	stateStore domain.StateStore,
	historyWindow int,
) *Service {
	return &Service{
		ctrl:          ctrl,
		convStore:     convStore,
		msgStore:      msgStore,
		stateStore:    stateStore,
		now:           time.Now,
		historyWindow: historyWindow,
		locks:         make(map[domain.ConversationID]*sync.Mutex),
	}
}

func (s *Service) lockConversation(id domain.ConversationID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

type StartConversationInput struct {
	UserID domain.UserID
	Title  string
}

type StartConversationOutput struct {
	Conversation *domain.Conversation
}

// StartConversation creates a conversation and its initial session state
// (a fresh coaching cycle at the Contract stage).
func (s *Service) StartConversation(ctx context.Context, in StartConversationInput) (*StartConversationOutput, error) {
	now := s.now()
	log := observability.FromContext(ctx).With(zap.String("user_id", string(in.UserID)))
	log.Info("starting new conversation")

	conv := &domain.Conversation{
		ID:        domain.ConversationID(uuid.NewString()),
		UserID:    in.UserID,
		Title:     in.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.convStore.CreateConversation(ctx, conv); err != nil {
		log.Error("failed to create conversation", zap.Error(err))
		return nil, err
	}

	state := domain.NewSessionState(conv.ID, in.UserID)
	if err := s.stateStore.SaveSessionState(ctx, state); err != nil {
		log.Error("failed to save initial session state", zap.Error(err))
		return nil, err
	}

	log.Info("conversation started", zap.String("conversation_id", string(conv.ID)))
	return &StartConversationOutput{Conversation: conv}, nil
}

type SendMessageInput struct {
	ConversationID domain.ConversationID
	UserID         domain.UserID
	Text           string
}

type SendMessageOutput struct {
	UserMessage  *domain.Message
	AgentMessage *domain.Message
	Intent       domain.IntentResult
	Stage        domain.Stage
	Fallback     bool
}

// SendMessage runs one full turn: persist the user message, drive the
// pipeline, persist the reply, and commit the new session state only when
// the turn succeeded.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	mu := s.lockConversation(in.ConversationID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.convStore.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}

	log := observability.FromContext(ctx).With(
		zap.String("conversation_id", string(conv.ID)),
		zap.String("user_id", string(conv.UserID)))

	state, err := s.stateStore.LoadSessionState(ctx, conv.ID)
	if err != nil {
		log.Warn("no stored session state, starting fresh", zap.Error(err))
		state = domain.NewSessionState(conv.ID, conv.UserID)
	}

	history, err := s.msgStore.ListMessages(ctx, conv.ID, s.historyWindow)
	if err != nil {
		log.Error("failed to load history", zap.Error(err))
		return nil, err
	}

	userMsg := &domain.Message{
		ID:             domain.MessageID(uuid.NewString()),
		ConversationID: conv.ID,
		Author:         domain.RoleUser,
		Text:           in.Text,
		CreatedAt:      s.now(),
	}
	if err := s.msgStore.AppendMessage(ctx, userMsg); err != nil {
		log.Error("failed to append user message", zap.Error(err))
		return nil, err
	}

	result, err := s.ctrl.HandleTurn(ctx, in.Text, state, history)
	if err != nil {
		// Only cancellation reaches here; nothing is persisted for the turn.
		log.Error("turn aborted", zap.Error(err))
		return nil, err
	}

	agentMsg := &domain.Message{
		ID:             domain.MessageID(uuid.NewString()),
		ConversationID: conv.ID,
		Author:         domain.RoleAgent,
		Text:           result.Response,
		CreatedAt:      s.now(),
	}
	if err := s.msgStore.AppendMessage(ctx, agentMsg); err != nil {
		log.Error("failed to append agent message", zap.Error(err))
		return nil, err
	}

	// A degraded turn leaves the session state exactly as it was.
	if !result.Fallback {
		if err := s.stateStore.SaveSessionState(ctx, result.State); err != nil {
			log.Error("failed to save session state", zap.Error(err))
			return nil, err
		}
		if result.Intent.Intent == domain.IntentDocumentUpload {
			if err := s.ctrl.IndexDocument(ctx, conv.UserID, "upload:"+string(userMsg.ID), in.Text); err != nil {
				log.Error("failed to index uploaded document", zap.Error(err))
			}
		}
	}

	conv.UpdatedAt = s.now()
	if err := s.convStore.UpdateConversation(ctx, conv); err != nil {
		log.Error("failed to update conversation", zap.Error(err))
		return nil, err
	}

	log.Info("turn completed",
		zap.String("intent", string(result.Intent.Intent)),
		zap.String("stage", string(result.State.Stage)),
		zap.Bool("fallback", result.Fallback))

	return &SendMessageOutput{
		UserMessage:  userMsg,
		AgentMessage: agentMsg,
		Intent:       result.Intent,
		Stage:        result.State.Stage,
		Fallback:     result.Fallback,
	}, nil
}

// GetTimeline returns a conversation with its recent messages.
func (s *Service) GetTimeline(
	ctx context.Context,
	conversationID domain.ConversationID,
	limit int,
) (*domain.Conversation, []*domain.Message, error) {
	conv, err := s.convStore.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.msgStore.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}
