// Package httpadapter exposes the REST surface: conversations, messages,
// journal and goal reads, and document ingestion.
package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mentatlabs/mentat/internal/app/conversation"
	"github.com/mentatlabs/mentat/internal/app/controller"
	"github.com/mentatlabs/mentat/internal/app/journal"
	"github.com/mentatlabs/mentat/internal/domain"
)

type Server struct {
	conversations *conversation.Service
	journals      *journal.Service
	indexer       *controller.Controller
	log           *zap.Logger
}

func NewServer(
	conversations *conversation.Service,
	journals *journal.Service,
	indexer *controller.Controller,
	log *zap.Logger,
) http.Handler {
	s := &Server{
		conversations: conversations,
		journals:      journals,
		indexer:       indexer,
		log:           log,
	}

	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(withLogging(log))
	r.Use(withCORS)

	r.Get("/healthz", s.handleHealth)

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", s.handleCreateConversation)
		r.Get("/{conversationID}", s.handleGetConversation)
		r.Post("/{conversationID}/messages", s.handleSendMessage)
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/journal", s.handleGetJournal)
		r.Get("/goals", s.handleGetGoals)
		r.Post("/documents", s.handleUploadDocument)
	})

	return r
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createConversationRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title,omitempty"`
}

type conversationResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Author         string    `json:"author"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

type sendMessageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	UserMessage  messageResponse `json:"user_message"`
	AgentMessage messageResponse `json:"agent_message"`
	Intent       string          `json:"intent"`
	Stage        string          `json:"stage"`
	Degraded     bool            `json:"degraded"`
}

type getConversationResponse struct {
	Conversation conversationResponse `json:"conversation"`
	Messages     []messageResponse    `json:"messages"`
}

type uploadDocumentRequest struct {
	SourceID string `json:"source_id"`
	Text     string `json:"text"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	out, err := s.conversations.StartConversation(r.Context(), conversation.StartConversationInput{
		UserID: domain.UserID(req.UserID),
		Title:  req.Title,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]conversationResponse{
		"conversation": toConversationResponse(out.Conversation),
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := domain.ConversationID(chi.URLParam(r, "conversationID"))

	conv, msgs, err := s.conversations.GetTimeline(r.Context(), id, queryLimit(r, 0))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, getConversationResponse{
		Conversation: toConversationResponse(conv),
		Messages:     toMessagesResponse(msgs),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := domain.ConversationID(chi.URLParam(r, "conversationID"))

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}

	out, err := s.conversations.SendMessage(r.Context(), conversation.SendMessageInput{
		ConversationID: id,
		UserID:         domain.UserID(req.UserID),
		Text:           req.Text,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		UserMessage:  toMessageResponse(out.UserMessage),
		AgentMessage: toMessageResponse(out.AgentMessage),
		Intent:       string(out.Intent.Intent),
		Stage:        string(out.Stage),
		Degraded:     out.Fallback,
	})
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(chi.URLParam(r, "userID"))

	entries, err := s.journals.GetUserJournal(r.Context(), userID, queryLimit(r, 0))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleGetGoals(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(chi.URLParam(r, "userID"))

	goals, err := s.journals.GetUserGoals(r.Context(), userID, queryLimit(r, 50))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if goals == nil {
		goals = []*domain.Goal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(chi.URLParam(r, "userID"))

	var req uploadDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}
	if req.SourceID == "" {
		req.SourceID = "document:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	if err := s.indexer.IndexDocument(r.Context(), userID, req.SourceID, req.Text); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"source_id": req.SourceID})
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func toConversationResponse(c *domain.Conversation) conversationResponse {
	return conversationResponse{
		ID:        string(c.ID),
		UserID:    string(c.UserID),
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		Author:         string(m.Author),
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
	}
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}
