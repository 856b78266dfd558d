package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httpadapter "github.com/mentatlabs/mentat/internal/adapters/http"
	"github.com/mentatlabs/mentat/internal/adapters/llm"
	"github.com/mentatlabs/mentat/internal/adapters/retrieval"
	memstore "github.com/mentatlabs/mentat/internal/adapters/storage/memory"
	sqlitestore "github.com/mentatlabs/mentat/internal/adapters/storage/sqlite"
	"github.com/mentatlabs/mentat/internal/app/agent"
	"github.com/mentatlabs/mentat/internal/app/assemble"
	"github.com/mentatlabs/mentat/internal/app/controller"
	"github.com/mentatlabs/mentat/internal/app/conversation"
	"github.com/mentatlabs/mentat/internal/app/journal"
	"github.com/mentatlabs/mentat/internal/app/prompt"
	"github.com/mentatlabs/mentat/internal/app/router"
	"github.com/mentatlabs/mentat/internal/config"
	"github.com/mentatlabs/mentat/internal/domain"
	"github.com/mentatlabs/mentat/internal/observability"
)

const embeddingDims = 256

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := observability.NewLogger(cfg.Debug)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Model transport: the mock keeps local mode fully offline.
	var model domain.ModelClient
	if cfg.UseMockLLM {
		log.Info("using mock model client")
		model = llm.NewMockClient()
	} else {
		log.Info("using Gemini model client",
			zap.String("project", cfg.GCPProjectID),
			zap.String("model", cfg.ModelName))
		model, err = llm.NewGeminiClient(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
		if err != nil {
			log.Fatal("initializing Gemini client", zap.Error(err))
		}
	}

	// Storage: one sqlite store implements every persistence port.
	var (
		stateStore   domain.StateStore
		personaStore domain.PersonaStore
		goalStore    domain.GoalStore
		journalStore domain.JournalStore
		convStore    domain.ConversationStore
		msgStore     domain.MessageStore
	)
	switch cfg.StorageBackend {
	case "sqlite":
		log.Info("using sqlite storage", zap.String("path", cfg.DBPath))
		store, err := sqlitestore.New(cfg.DBPath)
		if err != nil {
			log.Fatal("initializing sqlite store", zap.Error(err))
		}
		defer store.Close()
		stateStore = store
		personaStore = store
		goalStore = store
		journalStore = store
		convStore = store
		msgStore = store
	default:
		log.Info("using in-memory storage")
		stateStore = memstore.NewStateStore()
		personaStore = memstore.NewPersonaStore()
		goalStore = memstore.NewGoalStore()
		journalStore = memstore.NewJournalStore()
		convStore = memstore.NewConversationStore()
		msgStore = memstore.NewMessageStore()
	}

	// Vector store for retrieval. The hash embedding keeps local mode and
	// tests deterministic without calling an embedding model.
	embed := retrieval.HashEmbedding(embeddingDims)
	var vectors *retrieval.Store
	if cfg.VectorPath != "" {
		log.Info("using persistent vector store", zap.String("path", cfg.VectorPath))
		vectors, err = retrieval.NewPersistentStore(cfg.VectorPath, embed)
		if err != nil {
			log.Fatal("initializing vector store", zap.Error(err))
		}
	} else {
		log.Info("using in-memory vector store")
		vectors = retrieval.NewMemoryStore(embed)
	}

	prompts, err := prompt.LoadEmbedded()
	if err != nil {
		log.Fatal("loading prompt templates", zap.Error(err))
	}

	invoker := agent.NewInvoker(model, prompts, cfg.Pipeline.ModelTimeout)
	rtr := router.New(invoker, cfg.Pipeline.ConfidenceThreshold, cfg.Pipeline.MaxAttempts, cfg.Pipeline.HistoryWindow)
	assembler := assemble.New(cfg.Pipeline.MaxChunks, cfg.Pipeline.ContextCharBudget)

	ctrl := controller.New(invoker, rtr, assembler, vectors, vectors,
		personaStore, goalStore, journalStore, cfg.Pipeline)

	conversations := conversation.NewService(ctrl, convStore, msgStore, stateStore, cfg.Pipeline.HistoryWindow)
	journals := journal.NewService(journalStore, goalStore)

	handler := httpadapter.NewServer(conversations, journals, ctrl, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}()

	log.Info("mentat api listening", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server stopped")
}
