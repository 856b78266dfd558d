package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode

	Port  string
	Debug bool

	GCPProjectID string
	GCPLocation  string
	ModelName    string

	StorageBackend string // "memory" or "sqlite"
	DBPath         string
	VectorPath     string // chromem persistence dir, empty = in-memory
	UseMockLLM     bool   // true = use mock even on GCP

	Pipeline PipelineConfig
}

// PipelineConfig holds the tunables of the turn pipeline.
type PipelineConfig struct {
	// ConfidenceThreshold below which the router falls back to a direct reply.
	ConfidenceThreshold int
	// MaxAttempts per agent invocation (first try included).
	MaxAttempts int
	// ModelTimeout bounds each model/retrieval call.
	ModelTimeout time.Duration
	// RetrievalK results per semantic query.
	RetrievalK int
	// MaxChunks kept in a ContextBundle after ranking.
	MaxChunks int
	// ContextCharBudget caps the total text size of a ContextBundle.
	ContextCharBudget int
	// HistoryWindow is how many recent messages the router sees.
	HistoryWindow int
	// FeedbackMaxRounds bounds the critic rewrite loop.
	FeedbackMaxRounds int
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "TRUE"
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Load reads .env (when present) plus the environment and builds the config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var mode Mode
	switch getEnv("MENTAT_MODE", "local") {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	cfg := &Config{
		Mode: mode,

		Port:  getEnv("MENTAT_PORT", "8080"),
		Debug: getBoolEnv("MENTAT_DEBUG", false),

		GCPProjectID: getEnv("MENTAT_GCP_PROJECT", ""),
		GCPLocation:  getEnv("MENTAT_GCP_LOCATION", "us-central1"),
		ModelName:    getEnv("MENTAT_MODEL_NAME", "gemini-2.5-flash"),

		StorageBackend: getEnv("MENTAT_STORAGE_BACKEND", "memory"),
		DBPath:         getEnv("MENTAT_DB_PATH", "./data/mentat.db"),
		VectorPath:     getEnv("MENTAT_VECTOR_PATH", ""),
		UseMockLLM:     getBoolEnv("MENTAT_USE_MOCK_LLM", mode == ModeLocal),

		Pipeline: PipelineConfig{
			ConfidenceThreshold: getIntEnv("MENTAT_CONFIDENCE_THRESHOLD", 50),
			MaxAttempts:         getIntEnv("MENTAT_MAX_ATTEMPTS", 3),
			ModelTimeout:        time.Duration(getIntEnv("MENTAT_MODEL_TIMEOUT_SECONDS", 60)) * time.Second,
			RetrievalK:          getIntEnv("MENTAT_RETRIEVAL_K", 5),
			MaxChunks:           getIntEnv("MENTAT_MAX_CHUNKS", 8),
			ContextCharBudget:   getIntEnv("MENTAT_CONTEXT_CHAR_BUDGET", 8000),
			HistoryWindow:       getIntEnv("MENTAT_HISTORY_WINDOW", 20),
			FeedbackMaxRounds:   getIntEnv("MENTAT_FEEDBACK_MAX_ROUNDS", 2),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.Mode == ModeGCP && !c.UseMockLLM && c.GCPProjectID == "" {
		return fmt.Errorf("MENTAT_GCP_PROJECT must be set in gcp mode")
	}
	if c.StorageBackend != "memory" && c.StorageBackend != "sqlite" {
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if p := c.Pipeline; p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 100 {
		return fmt.Errorf("confidence threshold must be in [0,100], got %d", p.ConfidenceThreshold)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.Pipeline.MaxChunks < 1 || c.Pipeline.ContextCharBudget < 1 {
		return fmt.Errorf("context limits must be positive")
	}
	return nil
}
