package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Postgres
	DatabaseURL string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Embedding provider
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Vector index
	ChromaURL        string
	ChromaCollection string

	// Background embedding worker
	EmbedInterval     time.Duration
	EmbedBatchSize    int
	EmbedRatePerSec   float64
	EmbedCallTimeout  time.Duration
	EmbedMaxInputLen  int

	// Upload limits
	MaxUploadBytes int64

	// Chunking defaults
	ChunkMaxTokens     int
	ChunkOverlapTokens int
	ChunkMinTokens     int

	// Ingestion
	AssignDocumentNumbers bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("KBCORE_API_KEY"),

		DatabaseURL: envOr("DATABASE_URL", "postgres://localhost:5432/kbcore?sslmode=disable"),

		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   envOr("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),

		ChromaURL:        envOr("CHROMA_URL", "http://localhost:8000"),
		ChromaCollection: envOr("CHROMA_COLLECTION", "kb_chunks"),

		EmbedInterval:    envDuration("EMBED_INTERVAL", 30*time.Second),
		EmbedBatchSize:   envInt("EMBED_BATCH_SIZE", 32),
		EmbedRatePerSec:  envFloat("EMBED_RATE_PER_SEC", 2),
		EmbedCallTimeout: envDuration("EMBED_CALL_TIMEOUT", 30*time.Second),
		EmbedMaxInputLen: envInt("EMBED_MAX_INPUT_CHARS", 8000),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		ChunkMaxTokens:     envInt("CHUNK_MAX_TOKENS", 500),
		ChunkOverlapTokens: envInt("CHUNK_OVERLAP_TOKENS", 50),
		ChunkMinTokens:     envInt("CHUNK_MIN_TOKENS", 50),

		AssignDocumentNumbers: envBool("ASSIGN_DOCUMENT_NUMBERS", true),
	}

	if cfg.EmbedInterval <= 0 {
		cfg.EmbedInterval = 30 * time.Second
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 32
	}
	if cfg.EmbedRatePerSec <= 0 {
		cfg.EmbedRatePerSec = 2
	}
	if cfg.EmbedCallTimeout <= 0 {
		cfg.EmbedCallTimeout = 30 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.ChunkMaxTokens <= 0 {
		cfg.ChunkMaxTokens = 500
	}
	if cfg.ChunkOverlapTokens < 0 {
		cfg.ChunkOverlapTokens = 50
	}
	if cfg.ChunkMinTokens <= 0 {
		cfg.ChunkMinTokens = 50
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("KBCORE_API_KEY is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
