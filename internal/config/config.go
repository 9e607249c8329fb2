package config

import (
	"os"
	"strconv"
	"time"

	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/resilience"
)

type Config struct {
	APIPort  string
	LogLevel string

	PostgresDSN string

	NATSURL     string
	NATSSubject string

	OllamaURL         string
	OllamaGenModel    string
	OllamaEmbedModel  string
	OllamaIntentModel string

	IndexPath         string
	IndexMetadataPath string
	EmbedDimension    int
	EmbedMaxChars     int

	DownloadDir string

	ChunkSize               int
	ChunkOverlap            int
	RAGTopK                 int
	ComparativeTopK         int
	ComparativePerSource    int
	ComparativeSnippetChars int
	MaxDocsPerSource        int

	SourcesFile        string
	SourceRateLimitRPS float64
	SourceUserAgent    string

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int

	Resilience resilience.Config
}

func Load() Config {
	genModel := mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b")
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "regulatory.retrieval.completed"),

		OllamaURL:         mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:    genModel,
		OllamaEmbedModel:  mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaIntentModel: mustEnv("OLLAMA_INTENT_MODEL", genModel),

		IndexPath:         mustEnv("INDEX_PATH", "./data/index/regulatory_docs.index"),
		IndexMetadataPath: mustEnv("INDEX_METADATA_PATH", "./data/index/metadata.json"),
		EmbedDimension:    mustEnvInt("EMBED_DIMENSION", 0),
		EmbedMaxChars:     mustEnvInt("EMBED_MAX_CHARS", 30000),

		DownloadDir: mustEnv("DOWNLOAD_DIR", "./data/downloads"),

		ChunkSize:               mustEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:            mustEnvInt("CHUNK_OVERLAP", 100),
		RAGTopK:                 mustEnvInt("RAG_TOP_K", 5),
		ComparativeTopK:         mustEnvInt("COMPARATIVE_TOP_K", 10),
		ComparativePerSource:    mustEnvInt("COMPARATIVE_PER_SOURCE", 5),
		ComparativeSnippetChars: mustEnvInt("COMPARATIVE_SNIPPET_CHARS", 1000),
		MaxDocsPerSource:        mustEnvInt("MAX_DOCS_PER_SOURCE", 3),

		SourcesFile:        mustEnv("SOURCES_FILE", ""),
		SourceRateLimitRPS: mustEnvFloat("SOURCE_RATE_LIMIT_RPS", 1),
		SourceUserAgent:    mustEnv("SOURCE_USER_AGENT", "regulatory-assistant/1.0"),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 0),

		Resilience: resilience.Config{
			RetryMaxAttempts:    mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
			RetryInitialBackoff: mustEnvDuration("RETRY_INITIAL_BACKOFF", 100*time.Millisecond),
			RetryMaxBackoff:     mustEnvDuration("RETRY_MAX_BACKOFF", 400*time.Millisecond),
			RetryMultiplier:     mustEnvFloat("RETRY_MULTIPLIER", 2.0),

			CallTimeout: mustEnvDuration("CALL_TIMEOUT", 60*time.Second),

			BreakerEnabled:          mustEnvBool("BREAKER_ENABLED", true),
			BreakerMinRequests:      uint32(mustEnvInt("BREAKER_MIN_REQUESTS", 10)),
			BreakerFailureRatio:     mustEnvFloat("BREAKER_FAILURE_RATIO", 0.5),
			BreakerOpenTimeout:      mustEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
			BreakerHalfOpenMaxCalls: uint32(mustEnvInt("BREAKER_HALF_OPEN_MAX_CALLS", 2)),
		},
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
