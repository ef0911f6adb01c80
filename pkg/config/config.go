package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	ServerPort string
	LogLevel   string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AnthropicAPIKey string
	AnthropicModel  string
	LLMMaxTokens    int

	// Classification tuning.
	ChunkSize        int
	LLMBatchSize     int
	ChunkMaxAttempts int
	ChunkBackoffBase time.Duration

	// Extraction tuning.
	ExtractionConcurrency int
	PageFetchTimeout      time.Duration
	RenderTimeout         time.Duration
	CandidateSampleCap    int

	// Video segmentation tuning. Short-form content tolerates segments as
	// short as a second.
	MinSegmentLength float64

	// EnrichmentURL is the downstream enrichment endpoint. Empty disables
	// the hand-off.
	EnrichmentURL string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "user"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresDB:       getEnv("POSTGRES_DB", "recipes"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		LLMMaxTokens:    getEnvAsInt("LLM_MAX_TOKENS", 4096),

		ChunkSize:        getEnvAsInt("CHUNK_SIZE", 25),
		LLMBatchSize:     getEnvAsInt("LLM_BATCH_SIZE", 10),
		ChunkMaxAttempts: getEnvAsInt("CHUNK_MAX_ATTEMPTS", 3),
		ChunkBackoffBase: getEnvAsDuration("CHUNK_BACKOFF_BASE_MS", 500) * time.Millisecond,

		ExtractionConcurrency: getEnvAsInt("EXTRACTION_CONCURRENCY", 20),
		PageFetchTimeout:      getEnvAsDuration("PAGE_FETCH_TIMEOUT_SECONDS", 15) * time.Second,
		RenderTimeout:         getEnvAsDuration("RENDER_TIMEOUT_SECONDS", 30) * time.Second,
		CandidateSampleCap:    getEnvAsInt("CANDIDATE_SAMPLE_CAP", 10),

		MinSegmentLength: getEnvAsFloat("MIN_SEGMENT_LENGTH_SECONDS", 1.0),

		EnrichmentURL: getEnv("ENRICHMENT_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback))
}
