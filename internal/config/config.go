// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application. It is assembled once
// at process start and threaded through constructors; components never read
// the environment themselves.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Redis (pending-query / working turn log)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DynamoDB (durable conversation + workspace tables)
	AWSRegion          string
	ConversationTable  string
	WorkspaceTable     string
	DynamoDBEndpoint   string // override for local testing, empty in production
	S3Endpoint         string

	// S3 (original files + index snapshots)
	S3Bucket    string
	S3Namespace string

	// Vector index
	IndexDir string

	// Generation
	GenerationMode string // "RAG" or "GPT"
	ContextDir     string
	RetrievalTopK  int

	// NATS (turn-completed events); empty URL disables publishing
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT; empty secret disables auth
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	ChatModel       string
	EmbeddingModel  string
	IntentMethod    string // "single" or "sampled"
	IntentSamples   int
	IntentTimeout   time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// DynamoDB
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		ConversationTable: getEnv("DB_TABLE_NAME", "conversations"),
		WorkspaceTable:    getEnv("WORKSPACE_TABLE_NAME", "workspaces"),
		DynamoDBEndpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),

		// S3
		S3Bucket:    getEnv("AWS_S3_BUCKET", ""),
		S3Namespace: getEnv("S3_NAMESPACE", "default"),

		// Vector index
		IndexDir: getEnv("INDEX_DIR", "./data/index"),

		// Generation
		GenerationMode: getEnv("GENERATION_MODE", "GPT"),
		ContextDir:     getEnv("CONTEXT_DIR", "./data/context"),
		RetrievalTopK:  getIntEnv("RETRIEVAL_TOP_K", 1),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		ChatModel:       getEnv("CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		IntentMethod:    getEnv("INTENT_METHOD", "single"),
		IntentSamples:   getIntEnv("INTENT_SAMPLES", 5),
		IntentTimeout:   getDurationEnv("INTENT_TIMEOUT", 3*time.Second),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
