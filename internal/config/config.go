package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config contains all runtime settings for the chat service.
type Config struct {
	BindAddr         string        `env:"APP_BIND_ADDR" envDefault:":8080"`
	MetricsNamespace string        `env:"APP_METRICS_NAMESPACE" envDefault:"ragchat"`
	ShutdownTimeout  time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	AllowAnyOrigin   bool          `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	ChatHistoryTTL      time.Duration `env:"CACHE_CHAT_HISTORY_TTL" envDefault:"1h"`
	KnowledgeTTL        time.Duration `env:"CACHE_KNOWLEDGE_TTL" envDefault:"24h"`
	CacheMaxKeyLength   int           `env:"CACHE_MAX_KEY_LENGTH" envDefault:"512"`
	CacheHealthInterval time.Duration `env:"CACHE_HEALTH_INTERVAL" envDefault:"5s"`

	OpenAIAPIKey         string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL        string `env:"OPENAI_BASE_URL"`
	OpenAIModel          string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIEmbeddingModel string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	CompanyName          string `env:"COMPANY_NAME" envDefault:"our company"`

	KnowledgeTopK    int    `env:"KNOWLEDGE_TOP_K" envDefault:"3"`
	EmbeddingDim     int    `env:"KNOWLEDGE_EMBEDDING_DIM" envDefault:"1536"`
	QdrantURL        string `env:"QDRANT_URL"`
	QdrantAPIKey     string `env:"QDRANT_API_KEY"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"knowledge"`

	GuardMaxMessageLength   int  `env:"GUARD_MAX_MESSAGE_LENGTH" envDefault:"500"`
	GuardMaxSessionMessages int  `env:"GUARD_MAX_SESSION_MESSAGES" envDefault:"50"`
	GuardRateLimitPerMinute int  `env:"GUARD_RATE_LIMIT_PER_MINUTE" envDefault:"20"`
	GuardModerationEnabled  bool `env:"GUARD_MODERATION_ENABLED" envDefault:"true"`
}

// Load reads environment variables, applies defaults and validates.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if strings.TrimSpace(cfg.RedisURL) == "" {
		return Config{}, fmt.Errorf("REDIS_URL is required")
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.ChatHistoryTTL <= 0 {
		return Config{}, fmt.Errorf("CACHE_CHAT_HISTORY_TTL must be positive")
	}
	if cfg.KnowledgeTTL <= 0 {
		return Config{}, fmt.Errorf("CACHE_KNOWLEDGE_TTL must be positive")
	}
	if cfg.CacheMaxKeyLength <= 0 {
		return Config{}, fmt.Errorf("CACHE_MAX_KEY_LENGTH must be positive")
	}
	if cfg.KnowledgeTopK <= 0 {
		return Config{}, fmt.Errorf("KNOWLEDGE_TOP_K must be positive")
	}
	if cfg.GuardRateLimitPerMinute <= 0 {
		return Config{}, fmt.Errorf("GUARD_RATE_LIMIT_PER_MINUTE must be positive")
	}

	return cfg, nil
}
