// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string // health service; empty disables it
	FrontendURL string

	DB         DBConfig
	Auth       AuthConfig
	Completion CompletionConfig
	Voice      VoiceConfig

	ProfileRetry    RetryConfig
	HistoryLimit    int
	ChatIdleTTL     time.Duration // in-memory chat state is dropped after this
	SweepInterval   time.Duration
	RateLimit       RateLimitConfig
	SSE             SSEConfig
	ConversationLog ConversationLogConfig
}

// DBConfig selects and locates the SQL store.
type DBConfig struct {
	Driver string // "sqlite" or "postgres"
	Path   string // sqlite file
	URL    string // postgres DSN
}

// AuthConfig controls token issuing.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// CompletionConfig selects the hosted completion backend.
type CompletionConfig struct {
	Provider        string // "anthropic", "gemini" or "mock"
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
	MaxTokens       int
}

// VoiceConfig selects the realtime voice vendor.
type VoiceConfig struct {
	Provider            string // "openai" or "elevenlabs"
	OpenAIAPIKey        string
	OpenAIModel         string
	DefaultVoice        string
	ElevenLabsAPIKey    string
	ElevenLabsAgentID   string
	OpeningDelay        time.Duration
	TokenRequestTimeout time.Duration
}

// RetryConfig is a bounded fixed-delay retry budget.
type RetryConfig struct {
	MaxRetries int
	Delay      time.Duration
}

// RateLimitConfig limits chat sends per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// SSEConfig tunes the notification stream.
type SSEConfig struct {
	KeepaliveInterval  time.Duration
	RetryDelay         time.Duration
	MaxRequestBodySize int64
	ReplayBuffer       int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", ""),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DB: DBConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			Path:   getEnv("DB_PATH", "./data/regbuddy.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvDuration("JWT_TTL", 24*time.Hour),
		},
		Completion: CompletionConfig{
			Provider:        strings.ToLower(getEnv("COMPLETION_PROVIDER", "anthropic")),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			MaxTokens:       getEnvInt("COMPLETION_MAX_TOKENS", 300),
		},
		Voice: VoiceConfig{
			Provider:            strings.ToLower(getEnv("VOICE_PROVIDER", "openai")),
			OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:         getEnv("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
			DefaultVoice:        getEnv("OPENAI_VOICE", "coral"),
			ElevenLabsAPIKey:    getEnv("ELEVENLABS_API_KEY", ""),
			ElevenLabsAgentID:   getEnv("ELEVENLABS_AGENT_ID", ""),
			OpeningDelay:        getEnvDuration("VOICE_OPENING_DELAY", 500*time.Millisecond),
			TokenRequestTimeout: getEnvDuration("VOICE_TOKEN_TIMEOUT", 15*time.Second),
		},
		ProfileRetry: RetryConfig{
			MaxRetries: getEnvInt("PROFILE_RETRY_MAX", 3),
			Delay:      getEnvDuration("PROFILE_RETRY_DELAY", time.Second),
		},
		HistoryLimit:  getEnvInt("CHAT_HISTORY_LIMIT", 50),
		ChatIdleTTL:   getEnvDuration("CHAT_IDLE_TTL", 30*time.Minute),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SSE: SSEConfig{
			KeepaliveInterval:  getEnvDuration("SSE_KEEPALIVE_INTERVAL", 10*time.Second),
			RetryDelay:         getEnvDuration("SSE_RETRY_DELAY", 5*time.Second),
			MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
			ReplayBuffer:       getEnvInt("SSE_REPLAY_BUFFER", 100),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// Vendor keys are not required here: a missing key surfaces as a
// credentials error on the feature that needs it.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "postgres":
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.Auth.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET cannot be empty outside development")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	switch c.Completion.Provider {
	case "anthropic", "gemini", "mock":
	default:
		return fmt.Errorf("unsupported COMPLETION_PROVIDER %q", c.Completion.Provider)
	}
	switch c.Voice.Provider {
	case "openai", "elevenlabs":
	default:
		return fmt.Errorf("unsupported VOICE_PROVIDER %q", c.Voice.Provider)
	}
	if c.ProfileRetry.MaxRetries < 0 {
		return fmt.Errorf("PROFILE_RETRY_MAX must be >= 0")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be > 0")
	}
	if c.ChatIdleTTL <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("CHAT_IDLE_TTL and SWEEP_INTERVAL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("rate limit settings must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origin list.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
