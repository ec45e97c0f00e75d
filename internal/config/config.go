// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings. Empty disables persistence: runs live in memory
	// only, which is the default for local development.
	DatabaseURL string

	// Workflow engine settings.
	WorkflowDir         string // Extra workflow definition YAML dir, merged over the embedded set.
	DefaultStageTimeout time.Duration
	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	ApprovalReminder    time.Duration // How long an approval may sit pending before a reminder.

	// Invoker provider settings.
	OpenAIAPIKey string
	OpenAIModel  string
	OllamaURL    string
	OllamaModel  string

	// Telegram approval notification settings.
	TelegramBotToken string
	TelegramChatID   int64

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	RateLimitPerMinute  int
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("CREWFLOW_PORT", 8080),
		ReadTimeout:         envDuration("CREWFLOW_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("CREWFLOW_WRITE_TIMEOUT", 30*time.Second),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		WorkflowDir:         envStr("CREWFLOW_WORKFLOW_DIR", ""),
		DefaultStageTimeout: envDuration("CREWFLOW_STAGE_TIMEOUT", 2*time.Minute),
		RetryMaxAttempts:    envInt("CREWFLOW_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:      envDuration("CREWFLOW_RETRY_BASE_DELAY", 500*time.Millisecond),
		ApprovalReminder:    envDuration("CREWFLOW_APPROVAL_REMINDER", 4*time.Hour),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		OpenAIModel:         envStr("CREWFLOW_OPENAI_MODEL", "gpt-4o-mini"),
		OllamaURL:           envStr("OLLAMA_URL", ""),
		OllamaModel:         envStr("OLLAMA_MODEL", "llama3.1"),
		TelegramBotToken:    envStr("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:      envInt64("TELEGRAM_CHAT_ID", 0),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "crewflow"),
		LogLevel:            envStr("CREWFLOW_LOG_LEVEL", "info"),
		RateLimitPerMinute:  envInt("CREWFLOW_RATE_LIMIT_PER_MINUTE", 120),
		MaxRequestBodyBytes: int64(envInt("CREWFLOW_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: CREWFLOW_PORT must be in 1..65535")
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("config: CREWFLOW_RETRY_MAX_ATTEMPTS must be positive")
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("config: CREWFLOW_RETRY_BASE_DELAY must be positive")
	}
	if c.DefaultStageTimeout <= 0 {
		return fmt.Errorf("config: CREWFLOW_STAGE_TIMEOUT must be positive")
	}
	if c.ApprovalReminder <= 0 {
		return fmt.Errorf("config: CREWFLOW_APPROVAL_REMINDER must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: CREWFLOW_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("config: CREWFLOW_RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("config: TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
