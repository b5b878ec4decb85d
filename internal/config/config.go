package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config contains all runtime settings for the chat service.
type Config struct {
	BindAddr         string        `env:"APP_BIND_ADDR" envDefault:":8080"`
	ShutdownTimeout  time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsNamespace string        `env:"APP_METRICS_NAMESPACE" envDefault:"summitchat"`
	ServiceName      string        `env:"APP_SERVICE_NAME" envDefault:"summitchat"`
	Environment      string        `env:"APP_ENVIRONMENT" envDefault:"development"`

	AllowAnyOrigin bool `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	LLMProvider   string `env:"LLM_PROVIDER" envDefault:"auto"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	ChatModel             string        `env:"CHAT_MODEL" envDefault:"gpt-3.5-turbo"`
	ChatTemperature       float32       `env:"CHAT_TEMPERATURE" envDefault:"0.7"`
	ChatStreamTimeout     time.Duration `env:"CHAT_STREAM_TIMEOUT" envDefault:"2m"`
	ChatDrainOnDisconnect bool          `env:"CHAT_DRAIN_ON_DISCONNECT" envDefault:"true"`
	ChatAllowPreviewToken bool          `env:"CHAT_ALLOW_PREVIEW_TOKEN" envDefault:"true"`

	AuthMode        string `env:"AUTH_MODE" envDefault:"jwt"`
	AuthJWTSecret   string `env:"AUTH_JWT_SECRET"`
	AuthJWTIssuer   string `env:"AUTH_JWT_ISSUER"`
	AuthJWTAudience string `env:"AUTH_JWT_AUDIENCE"`
	AuthCookieName  string `env:"AUTH_COOKIE_NAME" envDefault:"session_token"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	TranscriptWriteTimeout time.Duration `env:"TRANSCRIPT_WRITE_TIMEOUT" envDefault:"10s"`
	TranscriptRedactPII    bool          `env:"TRANSCRIPT_REDACT_PII" envDefault:"false"`
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = strings.TrimSpace(cfg.OpenAIBaseURL)
	cfg.AuthJWTSecret = strings.TrimSpace(cfg.AuthJWTSecret)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LLMProvider {
	case "auto", "mock":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("invalid LLM_PROVIDER: %q (expected auto|openai|mock)", c.LLMProvider)
	}

	switch c.AuthMode {
	case "none":
	case "jwt":
		if c.AuthJWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("invalid AUTH_MODE: %q (expected jwt|none)", c.AuthMode)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %q (expected console|json)", c.LogFormat)
	}

	if strings.TrimSpace(c.ChatModel) == "" {
		return fmt.Errorf("CHAT_MODEL must not be empty")
	}
	if c.ChatTemperature < 0 || c.ChatTemperature > 2 {
		return fmt.Errorf("CHAT_TEMPERATURE must be within [0, 2]")
	}
	if c.ChatStreamTimeout <= 0 {
		return fmt.Errorf("CHAT_STREAM_TIMEOUT must be positive")
	}
	if c.TranscriptWriteTimeout <= 0 {
		return fmt.Errorf("TRANSCRIPT_WRITE_TIMEOUT must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// StoreMode reports which transcript backend the configuration selects.
func (c Config) StoreMode() string {
	switch {
	case c.RedisURL != "":
		return "redis"
	case c.DatabaseURL != "":
		return "postgres"
	default:
		return "in-memory"
	}
}
