package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type AppConfig struct {
	Language string `yaml:"language"` // pt-BR | en
	Version  string `yaml:"version"`
	Commit   string `yaml:"commit"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// honour X-Forwarded-For / X-Real-IP; only behind a trusted proxy
	TrustProxy bool `yaml:"trust_proxy"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	AdminKey  string        `yaml:"admin_key"`
}

type ProviderConfig struct {
	APIKey  string   `yaml:"api_key"`
	BaseURL string   `yaml:"base_url"`
	Models  []string `yaml:"models"`
}

type AIConfig struct {
	Provider        string         `yaml:"provider"` // openai | claude | gemini | offline
	DefaultModel    string         `yaml:"default_model"`
	Timeout         time.Duration  `yaml:"timeout"`
	ConcurrentLimit int            `yaml:"concurrent_limit"` // max concurrent AI calls
	MaxRetries      int            `yaml:"max_retries"`
	RetryBackoff    time.Duration  `yaml:"retry_backoff"`
	OpenAI          ProviderConfig `yaml:"openai"`
	Claude          ProviderConfig `yaml:"claude"`
	Gemini          ProviderConfig `yaml:"gemini"`
}

type RetrievalConfig struct {
	IndexPath      string        `yaml:"index_path"` // sqlite file; empty disables retrieval
	TopK           int           `yaml:"top_k"`
	Timeout        time.Duration `yaml:"timeout"`
	EmbeddingModel string        `yaml:"embedding_model"`
	ChunkSize      int           `yaml:"chunk_size"`
	BatchSize      int           `yaml:"batch_size"`
}

type RateLimitConfig struct {
	Backend   string `yaml:"backend"` // memory | redis
	PerMinute int    `yaml:"per_minute"`
	PerHour   int    `yaml:"per_hour"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BotConfig struct {
	Token   string `yaml:"token"`
	Workers int    `yaml:"workers"` // update handlers
	Queue   int    `yaml:"queue"`
}

type SessionsConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Config struct {
	App       AppConfig       `yaml:"app"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	AI        AIConfig        `yaml:"ai"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	Bot       BotConfig       `yaml:"bot"`
	Sessions  SessionsConfig  `yaml:"sessions"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads .env (if any), the YAML file at path, applies environment
// overrides and defaults, then validates. A missing config file is allowed;
// the app then runs on defaults and environment only.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.AI.OpenAI.APIKey, "OPENAI_API_KEY")
	setFromEnv(&cfg.AI.Claude.APIKey, "ANTHROPIC_API_KEY")
	setFromEnv(&cfg.AI.Gemini.APIKey, "GEMINI_API_KEY")
	setFromEnv(&cfg.Bot.Token, "TELEGRAM_BOT_TOKEN")
	setFromEnv(&cfg.Redis.URL, "REDIS_URL")
	setFromEnv(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setFromEnv(&cfg.AI.Provider, "AI_PROVIDER")
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Language == "" {
		cfg.App.Language = "pt-BR"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "dev"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 60 * time.Second
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "offline"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30 * time.Second
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.MaxRetries < 0 {
		cfg.AI.MaxRetries = 0
	}
	if cfg.AI.RetryBackoff <= 0 {
		cfg.AI.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.AI.OpenAI.BaseURL == "" {
		cfg.AI.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if len(cfg.AI.OpenAI.Models) == 0 {
		cfg.AI.OpenAI.Models = []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"}
	}
	if cfg.AI.Claude.BaseURL == "" {
		cfg.AI.Claude.BaseURL = "https://api.anthropic.com/v1"
	}
	if len(cfg.AI.Claude.Models) == 0 {
		cfg.AI.Claude.Models = []string{"claude-3-5-haiku-latest", "claude-3-5-sonnet-latest"}
	}
	if len(cfg.AI.Gemini.Models) == 0 {
		cfg.AI.Gemini.Models = []string{"gemini-2.0-flash"}
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = cfg.defaultModelFor(cfg.AI.Provider)
	}

	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.Timeout <= 0 {
		cfg.Retrieval.Timeout = 5 * time.Second
	}
	if cfg.Retrieval.EmbeddingModel == "" {
		cfg.Retrieval.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Retrieval.ChunkSize <= 0 {
		cfg.Retrieval.ChunkSize = 1000
	}
	if cfg.Retrieval.BatchSize <= 0 {
		cfg.Retrieval.BatchSize = 64
	}

	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.PerMinute <= 0 {
		cfg.RateLimit.PerMinute = 10
	}
	if cfg.RateLimit.PerHour <= 0 {
		cfg.RateLimit.PerHour = 50
	}

	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Queue <= 0 {
		cfg.Bot.Queue = 256
	}
	if cfg.Sessions.IdleTTL <= 0 {
		cfg.Sessions.IdleTTL = 2 * time.Hour
	}
	if cfg.Sessions.SweepInterval <= 0 {
		cfg.Sessions.SweepInterval = 10 * time.Minute
	}
}

func (c *Config) defaultModelFor(provider string) string {
	switch provider {
	case "openai":
		return c.AI.OpenAI.Models[0]
	case "claude":
		return c.AI.Claude.Models[0]
	case "gemini":
		return c.AI.Gemini.Models[0]
	default:
		return "tcross-offline"
	}
}

// Validate performs the minimal checks needed to start.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAI.APIKey == "" {
			return errors.New("ai.openai.api_key (or OPENAI_API_KEY) is required for provider openai")
		}
	case "claude":
		if c.AI.Claude.APIKey == "" {
			return errors.New("ai.claude.api_key (or ANTHROPIC_API_KEY) is required for provider claude")
		}
	case "gemini":
		if c.AI.Gemini.APIKey == "" {
			return errors.New("ai.gemini.api_key (or GEMINI_API_KEY) is required for provider gemini")
		}
	case "offline":
	default:
		return fmt.Errorf("ai.provider %q is not one of openai, claude, gemini, offline", c.AI.Provider)
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url (or REDIS_URL) is required when rate_limit.backend is redis")
		}
	default:
		return fmt.Errorf("rate_limit.backend %q is not one of memory, redis", c.RateLimit.Backend)
	}
	if c.Retrieval.IndexPath != "" && c.AI.OpenAI.APIKey == "" {
		return errors.New("retrieval.index_path needs an OpenAI key for query embeddings")
	}
	return nil
}
