//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "TELEGRAM_BOT_TOKEN", "REDIS_URL", "JWT_SECRET", "AI_PROVIDER"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AI.Provider != "offline" {
		t.Errorf("provider = %q, want offline", cfg.AI.Provider)
	}
	if cfg.AI.Timeout != 30*time.Second {
		t.Errorf("ai timeout = %v", cfg.AI.Timeout)
	}
	if cfg.Retrieval.Timeout != 5*time.Second {
		t.Errorf("retrieval timeout = %v", cfg.Retrieval.Timeout)
	}
	if cfg.RateLimit.PerMinute != 10 || cfg.RateLimit.PerHour != 50 {
		t.Errorf("rate limits = %d/%d", cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour)
	}
	if cfg.App.Language != "pt-BR" {
		t.Errorf("language = %q", cfg.App.Language)
	}
	if !cfg.Runtime.Dev {
		t.Error("dev flag not propagated")
	}
}

func TestLoadConfig_YAMLAndEnvOverride(t *testing.T) {
	clearEnv(t)
	p := writeConfig(t, `
ai:
  provider: OpenAI
  timeout: 10s
  openai:
    api_key: from-file
    models: [gpt-4o-mini]
rate_limit:
  per_minute: 3
`)
	t.Setenv("OPENAI_API_KEY", "from-env")

	cfg, err := LoadConfig(p, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AI.Provider != "openai" {
		t.Errorf("provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.OpenAI.APIKey != "from-env" {
		t.Errorf("api key = %q, want env override", cfg.AI.OpenAI.APIKey)
	}
	if cfg.AI.Timeout != 10*time.Second {
		t.Errorf("timeout = %v", cfg.AI.Timeout)
	}
	if cfg.AI.DefaultModel != "gpt-4o-mini" {
		t.Errorf("default model = %q", cfg.AI.DefaultModel)
	}
	if cfg.RateLimit.PerMinute != 3 {
		t.Errorf("per_minute = %d", cfg.RateLimit.PerMinute)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	cases := map[string]string{
		"missing key":       "ai:\n  provider: claude\n",
		"unknown":           "ai:\n  provider: llama\n",
		"redis without url": "rate_limit:\n  backend: redis\n",
		"bad backend":       "rate_limit:\n  backend: etcd\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			if _, err := LoadConfig(writeConfig(t, body), false); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
