package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Database.Path != "gembot.db" {
		t.Errorf("expected default database path gembot.db, got %s", cfg.Database.Path)
	}
	if cfg.RateLimiting.MaxRequests != 30 || cfg.RateLimiting.WindowSeconds != 60 {
		t.Errorf("unexpected default rate limit: %d per %ds",
			cfg.RateLimiting.MaxRequests, cfg.RateLimiting.WindowSeconds)
	}
	if cfg.AI.Timeout() != 25*time.Second {
		t.Errorf("expected 25s AI timeout, got %v", cfg.AI.Timeout())
	}
	if cfg.History.Limit != 10 {
		t.Errorf("expected history limit 10, got %d", cfg.History.Limit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != "gembot.db" {
		t.Errorf("expected default config, got database path %s", cfg.Database.Path)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "123:abc")
	t.Setenv("TEST_GEMINI_KEY", "gem-key")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"database": {"path": "bot.db"},
		"telegram": {"bot_token": "${TEST_BOT_TOKEN}"},
		"ai": {"api_key": "${TEST_GEMINI_KEY}"},
		"search": {"api_key": "literal-key"},
		"rateLimiting": {"enabled": true, "windowSeconds": 60, "maxRequests": 30}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Errorf("expected expanded bot token, got %q", cfg.Telegram.BotToken)
	}
	if cfg.AI.APIKey != "gem-key" {
		t.Errorf("expected expanded AI key, got %q", cfg.AI.APIKey)
	}
	if cfg.Search.APIKey != "literal-key" {
		t.Errorf("literal values must pass through, got %q", cfg.Search.APIKey)
	}
}

func TestLoadSecretsFile(t *testing.T) {
	dir := t.TempDir()

	secretsPath := filepath.Join(dir, "secrets.env")
	secrets := "SECRET_BOT_TOKEN=456:def\n\n# comment line\nSECRET_SERPER_KEY=serp-key\n"
	if err := os.WriteFile(secretsPath, []byte(secrets), 0600); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "config.json")
	content := `{
		"secrets_file": "` + secretsPath + `",
		"database": {"path": "bot.db"},
		"telegram": {"bot_token": "${SECRET_BOT_TOKEN}"},
		"search": {"api_key": "${SECRET_SERPER_KEY}"},
		"rateLimiting": {"enabled": false}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Telegram.BotToken != "456:def" {
		t.Errorf("expected token from secrets file, got %q", cfg.Telegram.BotToken)
	}
	if cfg.Search.APIKey != "serp-key" {
		t.Errorf("expected search key from secrets file, got %q", cfg.Search.APIKey)
	}
}

func TestSecretsFileDoesNotOverrideEnv(t *testing.T) {
	t.Setenv("SHARED_KEY", "from-env")

	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.env")
	if err := os.WriteFile(secretsPath, []byte("SHARED_KEY=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "config.json")
	content := `{
		"secrets_file": "` + secretsPath + `",
		"database": {"path": "bot.db"},
		"ai": {"api_key": "${SHARED_KEY}"},
		"rateLimiting": {"enabled": false}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AI.APIKey != "from-env" {
		t.Errorf("environment must win over secrets file, got %q", cfg.AI.APIKey)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty database path")
	}

	cfg = Default()
	cfg.RateLimiting.MaxRequests = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero max requests with rate limiting enabled")
	}

	cfg = Default()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.MaxRequests = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled rate limiting should not be validated: %v", err)
	}

	cfg = Default()
	cfg.Timezone = "Not/AZone"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid timezone")
	}

	cfg = Default()
	cfg.Timezone = "Asia/Kolkata"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid timezone rejected: %v", err)
	}
}
