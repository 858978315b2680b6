// Package config loads and validates the bot configuration. Configuration
// lives in a JSON file; secret-bearing fields support ${ENV_VAR} expansion
// and an optional KEY=VALUE secrets file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the bot configuration
type Config struct {
	Timezone     string             `json:"timezone,omitempty"`
	SecretsFile  string             `json:"secrets_file,omitempty"`
	Database     DatabaseConfig     `json:"database"`
	Telegram     TelegramConfig     `json:"telegram"`
	AI           AIConfig           `json:"ai"`
	Search       SearchConfig       `json:"search"`
	RateLimiting RateLimitingConfig `json:"rateLimiting"`
	History      HistoryConfig      `json:"history,omitempty"`
	Debug        DebugConfig        `json:"debug,omitempty"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// TelegramConfig contains Telegram channel settings
type TelegramConfig struct {
	BotToken string `json:"bot_token"` // Supports ${ENV_VAR} expansion
	Debug    bool   `json:"debug,omitempty"`
}

// AIConfig contains AI provider settings
type AIConfig struct {
	APIKey         string `json:"api_key"` // Supports ${ENV_VAR} expansion
	TextModel      string `json:"text_model,omitempty"`
	VisionModel    string `json:"vision_model,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // budget per AI call
}

// Timeout returns the per-call AI budget as a duration
func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// SearchConfig contains web search settings
type SearchConfig struct {
	APIKey         string `json:"api_key"` // Supports ${ENV_VAR} expansion
	Endpoint       string `json:"endpoint,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	MaxAttempts    int    `json:"max_attempts,omitempty"`
	Locale         string `json:"locale,omitempty"`
	Language       string `json:"language,omitempty"`
	ResultCount    int    `json:"result_count,omitempty"`
}

// Timeout returns the per-request search budget as a duration
func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RateLimitingConfig contains rate limiting settings
type RateLimitingConfig struct {
	Enabled                bool `json:"enabled"`
	WindowSeconds          int  `json:"windowSeconds"`
	MaxRequests            int  `json:"maxRequests"`
	CleanupIntervalSeconds int  `json:"cleanupIntervalSeconds"`
}

// Window returns the rate limiting window as a duration
func (r RateLimitingConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// CleanupInterval returns the idle-bucket cleanup cadence as a duration
func (r RateLimitingConfig) CleanupInterval() time.Duration {
	return time.Duration(r.CleanupIntervalSeconds) * time.Second
}

// HistoryConfig contains chat history settings
type HistoryConfig struct {
	Limit int `json:"limit,omitempty"` // conversations shown by chat history
}

// DebugConfig contains debugging and logging settings
type DebugConfig struct {
	VerboseLogging bool `json:"verbose_logging,omitempty"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "gembot.db",
		},
		Telegram: TelegramConfig{
			BotToken: "${TELEGRAM_BOT_TOKEN}",
		},
		AI: AIConfig{
			APIKey:         "${GEMINI_API_KEY}",
			TextModel:      "gemini-pro",
			VisionModel:    "gemini-pro-vision",
			TimeoutSeconds: 25,
		},
		Search: SearchConfig{
			APIKey:         "${SERPER_API_KEY}",
			TimeoutSeconds: 10,
			MaxAttempts:    3,
			Locale:         "in",
			Language:       "en",
			ResultCount:    5,
		},
		RateLimiting: RateLimitingConfig{
			Enabled:                true,
			WindowSeconds:          60, // 1 minute window
			MaxRequests:            30, // 30 requests per minute per chat
			CleanupIntervalSeconds: 300,
		},
		History: HistoryConfig{
			Limit: 10,
		},
		Debug: DebugConfig{
			VerboseLogging: false,
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Check if file exists, create default if not
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		fmt.Printf("Created default configuration at %s\n", path)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand tilde in path fields before anything else so that
	// secrets_file can reference ~/... paths.
	cfg.expandTilde()

	// Load secrets file (KEY=VALUE) into the environment before
	// expanding ${ENV_VAR} placeholders in the config.
	if err := cfg.loadSecretsFile(); err != nil {
		return nil, fmt.Errorf("failed to load secrets file: %w", err)
	}

	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandEnvVars expands environment variables in secret-bearing values
func (c *Config) expandEnvVars() {
	c.SecretsFile = os.ExpandEnv(c.SecretsFile)
	c.Telegram.BotToken = os.ExpandEnv(c.Telegram.BotToken)
	c.AI.APIKey = os.ExpandEnv(c.AI.APIKey)
	c.Search.APIKey = os.ExpandEnv(c.Search.APIKey)
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.WindowSeconds <= 0 || c.RateLimiting.MaxRequests <= 0 {
			return fmt.Errorf("invalid rate limiting configuration")
		}
	}

	if c.AI.TimeoutSeconds < 0 || c.Search.TimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	// Validate timezone if set
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
	}

	return nil
}

// expandTilde replaces a leading "~/" with the user's home directory in
// path-valued config fields. Called before env-var expansion so that
// both "~/foo" and "${SOME_PATH}" work.
func (c *Config) expandTilde() {
	home, err := os.UserHomeDir()
	if err != nil {
		return // can't expand, leave as-is
	}
	expand := func(p string) string {
		if p == "~" {
			return home
		}
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}

	c.SecretsFile = expand(c.SecretsFile)
	c.Database.Path = expand(c.Database.Path)
}

// loadSecretsFile reads a KEY=VALUE file into the process environment.
// Existing environment variables are NOT overridden (shell/systemd wins).
// If SecretsFile is empty or the file doesn't exist, this is a no-op.
func (c *Config) loadSecretsFile() error {
	if c.SecretsFile == "" {
		return nil
	}
	if _, err := os.Stat(c.SecretsFile); os.IsNotExist(err) {
		return nil
	}

	if err := godotenv.Load(c.SecretsFile); err != nil {
		return fmt.Errorf("failed to parse secrets file %s: %w", c.SecretsFile, err)
	}

	return nil
}
