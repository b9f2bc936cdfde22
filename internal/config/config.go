// Package config holds process-wide configuration: YAML file with
// environment-variable overrides, read once at startup and immutable after.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all clinquery configuration.
type Config struct {
	Name string `yaml:"name"`

	LLM        LLMConfig        `yaml:"llm"`
	Database   DatabaseConfig   `yaml:"database"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LLMConfig configures the intent and SQL generation model.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	// Timeout bounds one HTTP call; AppTimeout bounds one pipeline call
	// including retries. Duration strings ("18s").
	Timeout    string `yaml:"timeout"`
	AppTimeout string `yaml:"app_timeout"`

	MaxOutputTokens int `yaml:"max_output_tokens"`

	// Disabled switches the pipeline to the rule-based matcher only.
	Disabled bool `yaml:"disabled"`
}

// DatabaseConfig selects the query runner.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // postgres, sqlite
	URL          string `yaml:"url"`
	SQLitePath   string `yaml:"sqlite_path"`
	DefaultLimit int    `yaml:"default_limit"`
}

// GuardrailsConfig tunes the scope filter.
type GuardrailsConfig struct {
	// ExtraOutOfScope keywords are appended to the built-in list.
	ExtraOutOfScope []string `yaml:"extra_out_of_scope"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "clinquery",

		LLM: LLMConfig{
			Provider:        "gemini",
			Model:           "gemini-2.5-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "18s",
			AppTimeout:      "22s",
			MaxOutputTokens: 256,
		},

		Database: DatabaseConfig{
			Driver:       "postgres",
			DefaultLimit: 200,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets deployment environment variables win over the file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.Driver = "postgres"
		c.Database.URL = url
	}
	if path := os.Getenv("CLINQUERY_DB"); path != "" {
		c.Database.Driver = "sqlite"
		c.Database.SQLitePath = path
	}
}

// LLMTimeout parses LLM.Timeout with an 18s fallback.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 18*time.Second)
}

// AppTimeout parses LLM.AppTimeout with a 22s fallback.
func (c *Config) AppTimeout() time.Duration {
	return parseDuration(c.LLM.AppTimeout, 22*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
