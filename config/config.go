// Package config loads the server configuration from an optional YAML file, a .env
// file and PROMPTFLOW_* environment variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/meikuraledutech/promptflow"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Generator backends.
const (
	GeneratorEcho   = "echo"
	GeneratorOpenAI = "openai"
)

// Config holds everything the server needs to run.
type Config struct {
	Listen      string          `yaml:"listen"`
	Store       string          `yaml:"store"`
	DatabaseURL string          `yaml:"database_url"`
	Log         LogConfig       `yaml:"log"`
	Delegate    DelegateConfig  `yaml:"delegate"`
	Generator   GeneratorConfig `yaml:"generator"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DelegateConfig tunes local-mode runs.
type DelegateConfig struct {
	URL          string        `yaml:"url"`
	SystemPrompt string        `yaml:"system_prompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// GeneratorConfig selects the in-process generator used by remote-mode runs.
type GeneratorConfig struct {
	Kind    string        `yaml:"kind"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Listen: ":3000",
		Store:  StorePostgres,
		Log:    LogConfig{Level: "info", Format: "text"},
		Delegate: DelegateConfig{
			URL:          promptflow.DefaultDelegateURL,
			SystemPrompt: promptflow.DefaultSystemPrompt,
			Timeout:      promptflow.DefaultDelegateTimeout,
		},
		Generator: GeneratorConfig{
			Kind:    GeneratorEcho,
			Timeout: 60 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if any), then
// envFile (if it exists), then the process environment. The result is validated.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("PROMPTFLOW_LISTEN", &c.Listen)
	str("PROMPTFLOW_STORE", &c.Store)
	str("DATABASE_URL", &c.DatabaseURL)
	str("PROMPTFLOW_LOG_LEVEL", &c.Log.Level)
	str("PROMPTFLOW_LOG_FORMAT", &c.Log.Format)
	str("PROMPTFLOW_DELEGATE_URL", &c.Delegate.URL)
	str("PROMPTFLOW_DELEGATE_SYSTEM_PROMPT", &c.Delegate.SystemPrompt)
	str("PROMPTFLOW_GENERATOR", &c.Generator.Kind)
	str("PROMPTFLOW_GENERATOR_BASE_URL", &c.Generator.BaseURL)
	str("OPENAI_API_KEY", &c.Generator.APIKey)
	str("PROMPTFLOW_GENERATOR_API_KEY", &c.Generator.APIKey)
	str("PROMPTFLOW_GENERATOR_MODEL", &c.Generator.Model)

	if err := dur("PROMPTFLOW_DELEGATE_TIMEOUT", &c.Delegate.Timeout); err != nil {
		return err
	}
	return dur("PROMPTFLOW_GENERATOR_TIMEOUT", &c.Generator.Timeout)
}

// Validate reports every invalid field in one error.
func (c *Config) Validate() error {
	var problems []string

	if c.Listen == "" {
		problems = append(problems, "listen is required")
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "database_url is required for the postgres store (DATABASE_URL)")
		}
	case StoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown store %q (want postgres or memory)", c.Store))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	if c.Delegate.Timeout <= 0 {
		problems = append(problems, "delegate.timeout must be positive")
	}
	switch c.Generator.Kind {
	case GeneratorEcho, GeneratorOpenAI:
	default:
		problems = append(problems, fmt.Sprintf("unknown generator %q (want echo or openai)", c.Generator.Kind))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
