// Package config loads codeloom configuration from a YAML file with
// environment-variable fallback for provider credentials.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all codeloom configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// StorageConfig configures the record store.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	DatabasePath string `yaml:"database_path"`
}

// LLMConfig configures the provider adapters.
type LLMConfig struct {
	// DefaultModel is the selector used when a chat request does not name
	// a model (e.g. "claude", "gemini").
	DefaultModel string         `yaml:"default_model"`
	Anthropic    ProviderConfig `yaml:"anthropic"`
	Gemini       ProviderConfig `yaml:"gemini"`
}

// ProviderConfig holds one backend's credentials and overrides.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	DebugMode bool `yaml:"debug_mode"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Storage: StorageConfig{
			DataDir:      ".codeloom",
			DatabasePath: ".codeloom/codeloom.db",
		},
		LLM: LLMConfig{
			DefaultModel: "claude",
		},
	}
}

// Load reads the config file at path, layering it over defaults. A missing
// file is not an error: defaults plus environment variables apply.
// API keys absent from the file fall back to ANTHROPIC_API_KEY and
// GEMINI_API_KEY.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.LLM.Anthropic.APIKey == "" {
		cfg.LLM.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.LLM.Gemini.APIKey == "" {
		cfg.LLM.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = cfg.Storage.DataDir + "/codeloom.db"
	}
	if cfg.LLM.DefaultModel == "" {
		cfg.LLM.DefaultModel = "claude"
	}

	return cfg, nil
}
