// Package config holds Codex Engine's process configuration: where the
// pack lives, how queries default, and which embedding backend to wire up.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document, loaded from YAML.
type Config struct {
	// PackDir is the directory holding manifest.json, the relational
	// store file, and the vector store directory.
	PackDir string `yaml:"pack_dir"`

	// DefaultK is the default top-k used by normalize() when the caller
	// does not specify one.
	DefaultK int `yaml:"default_k"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EmbeddingConfig selects and configures the Embedder backend.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai".
	Provider string `yaml:"provider"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	OllamaDims     int    `yaml:"ollama_dims"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
	TaskType    string `yaml:"task_type"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns sensible defaults, mirroring the shape the rest of
// the pack's config loaders use.
func DefaultConfig() *Config {
	return &Config{
		PackDir:  "pack",
		DefaultK: 10,
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			OllamaDims:     768,
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
		},
	}
}

// Load reads and parses a YAML config file, filling unset fields from
// DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
