// Package embedding implements the Embedder port from spec.md §4.3: text
// in, a fixed-dimension float vector out. Two backends are provided,
// adapted from the teacher's embedding engine — a local Ollama server and
// Google's GenAI (Gemini) embedding API — selected by Config.Provider.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CoReason-AI/codex-engine/internal/logging"
)

// Embedder is the capability the Normalizer and Builder depend on. Its own
// process (GPU, local model cache, network client) is entirely opaque to
// the core.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed dimensionality of this embedder's vectors.
	Dimensions() int

	// Name identifies the backend (e.g. "ollama:embeddinggemma").
	Name() string
}

// Config selects and configures an Embedder backend.
type Config struct {
	Provider string // "ollama" or "genai"

	OllamaEndpoint string
	OllamaModel    string
	OllamaDims     int

	GenAIAPIKey string
	GenAIModel  string
	TaskType    string
}

// New builds an Embedder from cfg.
func New(cfg Config) (Embedder, error) {
	log := logging.Get(logging.CategoryEmbedding)
	log.Info("creating embedding engine", zap.String("provider", cfg.Provider))

	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaEndpoint, cfg.OllamaModel, cfg.OllamaDims)
	case "genai":
		return NewGenAIEmbedder(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
}
