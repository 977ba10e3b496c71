package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaEmbedder generates embeddings using a local Ollama server. No
// third-party HTTP client library fits this narrow a surface (one JSON
// POST, one JSON response) better than net/http — see DESIGN.md.
type OllamaEmbedder struct {
	endpoint string
	model    string
	dims     int
	client   *http.Client
}

// NewOllamaEmbedder creates an Ollama-backed Embedder. dims must match the
// model's actual output dimensionality (e.g. 768 for embeddinggemma); it
// is not discoverable from the API and must be configured.
func NewOllamaEmbedder(endpoint, model string, dims int) (*OllamaEmbedder, error) {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}
	if dims <= 0 {
		dims = 768
	}

	return &OllamaEmbedder{
		endpoint: endpoint,
		model:    model,
		dims:     dims,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embedder: status %d: %s", resp.StatusCode, string(raw))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w", err)
	}
	if len(out.Embedding) != e.dims {
		return nil, fmt.Errorf("ollama embedder: expected %d dims, got %d", e.dims, len(out.Embedding))
	}
	return out.Embedding, nil
}

// EmbedBatch embeds multiple texts sequentially; Ollama has no native
// batch endpoint for /api/embeddings.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("ollama embedder: text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// Name identifies this backend.
func (e *OllamaEmbedder) Name() string { return fmt.Sprintf("ollama:%s", e.model) }
