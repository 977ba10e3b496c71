package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"google.golang.org/genai"

	"github.com/CoReason-AI/codex-engine/internal/logging"
)

// genaiMaxBatchSize is the maximum number of texts allowed in a single
// EmbedContent batch request; the API errors above 100.
const genaiMaxBatchSize = 100

// genaiDims is the output dimensionality requested from gemini-embedding-001.
const genaiDims = 3072

// GenAIEmbedder generates embeddings using Google's Gemini API.
type GenAIEmbedder struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAIEmbedder creates a GenAI-backed Embedder.
func NewGenAIEmbedder(apiKey, model, taskType string) (*GenAIEmbedder, error) {
	log := logging.Get(logging.CategoryEmbedding)

	if apiKey == "" {
		return nil, fmt.Errorf("genai embedder: API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}

	start := time.Now()
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("genai embedder: create client: %w", err)
	}
	log.Info("genai client created", zap.String("model", model), zap.Duration("latency", time.Since(start)))

	return &GenAIEmbedder{client: client, model: model, taskType: taskType}, nil
}

// Embed generates an embedding for a single text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.embedChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("genai embedder: no embeddings returned")
	}
	return out[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunking at
// genaiMaxBatchSize since the API caps batch size there.
func (e *GenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= genaiMaxBatchSize {
		return e.embedChunk(ctx, texts)
	}

	all := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += genaiMaxBatchSize {
		end := start + genaiMaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		chunk, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("genai embedder: batch [%d:%d]: %w", start, end, err)
		}
		all = append(all, chunk...)
	}
	return all, nil
}

func (e *GenAIEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dims := int32(genaiDims)
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embedder: EmbedContent: %w", err)
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Dimensions returns the fixed vector dimension for gemini-embedding-001.
func (e *GenAIEmbedder) Dimensions() int { return genaiDims }

// Name identifies this backend.
func (e *GenAIEmbedder) Name() string { return fmt.Sprintf("genai:%s", e.model) }
