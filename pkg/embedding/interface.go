// Package embedding defines the narrow ports to the external LLM
// provider: Embedder for vector embeddings, Describer for enriched tool
// descriptions, and Vision for image captions.
package embedding

import (
	"context"
	"errors"
)

// Common provider errors, classified from HTTP status codes by each
// concrete provider.
var (
	ErrEmptyInput     = errors.New("input text is empty")
	ErrRateLimited    = errors.New("rate limited by provider")
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrModelNotFound  = errors.New("model not found")
	ErrContextTooLong = errors.New("input exceeds model context length")
)

// Embedder converts text into fixed-dimensionality vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// Describer turns a tool's description document into a polished,
// bounded-length natural-language description. If unavailable, the
// Indexer falls back to the raw document per the component contract.
type Describer interface {
	Describe(ctx context.Context, document string) (string, error)
}

// Vision produces a short caption for an image, used by ResultProcessor
// when DESCRIBE_IMAGES is enabled.
type Vision interface {
	DescribeImage(ctx context.Context, data []byte, mime string) (string, error)
}
