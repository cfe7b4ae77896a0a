// Package embed turns paper metadata into stored embedding vectors: provider
// clients for the embedding models and the batch job that backfills papers
// missing a vector under the active variant.
package embed

import (
	"context"
)

// Provider is the interface for embedding providers.
// Allows swapping between OpenAI, Ollama, local models, etc.
type Provider interface {
	// CreateEmbedding creates an embedding vector from text
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GetDimensions returns the dimensionality of the embedding vectors
	GetDimensions() int

	// GetModelName returns the name of the embedding model
	GetModelName() string
}
