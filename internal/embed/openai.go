package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// OpenAIProvider implements Provider using the OpenAI API.
type OpenAIProvider struct {
	client openai.Client
	model  string
	logger zerolog.Logger
}

const (
	OpenAIModelTextEmbedding3Small = "text-embedding-3-small"
	OpenAIModelTextEmbedding3Large = "text-embedding-3-large"

	OpenAIDimensionSmall = 1536
	OpenAIDimensionLarge = 3072
)

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(apiKey, model string, logger zerolog.Logger) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = OpenAIModelTextEmbedding3Small
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	logger.Info().
		Str("model", model).
		Msg("OpenAI embedding provider initialized")

	return &OpenAIProvider{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// CreateEmbedding creates an embedding using the OpenAI API.
func (o *OpenAIProvider) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	// API returns float64, the store wants float32.
	embedding64 := resp.Data[0].Embedding
	embedding32 := make([]float32, len(embedding64))
	for i, v := range embedding64 {
		embedding32[i] = float32(v)
	}
	return embedding32, nil
}

// GetDimensions returns the embedding dimension.
func (o *OpenAIProvider) GetDimensions() int {
	if o.model == OpenAIModelTextEmbedding3Large {
		return OpenAIDimensionLarge
	}
	return OpenAIDimensionSmall
}

// GetModelName returns the model name.
func (o *OpenAIProvider) GetModelName() string {
	return o.model
}
