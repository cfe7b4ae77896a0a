package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// OllamaProvider implements Provider using a local Ollama instance, so no
// abstract text leaves the machine.
type OllamaProvider struct {
	client *api.Client
	model  string
	logger zerolog.Logger
}

const (
	DefaultOllamaModel = "bge-m3"

	OllamaNomicDimension = 768  // nomic-embed-text
	OllamaBGEM3Dimension = 1024 // bge-m3
	OllamaMxbaiDimension = 1024 // mxbai-embed-large
)

// NewOllamaProvider creates a new Ollama embedding provider and verifies the
// model is pulled.
func NewOllamaProvider(ollamaURL, model string, logger zerolog.Logger) (*OllamaProvider, error) {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL: %w", err)
	}
	client := api.NewClient(parsedURL, http.DefaultClient)

	provider := &OllamaProvider{
		client: client,
		model:  model,
		logger: logger,
	}
	if err := provider.verifyModel(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to verify ollama model: %w", err)
	}

	logger.Info().
		Str("model", model).
		Str("url", ollamaURL).
		Msg("Ollama embedding provider initialized")
	return provider, nil
}

// CreateEmbedding creates an embedding using Ollama.
func (o *OllamaProvider) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: text,
	})
	if err != nil {
		o.logger.Warn().
			Dur("duration", time.Since(start)).
			Int("text_len", len(text)).
			Err(err).
			Msg("Ollama embedding failed")
		return nil, fmt.Errorf("ollama embedding error: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned from ollama")
	}

	raw := resp.Embeddings[0]
	embedding := make([]float32, len(raw))
	for i, v := range raw {
		embedding[i] = float32(v)
	}

	if duration := time.Since(start); duration > 5*time.Second {
		o.logger.Warn().
			Dur("duration", duration).
			Int("text_len", len(text)).
			Msg("Slow embedding detected")
	}
	return embedding, nil
}

// GetDimensions returns the embedding dimension.
func (o *OllamaProvider) GetDimensions() int {
	switch o.model {
	case "bge-m3", "bge-m3:latest":
		return OllamaBGEM3Dimension
	case "mxbai-embed-large", "mxbai-embed-large:latest":
		return OllamaMxbaiDimension
	case "nomic-embed-text", "nomic-embed-text:latest":
		return OllamaNomicDimension
	default:
		o.logger.Warn().
			Str("model", o.model).
			Int("assumed_dimensions", 1024).
			Msg("Unknown model, assuming 1024 dimensions")
		return 1024
	}
}

// GetModelName returns the model name.
func (o *OllamaProvider) GetModelName() string {
	return o.model
}

func (o *OllamaProvider) verifyModel(ctx context.Context) error {
	listResp, err := o.client.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list ollama models: %w", err)
	}
	for _, model := range listResp.Models {
		if model.Name == o.model || model.Name == o.model+":latest" {
			return nil
		}
	}
	return fmt.Errorf("model %s not found in ollama. Run: ollama pull %s", o.model, o.model)
}
