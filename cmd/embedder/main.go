package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/igm503/arxiv-troller/internal/config"
	"github.com/igm503/arxiv-troller/internal/embed"
	"github.com/igm503/arxiv-troller/internal/store/postgres"
	"github.com/igm503/arxiv-troller/internal/store/qdrantindex"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup logger
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Info().
		Str("variant", cfg.Variant.Name).
		Str("provider", providerName(cfg)).
		Msg("Starting embedder")

	// Create embedding provider
	var provider embed.Provider

	switch providerName(cfg) {
	case "ollama":
		provider, err = embed.NewOllamaProvider(cfg.Embed.OllamaURL, cfg.Variant.Model, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Ollama embedding provider")
		}

	case "openai":
		provider, err = embed.NewOpenAIProvider(cfg.Embed.OpenAIKey, cfg.Variant.Model, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create OpenAI embedding provider")
		}
	}

	logger.Info().
		Str("model", provider.GetModelName()).
		Int("dimensions", provider.GetDimensions()).
		Msg("Embedding provider initialized")

	if dims := provider.GetDimensions(); dims != 0 && dims != cfg.Variant.Dimensions {
		logger.Fatal().
			Int("provider", dims).
			Int("variant", cfg.Variant.Dimensions).
			Msg("Provider dimensions do not match the configured variant")
	}

	ctx := context.Background()

	// Open the store
	st, err := postgres.New(ctx, postgres.Config{
		DSN:            cfg.Database.DSN,
		MaxConnections: cfg.Database.MaxConnections,
	}, cfg.Variant, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer st.Close()

	if err := st.Migrate(cfg.Database.DSN); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Mirror new vectors into Qdrant when it serves the search side
	var mirror embed.Mirror
	if cfg.Index.Backend == "qdrant" {
		qx, err := qdrantindex.New(cfg.Index.QdrantURL, cfg.Variant, st, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Qdrant")
		}
		defer qx.Shutdown()
		mirror = qx
	}

	// Run the batch job
	batcher := embed.NewBatcher(st, provider, mirror, cfg.Variant, embed.BatchConfig{
		BatchSize: cfg.Embed.BatchSize,
		Interval:  cfg.Embed.Interval.Std(),
	}, logger)

	startTime := time.Now()
	total, err := batcher.Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Embedding run failed")
	}

	logger.Info().
		Int("embedded", total).
		Dur("duration", time.Since(startTime)).
		Msg("Embedding run completed successfully")
}

func providerName(cfg *config.Config) string {
	if cfg.Embed.Provider == "" {
		return "ollama"
	}
	return cfg.Embed.Provider
}
