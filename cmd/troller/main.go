package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/igm503/arxiv-troller/internal/config"
	"github.com/igm503/arxiv-troller/internal/search"
	"github.com/igm503/arxiv-troller/internal/server"
	"github.com/igm503/arxiv-troller/internal/store"
	"github.com/igm503/arxiv-troller/internal/store/postgres"
	"github.com/igm503/arxiv-troller/internal/store/qdrantindex"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	skipMigrate := flag.Bool("skip-migrate", false, "Skip running database migrations at startup")
	flag.Parse()

	// Setup logging
	logger := setupLogger()

	logger.Info().
		Str("config", *configPath).
		Msg("Starting troller")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Info().
		Int("port", cfg.Port).
		Str("variant", cfg.Variant.Name).
		Str("index_backend", indexBackend(cfg)).
		Msg("Configuration loaded")

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

	if !*skipMigrate {
		if err := st.Migrate(cfg.Database.DSN); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	// Select the vector index backend
	var index store.VectorIndex = st
	if cfg.Index.Backend == "qdrant" {
		qx, err := qdrantindex.New(cfg.Index.QdrantURL, cfg.Variant, st, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Qdrant")
		}
		defer qx.Shutdown()
		index = qx
	}

	// Create the searcher
	searcher := search.New(st, st, index, search.Config{
		ResultsPerPage: cfg.Search.ResultsPerPage,
		MaxResults:     cfg.Search.MaxResults,
		TagBudget:      cfg.Search.TagBudget.Std(),
		Hints: store.Hints{
			EfSearch:      cfg.Search.EfSearch,
			IterativeScan: cfg.Search.IterativeScan,
			MaxScanTuples: cfg.Search.MaxScanTuples,
		},
	}, logger)

	// Start HTTP server
	srv := server.New(searcher, st, st, index, cfg.Port, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func indexBackend(cfg *config.Config) string {
	if cfg.Index.Backend == "" {
		return "postgres"
	}
	return cfg.Index.Backend
}

// setupLogger configures zerolog
func setupLogger() zerolog.Logger {
	// Pretty console output
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	// Set log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return logger
}
