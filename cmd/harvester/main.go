package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/igm503/arxiv-troller/internal/config"
	"github.com/igm503/arxiv-troller/internal/harvest"
	"github.com/igm503/arxiv-troller/internal/store/postgres"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	categories := flag.String("categories", "", "Comma-separated category codes (overrides config)")
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

	cats := cfg.Harvest.Categories
	if *categories != "" {
		cats = strings.Split(*categories, ",")
	}
	if len(cats) == 0 {
		logger.Fatal().Msg("No categories configured (harvest.categories or --categories)")
	}

	logger.Info().
		Strs("categories", cats).
		Int("page_size", cfg.Harvest.PageSize).
		Int("max_per_category", cfg.Harvest.MaxPerCategory).
		Msg("Starting harvest")

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

	// Run the harvest
	client := harvest.NewClient(cfg.Harvest.UserAgent)
	harvester := harvest.New(client, st, harvest.Config{
		Categories:     cats,
		PageSize:       cfg.Harvest.PageSize,
		MaxPerCategory: cfg.Harvest.MaxPerCategory,
		Interval:       cfg.Harvest.Interval.Std(),
	}, logger)

	startTime := time.Now()
	total, err := harvester.Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Harvest failed")
	}

	logger.Info().
		Int("papers", total).
		Dur("duration", time.Since(startTime)).
		Msg("Harvest completed successfully")
}
