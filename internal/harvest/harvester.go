package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/igm503/arxiv-troller/internal/papers"
)

// PaperWriter is the storage surface the harvester writes through. The write
// must be idempotent on arxiv_id.
type PaperWriter interface {
	UpsertPaper(ctx context.Context, p *papers.Paper) error
}

// Config tunes one harvest run.
type Config struct {
	// Categories are the arXiv category codes to pull.
	Categories []string

	// PageSize is entries per API request.
	PageSize int

	// MaxPerCategory caps how deep the run pages into each category.
	MaxPerCategory int

	// Interval spaces the API requests. arXiv asks for 3s between calls.
	Interval time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxPerCategory <= 0 {
		c.MaxPerCategory = 1000
	}
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	return c
}

// Harvester pages through configured categories and upserts every record.
// Re-running over the same window refreshes metadata without duplicating
// rows.
type Harvester struct {
	client *Client
	writer PaperWriter
	cfg    Config
	logger zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a harvester.
func New(client *Client, writer PaperWriter, cfg Config, logger zerolog.Logger) *Harvester {
	return &Harvester{
		client: client,
		writer: writer,
		cfg:    cfg.withDefaults(),
		logger: logger,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run harvests every configured category and returns the number of records
// written.
func (h *Harvester) Run(ctx context.Context) (int, error) {
	total := 0
	for _, category := range h.cfg.Categories {
		n, err := h.harvestCategory(ctx, category)
		total += n
		if err != nil {
			return total, fmt.Errorf("harvest %s: %w", category, err)
		}
	}
	h.logger.Info().Int("papers", total).Msg("harvest complete")
	return total, nil
}

func (h *Harvester) harvestCategory(ctx context.Context, category string) (int, error) {
	written := 0
	for start := 0; start < h.cfg.MaxPerCategory; start += h.cfg.PageSize {
		page, err := h.client.ListCategory(ctx, category, start, h.cfg.PageSize)
		if err != nil {
			return written, err
		}
		if len(page) == 0 {
			break
		}

		for _, p := range page {
			if err := h.writer.UpsertPaper(ctx, p); err != nil {
				return written, err
			}
			written++
		}

		h.logger.Debug().
			Str("category", category).
			Int("start", start).
			Int("page", len(page)).
			Msg("harvested page")

		if len(page) < h.cfg.PageSize {
			break
		}
		if err := h.sleep(ctx, h.cfg.Interval); err != nil {
			return written, err
		}
	}
	return written, nil
}
