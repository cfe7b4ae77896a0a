package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/igm503/arxiv-troller/internal/papers"
)

// Store is the storage surface the batch job writes through.
type Store interface {
	// MissingEmbeddings lists ids of papers with no vector under the
	// active variant.
	MissingEmbeddings(ctx context.Context, limit int) ([]int64, error)

	// PapersByIDs loads the rows whose text gets embedded.
	PapersByIDs(ctx context.Context, ids []int64) (map[int64]*papers.Paper, error)

	// SaveEmbedding persists one vector. Must be idempotent.
	SaveEmbedding(ctx context.Context, paperID int64, vec papers.Vector) error
}

// Mirror receives a copy of each saved embedding, for keeping an external
// vector index in sync. Optional.
type Mirror interface {
	UpsertEmbedding(ctx context.Context, p *papers.Paper, vec papers.Vector) error
}

// BatchConfig tunes the backfill job.
type BatchConfig struct {
	// BatchSize is how many missing papers are claimed per round.
	BatchSize int

	// Interval is the minimum spacing between provider calls, the rate
	// limit toward the embedding API.
	Interval time.Duration
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}
	return c
}

// Batcher backfills embeddings for papers missing one under the active
// variant. Safe to re-run at any time: the store write is idempotent and
// already-embedded papers never reappear in the missing set.
type Batcher struct {
	store    Store
	provider Provider
	mirror   Mirror
	variant  papers.Variant
	cfg      BatchConfig
	logger   zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewBatcher creates a backfill job. mirror may be nil.
func NewBatcher(st Store, provider Provider, mirror Mirror, variant papers.Variant, cfg BatchConfig, logger zerolog.Logger) *Batcher {
	return &Batcher{
		store:    st,
		provider: provider,
		mirror:   mirror,
		variant:  variant,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		sleep:    sleepCtx,
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

// Run drains the missing set, batch by batch, until nothing is left or the
// context ends. Returns the number of papers embedded.
func (b *Batcher) Run(ctx context.Context) (int, error) {
	total := 0
	for {
		ids, err := b.store.MissingEmbeddings(ctx, b.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("list missing embeddings: %w", err)
		}
		if len(ids) == 0 {
			b.logger.Info().Int("embedded", total).Msg("embedding backfill complete")
			return total, nil
		}

		loaded, err := b.store.PapersByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("load batch: %w", err)
		}

		b.logger.Info().Int("batch", len(ids)).Msg("embedding batch")
		for _, id := range ids {
			p := loaded[id]
			if p == nil {
				continue
			}
			if err := b.embedOne(ctx, p); err != nil {
				return total, err
			}
			total++
			if err := b.sleep(ctx, b.cfg.Interval); err != nil {
				return total, err
			}
		}
	}
}

func (b *Batcher) embedOne(ctx context.Context, p *papers.Paper) error {
	floats, err := b.provider.CreateEmbedding(ctx, embeddingText(p))
	if err != nil {
		return fmt.Errorf("embed paper %s: %w", p.ArxivID, err)
	}

	vec := papers.Vector{Floats: floats}
	if b.variant.Kind == papers.VariantBit {
		vec = papers.Vector{Bits: papers.PackBits(floats)}
	}

	if err := b.store.SaveEmbedding(ctx, p.ID, vec); err != nil {
		return fmt.Errorf("save embedding for %s: %w", p.ArxivID, err)
	}
	if b.mirror != nil {
		if err := b.mirror.UpsertEmbedding(ctx, p, vec); err != nil {
			return fmt.Errorf("mirror embedding for %s: %w", p.ArxivID, err)
		}
	}
	return nil
}

// embeddingText is the provider input: title and abstract separated by a
// blank line.
func embeddingText(p *papers.Paper) string {
	return p.Title + "\n\n" + p.Abstract
}
