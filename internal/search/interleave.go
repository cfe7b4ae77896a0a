package search

import (
	"context"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
)

// tagSearch runs multi-source interleaved similarity retrieval: per-source
// nearest-neighbor queries over a shared filter, merged round-robin and
// deduplicated.
//
// Per-source depth is k = max(1, N/max(1, |sources|)) + 1, sized so the
// interleave is very likely to cover N unique results after dedup. The whole
// fan-out runs under a soft wall-clock budget checked between sources; once
// the budget is exceeded, remaining sources are fetched at full page depth
// and the loop ends as soon as enough unique hits are collected, so the call
// degrades instead of stalling and no remaining source is silently dropped.
//
// Sources without an embedding contribute nothing and are skipped.
func (s *Searcher) tagSearch(ctx context.Context, sess store.VectorSession, members []papers.TaggedPaper, f store.Filter) ([]store.Neighbor, error) {
	if len(members) == 0 {
		return nil, nil
	}

	sources := make([]papers.TaggedPaper, len(members))
	copy(sources, members)
	s.shuffle(sources)

	n := s.cfg.ResultsPerPage
	perSource := max(1, n/max(1, len(sources))) + 1

	var (
		groups     [][]store.Neighbor
		seen       = make(map[int64]struct{})
		unique     int
		overBudget bool
		start      = s.now()
	)

	for _, src := range sources {
		depth := perSource
		if overBudget {
			depth = n
		}

		vec, ok, err := sess.EmbeddingFor(ctx, src.Paper.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		hits, err := sess.Nearest(ctx, vec, f, depth)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			groups = append(groups, hits)
			for _, h := range hits {
				if _, dup := seen[h.Paper.ID]; !dup {
					seen[h.Paper.ID] = struct{}{}
					unique++
				}
			}
		}

		// One row past the page size is enough for the has-more signal.
		if unique > n {
			break
		}
		if !overBudget && s.now().Sub(start) > s.cfg.TagBudget {
			s.logger.Warn().
				Int("sources_fetched", len(groups)).
				Int("unique", unique).
				Dur("budget", s.cfg.TagBudget).
				Msg("tag search over budget, widening remaining fetches")
			overBudget = true
		}
	}

	return interleave(groups), nil
}

// interleave merges per-source result groups round-robin and deduplicates
// preserving first-occurrence order: round r contributes each group's r-th
// hit in source order, and a paper nearest to two sources is credited to
// whichever source's round came first. Dedup runs here, before the
// assembler's page-size truncation, never after.
func interleave(groups [][]store.Neighbor) []store.Neighbor {
	maxLen := 0
	for _, g := range groups {
		if len(g) > maxLen {
			maxLen = len(g)
		}
	}

	var out []store.Neighbor
	seen := make(map[int64]struct{})
	for round := 0; round < maxLen; round++ {
		for _, g := range groups {
			if round >= len(g) {
				continue
			}
			h := g[round]
			if _, dup := seen[h.Paper.ID]; dup {
				continue
			}
			seen[h.Paper.ID] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}
