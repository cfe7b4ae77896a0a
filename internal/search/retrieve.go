package search

import (
	"context"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
)

// textSearch runs keyword or title retrieval. One extra row past the page
// size is fetched so the assembler can tell whether more results exist.
func (s *Searcher) textSearch(ctx context.Context, p plan, f store.Filter, offset int) ([]store.Neighbor, error) {
	limit := s.cfg.ResultsPerPage + 1

	var (
		hits []*papers.Paper
		err  error
	)
	if p.mode == modeTitle {
		hits, err = s.papers.SearchTitle(ctx, p.query, f, limit, offset)
	} else {
		hits, err = s.papers.SearchText(ctx, p.query, f, limit, offset)
	}
	if err != nil {
		return nil, err
	}

	out := make([]store.Neighbor, len(hits))
	for i, paper := range hits {
		out[i] = store.Neighbor{Paper: paper}
	}
	return out, nil
}

// singleSearch returns the nearest neighbors of one paper's embedding within
// the filtered candidate set. A source without an embedding yields an empty
// result, not an error. The filter already excludes the source itself.
func (s *Searcher) singleSearch(ctx context.Context, sess store.VectorSession, source *papers.Paper, f store.Filter) ([]store.Neighbor, error) {
	vec, ok, err := sess.EmbeddingFor(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Debug().Int64("paper_id", source.ID).Msg("source paper has no embedding")
		return nil, nil
	}
	return sess.Nearest(ctx, vec, f, s.cfg.ResultsPerPage+1)
}
