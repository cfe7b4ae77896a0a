package search

import (
	"context"
	"sort"

	"github.com/igm503/arxiv-troller/internal/latex"
	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
)

// assemble merges raw retrieval output with the requesting user's tag
// annotations, normalizes markup, truncates to the page size, and computes
// the continuation state. Raw input arrives already deduplicated; one row
// beyond the page size signals more results.
func (s *Searcher) assemble(ctx context.Context, req Request, p plan, raw []store.Neighbor, similarity bool) (*Page, error) {
	n := s.cfg.ResultsPerPage
	moreRaw := len(raw) > n
	if moreRaw {
		raw = raw[:n]
	}

	// Cumulative results already shown this query session.
	shown := len(req.ExcludeIDs)
	if !similarity {
		shown = req.Offset
	}
	hasMore := moreRaw && shown+n < s.cfg.MaxResults

	var tagNames map[int64][]string
	if req.UserID != 0 && len(raw) > 0 {
		ids := make([]int64, len(raw))
		for i, h := range raw {
			ids[i] = h.Paper.ID
		}
		var err error
		tagNames, err = s.tags.TagsForPapers(ctx, req.UserID, ids)
		if err != nil {
			return nil, err
		}
	}

	results := make([]Result, len(raw))
	categories := make(map[string]struct{})
	for i, h := range raw {
		r := Result{
			Paper:             h.Paper,
			Tags:              tagNames[h.Paper.ID],
			ProcessedTitle:    latex.Process(h.Paper.Title),
			ProcessedAbstract: latex.Process(h.Paper.Abstract),
		}
		if similarity {
			r.Similarity = papers.Similarity(h.Distance)
		}
		results[i] = r
		for _, c := range h.Paper.Categories {
			categories[c] = struct{}{}
		}
	}

	page := &Page{
		Mode:        p.mode.String(),
		Results:     results,
		HasMore:     hasMore,
		SourcePaper: p.paper,
		SourceTag:   p.tag,
		Categories:  sortedKeys(categories),
	}

	// Similarity retrieval is not stable-offset-safe across concurrent
	// writes, so its continuation is the accumulated exclusion set;
	// keyword/title use a plain offset.
	if similarity {
		next := make([]int64, 0, len(req.ExcludeIDs)+len(results))
		next = append(next, req.ExcludeIDs...)
		for _, r := range results {
			next = append(next, r.Paper.ID)
		}
		page.NextExcludeIDs = next
	} else {
		page.NextOffset = req.Offset + len(results)
	}

	return page, nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
