package search

import (
	"context"
	"time"

	"github.com/igm503/arxiv-troller/internal/store"
)

// dateOffsets maps date-filter tokens to lookback windows from "now".
// Unknown tokens and "all" mean no lower bound.
var dateOffsets = map[string]time.Duration{
	"1day":    1 * 24 * time.Hour,
	"3day":    3 * 24 * time.Hour,
	"1week":   7 * 24 * time.Hour,
	"1month":  30 * 24 * time.Hour,
	"3months": 90 * 24 * time.Hour,
	"6months": 180 * 24 * time.Hour,
	"1year":   365 * 24 * time.Hour,
	"2years":  730 * 24 * time.Hour,
}

// DateCutoff converts a date-filter token into the inclusive lower bound on
// paper creation. The zero time means unbounded.
func DateCutoff(token string, now time.Time) time.Time {
	offset, ok := dateOffsets[token]
	if !ok {
		return time.Time{}
	}
	return now.Add(-offset)
}

// resolveFilter translates the request's raw filter parameters into the
// candidate predicate. Computed once per request; every retrieval call,
// including all per-source queries of a multi-source search, receives the
// same value.
//
// sourceIDs are the similarity-source paper ids, excluded unconditionally.
func (s *Searcher) resolveFilter(ctx context.Context, req Request, defaultDate string, sourceIDs []int64) (store.Filter, error) {
	token := req.DateFilter
	if token == "" {
		token = defaultDate
	}

	f := store.Filter{
		CreatedAfter: DateCutoff(token, s.now()),
		Category:     req.Category,
	}

	exclude := make([]int64, 0, len(req.ExcludeIDs)+len(sourceIDs))
	exclude = append(exclude, req.ExcludeIDs...)
	exclude = append(exclude, sourceIDs...)

	if req.ScopeTagID != 0 && req.ExcludeScopeMembers && req.UserID != 0 {
		members, err := s.tags.TagMembers(ctx, req.ScopeTagID, store.SortAdded)
		if err != nil {
			return store.Filter{}, err
		}
		for _, m := range members {
			exclude = append(exclude, m.Paper.ID)
		}
	}

	f.ExcludeIDs = exclude
	return f, nil
}
