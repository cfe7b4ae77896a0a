// Package search implements the retrieval and ranking core: query
// classification, filter resolution, keyword/title retrieval, single- and
// multi-source similarity retrieval, and result assembly.
package search

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
)

// Defaults for the paging constants and the multi-source latency budget.
const (
	DefaultResultsPerPage = 20
	DefaultMaxResults     = 400
	DefaultTagBudget      = 2 * time.Second
)

// Config carries the retrieval constants and the per-request index hints.
type Config struct {
	ResultsPerPage int
	MaxResults     int

	// TagBudget is the soft wall-clock budget for one multi-source
	// retrieval, checked at source-iteration boundaries.
	TagBudget time.Duration

	// Hints are the approximate-search recall knobs issued once per
	// request before the first index query.
	Hints store.Hints
}

func (c Config) withDefaults() Config {
	if c.ResultsPerPage <= 0 {
		c.ResultsPerPage = DefaultResultsPerPage
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.TagBudget <= 0 {
		c.TagBudget = DefaultTagBudget
	}
	return c
}

// Request is one search call. UserID zero means anonymous.
type Request struct {
	UserID int64

	// Query is the raw query string; it may embed a tag:/paper:/title:
	// prefix.
	Query string

	DateFilter string
	Category   string

	// SinglePaper and SearchAll are the explicit strategy overrides. When
	// present they win over prefixes parsed from Query.
	SinglePaper string
	SearchAll   bool

	// ScopeTagID is the drawer tag. Its members are excluded from results
	// when ExcludeScopeMembers is set, and it is the source set for an
	// explicit SearchAll.
	ScopeTagID          int64
	ExcludeScopeMembers bool

	// Continuation state: ExcludeIDs for similarity modes, Offset for
	// keyword/title.
	ExcludeIDs []int64
	Offset     int
}

// Result is one annotated hit.
type Result struct {
	Paper             *papers.Paper
	Tags              []string
	Similarity        float64 // 1/(1+distance); zero for keyword/title hits
	ProcessedTitle    string
	ProcessedAbstract string
}

// Page is the uniform result envelope.
type Page struct {
	Mode    string
	Results []Result

	// Err is set when the classifier rejected the query; Results is then
	// empty and no retrieval was executed.
	Err *QueryError

	HasMore bool

	// NextExcludeIDs continues a similarity search; NextOffset continues
	// keyword/title.
	NextExcludeIDs []int64
	NextOffset     int

	// SourcePaper/SourceTag identify what a similarity search ran against.
	SourcePaper *papers.Paper
	SourceTag   *papers.Tag

	// Categories is the sorted union of category codes on this page,
	// used to populate the category filter control.
	Categories []string
}

// Searcher executes search requests. Stateless per request; safe for
// concurrent use.
type Searcher struct {
	papers store.PaperStore
	tags   store.TagStore
	index  store.VectorIndex
	cfg    Config
	logger zerolog.Logger

	// now and shuffle are injection points for deterministic tests.
	now     func() time.Time
	shuffle func([]papers.TaggedPaper)
}

// New creates a Searcher over the given stores.
func New(ps store.PaperStore, ts store.TagStore, idx store.VectorIndex, cfg Config, logger zerolog.Logger) *Searcher {
	return &Searcher{
		papers: ps,
		tags:   ts,
		index:  idx,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
		shuffle: func(members []papers.TaggedPaper) {
			rand.Shuffle(len(members), func(i, j int) {
				members[i], members[j] = members[j], members[i]
			})
		},
	}
}

// Search classifies the request, runs the selected retrieval strategy under
// the shared candidate filter, and assembles the result page. User-input
// errors are reported on the page; the error return carries store faults
// only.
func (s *Searcher) Search(ctx context.Context, req Request) (*Page, error) {
	p, qerr, err := s.classify(ctx, req)
	if err != nil {
		return nil, err
	}
	if qerr != nil {
		s.logger.Debug().Str("kind", string(qerr.Kind)).Str("query", req.Query).Msg("query rejected")
		return &Page{Err: qerr}, nil
	}

	switch p.mode {
	case modeNone:
		return &Page{Mode: p.mode.String()}, nil

	case modeKeyword, modeTitle:
		f, err := s.resolveFilter(ctx, req, "all", nil)
		if err != nil {
			return nil, err
		}
		hits, err := s.textSearch(ctx, p, f, req.Offset)
		if err != nil {
			return nil, err
		}
		return s.assemble(ctx, req, p, hits, false)

	case modeSingle:
		f, err := s.resolveFilter(ctx, req, "1week", []int64{p.paper.ID})
		if err != nil {
			return nil, err
		}
		sess, err := s.index.Session(ctx, s.cfg.Hints)
		if err != nil {
			return nil, err
		}
		defer sess.Close()
		hits, err := s.singleSearch(ctx, sess, p.paper, f)
		if err != nil {
			return nil, err
		}
		return s.assemble(ctx, req, p, hits, true)

	case modeTag:
		members, err := s.tags.TagMembers(ctx, p.tag.ID, store.SortAdded)
		if err != nil {
			return nil, err
		}
		sourceIDs := make([]int64, len(members))
		for i, m := range members {
			sourceIDs[i] = m.Paper.ID
		}
		f, err := s.resolveFilter(ctx, req, "1week", sourceIDs)
		if err != nil {
			return nil, err
		}
		sess, err := s.index.Session(ctx, s.cfg.Hints)
		if err != nil {
			return nil, err
		}
		defer sess.Close()
		hits, err := s.tagSearch(ctx, sess, members, f)
		if err != nil {
			return nil, err
		}
		return s.assemble(ctx, req, p, hits, true)
	}

	return &Page{Mode: p.mode.String()}, nil
}
