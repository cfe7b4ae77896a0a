package search

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
)

// mode is the retrieval strategy the classifier selects.
type mode int

const (
	modeNone mode = iota
	modeKeyword
	modeTitle
	modeSingle
	modeTag
)

func (m mode) String() string {
	switch m {
	case modeKeyword:
		return "keyword"
	case modeTitle:
		return "title"
	case modeSingle:
		return "single_paper"
	case modeTag:
		return "tag_all"
	default:
		return "none"
	}
}

// plan is the classifier's resolved strategy for one request.
type plan struct {
	mode  mode
	query string        // keyword or title text
	paper *papers.Paper // single-source similarity source
	tag   *papers.Tag   // multi-source similarity source set
}

// Structured prefixes: exact match with exactly one space after the colon.
const (
	tagPrefix   = "tag: "
	paperPrefix = "paper: "
	titlePrefix = "title: "
)

// classify inspects the request and picks a retrieval strategy. The explicit
// single-paper and search-all parameters take priority over prefixes parsed
// from the query text, so the two ways to request a similarity search cannot
// conflict silently.
//
// A returned *QueryError suppresses search execution; err carries store
// faults only.
func (s *Searcher) classify(ctx context.Context, req Request) (plan, *QueryError, error) {
	if req.SinglePaper != "" {
		return s.classifyPaper(ctx, req.SinglePaper)
	}
	if req.SearchAll && req.ScopeTagID != 0 {
		if req.UserID == 0 {
			return plan{}, loginRequired(), nil
		}
		tag, err := s.tags.TagByID(ctx, req.UserID, req.ScopeTagID)
		if errors.Is(err, store.ErrNotFound) {
			return plan{}, tagNotFound(strconv.FormatInt(req.ScopeTagID, 10)), nil
		}
		if err != nil {
			return plan{}, nil, err
		}
		return plan{mode: modeTag, tag: tag}, nil, nil
	}

	raw := strings.TrimSpace(req.Query)
	switch {
	case raw == "":
		return plan{mode: modeNone}, nil, nil

	case strings.HasPrefix(raw, tagPrefix):
		name := raw[len(tagPrefix):]
		if req.UserID == 0 {
			return plan{}, loginRequired(), nil
		}
		tag, err := s.tags.TagByName(ctx, req.UserID, name)
		if errors.Is(err, store.ErrNotFound) {
			return plan{}, tagNotFound(name), nil
		}
		if err != nil {
			return plan{}, nil, err
		}
		return plan{mode: modeTag, tag: tag}, nil, nil

	case strings.HasPrefix(raw, paperPrefix):
		return s.classifyPaper(ctx, strings.TrimSpace(raw[len(paperPrefix):]))

	case strings.HasPrefix(raw, titlePrefix):
		return plan{mode: modeTitle, query: raw[len(titlePrefix):]}, nil, nil

	default:
		return plan{mode: modeKeyword, query: raw}, nil, nil
	}
}

// classifyPaper resolves an id first as the internal surrogate id, falling
// back to arXiv id lookup.
func (s *Searcher) classifyPaper(ctx context.Context, id string) (plan, *QueryError, error) {
	if n, convErr := strconv.ParseInt(id, 10, 64); convErr == nil {
		p, err := s.papers.PaperByID(ctx, n)
		if err == nil {
			return plan{mode: modeSingle, paper: p}, nil, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return plan{}, nil, err
		}
	}

	p, err := s.papers.PaperByArxivID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return plan{}, paperNotFound(id), nil
	}
	if err != nil {
		return plan{}, nil, err
	}
	return plan{mode: modeSingle, paper: p}, nil, nil
}
