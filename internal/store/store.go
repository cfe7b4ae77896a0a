// Package store defines the datastore contracts the retrieval core consumes.
// Implementations: postgres (pgx + pgvector), qdrantindex (vector index
// only), memstore (in-memory, for tests).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/igm503/arxiv-troller/internal/papers"
)

// ErrNotFound is returned by lookup methods when the entity does not exist.
var ErrNotFound = errors.New("store: not found")

// Filter is the candidate predicate restricting which papers may appear in a
// retrieval call. Built once per request and passed by value into every
// query so all per-source fetches see identical filters.
type Filter struct {
	// CreatedAfter is the inclusive lower bound on Paper.Created. Zero
	// means unbounded.
	CreatedAfter time.Time

	// Category, when non-empty, requires the paper's category set to
	// contain this exact code.
	Category string

	// ExcludeIDs are paper ids that must never appear in output.
	ExcludeIDs []int64
}

// Allows reports whether a paper passes the predicate.
func (f Filter) Allows(p *papers.Paper) bool {
	if !f.CreatedAfter.IsZero() && p.Created.Before(f.CreatedAfter) {
		return false
	}
	if f.Category != "" {
		found := false
		for _, c := range p.Categories {
			if c == f.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, id := range f.ExcludeIDs {
		if id == p.ID {
			return false
		}
	}
	return true
}

// MemberSort orders tag drawer listings.
type MemberSort string

const (
	SortAdded     MemberSort = "added"     // most recently tagged first (default)
	SortAlpha     MemberSort = "alpha"     // by title
	SortSubmitted MemberSort = "submitted" // by paper creation date, newest first
	SortUpdated   MemberSort = "updated"   // by paper update date, newest first
)

// PaperStore is the relational side: lookups and text retrieval.
type PaperStore interface {
	// PaperByID resolves an internal surrogate id.
	PaperByID(ctx context.Context, id int64) (*papers.Paper, error)

	// PaperByArxivID resolves the stable external key.
	PaperByArxivID(ctx context.Context, arxivID string) (*papers.Paper, error)

	// SearchText runs ranked full-text search over title and abstract,
	// title weighted higher, ties broken by descending creation date.
	SearchText(ctx context.Context, query string, f Filter, limit, offset int) ([]*papers.Paper, error)

	// SearchTitle runs case-insensitive substring match on title, ordered
	// by descending creation date.
	SearchTitle(ctx context.Context, substr string, f Filter, limit, offset int) ([]*papers.Paper, error)
}

// TagStore reads a user's tags and memberships. Tag CRUD lives outside the
// retrieval core.
type TagStore interface {
	TagByID(ctx context.Context, userID, tagID int64) (*papers.Tag, error)
	TagByName(ctx context.Context, userID int64, name string) (*papers.Tag, error)

	// TagMembers lists the papers in a tag in the requested order.
	TagMembers(ctx context.Context, tagID int64, sort MemberSort) ([]papers.TaggedPaper, error)

	// TagsForPapers returns, per paper id, the names of the user's tags
	// containing that paper.
	TagsForPapers(ctx context.Context, userID int64, paperIDs []int64) (map[int64][]string, error)
}

// Neighbor is one nearest-neighbor hit with its raw metric distance.
type Neighbor struct {
	Paper    *papers.Paper
	Distance float64
}

// Hints are the per-request approximate-search recall knobs, applied once
// before the first index query of a request.
type Hints struct {
	EfSearch      int
	IterativeScan string
	MaxScanTuples int
}

// VectorIndex provides nearest-neighbor search over the active embedding
// variant. A Session scopes the recall hints to one request.
type VectorIndex interface {
	Session(ctx context.Context, h Hints) (VectorSession, error)

	// HasEmbedding reports whether a paper has a vector under the active
	// variant.
	HasEmbedding(ctx context.Context, paperID int64) (bool, error)
}

// VectorSession issues index queries for a single request. Close releases
// any pinned connection; sessions are not safe for concurrent use.
type VectorSession interface {
	// EmbeddingFor fetches the stored vector for a paper. ok is false when
	// the paper has no embedding under the active variant; that is a
	// normal, silently-skippable state, not an error.
	EmbeddingFor(ctx context.Context, paperID int64) (vec papers.Vector, ok bool, err error)

	// Nearest returns up to limit candidates passing the filter, ordered
	// ascending by distance from vec.
	Nearest(ctx context.Context, vec papers.Vector, f Filter, limit int) ([]Neighbor, error)

	Close()
}
