// Package memstore is an in-memory implementation of the store contracts.
// It backs the retrieval-core tests and lets the service run without
// Postgres or Qdrant for local experiments.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
)

// Store keeps the whole corpus in maps. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	variant papers.Variant

	papersByID map[int64]*papers.Paper
	byArxivID  map[string]int64
	tags       map[int64]*papers.Tag
	members    map[int64][]papers.TaggedPaper
	vectors    map[int64]papers.Vector

	nextPaperID int64
	nextTagID   int64
}

// New creates an empty store for the given active variant.
func New(variant papers.Variant) *Store {
	return &Store{
		variant:    variant,
		papersByID: make(map[int64]*papers.Paper),
		byArxivID:  make(map[string]int64),
		tags:       make(map[int64]*papers.Tag),
		members:    make(map[int64][]papers.TaggedPaper),
		vectors:    make(map[int64]papers.Vector),
	}
}

// AddPaper inserts a paper, assigning an id if unset, and returns it.
func (s *Store) AddPaper(p *papers.Paper) *papers.Paper {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextPaperID++
		p.ID = s.nextPaperID
	} else if p.ID > s.nextPaperID {
		s.nextPaperID = p.ID
	}
	s.papersByID[p.ID] = p
	if p.ArxivID != "" {
		s.byArxivID[p.ArxivID] = p.ID
	}
	return p
}

// AddTag inserts a tag, assigning an id if unset, and returns it.
func (s *Store) AddTag(t *papers.Tag) *papers.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		s.nextTagID++
		t.ID = s.nextTagID
	} else if t.ID > s.nextTagID {
		s.nextTagID = t.ID
	}
	s.tags[t.ID] = t
	return t
}

// TagPaper adds a membership edge.
func (s *Store) TagPaper(tag *papers.Tag, p *papers.Paper, added time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[tag.ID] = append(s.members[tag.ID], papers.TaggedPaper{Tag: tag, Paper: p, AddedAt: added})
}

// SetVector stores the embedding for a paper under the active variant.
func (s *Store) SetVector(paperID int64, vec papers.Vector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[paperID] = vec
}

// PaperByID implements store.PaperStore.
func (s *Store) PaperByID(_ context.Context, id int64) (*papers.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.papersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

// PaperByArxivID implements store.PaperStore.
func (s *Store) PaperByArxivID(_ context.Context, arxivID string) (*papers.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byArxivID[arxivID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.papersByID[id], nil
}

// SearchText implements store.PaperStore with a simple weighted term count:
// title hits count double abstract hits, mirroring the A/B field weights the
// production store uses.
func (s *Store) SearchText(_ context.Context, query string, f store.Filter, limit, offset int) ([]*papers.Paper, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	type scored struct {
		paper *papers.Paper
		score int
	}

	s.mu.RLock()
	var hits []scored
	for _, p := range s.papersByID {
		if !f.Allows(p) {
			continue
		}
		title := strings.ToLower(p.Title)
		abstract := strings.ToLower(p.Abstract)
		score := 0
		for _, term := range terms {
			score += 2 * strings.Count(title, term)
			score += strings.Count(abstract, term)
		}
		if score > 0 {
			hits = append(hits, scored{paper: p, score: score})
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if !hits[i].paper.Created.Equal(hits[j].paper.Created) {
			return hits[i].paper.Created.After(hits[j].paper.Created)
		}
		return hits[i].paper.ID < hits[j].paper.ID
	})

	out := make([]*papers.Paper, 0, limit)
	for i := offset; i < len(hits) && len(out) < limit; i++ {
		out = append(out, hits[i].paper)
	}
	return out, nil
}

// SearchTitle implements store.PaperStore.
func (s *Store) SearchTitle(_ context.Context, substr string, f store.Filter, limit, offset int) ([]*papers.Paper, error) {
	needle := strings.ToLower(substr)

	s.mu.RLock()
	var hits []*papers.Paper
	for _, p := range s.papersByID {
		if !f.Allows(p) {
			continue
		}
		if strings.Contains(strings.ToLower(p.Title), needle) {
			hits = append(hits, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].Created.Equal(hits[j].Created) {
			return hits[i].Created.After(hits[j].Created)
		}
		return hits[i].ID < hits[j].ID
	})

	if offset >= len(hits) {
		return nil, nil
	}
	hits = hits[offset:]
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// TagByID implements store.TagStore.
func (s *Store) TagByID(_ context.Context, userID, tagID int64) (*papers.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[tagID]
	if !ok || t.UserID != userID {
		return nil, store.ErrNotFound
	}
	return t, nil
}

// TagByName implements store.TagStore. Match is case-sensitive and exact.
func (s *Store) TagByName(_ context.Context, userID int64, name string) (*papers.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tags {
		if t.UserID == userID && t.Name == name {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

// TagMembers implements store.TagStore.
func (s *Store) TagMembers(_ context.Context, tagID int64, order store.MemberSort) ([]papers.TaggedPaper, error) {
	s.mu.RLock()
	members := make([]papers.TaggedPaper, len(s.members[tagID]))
	copy(members, s.members[tagID])
	s.mu.RUnlock()

	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		switch order {
		case store.SortAlpha:
			return a.Paper.Title < b.Paper.Title
		case store.SortSubmitted:
			return a.Paper.Created.After(b.Paper.Created)
		case store.SortUpdated:
			return a.Paper.Updated.After(b.Paper.Updated)
		default:
			return a.AddedAt.After(b.AddedAt)
		}
	})
	return members, nil
}

// TagsForPapers implements store.TagStore.
func (s *Store) TagsForPapers(_ context.Context, userID int64, paperIDs []int64) (map[int64][]string, error) {
	wanted := make(map[int64]bool, len(paperIDs))
	for _, id := range paperIDs {
		wanted[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64][]string)
	for tagID, members := range s.members {
		tag := s.tags[tagID]
		if tag == nil || tag.UserID != userID {
			continue
		}
		for _, m := range members {
			if wanted[m.Paper.ID] {
				out[m.Paper.ID] = append(out[m.Paper.ID], tag.Name)
			}
		}
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out, nil
}

// HasEmbedding implements store.VectorIndex.
func (s *Store) HasEmbedding(_ context.Context, paperID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vectors[paperID]
	return ok, nil
}

// Session implements store.VectorIndex. The in-memory scan is exact, so the
// recall hints have nothing to tune and are accepted and ignored.
func (s *Store) Session(_ context.Context, _ store.Hints) (store.VectorSession, error) {
	return &session{store: s}, nil
}

type session struct {
	store *Store
}

func (se *session) EmbeddingFor(_ context.Context, paperID int64) (papers.Vector, bool, error) {
	se.store.mu.RLock()
	defer se.store.mu.RUnlock()
	vec, ok := se.store.vectors[paperID]
	return vec, ok, nil
}

func (se *session) Nearest(_ context.Context, vec papers.Vector, f store.Filter, limit int) ([]store.Neighbor, error) {
	se.store.mu.RLock()
	var hits []store.Neighbor
	for id, candidate := range se.store.vectors {
		p := se.store.papersByID[id]
		if p == nil || !f.Allows(p) {
			continue
		}
		hits = append(hits, store.Neighbor{
			Paper:    p,
			Distance: papers.Distance(se.store.variant.Kind, vec, candidate),
		})
	}
	se.store.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Paper.ID < hits[j].Paper.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (se *session) Close() {}
