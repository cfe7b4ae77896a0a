package search

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
	"github.com/igm503/arxiv-troller/internal/store/memstore"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var floatVariant = papers.Variant{
	Name:       "test-float",
	Model:      "test-model",
	Kind:       papers.VariantFloat,
	Dimensions: 2,
}

// countingIndex wraps a VectorIndex and records session and query activity.
type countingIndex struct {
	inner        store.VectorIndex
	sessions     int
	nearestCalls int
	nearestLimit []int
}

func (c *countingIndex) HasEmbedding(ctx context.Context, paperID int64) (bool, error) {
	return c.inner.HasEmbedding(ctx, paperID)
}

func (c *countingIndex) Session(ctx context.Context, h store.Hints) (store.VectorSession, error) {
	c.sessions++
	inner, err := c.inner.Session(ctx, h)
	if err != nil {
		return nil, err
	}
	return &countingSession{idx: c, inner: inner}, nil
}

type countingSession struct {
	idx   *countingIndex
	inner store.VectorSession
}

func (s *countingSession) EmbeddingFor(ctx context.Context, paperID int64) (papers.Vector, bool, error) {
	return s.inner.EmbeddingFor(ctx, paperID)
}

func (s *countingSession) Nearest(ctx context.Context, vec papers.Vector, f store.Filter, limit int) ([]store.Neighbor, error) {
	s.idx.nearestCalls++
	s.idx.nearestLimit = append(s.idx.nearestLimit, limit)
	return s.inner.Nearest(ctx, vec, f, limit)
}

func (s *countingSession) Close() { s.inner.Close() }

func newTestSearcher(st *memstore.Store, idx store.VectorIndex, cfg Config) *Searcher {
	s := New(st, st, idx, cfg, zerolog.Nop())
	s.now = func() time.Time { return testNow }
	s.shuffle = func([]papers.TaggedPaper) {} // keep source order deterministic
	return s
}

func addPaper(st *memstore.Store, arxivID, title string, age time.Duration, cats ...string) *papers.Paper {
	return st.AddPaper(&papers.Paper{
		ArxivID:    arxivID,
		Title:      title,
		Abstract:   "abstract of " + title,
		Created:    testNow.Add(-age),
		Categories: cats,
	})
}

func vec(x float32) papers.Vector {
	return papers.Vector{Floats: []float32{x, 0}}
}

// Query "paper: <arxiv id>" with candidates at known distances must come
// back ascending by distance with similarity 1/(1+d), the source itself
// excluded even though its self-distance is zero.
func TestSinglePaperSimilarityGolden(t *testing.T) {
	st := memstore.New(floatVariant)
	source := addPaper(st, "2301.00001", "source", time.Hour, "cs.LG")
	st.SetVector(source.ID, vec(0))

	distances := []float32{0.3, 0.1, 0.5, 0.2, 0.4}
	ids := make(map[float32]int64, len(distances))
	for i, d := range distances {
		p := addPaper(st, fmt.Sprintf("2301.1000%d", i), "candidate", 2*time.Hour, "cs.LG")
		st.SetVector(p.ID, vec(d))
		ids[d] = p.ID
	}

	s := newTestSearcher(st, st, Config{})
	page, err := s.Search(context.Background(), Request{Query: "paper: 2301.00001"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if page.Err != nil {
		t.Fatalf("unexpected query error: %v", page.Err)
	}
	if len(page.Results) != 5 {
		t.Fatalf("got %d results, want 5", len(page.Results))
	}

	wantOrder := []float32{0.1, 0.2, 0.3, 0.4, 0.5}
	wantSim := []float64{0.909, 0.833, 0.769, 0.714, 0.667}
	for i, r := range page.Results {
		if r.Paper.ID == source.ID {
			t.Fatalf("source paper appeared in its own similarity results")
		}
		if r.Paper.ID != ids[wantOrder[i]] {
			t.Errorf("result[%d] = paper %d, want paper at distance %v", i, r.Paper.ID, wantOrder[i])
		}
		if math.Abs(r.Similarity-wantSim[i]) > 0.001 {
			t.Errorf("result[%d].Similarity = %.4f, want %.3f", i, r.Similarity, wantSim[i])
		}
	}
	if page.Mode != "single_paper" {
		t.Errorf("Mode = %q, want single_paper", page.Mode)
	}
	if page.SourcePaper == nil || page.SourcePaper.ID != source.ID {
		t.Errorf("SourcePaper not set to the query source")
	}
}

// A source paper without an embedding is a valid, silently-skipped case:
// empty result, no error.
func TestSinglePaperNoEmbedding(t *testing.T) {
	st := memstore.New(floatVariant)
	addPaper(st, "2301.00001", "source", time.Hour)

	s := newTestSearcher(st, st, Config{})
	page, err := s.Search(context.Background(), Request{Query: "paper: 2301.00001"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if page.Err != nil {
		t.Fatalf("unexpected query error: %v", page.Err)
	}
	if len(page.Results) != 0 {
		t.Fatalf("got %d results, want 0", len(page.Results))
	}
}

// "tag: nonexistent" for an authenticated user must produce a tag-not-found
// error, an empty result, and zero index queries.
func TestTagNotFoundShortCircuits(t *testing.T) {
	st := memstore.New(floatVariant)
	idx := &countingIndex{inner: st}

	s := newTestSearcher(st, idx, Config{})
	page, err := s.Search(context.Background(), Request{UserID: 7, Query: "tag: nonexistent"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if page.Err == nil || page.Err.Kind != ErrTagNotFound {
		t.Fatalf("page.Err = %v, want kind %s", page.Err, ErrTagNotFound)
	}
	if len(page.Results) != 0 {
		t.Errorf("got %d results, want 0", len(page.Results))
	}
	if idx.sessions != 0 || idx.nearestCalls != 0 {
		t.Errorf("index touched (%d sessions, %d queries), want none", idx.sessions, idx.nearestCalls)
	}
}

// Three sources with embeddings and N=10 requested: per-source depth is
// floor(10/3)+1 = 4, interleave covers rounds 0..3, and the page holds at
// most 10 unique papers out of at most 12 collected.
func TestTagSearchDepthAndCaps(t *testing.T) {
	st := memstore.New(floatVariant)
	idx := &countingIndex{inner: st}
	user := int64(7)
	tag := st.AddTag(&papers.Tag{UserID: user, Name: "reading"})

	for i := 0; i < 3; i++ {
		src := addPaper(st, fmt.Sprintf("2302.0000%d", i+1), "src", time.Hour)
		st.SetVector(src.ID, vec(float32(i)*10))
		st.TagPaper(tag, src, testNow.Add(-time.Duration(i)*time.Minute))
	}
	// Candidates clustered near each source.
	for i := 0; i < 3; i++ {
		for j := 1; j <= 6; j++ {
			p := addPaper(st, "", "cand", 2*time.Hour)
			st.SetVector(p.ID, vec(float32(i)*10+float32(j)*0.01))
		}
	}

	s := newTestSearcher(st, idx, Config{ResultsPerPage: 10})
	page, err := s.Search(context.Background(), Request{UserID: user, Query: "tag: reading"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if page.Err != nil {
		t.Fatalf("unexpected query error: %v", page.Err)
	}

	for _, limit := range idx.nearestLimit {
		if limit != 4 {
			t.Errorf("per-source fetch depth = %d, want 4", limit)
		}
	}
	if len(page.Results) > 10 {
		t.Errorf("page holds %d results, want <= 10", len(page.Results))
	}

	seen := make(map[int64]bool)
	for _, r := range page.Results {
		if seen[r.Paper.ID] {
			t.Errorf("paper %d appears twice", r.Paper.ID)
		}
		seen[r.Paper.ID] = true
	}
}

// Tag members are excluded from multi-source output, and an empty tag is an
// empty result rather than an error.
func TestTagSearchEdgeCases(t *testing.T) {
	st := memstore.New(floatVariant)
	user := int64(7)
	st.AddTag(&papers.Tag{UserID: user, Name: "empty"})

	s := newTestSearcher(st, st, Config{})
	page, err := s.Search(context.Background(), Request{UserID: user, Query: "tag: empty"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if page.Err != nil || len(page.Results) != 0 {
		t.Fatalf("empty tag: got err=%v results=%d, want clean empty page", page.Err, len(page.Results))
	}

	tag := st.AddTag(&papers.Tag{UserID: user, Name: "reading"})
	a := addPaper(st, "2303.00001", "member a", time.Hour)
	b := addPaper(st, "2303.00002", "member b", time.Hour)
	st.SetVector(a.ID, vec(0))
	st.SetVector(b.ID, vec(0.01))
	st.TagPaper(tag, a, testNow)
	st.TagPaper(tag, b, testNow)

	c := addPaper(st, "2303.00003", "candidate", time.Hour)
	st.SetVector(c.ID, vec(0.02))

	page, err = s.Search(context.Background(), Request{UserID: user, Query: "tag: reading"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].Paper.ID != c.ID {
		t.Fatalf("tag members not excluded: got %d results", len(page.Results))
	}
}

// Keyword search defaults to no date bound while similarity search defaults
// to one week; category filters and exclusions apply to every mode.
func TestFilterComposition(t *testing.T) {
	st := memstore.New(floatVariant)
	recent := addPaper(st, "2304.00001", "quantum widgets", 2*24*time.Hour, "cs.LG")
	old := addPaper(st, "2304.00002", "quantum history", 60*24*time.Hour, "hep-th")
	source := addPaper(st, "2304.00003", "quantum source", time.Hour, "cs.LG")
	st.SetVector(recent.ID, vec(0.1))
	st.SetVector(old.ID, vec(0.05))
	st.SetVector(source.ID, vec(0))

	s := newTestSearcher(st, st, Config{})

	// Keyword: default "all" sees both.
	page, err := s.Search(context.Background(), Request{Query: "quantum"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Results) != 3 {
		t.Fatalf("keyword default all: got %d results, want 3", len(page.Results))
	}

	// Keyword with category filter.
	page, err = s.Search(context.Background(), Request{Query: "quantum", Category: "hep-th"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].Paper.ID != old.ID {
		t.Fatalf("category filter: got %d results, want only the hep-th paper", len(page.Results))
	}

	// Keyword with exclusions.
	page, err = s.Search(context.Background(), Request{Query: "quantum", ExcludeIDs: []int64{recent.ID, source.ID}})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	for _, r := range page.Results {
		if r.Paper.ID == recent.ID || r.Paper.ID == source.ID {
			t.Errorf("excluded paper %d appeared in output", r.Paper.ID)
		}
	}

	// Similarity: default window hides the 60-day-old candidate.
	page, err = s.Search(context.Background(), Request{Query: "paper: 2304.00003"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].Paper.ID != recent.ID {
		t.Fatalf("similarity default 1week: got %d results, want only the recent paper", len(page.Results))
	}

	// Widening the window brings it back.
	page, err = s.Search(context.Background(), Request{Query: "paper: 2304.00003", DateFilter: "1year"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Results) != 2 {
		t.Fatalf("similarity 1year: got %d results, want 2", len(page.Results))
	}
}

// Title mode is substring match ordered by descending creation date.
func TestTitleSearchOrdering(t *testing.T) {
	st := memstore.New(floatVariant)
	older := addPaper(st, "2305.00001", "Deep Learning Revisited", 48*time.Hour)
	newer := addPaper(st, "2305.00002", "A Survey of Deep Learning", 24*time.Hour)
	addPaper(st, "2305.00003", "Shallow Methods", 12*time.Hour)

	s := newTestSearcher(st, st, Config{})
	page, err := s.Search(context.Background(), Request{Query: "title: deep learning"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(page.Results))
	}
	if page.Results[0].Paper.ID != newer.ID || page.Results[1].Paper.ID != older.ID {
		t.Errorf("title results not ordered by descending creation date")
	}
	if page.Results[0].Similarity != 0 {
		t.Errorf("title hits must not carry similarity scores")
	}
}

// has_more requires both a row beyond the page cap and headroom under the
// session ceiling; the continuation exclusion set accumulates shown ids.
func TestPagingAndContinuation(t *testing.T) {
	st := memstore.New(floatVariant)
	source := addPaper(st, "2306.00001", "source", time.Hour)
	st.SetVector(source.ID, vec(0))
	for i := 0; i < 8; i++ {
		p := addPaper(st, "", "cand", time.Hour)
		st.SetVector(p.ID, vec(0.1+float32(i)*0.1))
	}

	cfg := Config{ResultsPerPage: 5, MaxResults: 12}
	s := newTestSearcher(st, st, cfg)

	page, err := s.Search(context.Background(), Request{SinglePaper: "2306.00001"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Results) != 5 {
		t.Fatalf("got %d results, want 5", len(page.Results))
	}
	if !page.HasMore {
		t.Fatalf("HasMore = false, want true (8 candidates, page of 5)")
	}
	if len(page.NextExcludeIDs) != 5 {
		t.Fatalf("NextExcludeIDs holds %d ids, want 5", len(page.NextExcludeIDs))
	}

	// Second page via the exclusion set: remaining 3 candidates.
	page2, err := s.Search(context.Background(), Request{
		SinglePaper: "2306.00001",
		ExcludeIDs:  page.NextExcludeIDs,
	})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page2.Results) != 3 {
		t.Fatalf("second page: got %d results, want 3", len(page2.Results))
	}
	for _, r := range page2.Results {
		for _, id := range page.NextExcludeIDs {
			if r.Paper.ID == id {
				t.Errorf("paper %d from page one repeated on page two", id)
			}
		}
	}
	if page2.HasMore {
		t.Errorf("HasMore = true on exhausted result set")
	}
}

// The session ceiling stops paging even when more raw results exist.
func TestMaxResultsCeiling(t *testing.T) {
	st := memstore.New(floatVariant)
	source := addPaper(st, "2307.00001", "source", time.Hour)
	st.SetVector(source.ID, vec(0))
	for i := 0; i < 10; i++ {
		p := addPaper(st, "", "cand", time.Hour)
		st.SetVector(p.ID, vec(0.1+float32(i)*0.05))
	}

	cfg := Config{ResultsPerPage: 4, MaxResults: 8}
	s := newTestSearcher(st, st, cfg)

	page, err := s.Search(context.Background(), Request{SinglePaper: "2307.00001"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if !page.HasMore {
		t.Fatalf("first page should report more")
	}

	page2, err := s.Search(context.Background(), Request{SinglePaper: "2307.00001", ExcludeIDs: page.NextExcludeIDs})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	// 4 shown + 4 on this page reaches the ceiling of 8.
	if page2.HasMore {
		t.Errorf("HasMore = true past the session ceiling")
	}
}

// Tag annotations come from the requesting user's tags only; anonymous
// requests always get empty annotations.
func TestTagAnnotations(t *testing.T) {
	st := memstore.New(floatVariant)
	user := int64(7)
	other := int64(9)
	p := addPaper(st, "2308.00001", "annotated quantum paper", time.Hour)

	mine := st.AddTag(&papers.Tag{UserID: user, Name: "mine"})
	theirs := st.AddTag(&papers.Tag{UserID: other, Name: "theirs"})
	st.TagPaper(mine, p, testNow)
	st.TagPaper(theirs, p, testNow)

	s := newTestSearcher(st, st, Config{})

	page, err := s.Search(context.Background(), Request{UserID: user, Query: "quantum"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(page.Results))
	}
	if len(page.Results[0].Tags) != 1 || page.Results[0].Tags[0] != "mine" {
		t.Errorf("Tags = %v, want [mine]", page.Results[0].Tags)
	}

	anon, err := s.Search(context.Background(), Request{Query: "quantum"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(anon.Results) != 1 || len(anon.Results[0].Tags) != 0 {
		t.Errorf("anonymous request got tag annotations: %v", anon.Results[0].Tags)
	}
}
