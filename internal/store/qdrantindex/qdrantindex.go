// Package qdrantindex implements store.VectorIndex on Qdrant for float
// embedding variants. Paper metadata needed by the candidate predicate
// (creation time, categories) is mirrored into point payloads so filtering
// happens inside the index; full rows are hydrated from the relational store.
package qdrantindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
)

// PaperLoader hydrates full paper rows for ids returned by the index.
type PaperLoader interface {
	PapersByIDs(ctx context.Context, ids []int64) (map[int64]*papers.Paper, error)
}

// Index is a Qdrant-backed vector index for one float variant. One collection
// per variant, named troller-{variant}-v1.
type Index struct {
	client     *qdrant.Client
	collection string
	variant    papers.Variant
	loader     PaperLoader
	logger     zerolog.Logger
}

// New connects to Qdrant and ensures the variant's collection exists.
func New(url string, variant papers.Variant, loader PaperLoader, logger zerolog.Logger) (*Index, error) {
	if url == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if variant.Kind != papers.VariantFloat {
		return nil, fmt.Errorf("qdrant index supports float variants only, got %q", variant.Kind)
	}
	if loader == nil {
		return nil, fmt.Errorf("paper loader is required")
	}

	host, port := parseURL(url)
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	idx := &Index{
		client:     client,
		collection: fmt.Sprintf("troller-%s-v1", variant.Name),
		variant:    variant,
		loader:     loader,
		logger:     logger,
	}
	if err := idx.ensureCollection(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	logger.Info().
		Str("collection", idx.collection).
		Str("qdrant_url", url).
		Msg("Qdrant index initialized")
	return idx, nil
}

func (ix *Index) ensureCollection(ctx context.Context) error {
	exists, err := ix.client.CollectionExists(ctx, ix.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	m := uint64(16)
	efConstruct := uint64(128)
	err = ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: ix.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(ix.variant.Dimensions),
			Distance: qdrant.Distance_Euclid,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           &m,
				EfConstruct: &efConstruct,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	ix.logger.Info().Str("collection", ix.collection).Msg("Collection created")
	return nil
}

// UpsertEmbedding mirrors one paper's vector and filter payload into the
// collection. The point id is the paper's surrogate id, so re-running the
// embedder overwrites in place.
func (ix *Index) UpsertEmbedding(ctx context.Context, p *papers.Paper, vec papers.Vector) error {
	_, err := ix.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ix.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDNum(uint64(p.ID)),
				Vectors: qdrant.NewVectors(vec.Floats...),
				Payload: qdrant.NewValueMap(map[string]any{
					"paper_id":   p.ID,
					"created":    p.Created.Unix(),
					"categories": toAnySlice(p.Categories),
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for paper %d: %w", p.ID, err)
	}
	return nil
}

// HasEmbedding implements store.VectorIndex.
func (ix *Index) HasEmbedding(ctx context.Context, paperID int64) (bool, error) {
	points, err := ix.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: ix.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(uint64(paperID))},
	})
	if err != nil {
		return false, fmt.Errorf("failed to check embedding: %w", err)
	}
	return len(points) > 0, nil
}

// Session implements store.VectorIndex. Qdrant's recall knob is a per-query
// parameter rather than connection state, so the session just carries the
// ef value into each query.
func (ix *Index) Session(_ context.Context, h store.Hints) (store.VectorSession, error) {
	return &session{index: ix, hints: h}, nil
}

type session struct {
	index *Index
	hints store.Hints
}

// EmbeddingFor implements store.VectorSession.
func (se *session) EmbeddingFor(ctx context.Context, paperID int64) (papers.Vector, bool, error) {
	points, err := se.index.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: se.index.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(uint64(paperID))},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return papers.Vector{}, false, fmt.Errorf("failed to fetch embedding for paper %d: %w", paperID, err)
	}
	if len(points) == 0 {
		return papers.Vector{}, false, nil
	}
	vectors := points[0].GetVectors().GetVector()
	if vectors == nil {
		return papers.Vector{}, false, nil
	}
	return papers.Vector{Floats: vectors.GetData()}, true, nil
}

// Nearest implements store.VectorSession. The candidate predicate maps onto
// payload conditions: created range, category keyword match, excluded ids.
func (se *session) Nearest(ctx context.Context, vec papers.Vector, f store.Filter, limit int) ([]store.Neighbor, error) {
	ix := se.index

	var must []*qdrant.Condition
	if !f.CreatedAfter.IsZero() {
		gte := float64(f.CreatedAfter.Unix())
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "created",
					Range: &qdrant.Range{Gte: &gte},
				},
			},
		})
	}
	if f.Category != "" {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "categories",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: f.Category},
					},
				},
			},
		})
	}

	var mustNot []*qdrant.Condition
	if len(f.ExcludeIDs) > 0 {
		ids := make([]*qdrant.PointId, len(f.ExcludeIDs))
		for i, id := range f.ExcludeIDs {
			ids[i] = qdrant.NewIDNum(uint64(id))
		}
		mustNot = append(mustNot, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_HasId{
				HasId: &qdrant.HasIdCondition{HasId: ids},
			},
		})
	}

	var filter *qdrant.Filter
	if len(must) > 0 || len(mustNot) > 0 {
		filter = &qdrant.Filter{Must: must, MustNot: mustNot}
	}

	query := &qdrant.QueryPoints{
		CollectionName: ix.collection,
		Query:          qdrant.NewQuery(vec.Floats...),
		Filter:         filter,
		Limit:          uintPtr(uint64(limit)),
	}
	if se.hints.EfSearch > 0 {
		ef := uint64(se.hints.EfSearch)
		query.Params = &qdrant.SearchParams{HnswEf: &ef}
	}

	points, err := ix.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(points))
	for _, point := range points {
		if num := point.GetId().GetNum(); num != 0 {
			ids = append(ids, int64(num))
		}
	}
	loaded, err := ix.loader.PapersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate papers: %w", err)
	}

	var hits []store.Neighbor
	for _, point := range points {
		p := loaded[int64(point.GetId().GetNum())]
		if p == nil {
			// Stale point surviving a relational delete.
			continue
		}
		hits = append(hits, store.Neighbor{Paper: p, Distance: float64(point.GetScore())})
	}
	return hits, nil
}

// Close implements store.VectorSession. Nothing is pinned.
func (se *session) Close() {}

// Shutdown closes the client connection.
func (ix *Index) Shutdown() error {
	return ix.client.Close()
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func uintPtr(u uint64) *uint64 {
	return &u
}

// parseURL splits "host:port", defaulting to the Qdrant gRPC port 6334.
func parseURL(url string) (host string, port int) {
	port = 6334
	host = url
	if idx := strings.LastIndex(url, ":"); idx >= 0 {
		host = url[:idx]
		if p, err := strconv.Atoi(url[idx+1:]); err == nil {
			port = p
		}
	}
	if host == "" {
		host = "localhost"
	}
	return host, port
}
