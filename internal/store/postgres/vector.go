package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
)

// HasEmbedding implements store.VectorIndex.
func (s *Store) HasEmbedding(ctx context.Context, paperID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM embeddings
			WHERE paper_id = $1 AND model = $2 AND kind = $3
		)`,
		paperID, s.variant.Model, string(s.variant.Kind)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has embedding: %w", err)
	}
	return exists, nil
}

// Session implements store.VectorIndex. It pins one pool connection inside a
// transaction and applies the recall knobs with SET LOCAL scope, so the
// settings never leak back into the pool.
func (s *Store) Session(ctx context.Context, h store.Hints) (store.VectorSession, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire session connection: %w", err)
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("postgres: begin session: %w", err)
	}

	sess := &session{store: s, conn: conn, tx: tx}
	if err := sess.applyHints(ctx, h); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

type session struct {
	store *Store
	conn  *pgxpool.Conn
	tx    pgx.Tx
}

func (se *session) applyHints(ctx context.Context, h store.Hints) error {
	set := func(name, value string) error {
		_, err := se.tx.Exec(ctx, "SELECT set_config($1, $2, true)", name, value)
		if err != nil {
			return fmt.Errorf("postgres: set %s: %w", name, err)
		}
		return nil
	}
	if h.EfSearch > 0 {
		if err := set("hnsw.ef_search", strconv.Itoa(h.EfSearch)); err != nil {
			return err
		}
	}
	if h.IterativeScan != "" {
		if err := set("hnsw.iterative_scan", h.IterativeScan); err != nil {
			return err
		}
	}
	if h.MaxScanTuples > 0 {
		if err := set("hnsw.max_scan_tuples", strconv.Itoa(h.MaxScanTuples)); err != nil {
			return err
		}
	}
	return nil
}

// EmbeddingFor implements store.VectorSession.
func (se *session) EmbeddingFor(ctx context.Context, paperID int64) (papers.Vector, bool, error) {
	variant := se.store.variant
	column := "vec"
	if variant.Kind == papers.VariantBit {
		column = "bits"
	}

	var text string
	err := se.tx.QueryRow(ctx, `
		SELECT `+column+`::text FROM embeddings
		WHERE paper_id = $1 AND model = $2 AND kind = $3 AND `+column+` IS NOT NULL`,
		paperID, variant.Model, string(variant.Kind)).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return papers.Vector{}, false, nil
	}
	if err != nil {
		return papers.Vector{}, false, fmt.Errorf("postgres: embedding for paper %d: %w", paperID, err)
	}

	if variant.Kind == papers.VariantBit {
		return papers.Vector{Bits: parseBitstring(text)}, true, nil
	}
	floats, err := parseHalfvec(text)
	if err != nil {
		return papers.Vector{}, false, fmt.Errorf("postgres: embedding for paper %d: %w", paperID, err)
	}
	return papers.Vector{Floats: floats}, true, nil
}

// Nearest implements store.VectorSession. The distance expression appears in
// ORDER BY directly so the planner can walk the HNSW index; the filter is
// applied during the scan, which is what the iterative-scan hint is for.
func (se *session) Nearest(ctx context.Context, vec papers.Vector, f store.Filter, limit int) ([]store.Neighbor, error) {
	variant := se.store.variant

	var distExpr, literal string
	if variant.Kind == papers.VariantBit {
		distExpr = "e.bits <~> $1::varbit"
		literal = formatBitstring(vec.Bits, variant.Dimensions)
	} else {
		distExpr = "e.vec <-> $1::halfvec"
		literal = formatHalfvec(vec.Floats)
	}

	var sb strings.Builder
	args := []any{literal, variant.Model, string(variant.Kind)}
	sb.WriteString("SELECT " + paperColumns + ", " + distExpr + ` AS distance
		FROM embeddings e
		JOIN papers p ON p.id = e.paper_id
		WHERE e.model = $2 AND e.kind = $3`)
	appendFilter(&sb, &args, f)
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY %s LIMIT $%d", distExpr, len(args))

	rows, err := se.tx.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: nearest: %w", err)
	}
	defer rows.Close()

	var hits []store.Neighbor
	for rows.Next() {
		var (
			p        papers.Paper
			updated  *time.Time
			distance float64
		)
		if err := rows.Scan(&p.ID, &p.ArxivID, &p.Title, &p.Abstract, &p.Created, &updated, &p.Categories, &distance); err != nil {
			return nil, fmt.Errorf("postgres: nearest scan: %w", err)
		}
		if updated != nil {
			p.Updated = *updated
		}
		hits = append(hits, store.Neighbor{Paper: &p, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: nearest rows: %w", err)
	}

	if len(hits) > 0 {
		list := make([]*papers.Paper, len(hits))
		for i := range hits {
			list[i] = hits[i].Paper
		}
		if err := se.store.attachAuthors(ctx, list); err != nil {
			return nil, err
		}
	}
	return hits, nil
}

// Close implements store.VectorSession. The transaction only ever reads, so
// rollback is the normal exit.
func (se *session) Close() {
	_ = se.tx.Rollback(context.Background())
	se.conn.Release()
}

// SaveEmbedding stores a vector for a paper under the active variant.
// Idempotent: an existing row wins, so re-running the embedder never
// rewrites vectors.
func (s *Store) SaveEmbedding(ctx context.Context, paperID int64, vec papers.Vector) error {
	variant := s.variant
	var err error
	if variant.Kind == papers.VariantBit {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO embeddings (paper_id, model, kind, dims, bits)
			VALUES ($1, $2, $3, $4, $5::varbit)
			ON CONFLICT (paper_id, model, kind) DO NOTHING`,
			paperID, variant.Model, string(variant.Kind), variant.Dimensions,
			formatBitstring(vec.Bits, variant.Dimensions))
	} else {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO embeddings (paper_id, model, kind, dims, vec)
			VALUES ($1, $2, $3, $4, $5::halfvec)
			ON CONFLICT (paper_id, model, kind) DO NOTHING`,
			paperID, variant.Model, string(variant.Kind), variant.Dimensions,
			formatHalfvec(vec.Floats))
	}
	if err != nil {
		return fmt.Errorf("postgres: save embedding for paper %d: %w", paperID, err)
	}
	return nil
}

// formatHalfvec renders a float vector in pgvector's text format.
func formatHalfvec(floats []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range floats {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// parseHalfvec parses pgvector's text format back into a float slice.
func parseHalfvec(text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", text)
	}
	inner := trimmed[1 : len(trimmed)-1]
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	floats := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %q: %w", part, err)
		}
		floats[i] = float32(f)
	}
	return floats, nil
}

// formatBitstring renders packed bits as a Postgres bit-string literal of
// exactly dims characters.
func formatBitstring(packed []byte, dims int) string {
	var sb strings.Builder
	sb.Grow(dims)
	for i := 0; i < dims; i++ {
		byteIdx, bitIdx := i/8, 7-uint(i%8)
		if byteIdx < len(packed) && packed[byteIdx]&(1<<bitIdx) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// parseBitstring packs a Postgres bit-string literal MSB first.
func parseBitstring(text string) []byte {
	packed := make([]byte, (len(text)+7)/8)
	for i := 0; i < len(text); i++ {
		if text[i] == '1' {
			packed[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return packed
}
