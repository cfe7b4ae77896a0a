package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
)

const paperColumns = "p.id, p.arxiv_id, p.title, p.abstract, p.created, p.updated, p.categories"

// appendFilter renders the candidate predicate as SQL appended to an open
// WHERE clause. Placeholders continue from the current length of args.
func appendFilter(sb *strings.Builder, args *[]any, f store.Filter) {
	if !f.CreatedAfter.IsZero() {
		*args = append(*args, f.CreatedAfter)
		fmt.Fprintf(sb, " AND p.created >= $%d", len(*args))
	}
	if f.Category != "" {
		*args = append(*args, f.Category)
		fmt.Fprintf(sb, " AND p.categories @> ARRAY[$%d::text]", len(*args))
	}
	if len(f.ExcludeIDs) > 0 {
		*args = append(*args, f.ExcludeIDs)
		fmt.Fprintf(sb, " AND p.id <> ALL($%d::bigint[])", len(*args))
	}
}

func scanPaper(row pgx.Row) (*papers.Paper, error) {
	var (
		p       papers.Paper
		updated *time.Time
	)
	err := row.Scan(&p.ID, &p.ArxivID, &p.Title, &p.Abstract, &p.Created, &updated, &p.Categories)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		p.Updated = *updated
	}
	return &p, nil
}

func collectPapers(rows pgx.Rows) ([]*papers.Paper, error) {
	defer rows.Close()
	var out []*papers.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PaperByID implements store.PaperStore.
func (s *Store) PaperByID(ctx context.Context, id int64) (*papers.Paper, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+paperColumns+" FROM papers p WHERE p.id = $1", id)
	p, err := scanPaper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: paper by id: %w", err)
	}
	if err := s.attachAuthors(ctx, []*papers.Paper{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// PaperByArxivID implements store.PaperStore.
func (s *Store) PaperByArxivID(ctx context.Context, arxivID string) (*papers.Paper, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+paperColumns+" FROM papers p WHERE p.arxiv_id = $1", arxivID)
	p, err := scanPaper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: paper by arxiv id: %w", err)
	}
	if err := s.attachAuthors(ctx, []*papers.Paper{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// SearchText implements store.PaperStore: weighted tsvector ranking with
// title at weight A and abstract at weight B, ties broken by recency.
func (s *Store) SearchText(ctx context.Context, query string, f store.Filter, limit, offset int) ([]*papers.Paper, error) {
	var sb strings.Builder
	args := []any{query}
	sb.WriteString("SELECT " + paperColumns + `, ts_rank(p.search_vector, q) AS rank
		FROM papers p, plainto_tsquery('english', $1) q
		WHERE p.search_vector @@ q`)
	appendFilter(&sb, &args, f)
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY rank DESC, p.created DESC, p.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: text search: %w", err)
	}
	defer rows.Close()

	var out []*papers.Paper
	for rows.Next() {
		var (
			p       papers.Paper
			updated *time.Time
			rank    float32
		)
		if err := rows.Scan(&p.ID, &p.ArxivID, &p.Title, &p.Abstract, &p.Created, &updated, &p.Categories, &rank); err != nil {
			return nil, fmt.Errorf("postgres: text search scan: %w", err)
		}
		if updated != nil {
			p.Updated = *updated
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: text search rows: %w", err)
	}
	if err := s.attachAuthors(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchTitle implements store.PaperStore: case-insensitive substring match
// ordered newest first.
func (s *Store) SearchTitle(ctx context.Context, substr string, f store.Filter, limit, offset int) ([]*papers.Paper, error) {
	var sb strings.Builder
	args := []any{substr}
	sb.WriteString("SELECT " + paperColumns + ` FROM papers p
		WHERE p.title ILIKE '%' || $1 || '%'`)
	appendFilter(&sb, &args, f)
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY p.created DESC, p.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: title search: %w", err)
	}
	out, err := collectPapers(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: title search scan: %w", err)
	}
	if err := s.attachAuthors(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PapersByIDs loads full rows for a batch of ids, for hydrating hits from an
// external vector index. Missing ids are absent from the map.
func (s *Store) PapersByIDs(ctx context.Context, ids []int64) (map[int64]*papers.Paper, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+paperColumns+" FROM papers p WHERE p.id = ANY($1::bigint[])", ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: papers by ids: %w", err)
	}
	list, err := collectPapers(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: papers by ids scan: %w", err)
	}
	if err := s.attachAuthors(ctx, list); err != nil {
		return nil, err
	}
	out := make(map[int64]*papers.Paper, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// attachAuthors loads publication-ordered authors for a batch of papers.
func (s *Store) attachAuthors(ctx context.Context, list []*papers.Paper) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[int64]*papers.Paper, len(list))
	ids := make([]int64, len(list))
	for i, p := range list {
		byID[p.ID] = p
		ids[i] = p.ID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT pa.paper_id, a.id, a.keyname, a.forenames
		FROM paper_authors pa
		JOIN authors a ON a.id = pa.author_id
		WHERE pa.paper_id = ANY($1::bigint[])
		ORDER BY pa.paper_id, pa.position`, ids)
	if err != nil {
		return fmt.Errorf("postgres: load authors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			paperID int64
			a       papers.Author
		)
		if err := rows.Scan(&paperID, &a.ID, &a.Keyname, &a.Forenames); err != nil {
			return fmt.Errorf("postgres: author scan: %w", err)
		}
		if p := byID[paperID]; p != nil {
			p.Authors = append(p.Authors, a)
		}
	}
	return rows.Err()
}

// UpsertPaper writes one harvested record, keyed on arxiv_id, and replaces
// its author list. Re-harvesting the same record is a no-op apart from
// refreshed metadata. Sets p.ID on return.
func (s *Store) UpsertPaper(ctx context.Context, p *papers.Paper) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	var updated *time.Time
	if !p.Updated.IsZero() {
		updated = &p.Updated
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO papers (arxiv_id, title, abstract, created, updated, categories)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (arxiv_id) DO UPDATE SET
			title = EXCLUDED.title,
			abstract = EXCLUDED.abstract,
			updated = EXCLUDED.updated,
			categories = EXCLUDED.categories
		RETURNING id`,
		p.ArxivID, p.Title, p.Abstract, p.Created, updated, p.Categories,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("postgres: upsert paper %s: %w", p.ArxivID, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM paper_authors WHERE paper_id = $1", p.ID); err != nil {
		return fmt.Errorf("postgres: clear authors: %w", err)
	}
	for i := range p.Authors {
		a := &p.Authors[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO authors (keyname, forenames)
			VALUES ($1, $2)
			ON CONFLICT (keyname, forenames) DO UPDATE SET keyname = EXCLUDED.keyname
			RETURNING id`,
			a.Keyname, a.Forenames,
		).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("postgres: upsert author %s: %w", a.Keyname, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO paper_authors (paper_id, author_id, position)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			p.ID, a.ID, i)
		if err != nil {
			return fmt.Errorf("postgres: link author: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit upsert: %w", err)
	}
	return nil
}

// InsertCitations records directed citation edges, skipping duplicates.
func (s *Store) InsertCitations(ctx context.Context, edges []papers.Citation) error {
	for _, e := range edges {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO citations (citing_paper_id, cited_paper_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			e.CitingPaperID, e.CitedPaperID)
		if err != nil {
			return fmt.Errorf("postgres: insert citation: %w", err)
		}
	}
	return nil
}

// MissingEmbeddings lists ids of papers with no embedding under the active
// variant, oldest first, for the batch embedder.
func (s *Store) MissingEmbeddings(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id FROM papers p
		WHERE NOT EXISTS (
			SELECT 1 FROM embeddings e
			WHERE e.paper_id = p.id AND e.model = $1 AND e.kind = $2
		)
		ORDER BY p.id
		LIMIT $3`,
		s.variant.Model, string(s.variant.Kind), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: missing embeddings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: missing embeddings scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
