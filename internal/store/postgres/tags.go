package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/igm503/arxiv-troller/internal/papers"
	"github.com/igm503/arxiv-troller/internal/store"
)

func scanTag(row pgx.Row) (*papers.Tag, error) {
	var t papers.Tag
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TagByID implements store.TagStore. Tags are visible to their owner only.
func (s *Store) TagByID(ctx context.Context, userID, tagID int64) (*papers.Tag, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM tags WHERE id = $1 AND user_id = $2`, tagID, userID)
	t, err := scanTag(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: tag by id: %w", err)
	}
	return t, nil
}

// TagByName implements store.TagStore.
func (s *Store) TagByName(ctx context.Context, userID int64, name string) (*papers.Tag, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM tags WHERE user_id = $1 AND name = $2`, userID, name)
	t, err := scanTag(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: tag by name: %w", err)
	}
	return t, nil
}

func memberOrderBy(order store.MemberSort) string {
	switch order {
	case store.SortAlpha:
		return "p.title ASC"
	case store.SortSubmitted:
		return "p.created DESC"
	case store.SortUpdated:
		return "p.updated DESC NULLS LAST"
	default:
		return "tp.added_at DESC"
	}
}

// TagMembers implements store.TagStore: the tag's papers in drawer order.
func (s *Store) TagMembers(ctx context.Context, tagID int64, order store.MemberSort) ([]papers.TaggedPaper, error) {
	tag, err := s.tagAnyOwner(ctx, tagID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+paperColumns+`, tp.added_at
		FROM tagged_papers tp
		JOIN papers p ON p.id = tp.paper_id
		WHERE tp.tag_id = $1
		ORDER BY `+memberOrderBy(order), tagID)
	if err != nil {
		return nil, fmt.Errorf("postgres: tag members: %w", err)
	}
	defer rows.Close()

	var members []papers.TaggedPaper
	for rows.Next() {
		var (
			p       papers.Paper
			updated *time.Time
			added   time.Time
		)
		if err := rows.Scan(&p.ID, &p.ArxivID, &p.Title, &p.Abstract, &p.Created, &updated, &p.Categories, &added); err != nil {
			return nil, fmt.Errorf("postgres: tag member scan: %w", err)
		}
		if updated != nil {
			p.Updated = *updated
		}
		members = append(members, papers.TaggedPaper{Tag: tag, Paper: &p, AddedAt: added})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: tag member rows: %w", err)
	}

	list := make([]*papers.Paper, len(members))
	for i := range members {
		list[i] = members[i].Paper
	}
	if err := s.attachAuthors(ctx, list); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) tagAnyOwner(ctx context.Context, tagID int64) (*papers.Tag, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM tags WHERE id = $1`, tagID)
	t, err := scanTag(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: tag lookup: %w", err)
	}
	return t, nil
}

// TagsForPapers implements store.TagStore: per paper, the sorted names of the
// user's tags containing it.
func (s *Store) TagsForPapers(ctx context.Context, userID int64, paperIDs []int64) (map[int64][]string, error) {
	if len(paperIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT tp.paper_id, t.name
		FROM tagged_papers tp
		JOIN tags t ON t.id = tp.tag_id
		WHERE t.user_id = $1 AND tp.paper_id = ANY($2::bigint[])`,
		userID, paperIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: tags for papers: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var (
			paperID int64
			name    string
		)
		if err := rows.Scan(&paperID, &name); err != nil {
			return nil, fmt.Errorf("postgres: tags for papers scan: %w", err)
		}
		out[paperID] = append(out[paperID], name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: tags for papers rows: %w", err)
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out, nil
}
