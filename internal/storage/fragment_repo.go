package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reelflow/internal/models"
	"reelflow/internal/util"
)

type FragmentRepo struct {
	db *DB
}

func NewFragmentRepo(db *DB) *FragmentRepo {
	return &FragmentRepo{db: db}
}

func (r *FragmentRepo) CountUnwatched(ctx context.Context, bookID string) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM fragments WHERE book_id=$1 AND global_watch_count=0`, bookID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unwatched fragments: %w", err)
	}
	return n, nil
}

func (r *FragmentRepo) CountFragments(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count fragments: %w", err)
	}
	return n, nil
}

// CommitBatch inserts one generated batch and advances the book cursor in a
// single transaction. The cursor only moves if it still equals prevCursor.
func (r *FragmentRepo) CommitBatch(ctx context.Context, bookID string, prevCursor, newCursor int, fragments []models.Fragment) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx commit batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var current int
	err = tx.QueryRow(ctx, `SELECT generated_cursor FROM books WHERE book_id=$1 FOR UPDATE`, bookID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("commit batch book %s: %w", bookID, util.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock book cursor: %w", err)
	}
	if current != prevCursor {
		return fmt.Errorf("book %s cursor is %d, expected %d: %w", bookID, current, prevCursor, util.ErrCursorConflict)
	}

	rows := make([][]any, 0, len(fragments))
	for _, f := range fragments {
		if f.BookID != bookID {
			return fmt.Errorf("fragment %s belongs to book %s, not %s: %w", f.FragmentID, f.BookID, bookID, util.ErrValidation)
		}
		rows = append(rows, []any{f.FragmentID, f.BookID, f.Text, f.GlobalWatchCount, f.CreatedAt})
	}
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"fragments"},
		[]string{"fragment_id", "book_id", "text", "global_watch_count", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert fragments: %w", err)
	}
	if int(n) != len(fragments) {
		return fmt.Errorf("insert fragments: wrote %d of %d rows", n, len(fragments))
	}

	if _, err := tx.Exec(ctx, `UPDATE books SET generated_cursor=$2, updated_at=NOW() WHERE book_id=$1`, bookID, newCursor); err != nil {
		return fmt.Errorf("advance book cursor: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch tx: %w", err)
	}
	return nil
}

// MinWatchCount reports false when there are no fragments at all.
func (r *FragmentRepo) MinWatchCount(ctx context.Context) (int, bool, error) {
	var min *int
	if err := r.db.Pool.QueryRow(ctx, `SELECT MIN(global_watch_count) FROM fragments`).Scan(&min); err != nil {
		return 0, false, fmt.Errorf("min watch count: %w", err)
	}
	if min == nil {
		return 0, false, nil
	}
	return *min, true, nil
}

func (r *FragmentRepo) SampleFragmentIDs(ctx context.Context, maxWatch, n int) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT fragment_id::text
FROM fragments
WHERE global_watch_count <= $1
ORDER BY random()
LIMIT $2`, maxWatch, n)
	if err != nil {
		return nil, fmt.Errorf("sample fragments: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect sampled fragments: %w", err)
	}
	return ids, nil
}

func (r *FragmentRepo) IncrementWatch(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, `
UPDATE fragments
SET global_watch_count = global_watch_count + 1, last_exposed_at = $2
WHERE fragment_id = ANY($1::uuid[])`, ids, at)
	if err != nil {
		return fmt.Errorf("increment watch counts: %w", err)
	}
	return nil
}

// FeedItemsByIDs returns the fragments in the order of ids.
func (r *FragmentRepo) FeedItemsByIDs(ctx context.Context, ids []string) ([]models.FeedItem, error) {
	if len(ids) == 0 {
		return []models.FeedItem{}, nil
	}
	rows, err := r.db.Pool.Query(ctx, feedItemSelect+`
WHERE f.fragment_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("feed items by ids: %w", err)
	}
	items, err := scanFeedItems(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.FeedItem, len(items))
	for _, it := range items {
		byID[it.FragmentID] = it
	}
	out := make([]models.FeedItem, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// ListUnseen returns the oldest fragments the consumer has no seen record for.
func (r *FragmentRepo) ListUnseen(ctx context.Context, consumerID string, limit int) ([]models.FeedItem, error) {
	rows, err := r.db.Pool.Query(ctx, feedItemSelect+`
WHERE NOT EXISTS (
  SELECT 1 FROM seen_records s WHERE s.consumer_id = $1 AND s.fragment_id = f.fragment_id
)
ORDER BY f.created_at ASC, f.fragment_id ASC
LIMIT $2`, consumerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unseen fragments: %w", err)
	}
	return scanFeedItems(rows)
}

const feedItemSelect = `
SELECT f.fragment_id::text, f.book_id::text, f.text, f.global_watch_count, f.last_exposed_at, f.created_at, b.display_name
FROM fragments f
JOIN books b ON b.book_id = f.book_id`

func scanFeedItems(rows pgx.Rows) ([]models.FeedItem, error) {
	defer rows.Close()
	out := make([]models.FeedItem, 0)
	for rows.Next() {
		var it models.FeedItem
		if err := rows.Scan(&it.FragmentID, &it.BookID, &it.Text, &it.GlobalWatchCount, &it.LastExposedAt, &it.CreatedAt, &it.BookDisplayName); err != nil {
			return nil, fmt.Errorf("scan feed item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed items: %w", err)
	}
	return out, nil
}
