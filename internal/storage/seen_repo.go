package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"reelflow/internal/models"
	"reelflow/internal/util"
)

type SeenRepo struct {
	db *DB
}

func NewSeenRepo(db *DB) *SeenRepo {
	return &SeenRepo{db: db}
}

// MarkSeen records a confirmation once per consumer and fragment. The
// fragment's watch count only moves when the record is new.
func (r *SeenRepo) MarkSeen(ctx context.Context, rec models.SeenRecord) (bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx mark seen: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM fragments WHERE fragment_id=$1`, rec.FragmentID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("fragment %s: %w", rec.FragmentID, util.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("lookup fragment: %w", err)
	}

	tag, err := tx.Exec(ctx, `
INSERT INTO seen_records(consumer_id, fragment_id, seen_at)
VALUES ($1, $2, $3)
ON CONFLICT (consumer_id, fragment_id) DO NOTHING`, rec.ConsumerID, rec.FragmentID, rec.SeenAt)
	if err != nil {
		return false, fmt.Errorf("insert seen record: %w", err)
	}
	inserted := tag.RowsAffected() == 1
	if inserted {
		if _, err := tx.Exec(ctx, `
UPDATE fragments
SET global_watch_count = global_watch_count + 1, last_exposed_at = $2
WHERE fragment_id = $1`, rec.FragmentID, rec.SeenAt); err != nil {
			return false, fmt.Errorf("increment watch count: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit mark seen tx: %w", err)
	}
	return inserted, nil
}

func (r *SeenRepo) CountSeen(ctx context.Context, consumerID string) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM seen_records WHERE consumer_id=$1`, consumerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count seen records: %w", err)
	}
	return n, nil
}

func (r *SeenRepo) ListSeen(ctx context.Context, consumerID string, limit int) ([]models.SeenRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT consumer_id, fragment_id::text, seen_at
FROM seen_records
WHERE consumer_id=$1
ORDER BY seen_at DESC
LIMIT $2`, consumerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list seen records: %w", err)
	}
	defer rows.Close()

	out := make([]models.SeenRecord, 0)
	for rows.Next() {
		var s models.SeenRecord
		if err := rows.Scan(&s.ConsumerID, &s.FragmentID, &s.SeenAt); err != nil {
			return nil, fmt.Errorf("scan seen record: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen records: %w", err)
	}
	return out, nil
}
