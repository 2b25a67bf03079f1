package storage

import (
	"context"
	"fmt"

	"reelflow/internal/models"
)

type GenerationRunRepo struct {
	db *DB
}

func NewGenerationRunRepo(db *DB) *GenerationRunRepo {
	return &GenerationRunRepo{db: db}
}

func (r *GenerationRunRepo) RecordGeneration(ctx context.Context, run models.GenerationRun) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO generation_runs(run_id, book_id, window_start, window_end, new_cursor, provider_name, model, status, error_type, fragment_count)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, NULLIF($9,''), $10)`,
		run.RunID, run.BookID, run.WindowStart, run.WindowEnd, run.NewCursor, run.ProviderName, run.Model, run.Status, run.ErrorType, run.FragmentCount)
	if err != nil {
		return fmt.Errorf("insert generation run: %w", err)
	}
	return nil
}

// ListGenerationRuns returns the newest audit rows for a book.
func (r *GenerationRunRepo) ListGenerationRuns(ctx context.Context, bookID string, limit int) ([]models.GenerationRun, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT run_id::text, book_id::text, window_start, window_end, new_cursor, provider_name, model, status, COALESCE(error_type,''), fragment_count, created_at
FROM generation_runs
WHERE book_id=$1
ORDER BY created_at DESC
LIMIT $2`, bookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generation runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.GenerationRun, 0)
	for rows.Next() {
		var g models.GenerationRun
		if err := rows.Scan(&g.RunID, &g.BookID, &g.WindowStart, &g.WindowEnd, &g.NewCursor, &g.ProviderName, &g.Model, &g.Status, &g.ErrorType, &g.FragmentCount, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation run: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generation runs: %w", err)
	}
	return out, nil
}
