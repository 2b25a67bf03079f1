package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"reelflow/internal/models"
	"reelflow/internal/util"
)

type BookRepo struct {
	db *DB
}

func NewBookRepo(db *DB) *BookRepo {
	return &BookRepo{db: db}
}

func (r *BookRepo) InsertBook(ctx context.Context, b models.Book) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO books (book_id, active, source_path, display_name, generated_cursor, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		b.BookID, b.Active, b.SourcePath, b.DisplayName, b.GeneratedCursor, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (r *BookRepo) GetBook(ctx context.Context, bookID string) (models.Book, error) {
	var b models.Book
	err := r.db.Pool.QueryRow(ctx, `
SELECT book_id::text, active, source_path, display_name, generated_cursor, created_at, updated_at
FROM books
WHERE book_id = $1`, bookID).
		Scan(&b.BookID, &b.Active, &b.SourcePath, &b.DisplayName, &b.GeneratedCursor, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Book{}, fmt.Errorf("get book %s: %w", bookID, util.ErrNotFound)
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

func (r *BookRepo) ListActiveBooks(ctx context.Context) ([]models.Book, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT book_id::text, active, source_path, display_name, generated_cursor, created_at, updated_at
FROM books
WHERE active
ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active books: %w", err)
	}
	defer rows.Close()

	out := make([]models.Book, 0)
	for rows.Next() {
		var b models.Book
		if err := rows.Scan(&b.BookID, &b.Active, &b.SourcePath, &b.DisplayName, &b.GeneratedCursor, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return out, nil
}

// ListBookStatuses reports cursor and buffer depth for every book.
func (r *BookRepo) ListBookStatuses(ctx context.Context) ([]models.BookStatus, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT b.book_id::text, b.active, b.source_path, b.display_name, b.generated_cursor, b.created_at, b.updated_at,
       COUNT(f.fragment_id) FILTER (WHERE f.global_watch_count = 0),
       COUNT(f.fragment_id)
FROM books b
LEFT JOIN fragments f ON f.book_id = b.book_id
GROUP BY b.book_id
ORDER BY b.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list book statuses: %w", err)
	}
	defer rows.Close()

	out := make([]models.BookStatus, 0)
	for rows.Next() {
		var s models.BookStatus
		if err := rows.Scan(&s.BookID, &s.Active, &s.SourcePath, &s.DisplayName, &s.GeneratedCursor, &s.CreatedAt, &s.UpdatedAt, &s.Unwatched, &s.Total); err != nil {
			return nil, fmt.Errorf("scan book status: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate book statuses: %w", err)
	}
	return out, nil
}

func (r *BookRepo) SetBookActive(ctx context.Context, bookID string, active bool) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE books SET active=$2, updated_at=NOW() WHERE book_id=$1`, bookID, active)
	if err != nil {
		return fmt.Errorf("set book active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set book active %s: %w", bookID, util.ErrNotFound)
	}
	return nil
}
