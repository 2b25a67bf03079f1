package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

// Store groups the repositories behind the interfaces the supply, feed and
// engagement packages consume.
type Store struct {
	*BookRepo
	*FragmentRepo
	*SeenRepo
	*GenerationRunRepo
}

func NewStore(db *DB) *Store {
	return &Store{
		BookRepo:          NewBookRepo(db),
		FragmentRepo:      NewFragmentRepo(db),
		SeenRepo:          NewSeenRepo(db),
		GenerationRunRepo: NewGenerationRunRepo(db),
	}
}
