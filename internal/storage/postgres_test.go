package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"reelflow/internal/models"
	"reelflow/internal/util"
)

// openTestStore connects to REELFLOW_TEST_POSTGRES_URL and removes every row
// the test created when it finishes.
func openTestStore(t *testing.T) (*Store, *DB) {
	t.Helper()
	dsn := os.Getenv("REELFLOW_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("REELFLOW_TEST_POSTGRES_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := NewDB(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(db.Close)
	return NewStore(db), db
}

func seedPGBook(t *testing.T, store *Store, db *DB) models.Book {
	t.Helper()
	b, err := models.NewBook("it/"+uuid.NewString()+".txt", "Integration")
	require.NoError(t, err)
	require.NoError(t, store.InsertBook(context.Background(), b))
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = db.Pool.Exec(ctx, `DELETE FROM seen_records WHERE fragment_id IN (SELECT fragment_id FROM fragments WHERE book_id=$1)`, b.BookID)
		_, _ = db.Pool.Exec(ctx, `DELETE FROM fragments WHERE book_id=$1`, b.BookID)
		_, _ = db.Pool.Exec(ctx, `DELETE FROM generation_runs WHERE book_id=$1`, b.BookID)
		_, _ = db.Pool.Exec(ctx, `DELETE FROM books WHERE book_id=$1`, b.BookID)
	})
	return b
}

func batchOf(t *testing.T, bookID string, n int) []models.Fragment {
	t.Helper()
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("Reel %d of %s.", i+1, bookID[:8])
	}
	frags, err := models.NewFragmentBatch(bookID, texts, time.Now().UTC())
	require.NoError(t, err)
	return frags
}

func TestPostgresCommitBatchComparesCursor(t *testing.T) {
	store, db := openTestStore(t)
	ctx := context.Background()
	b := seedPGBook(t, store, db)

	require.NoError(t, store.CommitBatch(ctx, b.BookID, 0, 4000, batchOf(t, b.BookID, 12)))

	err := store.CommitBatch(ctx, b.BookID, 0, 4000, batchOf(t, b.BookID, 12))
	require.ErrorIs(t, err, util.ErrCursorConflict)

	got, err := store.GetBook(ctx, b.BookID)
	require.NoError(t, err)
	require.Equal(t, 4000, got.GeneratedCursor)
	unwatched, err := store.CountUnwatched(ctx, b.BookID)
	require.NoError(t, err)
	require.Equal(t, 12, unwatched, "a rejected batch must leave no fragments behind")

	err = store.CommitBatch(ctx, uuid.NewString(), 0, 10, nil)
	require.ErrorIs(t, err, util.ErrNotFound)
}

func TestPostgresConcurrentCommitsAdvanceOnce(t *testing.T) {
	store, db := openTestStore(t)
	ctx := context.Background()
	b := seedPGBook(t, store, db)

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		frags := batchOf(t, b.BookID, 3)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.CommitBatch(ctx, b.BookID, 0, 4000, frags)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, util.ErrCursorConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(7), conflicts.Load())
	unwatched, err := store.CountUnwatched(ctx, b.BookID)
	require.NoError(t, err)
	require.Equal(t, 3, unwatched)
}

func TestPostgresMarkSeenIsIdempotentUnderRace(t *testing.T) {
	store, db := openTestStore(t)
	ctx := context.Background()
	b := seedPGBook(t, store, db)
	frags := batchOf(t, b.BookID, 2)
	require.NoError(t, store.CommitBatch(ctx, b.BookID, 0, 100, frags))

	consumer := "it-" + uuid.NewString()
	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := models.NewSeenRecord(consumer, frags[0].FragmentID, time.Now().UTC())
			if err != nil {
				return
			}
			ok, err := store.MarkSeen(ctx, rec)
			if err == nil && ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), created.Load())

	items, err := store.FeedItemsByIDs(ctx, []string{frags[1].FragmentID, frags[0].FragmentID})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, frags[1].FragmentID, items[0].FragmentID)
	require.Equal(t, 1, items[1].GlobalWatchCount)
	require.Zero(t, items[0].GlobalWatchCount)

	n, err := store.CountSeen(ctx, consumer)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	unseen, err := store.ListUnseen(ctx, consumer, 1000)
	require.NoError(t, err)
	for _, it := range unseen {
		require.NotEqual(t, frags[0].FragmentID, it.FragmentID)
	}

	rec, err := models.NewSeenRecord(consumer, uuid.NewString(), time.Now().UTC())
	require.NoError(t, err)
	_, err = store.MarkSeen(ctx, rec)
	require.ErrorIs(t, err, util.ErrNotFound)
}
