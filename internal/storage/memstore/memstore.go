// Package memstore is an in-memory implementation of the reelflow store used
// by unit tests and the local demo mode. It follows the same write rules as
// the Postgres repositories.
package memstore

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"reelflow/internal/models"
	"reelflow/internal/util"
)

type Store struct {
	mu        sync.Mutex
	books     map[string]models.Book
	fragments map[string]models.Fragment
	order     []string
	seen      map[string]map[string]time.Time
	runs      []models.GenerationRun
}

func New() *Store {
	return &Store{
		books:     map[string]models.Book{},
		fragments: map[string]models.Fragment{},
		seen:      map[string]map[string]time.Time{},
	}
}

func (s *Store) InsertBook(ctx context.Context, b models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[b.BookID]; ok {
		return fmt.Errorf("insert book %s: %w: duplicate id", b.BookID, util.ErrValidation)
	}
	s.books[b.BookID] = b
	return nil
}

func (s *Store) GetBook(ctx context.Context, bookID string) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok {
		return models.Book{}, fmt.Errorf("get book %s: %w", bookID, util.ErrNotFound)
	}
	return b, nil
}

func (s *Store) ListActiveBooks(ctx context.Context) ([]models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Book, 0, len(s.books))
	for _, b := range s.sortedBooks() {
		if b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) ListBookStatuses(ctx context.Context) ([]models.BookStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BookStatus, 0, len(s.books))
	for _, b := range s.sortedBooks() {
		st := models.BookStatus{Book: b}
		for _, f := range s.fragments {
			if f.BookID != b.BookID {
				continue
			}
			st.Total++
			if f.GlobalWatchCount == 0 {
				st.Unwatched++
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) SetBookActive(ctx context.Context, bookID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok {
		return fmt.Errorf("set book active %s: %w", bookID, util.ErrNotFound)
	}
	b.Active = active
	b.UpdatedAt = time.Now().UTC()
	s.books[bookID] = b
	return nil
}

func (s *Store) CountUnwatched(ctx context.Context, bookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.fragments {
		if f.BookID == bookID && f.GlobalWatchCount == 0 {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountFragments(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fragments), nil
}

func (s *Store) CommitBatch(ctx context.Context, bookID string, prevCursor, newCursor int, fragments []models.Fragment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok {
		return fmt.Errorf("commit batch book %s: %w", bookID, util.ErrNotFound)
	}
	if b.GeneratedCursor != prevCursor {
		return fmt.Errorf("book %s cursor is %d, expected %d: %w", bookID, b.GeneratedCursor, prevCursor, util.ErrCursorConflict)
	}
	for _, f := range fragments {
		if f.BookID != bookID {
			return fmt.Errorf("fragment %s belongs to book %s, not %s: %w", f.FragmentID, f.BookID, bookID, util.ErrValidation)
		}
		if _, dup := s.fragments[f.FragmentID]; dup {
			return fmt.Errorf("fragment %s: %w: duplicate id", f.FragmentID, util.ErrValidation)
		}
	}
	for _, f := range fragments {
		s.fragments[f.FragmentID] = f
		s.order = append(s.order, f.FragmentID)
	}
	b.GeneratedCursor = newCursor
	b.UpdatedAt = time.Now().UTC()
	s.books[bookID] = b
	return nil
}

func (s *Store) MinWatchCount(ctx context.Context) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fragments) == 0 {
		return 0, false, nil
	}
	lowest := -1
	for _, f := range s.fragments {
		if lowest < 0 || f.GlobalWatchCount < lowest {
			lowest = f.GlobalWatchCount
		}
	}
	return lowest, true, nil
}

func (s *Store) SampleFragmentIDs(ctx context.Context, maxWatch, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool := make([]string, 0)
	for _, id := range s.order {
		if s.fragments[id].GlobalWatchCount <= maxWatch {
			pool = append(pool, id)
		}
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > n {
		pool = pool[:n]
	}
	return pool, nil
}

func (s *Store) IncrementWatch(ctx context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		f, ok := s.fragments[id]
		if !ok {
			continue
		}
		s.bump(&f, at)
	}
	return nil
}

func (s *Store) FeedItemsByIDs(ctx context.Context, ids []string) ([]models.FeedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FeedItem, 0, len(ids))
	for _, id := range ids {
		if f, ok := s.fragments[id]; ok {
			out = append(out, s.item(f))
		}
	}
	return out, nil
}

func (s *Store) ListUnseen(ctx context.Context, consumerID string, limit int) ([]models.FeedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := s.seen[consumerID]
	frags := make([]models.Fragment, 0, len(s.fragments))
	for _, f := range s.fragments {
		if _, ok := seen[f.FragmentID]; !ok {
			frags = append(frags, f)
		}
	}
	sort.Slice(frags, func(i, j int) bool {
		if !frags[i].CreatedAt.Equal(frags[j].CreatedAt) {
			return frags[i].CreatedAt.Before(frags[j].CreatedAt)
		}
		return frags[i].FragmentID < frags[j].FragmentID
	})
	if len(frags) > limit {
		frags = frags[:limit]
	}
	out := make([]models.FeedItem, 0, len(frags))
	for _, f := range frags {
		out = append(out, s.item(f))
	}
	return out, nil
}

func (s *Store) MarkSeen(ctx context.Context, rec models.SeenRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fragments[rec.FragmentID]
	if !ok {
		return false, fmt.Errorf("fragment %s: %w", rec.FragmentID, util.ErrNotFound)
	}
	set := s.seen[rec.ConsumerID]
	if set == nil {
		set = map[string]time.Time{}
		s.seen[rec.ConsumerID] = set
	}
	if _, dup := set[rec.FragmentID]; dup {
		return false, nil
	}
	set[rec.FragmentID] = rec.SeenAt
	s.bump(&f, rec.SeenAt)
	return true, nil
}

func (s *Store) CountSeen(ctx context.Context, consumerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen[consumerID]), nil
}

func (s *Store) ListSeen(ctx context.Context, consumerID string, limit int) ([]models.SeenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SeenRecord, 0, len(s.seen[consumerID]))
	for id, at := range s.seen[consumerID] {
		out = append(out, models.SeenRecord{ConsumerID: consumerID, FragmentID: id, SeenAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeenAt.After(out[j].SeenAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RecordGeneration(ctx context.Context, run models.GenerationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) ListGenerationRuns(ctx context.Context, bookID string, limit int) ([]models.GenerationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.GenerationRun, 0)
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.runs[i].BookID == bookID {
			out = append(out, s.runs[i])
		}
	}
	return out, nil
}

// Fragments returns every fragment of a book in insertion order.
func (s *Store) Fragments(bookID string) []models.Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Fragment, 0)
	for _, id := range s.order {
		if f := s.fragments[id]; f.BookID == bookID {
			out = append(out, f)
		}
	}
	return out
}

func (s *Store) Fragment(id string) (models.Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fragments[id]
	return f, ok
}

func (s *Store) bump(f *models.Fragment, at time.Time) {
	at = at.UTC()
	f.GlobalWatchCount++
	f.LastExposedAt = &at
	s.fragments[f.FragmentID] = *f
}

func (s *Store) item(f models.Fragment) models.FeedItem {
	return models.FeedItem{Fragment: f, BookDisplayName: s.books[f.BookID].DisplayName}
}

func (s *Store) sortedBooks() []models.Book {
	out := make([]models.Book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].BookID < out[j].BookID
	})
	return out
}
