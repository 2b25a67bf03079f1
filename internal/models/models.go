package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelflow/internal/util"
)

// Book is a source document tracked for incremental fragment generation.
type Book struct {
	BookID          string    `json:"book_id"`
	Active          bool      `json:"active"`
	SourcePath      string    `json:"source_path"`
	DisplayName     string    `json:"display_name"`
	GeneratedCursor int       `json:"generated_cursor"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewBook(sourcePath, displayName string) (Book, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	displayName = strings.TrimSpace(displayName)
	if sourcePath == "" {
		return Book{}, fmt.Errorf("%w: book source path is required", util.ErrValidation)
	}
	if displayName == "" {
		return Book{}, fmt.Errorf("%w: book display name is required", util.ErrValidation)
	}
	now := time.Now().UTC()
	return Book{
		BookID:      uuid.NewString(),
		Active:      true,
		SourcePath:  sourcePath,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Fragment is one generated reel. Text is immutable after creation.
type Fragment struct {
	FragmentID       string     `json:"fragment_id"`
	BookID           string     `json:"book_id"`
	Text             string     `json:"text"`
	GlobalWatchCount int        `json:"global_watch_count"`
	LastExposedAt    *time.Time `json:"last_exposed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func NewFragment(bookID, text string, createdAt time.Time) (Fragment, error) {
	if strings.TrimSpace(bookID) == "" {
		return Fragment{}, fmt.Errorf("%w: fragment book id is required", util.ErrValidation)
	}
	text = util.SanitizeText(text)
	if text == "" {
		return Fragment{}, fmt.Errorf("%w: fragment text is empty", util.ErrValidation)
	}
	return Fragment{
		FragmentID: uuid.NewString(),
		BookID:     bookID,
		Text:       text,
		CreatedAt:  createdAt.UTC(),
	}, nil
}

// NewFragmentBatch builds one batch from a single completion response. The
// batch shares a base timestamp and each entry is one microsecond apart so the
// generation order survives a created_at sort.
func NewFragmentBatch(bookID string, texts []string, at time.Time) ([]Fragment, error) {
	out := make([]Fragment, 0, len(texts))
	for i, t := range texts {
		f, err := NewFragment(bookID, t, at.Add(time.Duration(i)*time.Microsecond))
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// SeenRecord marks that a consumer has been shown a fragment.
type SeenRecord struct {
	ConsumerID string    `json:"consumer_id"`
	FragmentID string    `json:"fragment_id"`
	SeenAt     time.Time `json:"seen_at"`
}

func NewSeenRecord(consumerID, fragmentID string, at time.Time) (SeenRecord, error) {
	consumerID = strings.TrimSpace(consumerID)
	fragmentID = strings.TrimSpace(fragmentID)
	if consumerID == "" {
		return SeenRecord{}, fmt.Errorf("%w: consumer id is required", util.ErrValidation)
	}
	if fragmentID == "" {
		return SeenRecord{}, fmt.Errorf("%w: fragment id is required", util.ErrValidation)
	}
	return SeenRecord{ConsumerID: consumerID, FragmentID: fragmentID, SeenAt: at.UTC()}, nil
}

// FeedItem is a fragment joined with the book metadata a client needs.
type FeedItem struct {
	Fragment
	BookDisplayName string `json:"book_display_name"`
}

// BookStatus is an operator view of a book's supply state.
type BookStatus struct {
	Book
	Unwatched int `json:"unwatched"`
	Total     int `json:"total"`
}

// GenerationRun is the audit row for one completion attempt.
type GenerationRun struct {
	RunID         string    `json:"run_id"`
	BookID        string    `json:"book_id"`
	WindowStart   int       `json:"window_start"`
	WindowEnd     int       `json:"window_end"`
	NewCursor     int       `json:"new_cursor"`
	ProviderName  string    `json:"provider_name"`
	Model         string    `json:"model"`
	Status        string    `json:"status"`
	ErrorType     string    `json:"error_type,omitempty"`
	FragmentCount int       `json:"fragment_count"`
	CreatedAt     time.Time `json:"created_at"`
}
