// Package supply keeps every active book's buffer of unwatched fragments
// topped up. One pass walks the active books; each book is planned, generated
// and committed independently so a failing book never stops the others.
package supply

import (
	"context"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/cursor"
	"reelflow/internal/models"
	"reelflow/internal/providers"
)

type Store interface {
	ListActiveBooks(ctx context.Context) ([]models.Book, error)
	GetBook(ctx context.Context, bookID string) (models.Book, error)
	CountUnwatched(ctx context.Context, bookID string) (int, error)
	CommitBatch(ctx context.Context, bookID string, prevCursor, newCursor int, fragments []models.Fragment) error
}

type Auditor interface {
	RecordGeneration(ctx context.Context, run models.GenerationRun) error
}

type Extractor interface {
	Extract(ctx context.Context, sourcePath string) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, providers.ProviderInfo, error)
}

// Outcome is the terminal state of one book within a pass.
type Outcome string

const (
	OutcomeReady              Outcome = "ready"
	OutcomeHealthy            Outcome = "healthy"
	OutcomeToppedUp           Outcome = "topped_up"
	OutcomeExhausted          Outcome = "exhausted"
	OutcomeExtractionFailed   Outcome = "extraction_failed"
	OutcomeGenerationFailed   Outcome = "generation_failed"
	OutcomeGenerationDisabled Outcome = "generation_disabled"
	OutcomeCommitFailed       Outcome = "commit_failed"
	OutcomeStoreFailed        Outcome = "store_failed"
	OutcomeInFlight           Outcome = "in_flight"
)

type Settings struct {
	MinBuffer          int
	ChunkSize          int
	OverlapPadding     int
	MaxConcurrentBooks int
	ExtractTimeout     time.Duration
	GenerateTimeout    time.Duration
	StoreTimeout       time.Duration
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		MinBuffer:          cfg.MinBuffer,
		ChunkSize:          cfg.ChunkSize,
		OverlapPadding:     cfg.OverlapPadding,
		MaxConcurrentBooks: cfg.MaxConcurrentBooks,
		ExtractTimeout:     cfg.ExtractTimeout,
		GenerateTimeout:    cfg.GenerateTimeout,
		StoreTimeout:       cfg.StoreTimeout,
	}
}

// Plan is what a pass decided for one book before calling the completion
// service. Text holds only the window slice, never the whole book.
type Plan struct {
	BookID    string        `json:"book_id"`
	Outcome   Outcome       `json:"outcome"`
	Unwatched int           `json:"unwatched"`
	TextLen   int           `json:"text_len"`
	Window    cursor.Window `json:"window"`
	Text      string        `json:"text,omitempty"`
}

// Generation is the parsed completion output for one planned window.
type Generation struct {
	Outcome  Outcome  `json:"outcome"`
	Texts    []string `json:"texts,omitempty"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
}

type BookResult struct {
	BookID    string  `json:"book_id"`
	Outcome   Outcome `json:"outcome"`
	Fragments int     `json:"fragments"`
	Error     string  `json:"error,omitempty"`
}

// PassSummary counts book outcomes for one pass.
type PassSummary struct {
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Books     int             `json:"books"`
	Outcomes  map[Outcome]int `json:"outcomes"`
	Fragments int             `json:"fragments"`
	Exhausted []string        `json:"exhausted,omitempty"`
}

func NewPassSummary(startedAt time.Time) PassSummary {
	return PassSummary{StartedAt: startedAt, Outcomes: map[Outcome]int{}}
}

func (s *PassSummary) Add(r BookResult) {
	s.Books++
	s.Outcomes[r.Outcome]++
	s.Fragments += r.Fragments
	if r.Outcome == OutcomeExhausted {
		s.Exhausted = append(s.Exhausted, r.BookID)
	}
}
