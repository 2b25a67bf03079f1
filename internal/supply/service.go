package supply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reelflow/internal/cursor"
	"reelflow/internal/logger"
	"reelflow/internal/metrics"
	"reelflow/internal/models"
	"reelflow/internal/providers"
	"reelflow/internal/util"
)

type Service struct {
	store     Store
	audit     Auditor
	extractor Extractor
	completer Completer
	settings  Settings
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, audit Auditor, extractor Extractor, completer Completer, settings Settings, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		store:     store,
		audit:     audit,
		extractor: extractor,
		completer: completer,
		settings:  settings,
		log:       log.With("service", "supply"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Settings() Settings {
	return s.settings
}

func (s *Service) ActiveBooks(ctx context.Context) ([]models.Book, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.ListActiveBooks(ctx)
}

// Plan decides whether a book needs fragments and, if so, which window of its
// text to send. A returned error always comes with a terminal Outcome.
func (s *Service) Plan(ctx context.Context, bookID string) (Plan, error) {
	plan := Plan{BookID: bookID}

	sctx, cancel := s.storeCtx(ctx)
	book, err := s.store.GetBook(sctx, bookID)
	cancel()
	if err != nil {
		plan.Outcome = OutcomeStoreFailed
		s.observe(plan.Outcome, 0)
		return plan, fmt.Errorf("load book %s: %w", bookID, err)
	}

	sctx, cancel = s.storeCtx(ctx)
	unwatched, err := s.store.CountUnwatched(sctx, bookID)
	cancel()
	if err != nil {
		plan.Outcome = OutcomeStoreFailed
		s.observe(plan.Outcome, 0)
		return plan, fmt.Errorf("count unwatched for %s: %w", bookID, err)
	}
	plan.Unwatched = unwatched
	if unwatched > s.settings.MinBuffer {
		plan.Outcome = OutcomeHealthy
		s.observe(plan.Outcome, 0)
		return plan, nil
	}

	ectx, cancel := context.WithTimeout(ctx, s.settings.ExtractTimeout)
	text, err := s.extractor.Extract(ectx, book.SourcePath)
	cancel()
	if err != nil {
		plan.Outcome = OutcomeExtractionFailed
		s.observe(plan.Outcome, 0)
		if !errors.Is(err, util.ErrExtraction) {
			err = fmt.Errorf("%w: %w", util.ErrExtraction, err)
		}
		return plan, err
	}

	runes := []rune(text)
	plan.TextLen = len(runes)
	w, ok := cursor.Next(book.GeneratedCursor, len(runes), s.settings.ChunkSize, s.settings.OverlapPadding)
	if !ok {
		plan.Outcome = OutcomeExhausted
		s.observe(plan.Outcome, 0)
		s.log.Warn("book exhausted, buffer can no longer be replenished",
			"book_id", bookID, "unwatched", unwatched, "text_len", len(runes))
		return plan, nil
	}
	plan.Outcome = OutcomeReady
	plan.Window = w
	plan.Text = w.Slice(runes)
	return plan, nil
}

// Generate asks the completion service for fragments of a ready plan and
// parses the reply. Nothing is written to the fragment store here.
func (s *Service) Generate(ctx context.Context, plan Plan) (Generation, error) {
	if plan.Outcome != OutcomeReady {
		return Generation{Outcome: plan.Outcome}, nil
	}
	gctx, cancel := context.WithTimeout(ctx, s.settings.GenerateTimeout)
	raw, info, err := s.completer.Complete(gctx, providers.ReelSystemPrompt, plan.Text)
	cancel()
	gen := Generation{Provider: info.Name, Model: info.Model}
	run := models.GenerationRun{
		BookID:       plan.BookID,
		WindowStart:  plan.Window.Start,
		WindowEnd:    plan.Window.End,
		NewCursor:    plan.Window.NewCursor,
		ProviderName: info.Name,
		Model:        info.Model,
	}

	if err != nil {
		gen.Outcome = OutcomeGenerationFailed
		run.Status = "failed"
		run.ErrorType = string(providers.ClassifyError(err))
		s.record(ctx, run)
		s.observe(gen.Outcome, 0)
		return gen, fmt.Errorf("%w: book %s: %w", util.ErrGeneration, plan.BookID, err)
	}
	if strings.TrimSpace(raw) == "" && info.Name == "disabled" {
		gen.Outcome = OutcomeGenerationDisabled
		run.Status = "disabled"
		s.record(ctx, run)
		s.observe(gen.Outcome, 0)
		return gen, nil
	}

	texts, err := ParseFragments(raw)
	if err != nil {
		gen.Outcome = OutcomeGenerationFailed
		run.Status = "failed"
		run.ErrorType = string(providers.ErrorMalformed)
		s.log.Warn("completion output rejected", "book_id", plan.BookID, "output", util.Preview(raw, 200))
		s.record(ctx, run)
		s.observe(gen.Outcome, 0)
		return gen, fmt.Errorf("book %s: %w", plan.BookID, err)
	}
	gen.Outcome = OutcomeReady
	gen.Texts = texts
	run.Status = "generated"
	run.FragmentCount = len(texts)
	s.record(ctx, run)
	return gen, nil
}

// Commit stores the fragments and then moves the cursor, atomically. It fails
// with util.ErrCursorConflict if the book moved since the plan was made.
func (s *Service) Commit(ctx context.Context, plan Plan, texts []string) (int, error) {
	frags, err := models.NewFragmentBatch(plan.BookID, texts, s.now())
	if err != nil {
		s.observe(OutcomeCommitFailed, 0)
		return 0, fmt.Errorf("build fragments for %s: %w", plan.BookID, err)
	}
	sctx, cancel := s.storeCtx(ctx)
	err = s.store.CommitBatch(sctx, plan.BookID, plan.Window.Cursor, plan.Window.NewCursor, frags)
	cancel()
	if err != nil {
		s.observe(OutcomeCommitFailed, 0)
		return 0, fmt.Errorf("commit batch for %s: %w", plan.BookID, err)
	}
	s.observe(OutcomeToppedUp, len(frags))
	s.log.Info("book topped up",
		"book_id", plan.BookID,
		"fragments", len(frags),
		"cursor", plan.Window.Cursor,
		"new_cursor", plan.Window.NewCursor)
	return len(frags), nil
}

// TopUp runs plan, generate and commit for one book. Failures are logged and
// reported in the result, never returned.
func (s *Service) TopUp(ctx context.Context, bookID string) BookResult {
	res := BookResult{BookID: bookID}
	plan, err := s.Plan(ctx, bookID)
	if err != nil || plan.Outcome != OutcomeReady {
		res.Outcome = plan.Outcome
		return s.finish(res, err)
	}
	gen, err := s.Generate(ctx, plan)
	if err != nil || gen.Outcome != OutcomeReady {
		res.Outcome = gen.Outcome
		return s.finish(res, err)
	}
	n, err := s.Commit(ctx, plan, gen.Texts)
	if err != nil {
		res.Outcome = OutcomeCommitFailed
		return s.finish(res, err)
	}
	res.Outcome = OutcomeToppedUp
	res.Fragments = n
	return res
}

// RunPass tops up every active book once, at most MaxConcurrentBooks at a
// time. Only a failure to list books is returned as an error.
func (s *Service) RunPass(ctx context.Context) (PassSummary, error) {
	summary := NewPassSummary(s.now())
	s.log.Info("supply pass started")

	books, err := s.ActiveBooks(ctx)
	if err != nil {
		s.log.Error("supply pass could not list books", "error", err)
		return summary, fmt.Errorf("list active books: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.settings.MaxConcurrentBooks))
	for _, b := range books {
		bookID := b.BookID
		g.Go(func() error {
			res := s.TopUp(gctx, bookID)
			mu.Lock()
			summary.Add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = s.now().Sub(summary.StartedAt)
	if s.metrics != nil {
		s.metrics.ObservePass(summary.Duration.Seconds())
	}
	s.log.Info("supply pass finished",
		"books", summary.Books,
		"fragments", summary.Fragments,
		"outcomes", summary.Outcomes,
		"duration", summary.Duration.String())
	return summary, nil
}

func (s *Service) finish(res BookResult, err error) BookResult {
	if err != nil {
		res.Error = err.Error()
		s.log.Warn("book skipped", "book_id", res.BookID, "outcome", string(res.Outcome), "error", err)
	}
	return res
}

func (s *Service) record(ctx context.Context, run models.GenerationRun) {
	if s.audit == nil {
		return
	}
	run.CreatedAt = s.now()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.audit.RecordGeneration(sctx, run); err != nil {
		s.log.Warn("generation audit write failed", "book_id", run.BookID, "error", err)
	}
}

func (s *Service) observe(outcome Outcome, fragments int) {
	s.metrics.ObserveBook(string(outcome), fragments)
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.settings.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.settings.StoreTimeout)
}
