package supply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reelflow/internal/models"
	"reelflow/internal/providers"
	"reelflow/internal/storage/memstore"
	"reelflow/internal/util"
)

var (
	_ Store   = (*memstore.Store)(nil)
	_ Auditor = (*memstore.Store)(nil)
)

type mapExtractor map[string]string

func (m mapExtractor) Extract(ctx context.Context, path string) (string, error) {
	text, ok := m[path]
	if !ok {
		return "", fmt.Errorf("%w: %s: missing", util.ErrExtraction, path)
	}
	return text, nil
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, system, prompt string) (string, providers.ProviderInfo, error) {
	args := m.Called(ctx, system, prompt)
	return args.String(0), args.Get(1).(providers.ProviderInfo), args.Error(2)
}

var openAI = providers.ProviderInfo{Name: "openai", Model: "gpt-4o-mini"}

func testSettings() Settings {
	return Settings{
		MinBuffer:          20,
		ChunkSize:          4000,
		OverlapPadding:     20,
		MaxConcurrentBooks: 2,
		ExtractTimeout:     time.Second,
		GenerateTimeout:    time.Second,
		StoreTimeout:       time.Second,
	}
}

func jsonArray(t *testing.T, n int) string {
	t.Helper()
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("Insight number %d.", i+1)
	}
	raw, err := json.Marshal(items)
	require.NoError(t, err)
	return string(raw)
}

func seedBook(t *testing.T, store *memstore.Store, path string) models.Book {
	t.Helper()
	b, err := models.NewBook(path, "Book "+path)
	require.NoError(t, err)
	require.NoError(t, store.InsertBook(context.Background(), b))
	return b
}

func TestTopUpFirstWindowOfLongBook(t *testing.T) {
	store := memstore.New()
	book := seedBook(t, store, "long.txt")
	text := strings.Repeat("a", 8000)
	comp := &mockCompleter{}
	comp.On("Complete", mock.Anything, providers.ReelSystemPrompt, text[:4020]).Return(jsonArray(t, 12), openAI, nil).Once()

	svc := NewService(store, store, mapExtractor{"long.txt": text}, comp, testSettings(), nil)
	res := svc.TopUp(context.Background(), book.BookID)

	require.Equal(t, OutcomeToppedUp, res.Outcome)
	require.Equal(t, 12, res.Fragments)
	comp.AssertExpectations(t)

	got, err := store.GetBook(context.Background(), book.BookID)
	require.NoError(t, err)
	require.Equal(t, 4000, got.GeneratedCursor)

	frags := store.Fragments(book.BookID)
	require.Len(t, frags, 12)
	for i, f := range frags {
		require.Equal(t, fmt.Sprintf("Insight number %d.", i+1), f.Text)
		require.Zero(t, f.GlobalWatchCount)
		if i > 0 {
			require.True(t, frags[i-1].CreatedAt.Before(f.CreatedAt))
		}
	}

	runs, err := store.ListGenerationRuns(context.Background(), book.BookID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "generated", runs[0].Status)
	require.Equal(t, 0, runs[0].WindowStart)
	require.Equal(t, 4020, runs[0].WindowEnd)
	require.Equal(t, 12, runs[0].FragmentCount)
}

func TestTopUpSecondWindowCarriesOverlap(t *testing.T) {
	store := memstore.New()
	book := seedBook(t, store, "long.txt")
	text := strings.Repeat("a", 3980) + strings.Repeat("b", 4020)
	comp := &mockCompleter{}
	comp.On("Complete", mock.Anything, mock.Anything, text[:4020]).Return(jsonArray(t, 3), openAI, nil).Once()
	comp.On("Complete", mock.Anything, mock.Anything, text[3980:]).Return(jsonArray(t, 3), openAI, nil).Once()

	svc := NewService(store, store, mapExtractor{"long.txt": text}, comp, testSettings(), nil)
	require.Equal(t, OutcomeToppedUp, svc.TopUp(context.Background(), book.BookID).Outcome)
	require.Equal(t, OutcomeToppedUp, svc.TopUp(context.Background(), book.BookID).Outcome)
	require.Equal(t, OutcomeExhausted, svc.TopUp(context.Background(), book.BookID).Outcome)
	comp.AssertExpectations(t)

	got, err := store.GetBook(context.Background(), book.BookID)
	require.NoError(t, err)
	require.Equal(t, 8000, got.GeneratedCursor)
}

func TestTopUpSkipsHealthyBook(t *testing.T) {
	store := memstore.New()
	book := seedBook(t, store, "b.txt")
	comp := &mockCompleter{}
	comp.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(jsonArray(t, 3), openAI, nil).Once()

	settings := testSettings()
	settings.MinBuffer = 2
	svc := NewService(store, store, mapExtractor{"b.txt": strings.Repeat("x", 100)}, comp, settings, nil)
	require.Equal(t, OutcomeToppedUp, svc.TopUp(context.Background(), book.BookID).Outcome)

	res := svc.TopUp(context.Background(), book.BookID)
	require.Equal(t, OutcomeHealthy, res.Outcome)
	require.Empty(t, res.Error)
	comp.AssertNumberOfCalls(t, "Complete", 1)
}

func TestTopUpRefillsAtExactlyMinBuffer(t *testing.T) {
	store := memstore.New()
	book := seedBook(t, store, "b.txt")
	comp := &mockCompleter{}
	comp.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(jsonArray(t, 2), openAI, nil)

	settings := testSettings()
	settings.MinBuffer = 2
	settings.ChunkSize = 10
	svc := NewService(store, store, mapExtractor{"b.txt": strings.Repeat("x", 100)}, comp, settings, nil)
	require.Equal(t, OutcomeToppedUp, svc.TopUp(context.Background(), book.BookID).Outcome)

	unwatched, err := store.CountUnwatched(context.Background(), book.BookID)
	require.NoError(t, err)
	require.Equal(t, 2, unwatched)

	require.Equal(t, OutcomeToppedUp, svc.TopUp(context.Background(), book.BookID).Outcome)
	unwatched, err = store.CountUnwatched(context.Background(), book.BookID)
	require.NoError(t, err)
	require.Equal(t, 4, unwatched)
}

func TestTopUpCompletionFailureLeavesBookUntouched(t *testing.T) {
	store := memstore.New()
	book := seedBook(t, store, "b.txt")
	text := strings.Repeat("y", 500)
	comp := &mockCompleter{}
	comp.On("Complete", mock.Anything, mock.Anything, text).Return("", openAI, errors.New("status 503: upstream unavailable")).Once()
	comp.On("Complete", mock.Anything, mock.Anything, text).Return(jsonArray(t, 4), openAI, nil).Once()

	svc := NewService(store, store, mapExtractor{"b.txt": text}, comp, testSettings(), nil)
	res := svc.TopUp(context.Background(), book.BookID)
	require.Equal(t, OutcomeGenerationFailed, res.Outcome)
	require.Contains(t, res.Error, "503")

	got, err := store.GetBook(context.Background(), book.BookID)
	require.NoError(t, err)
	require.Zero(t, got.GeneratedCursor)
	require.Empty(t, store.Fragments(book.BookID))

	res = svc.TopUp(context.Background(), book.BookID)
	require.Equal(t, OutcomeToppedUp, res.Outcome)
	got, err = store.GetBook(context.Background(), book.BookID)
	require.NoError(t, err)
	require.Equal(t, 500, got.GeneratedCursor)
	comp.AssertExpectations(t)

	runs, err := store.ListGenerationRuns(context.Background(), book.BookID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "generated", runs[0].Status)
	require.Equal(t, "failed", runs[1].Status)
	require.Equal(t, string(providers.ErrorTransient), runs[1].ErrorType)
}

func TestTopUpMalformedOutputWritesNothing(t *testing.T) {
	store := memstore.New()
	book := seedBook(t, store, "b.txt")
	comp := &mockCompleter{}
	comp.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(`Here you go: ["a", "b"]`, openAI, nil)

	svc := NewService(store, store, mapExtractor{"b.txt": "short text"}, comp, testSettings(), nil)
	plan, err := svc.Plan(context.Background(), book.BookID)
	require.NoError(t, err)
	gen, err := svc.Generate(context.Background(), plan)
	require.ErrorIs(t, err, util.ErrGeneration)
	require.Equal(t, OutcomeGenerationFailed, gen.Outcome)

	got, err := store.GetBook(context.Background(), book.BookID)
	require.NoError(t, err)
	require.Zero(t, got.GeneratedCursor)
	require.Empty(t, store.Fragments(book.BookID))

	runs, err := store.ListGenerationRuns(context.Background(), book.BookID, 1)
	require.NoError(t, err)
	require.Equal(t, string(providers.ErrorMalformed), runs[0].ErrorType)
}

func TestTopUpDisabledGenerationIsNotProgress(t *testing.T) {
	store := memstore.New()
	book := seedBook(t, store, "b.txt")
	comp := &mockCompleter{}
	comp.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", providers.ProviderInfo{Name: "disabled", Model: "disabled"}, nil)

	svc := NewService(store, store, mapExtractor{"b.txt": "some text"}, comp, testSettings(), nil)
	res := svc.TopUp(context.Background(), book.BookID)
	require.Equal(t, OutcomeGenerationDisabled, res.Outcome)
	require.Empty(t, res.Error)

	got, err := store.GetBook(context.Background(), book.BookID)
	require.NoError(t, err)
	require.Zero(t, got.GeneratedCursor)
	require.Empty(t, store.Fragments(book.BookID))
}

func TestTopUpExtractionFailureSkipsBook(t *testing.T) {
	store := memstore.New()
	book := seedBook(t, store, "missing.epub")
	comp := &mockCompleter{}

	svc := NewService(store, store, mapExtractor{}, comp, testSettings(), nil)
	plan, err := svc.Plan(context.Background(), book.BookID)
	require.ErrorIs(t, err, util.ErrExtraction)
	require.Equal(t, OutcomeExtractionFailed, plan.Outcome)

	res := svc.TopUp(context.Background(), book.BookID)
	require.Equal(t, OutcomeExtractionFailed, res.Outcome)
	comp.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestPlanMissingBook(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, store, mapExtractor{}, &mockCompleter{}, testSettings(), nil)
	plan, err := svc.Plan(context.Background(), "nope")
	require.ErrorIs(t, err, util.ErrNotFound)
	require.Equal(t, OutcomeStoreFailed, plan.Outcome)
}

func TestCommitRejectsStalePlan(t *testing.T) {
	store := memstore.New()
	book := seedBook(t, store, "b.txt")
	svc := NewService(store, store, mapExtractor{"b.txt": strings.Repeat("z", 100)}, &mockCompleter{}, testSettings(), nil)

	plan, err := svc.Plan(context.Background(), book.BookID)
	require.NoError(t, err)
	_, err = svc.Commit(context.Background(), plan, []string{"one"})
	require.NoError(t, err)

	_, err = svc.Commit(context.Background(), plan, []string{"two"})
	require.ErrorIs(t, err, util.ErrCursorConflict)
	require.Len(t, store.Fragments(book.BookID), 1)
}

func TestRunPassIsolatesBookFailures(t *testing.T) {
	store := memstore.New()
	good := seedBook(t, store, "good.txt")
	seedBook(t, store, "broken.pdf")
	done := seedBook(t, store, "done.txt")
	require.NoError(t, store.CommitBatch(context.Background(), done.BookID, 0, 4, nil))
	inactive := seedBook(t, store, "inactive.txt")
	require.NoError(t, store.SetBookActive(context.Background(), inactive.BookID, false))

	comp := &mockCompleter{}
	comp.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(jsonArray(t, 5), openAI, nil)
	ext := mapExtractor{"good.txt": "good text here", "done.txt": "done", "inactive.txt": "never read"}

	svc := NewService(store, store, ext, comp, testSettings(), nil)
	summary, err := svc.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Books)
	require.Equal(t, 5, summary.Fragments)
	require.Equal(t, 1, summary.Outcomes[OutcomeToppedUp])
	require.Equal(t, 1, summary.Outcomes[OutcomeExtractionFailed])
	require.Equal(t, 1, summary.Outcomes[OutcomeExhausted])
	require.Equal(t, []string{done.BookID}, summary.Exhausted)
	require.Len(t, store.Fragments(good.BookID), 5)
	require.Empty(t, store.Fragments(inactive.BookID))
}
