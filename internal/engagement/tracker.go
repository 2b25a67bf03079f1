// Package engagement records which fragments a consumer has confirmed seeing.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reelflow/internal/logger"
	"reelflow/internal/metrics"
	"reelflow/internal/models"
	"reelflow/internal/util"
)

type Store interface {
	MarkSeen(ctx context.Context, rec models.SeenRecord) (bool, error)
	CountSeen(ctx context.Context, consumerID string) (int, error)
	CountFragments(ctx context.Context) (int, error)
	ListSeen(ctx context.Context, consumerID string, limit int) ([]models.SeenRecord, error)
}

type Progress struct {
	Seen  int `json:"seen"`
	Total int `json:"total"`
}

type Tracker struct {
	store   Store
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewTracker(store Store, log *logger.Logger, m *metrics.Metrics) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		store:   store,
		log:     log.With("service", "engagement"),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// MarkSeen is idempotent. created is true only for the call that inserted the
// record, and only that call increments the fragment's watch count.
func (t *Tracker) MarkSeen(ctx context.Context, consumerID, fragmentID string) (bool, error) {
	rec, err := models.NewSeenRecord(consumerID, fragmentID, t.now())
	if err != nil {
		return false, err
	}
	if _, err := uuid.Parse(rec.FragmentID); err != nil {
		return false, fmt.Errorf("%w: fragment id %q is not a uuid", util.ErrValidation, rec.FragmentID)
	}
	created, err := t.store.MarkSeen(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	t.metrics.ObserveSeen(created)
	if created {
		t.log.Debug("fragment marked seen", "consumer_id", rec.ConsumerID, "fragment_id", rec.FragmentID)
	}
	return created, nil
}

func (t *Tracker) Progress(ctx context.Context, consumerID string) (Progress, error) {
	if consumerID == "" {
		return Progress{}, fmt.Errorf("%w: consumer id is required", util.ErrValidation)
	}
	seen, err := t.store.CountSeen(ctx, consumerID)
	if err != nil {
		return Progress{}, fmt.Errorf("progress: %w", err)
	}
	total, err := t.store.CountFragments(ctx)
	if err != nil {
		return Progress{}, fmt.Errorf("progress: %w", err)
	}
	return Progress{Seen: seen, Total: total}, nil
}

// History lists the consumer's most recent confirmations, newest first.
func (t *Tracker) History(ctx context.Context, consumerID string, limit int) ([]models.SeenRecord, error) {
	if consumerID == "" {
		return nil, fmt.Errorf("%w: consumer id is required", util.ErrValidation)
	}
	if limit <= 0 {
		limit = 50
	}
	out, err := t.store.ListSeen(ctx, consumerID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return out, nil
}
