// Package feed selects the batch of fragments served to a consumer.
//
// Anonymous requests get a random sample biased toward the least exposed
// fragments and every fragment in the batch counts as exposed right away.
// Identified requests get the oldest fragments the consumer has not marked
// seen, and reading never changes any counter.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/logger"
	"reelflow/internal/metrics"
	"reelflow/internal/models"
	"reelflow/internal/util"
)

const (
	PolicyAnonymous = "anonymous"
	PolicyGated     = "gated"
)

type Store interface {
	MinWatchCount(ctx context.Context) (int, bool, error)
	SampleFragmentIDs(ctx context.Context, maxWatch, n int) ([]string, error)
	IncrementWatch(ctx context.Context, ids []string, at time.Time) error
	FeedItemsByIDs(ctx context.Context, ids []string) ([]models.FeedItem, error)
	ListUnseen(ctx context.Context, consumerID string, limit int) ([]models.FeedItem, error)
}

type Options struct {
	Slack        int
	DefaultLimit int
	MaxLimit     int
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{Slack: cfg.SamplingSlack, DefaultLimit: cfg.DefaultFeedLimit, MaxLimit: cfg.MaxFeedLimit}
}

type Batch struct {
	Policy string            `json:"policy"`
	Items  []models.FeedItem `json:"items"`
}

type Distributor struct {
	store   Store
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewDistributor(store Store, opts Options, log *logger.Logger, m *metrics.Metrics) *Distributor {
	if log == nil {
		log = logger.Nop()
	}
	return &Distributor{
		store:   store,
		opts:    opts,
		log:     log.With("service", "feed"),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Select picks the gated policy when consumerID is set and the anonymous
// policy otherwise. An empty result is util.ErrNotFound, never an empty batch.
func (d *Distributor) Select(ctx context.Context, consumerID string, limit int) (Batch, error) {
	n, err := d.normalizeLimit(limit)
	if err != nil {
		return Batch{}, err
	}
	consumerID = strings.TrimSpace(consumerID)
	if consumerID == "" {
		return d.anonymous(ctx, n)
	}
	return d.gated(ctx, consumerID, n)
}

func (d *Distributor) anonymous(ctx context.Context, limit int) (Batch, error) {
	lowest, ok, err := d.store.MinWatchCount(ctx)
	if err != nil {
		return Batch{}, fmt.Errorf("anonymous feed: %w", err)
	}
	if !ok {
		d.metrics.ObserveFeed(PolicyAnonymous, 0)
		return Batch{}, fmt.Errorf("anonymous feed: no fragments: %w", util.ErrNotFound)
	}
	ids, err := d.store.SampleFragmentIDs(ctx, lowest+d.opts.Slack, limit)
	if err != nil {
		return Batch{}, fmt.Errorf("anonymous feed: %w", err)
	}
	if len(ids) == 0 {
		d.metrics.ObserveFeed(PolicyAnonymous, 0)
		return Batch{}, fmt.Errorf("anonymous feed: no fragments: %w", util.ErrNotFound)
	}
	if err := d.store.IncrementWatch(ctx, ids, d.now()); err != nil {
		return Batch{}, fmt.Errorf("anonymous feed: %w", err)
	}
	items, err := d.store.FeedItemsByIDs(ctx, ids)
	if err != nil {
		return Batch{}, fmt.Errorf("anonymous feed: %w", err)
	}
	d.metrics.ObserveFeed(PolicyAnonymous, len(items))
	return Batch{Policy: PolicyAnonymous, Items: items}, nil
}

func (d *Distributor) gated(ctx context.Context, consumerID string, limit int) (Batch, error) {
	items, err := d.store.ListUnseen(ctx, consumerID, limit)
	if err != nil {
		return Batch{}, fmt.Errorf("gated feed: %w", err)
	}
	if len(items) == 0 {
		d.metrics.ObserveFeed(PolicyGated, 0)
		d.log.Debug("consumer has seen every fragment", "consumer_id", consumerID)
		return Batch{}, fmt.Errorf("gated feed: nothing unseen for consumer: %w", util.ErrNotFound)
	}
	d.metrics.ObserveFeed(PolicyGated, len(items))
	return Batch{Policy: PolicyGated, Items: items}, nil
}

func (d *Distributor) normalizeLimit(limit int) (int, error) {
	if limit < 0 {
		return 0, fmt.Errorf("%w: limit must not be negative", util.ErrValidation)
	}
	if limit == 0 {
		limit = d.opts.DefaultLimit
	}
	if d.opts.MaxLimit > 0 && limit > d.opts.MaxLimit {
		limit = d.opts.MaxLimit
	}
	return max(limit, 1), nil
}
