// Package metrics exposes supply and feed counters to Prometheus. All methods
// are safe on a nil *Metrics so callers never need to guard them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry     *prometheus.Registry
	passTotal    prometheus.Counter
	passDuration prometheus.Histogram
	bookOutcomes *prometheus.CounterVec
	fragments    prometheus.Counter
	feedServed   *prometheus.CounterVec
	feedEmpty    *prometheus.CounterVec
	seenMarked   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reelflow",
			Name:      "supply_passes_total",
			Help:      "Supply passes started.",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reelflow",
			Name:      "supply_pass_duration_seconds",
			Help:      "Wall time of one supply pass.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		bookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelflow",
			Name:      "supply_book_outcomes_total",
			Help:      "Per-book results of supply passes.",
		}, []string{"outcome"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reelflow",
			Name:      "fragments_generated_total",
			Help:      "Fragments committed by supply passes.",
		}),
		feedServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelflow",
			Name:      "feed_fragments_served_total",
			Help:      "Fragments returned by the feed.",
		}, []string{"policy"}),
		feedEmpty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelflow",
			Name:      "feed_empty_total",
			Help:      "Feed requests that found no content.",
		}, []string{"policy"}),
		seenMarked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelflow",
			Name:      "seen_marks_total",
			Help:      "Mark-seen calls by whether a new record was created.",
		}, []string{"created"}),
	}
	m.registry.MustRegister(m.passTotal, m.passDuration, m.bookOutcomes, m.fragments, m.feedServed, m.feedEmpty, m.seenMarked)
	return m
}

// Handler serves the /metrics scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePass(seconds float64) {
	if m == nil {
		return
	}
	m.passTotal.Inc()
	m.passDuration.Observe(seconds)
}

func (m *Metrics) ObserveBook(outcome string, fragments int) {
	if m == nil {
		return
	}
	m.bookOutcomes.WithLabelValues(outcome).Inc()
	if fragments > 0 {
		m.fragments.Add(float64(fragments))
	}
}

func (m *Metrics) ObserveFeed(policy string, served int) {
	if m == nil {
		return
	}
	if served == 0 {
		m.feedEmpty.WithLabelValues(policy).Inc()
		return
	}
	m.feedServed.WithLabelValues(policy).Add(float64(served))
}

func (m *Metrics) ObserveSeen(created bool) {
	if m == nil {
		return
	}
	label := "false"
	if created {
		label = "true"
	}
	m.seenMarked.WithLabelValues(label).Inc()
}
