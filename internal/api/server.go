package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"reelflow/internal/config"
	"reelflow/internal/engagement"
	"reelflow/internal/feed"
	"reelflow/internal/logger"
	"reelflow/internal/metrics"
	"reelflow/internal/models"
	"reelflow/internal/util"
)

// ConsumerHeader carries the identity set by the upstream auth layer. A
// request without it is served by the anonymous policy.
const ConsumerHeader = "X-Consumer-ID"

type FeedSelector interface {
	Select(ctx context.Context, consumerID string, limit int) (feed.Batch, error)
}

type SeenTracker interface {
	MarkSeen(ctx context.Context, consumerID, fragmentID string) (bool, error)
	Progress(ctx context.Context, consumerID string) (engagement.Progress, error)
	History(ctx context.Context, consumerID string, limit int) ([]models.SeenRecord, error)
}

type Server struct {
	cfg     config.Config
	feed    FeedSelector
	tracker SeenTracker
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewServer(cfg config.Config, f FeedSelector, t SeenTracker, m *metrics.Metrics, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{cfg: cfg, feed: f, tracker: t, metrics: m, log: log.With("component", "api")}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.metrics.Handler())
	r.Route("/feed", func(r chi.Router) {
		r.Get("/", s.handleFeed)
		r.Get("/progress", s.handleProgress)
		r.Get("/history", s.handleHistory)
		r.Post("/{fragmentID}/seen", s.handleMarkSeen)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, errors.New("route not found"))
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type feedFragment struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	BookDisplayName string `json:"book_display_name"`
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	batch, err := s.feed.Select(r.Context(), consumerID(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]feedFragment, 0, len(batch.Items))
	for _, it := range batch.Items {
		out = append(out, feedFragment{ID: it.FragmentID, Text: it.Text, BookDisplayName: it.BookDisplayName})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "fragments": out})
}

func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	consumer := consumerID(r)
	if consumer == "" {
		writeErr(w, http.StatusBadRequest, errors.New("consumer id is required"))
		return
	}
	created, err := s.tracker.MarkSeen(r.Context(), consumer, chi.URLParam(r, "fragmentID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "created": created})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	consumer := consumerID(r)
	if consumer == "" {
		writeErr(w, http.StatusBadRequest, errors.New("consumer id is required"))
		return
	}
	p, err := s.tracker.Progress(r.Context(), consumer)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	consumer := consumerID(r)
	if consumer == "" {
		writeErr(w, http.StatusBadRequest, errors.New("consumer id is required"))
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	records, err := s.tracker.History(r.Context(), consumer, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(records), "seen": records})
}

// fail maps domain errors to responses and logs anything unexpected.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeErr(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, util.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func consumerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ConsumerHeader))
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
