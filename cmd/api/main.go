package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"reelflow/internal/api"
	"reelflow/internal/app"
	"reelflow/internal/engagement"
	"reelflow/internal/feed"
	"reelflow/internal/metrics"
	"reelflow/internal/storage"
)

func main() {
	_ = godotenv.Load(".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, db, err := app.Boot(ctx)
	if err != nil {
		if log != nil {
			log.Fatal("api boot failed", "error", err)
		}
		panic(err)
	}
	defer log.Sync()
	defer db.Close()

	store := storage.NewStore(db)
	m := metrics.New()
	h := api.NewServer(
		cfg,
		feed.NewDistributor(store, feed.OptionsFromConfig(cfg), log, m),
		engagement.NewTracker(store, log, m),
		m,
		log,
	)
	srv := &http.Server{Addr: cfg.APIAddr, Handler: h.Routes(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.LogSettings(log, cfg, "api")
	log.Info("reelflow api listening", "addr", cfg.APIAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api server failed", "error", err)
	}
	log.Info("reelflow api stopped")
}
