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
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"reelflow/internal/activities"
	"reelflow/internal/app"
	"reelflow/internal/config"
	"reelflow/internal/logger"
	"reelflow/internal/metrics"
	"reelflow/internal/storage"
	"reelflow/internal/supply"
	"reelflow/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, db, err := app.Boot(ctx)
	if err != nil {
		if log != nil {
			log.Fatal("worker boot failed", "error", err)
		}
		panic(err)
	}
	defer log.Sync()
	defer db.Close()

	m := metrics.New()
	svc, err := app.NewSupplyService(cfg, storage.NewStore(db), log, m)
	if err != nil {
		log.Fatal("build supply service", "error", err)
	}
	go serveMetrics(ctx, cfg.MetricsAddr, m, log)
	app.LogSettings(log, cfg, "worker")

	switch cfg.SchedulerMode {
	case config.SchedulerLocal:
		runLocal(ctx, cfg, svc, log)
	default:
		runTemporal(ctx, cfg, svc, log)
	}
}

func runTemporal(ctx context.Context, cfg config.Config, svc *supply.Service, log *logger.Logger) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    log,
	})
	if err != nil {
		log.Fatal("temporal dial failed", "error", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(svc))

	run, err := workflows.StartSupplyCron(ctx, c, cfg)
	if err != nil {
		log.Fatal("schedule supply pass", "error", err)
	}
	log.Info("supply pass scheduled", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "cron", cfg.CronSchedule())

	log.Info("reelflow worker listening", "address", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker stopped", "error", err)
	}
}

func runLocal(ctx context.Context, cfg config.Config, svc *supply.Service, log *logger.Logger) {
	locker, closeLocker, err := app.NewPassLocker(ctx, cfg)
	if err != nil {
		log.Fatal("pass lock unavailable", "error", err)
	}
	defer closeLocker()
	if err := supply.NewRunner(svc, locker, cfg.SupplyInterval, log).Run(ctx); err != nil {
		log.Error("supply runner failed", "error", err)
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics server failed", "addr", addr, "error", err)
	}
}
