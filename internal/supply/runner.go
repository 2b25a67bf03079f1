package supply

import (
	"context"
	"time"

	"reelflow/internal/lock"
	"reelflow/internal/logger"
)

const (
	PassLockKey = "supply-pass"
	// defaultLeaseTTL bounds how long a crashed holder blocks other replicas.
	// The lease is extended every third of it while a pass runs.
	defaultLeaseTTL = 2 * time.Minute
)

// Runner drives passes on a fixed period without Temporal. A pass only runs
// while holding the pass lock, so overlapping ticks or replicas skip instead
// of running concurrently.
type Runner struct {
	svc      *Service
	locker   lock.Locker
	interval time.Duration
	leaseTTL time.Duration
	log      *logger.Logger
}

func NewRunner(svc *Service, locker lock.Locker, interval time.Duration, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Runner{
		svc:      svc,
		locker:   locker,
		interval: interval,
		leaseTTL: defaultLeaseTTL,
		log:      log.With("component", "supply_runner"),
	}
}

// Run performs one pass immediately and then one per interval until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("supply runner started", "interval", r.interval.String())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("supply runner stopped")
			return nil
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce reports false when another pass held the lock. If the lease is lost
// mid-pass the remaining books are cancelled.
func (r *Runner) RunOnce(ctx context.Context) (PassSummary, bool) {
	lease, ok, err := r.locker.TryAcquire(ctx, PassLockKey, r.leaseTTL)
	if err != nil {
		r.log.Error("supply pass lock failed", "error", err)
		return PassSummary{}, false
	}
	if !ok {
		r.log.Warn("previous supply pass still running, skipping tick")
		return PassSummary{}, false
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn("supply pass lock release failed", "error", err)
		}
	}()

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		r.keepAlive(passCtx, lease, cancel)
	}()

	// RunPass already logs a listing failure; the next tick retries.
	summary, _ := r.svc.RunPass(passCtx)
	cancel()
	<-stopped
	return summary, true
}

func (r *Runner) keepAlive(ctx context.Context, lease lock.Lease, cancelPass context.CancelFunc) {
	ticker := time.NewTicker(max(r.leaseTTL/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Extend(ctx, r.leaseTTL); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Error("supply pass lease lost, cancelling pass", "error", err)
				cancelPass()
				return
			}
		}
	}
}
