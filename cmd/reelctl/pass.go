package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"reelflow/internal/app"
	"reelflow/internal/config"
	"reelflow/internal/lock"
	"reelflow/internal/logger"
	"reelflow/internal/metrics"
	"reelflow/internal/supply"
	"reelflow/internal/workflows"
)

func passCmd() *cobra.Command {
	var local, wait bool

	cmd := &cobra.Command{
		Use:   "pass",
		Short: "Run one supply pass now",
		Long: `Run one supply pass outside the regular schedule.

By default the pass is started as a workflow on the Temporal task queue, so
it shares per-book workflow IDs with the scheduled pass. With --local the
pass runs in this process under the Redis pass lock; this needs
REELFLOW_SCHEDULER_MODE=local and REELFLOW_REDIS_ADDR.

Examples:
  reelctl pass
  reelctl pass --wait
  reelctl pass --local
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if local {
				return runLocalPass(cmd, e)
			}
			return runTemporalPass(cmd, e, wait)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "run the pass in-process instead of on Temporal")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the workflow to finish and print its summary")

	return cmd
}

var errPassRunning = errors.New("a supply pass is already running")

func runLocalPass(cmd *cobra.Command, e *env) error {
	if err := checkLocalPass(e.cfg); err != nil {
		return err
	}
	svc, err := app.NewSupplyService(e.cfg, e.store, e.log, metrics.New())
	if err != nil {
		return err
	}
	locker, closeLocker, err := app.NewPassLocker(cmd.Context(), e.cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	summary, err := lockedPass(cmd.Context(), svc, locker, e.cfg, e.log)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), summary)
}

// checkLocalPass refuses an in-process pass that could overlap a scheduled
// one. Temporal passes do not take the pass lock, and without Redis the lock
// cannot reach a worker in another process.
func checkLocalPass(cfg config.Config) error {
	if cfg.SchedulerMode != config.SchedulerLocal {
		return fmt.Errorf("--local needs REELFLOW_SCHEDULER_MODE=local; passes are scheduled on Temporal, run `reelctl pass` instead")
	}
	if cfg.RedisAddr == "" {
		return fmt.Errorf("--local needs REELFLOW_REDIS_ADDR to share the pass lock with running workers")
	}
	return nil
}

func lockedPass(ctx context.Context, svc *supply.Service, locker lock.Locker, cfg config.Config, log *logger.Logger) (supply.PassSummary, error) {
	summary, ran := supply.NewRunner(svc, locker, cfg.SupplyInterval, log).RunOnce(ctx)
	if !ran {
		return supply.PassSummary{}, errPassRunning
	}
	return summary, nil
}

func runTemporalPass(cmd *cobra.Command, e *env, wait bool) error {
	c, err := client.Dial(client.Options{
		HostPort:  e.cfg.TemporalAddress,
		Namespace: e.cfg.TemporalNamespace,
		Logger:    e.log,
	})
	if err != nil {
		return fmt.Errorf("temporal dial: %w", err)
	}
	defer c.Close()

	run, err := workflows.StartManualPass(cmd.Context(), c, e.cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "started %s (run %s)\n", run.GetID(), run.GetRunID())
	if !wait {
		return nil
	}
	var summary supply.PassSummary
	if err := run.Get(cmd.Context(), &summary); err != nil {
		return fmt.Errorf("supply pass workflow: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), summary)
}
