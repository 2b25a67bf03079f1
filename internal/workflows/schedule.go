package workflows

import (
	"context"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"

	"reelflow/internal/config"
)

const (
	SupplyPassWorkflowID = "supply-pass"
	ManualPassWorkflowID = "supply-pass-manual"
	supplyPassRunTimeout = 24 * time.Hour
)

// StartSupplyCron registers the periodic pass. Starting it again while it is
// already scheduled returns the existing run instead of an error.
func StartSupplyCron(ctx context.Context, c client.Client, cfg config.Config) (client.WorkflowRun, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                 SupplyPassWorkflowID,
		TaskQueue:          cfg.TemporalTaskQueue,
		CronSchedule:       cfg.CronSchedule(),
		WorkflowRunTimeout: supplyPassRunTimeout,
	}, SupplyPassWorkflow, SupplyPassInputFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("start supply cron: %w", err)
	}
	return run, nil
}

// StartManualPass runs one pass now. Only one manual pass may be open at a
// time; book child IDs keep it from racing the cron pass on the same book.
func StartManualPass(ctx context.Context, c client.Client, cfg config.Config) (client.WorkflowRun, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       ManualPassWorkflowID,
		TaskQueue:                                cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, SupplyPassWorkflow, SupplyPassInputFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("start manual supply pass: %w", err)
	}
	return run, nil
}
