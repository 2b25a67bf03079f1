package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"reelflow/internal/activities"
	"reelflow/internal/supply"
)

const (
	QueryGetPassProgress = "GetPassProgress"
	QueryGetBookStatus   = "GetBookStatus"
)

// SupplyPassWorkflow tops up every active book once. It runs as a cron
// workflow under a fixed ID, so Temporal never starts a pass while the
// previous one is still open. Each book runs as a child workflow keyed by
// book ID, which keeps at most one window per book in flight.
func SupplyPassWorkflow(ctx workflow.Context, input SupplyPassInput) (supply.PassSummary, error) {
	started := workflow.Now(ctx)
	summary := supply.NewPassSummary(started)
	progress := PassProgress{PerBook: map[string]string{}, ChildWorkflow: map[string]string{}}
	if err := workflow.SetQueryHandler(ctx, QueryGetPassProgress, func() (PassProgress, error) {
		return progress, nil
	}); err != nil {
		return summary, err
	}
	logger := workflow.GetLogger(ctx)
	timeouts := withDefaults(input.Timeouts)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: timeouts.Store,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	actx := workflow.WithActivityOptions(ctx, ao)
	var listOut activities.ListActiveBooksOutput
	if err := workflow.ExecuteActivity(actx, "ListActiveBooksActivity", activities.ListActiveBooksInput{}).Get(actx, &listOut); err != nil {
		logger.Error("supply pass could not list books", "error", err)
		return summary, err
	}
	bookIDs := listOut.BookIDs
	progress.Total = len(bookIDs)
	maxChildren := input.MaxConcurrentBooks
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(bookIDs); i += maxChildren {
		end := min(i+maxChildren, len(bookIDs))
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		for _, bookID := range bookIDs[i:end] {
			progress.PerBook[bookID] = "processing"
			workflowID := TopUpWorkflowID(bookID)
			progress.ChildWorkflow[bookID] = workflowID
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, BookTopUpWorkflow, BookTopUpInput{
				BookID:   bookID,
				Timeouts: timeouts,
			}))
		}
		for idx, f := range futures {
			bookID := bookIDs[i+idx]
			var res supply.BookResult
			if err := f.Get(ctx, &res); err != nil {
				logger.Warn("book top-up did not run", "book_id", bookID, "error", err)
				res = supply.BookResult{BookID: bookID, Outcome: supply.OutcomeInFlight, Error: err.Error()}
			}
			summary.Add(res)
			progress.Done++
			progress.PerBook[bookID] = string(res.Outcome)
		}
	}

	summary.Duration = workflow.Now(ctx).Sub(started)
	logger.Info("supply pass finished", "books", summary.Books, "fragments", summary.Fragments, "outcomes", summary.Outcomes)
	return summary, nil
}

// BookTopUpWorkflow plans, generates and commits one window for one book.
// Activities never retry; the next pass is the retry.
func BookTopUpWorkflow(ctx workflow.Context, input BookTopUpInput) (supply.BookResult, error) {
	status := BookStatus{BookID: input.BookID, CurrentStep: "init", Steps: map[string]string{}}
	if err := workflow.SetQueryHandler(ctx, QueryGetBookStatus, func() (BookStatus, error) {
		return status, nil
	}); err != nil {
		return supply.BookResult{}, err
	}
	timeouts := withDefaults(input.Timeouts)
	res := supply.BookResult{BookID: input.BookID}
	finish := func(outcome supply.Outcome, errText string) (supply.BookResult, error) {
		res.Outcome = outcome
		res.Error = errText
		status.Outcome = string(outcome)
		if errText != "" {
			status.Steps[status.CurrentStep] = "failed"
		}
		return res, nil
	}

	status.CurrentStep = "plan_window"
	status.Steps[status.CurrentStep] = "processing"
	var planOut activities.PlanWindowOutput
	planCtx := withSingleAttempt(ctx, 2*timeouts.Store+timeouts.Extract)
	if err := workflow.ExecuteActivity(planCtx, "PlanWindowActivity", activities.PlanWindowInput{BookID: input.BookID}).Get(planCtx, &planOut); err != nil {
		return finish(supply.OutcomeExtractionFailed, err.Error())
	}
	if planOut.Plan.Outcome != supply.OutcomeReady {
		return finish(planOut.Plan.Outcome, planOut.Error)
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "generate_fragments"
	status.Steps[status.CurrentStep] = "processing"
	var genOut activities.GenerateFragmentsOutput
	genCtx := withSingleAttempt(ctx, timeouts.Generate+timeouts.Store)
	if err := workflow.ExecuteActivity(genCtx, "GenerateFragmentsActivity", activities.GenerateFragmentsInput{Plan: planOut.Plan}).Get(genCtx, &genOut); err != nil {
		return finish(supply.OutcomeGenerationFailed, err.Error())
	}
	if genOut.Generation.Outcome != supply.OutcomeReady {
		return finish(genOut.Generation.Outcome, genOut.Error)
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "commit_fragments"
	status.Steps[status.CurrentStep] = "processing"
	var commitOut activities.CommitFragmentsOutput
	commitCtx := withSingleAttempt(ctx, timeouts.Store)
	if err := workflow.ExecuteActivity(commitCtx, "CommitFragmentsActivity", activities.CommitFragmentsInput{
		Plan:  planOut.Plan,
		Texts: genOut.Generation.Texts,
	}).Get(commitCtx, &commitOut); err != nil {
		return finish(supply.OutcomeCommitFailed, err.Error())
	}
	if commitOut.Error != "" {
		return finish(supply.OutcomeCommitFailed, commitOut.Error)
	}
	status.Steps[status.CurrentStep] = "done"
	res.Fragments = commitOut.Fragments
	return finish(supply.OutcomeToppedUp, "")
}

// TopUpWorkflowID is the child workflow ID for a book.
func TopUpWorkflowID(bookID string) string {
	return "topup-" + bookID
}

func withSingleAttempt(ctx workflow.Context, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
}

func withDefaults(t Timeouts) Timeouts {
	if t.Extract <= 0 {
		t.Extract = 2 * time.Minute
	}
	if t.Generate <= 0 {
		t.Generate = 3 * time.Minute
	}
	if t.Store <= 0 {
		t.Store = 30 * time.Second
	}
	return t
}
