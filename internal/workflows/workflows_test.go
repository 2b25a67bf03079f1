package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"reelflow/internal/activities"
	"reelflow/internal/cursor"
	"reelflow/internal/supply"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerTopUpActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "PlanWindowActivity", func(context.Context, activities.PlanWindowInput) (activities.PlanWindowOutput, error) {
		return activities.PlanWindowOutput{}, nil
	})
	registerActivityName(env, "GenerateFragmentsActivity", func(context.Context, activities.GenerateFragmentsInput) (activities.GenerateFragmentsOutput, error) {
		return activities.GenerateFragmentsOutput{}, nil
	})
	registerActivityName(env, "CommitFragmentsActivity", func(context.Context, activities.CommitFragmentsInput) (activities.CommitFragmentsOutput, error) {
		return activities.CommitFragmentsOutput{}, nil
	})
}

func readyPlan() supply.Plan {
	return supply.Plan{
		BookID:  "book-1",
		Outcome: supply.OutcomeReady,
		TextLen: 8000,
		Window:  cursor.Window{Start: 0, End: 4020, Cursor: 0, NewCursor: 4000},
		Text:    "window text",
	}
}

func TestBookTopUpWorkflowCommitsGeneratedFragments(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BookTopUpWorkflow)
	registerTopUpActivities(env)

	plan := readyPlan()
	texts := []string{"first", "second"}
	env.OnActivity("PlanWindowActivity", mock.Anything, activities.PlanWindowInput{BookID: "book-1"}).Return(activities.PlanWindowOutput{Plan: plan}, nil)
	env.OnActivity("GenerateFragmentsActivity", mock.Anything, activities.GenerateFragmentsInput{Plan: plan}).Return(activities.GenerateFragmentsOutput{
		Generation: supply.Generation{Outcome: supply.OutcomeReady, Texts: texts, Provider: "mock", Model: "mock"},
	}, nil)
	env.OnActivity("CommitFragmentsActivity", mock.Anything, activities.CommitFragmentsInput{Plan: plan, Texts: texts}).Return(activities.CommitFragmentsOutput{
		Outcome:   supply.OutcomeToppedUp,
		Fragments: 2,
	}, nil)

	env.ExecuteWorkflow(BookTopUpWorkflow, BookTopUpInput{BookID: "book-1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out supply.BookResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, supply.BookResult{BookID: "book-1", Outcome: supply.OutcomeToppedUp, Fragments: 2}, out)
}

func TestBookTopUpWorkflowHealthyBookStopsAfterPlan(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BookTopUpWorkflow)
	registerTopUpActivities(env)

	env.OnActivity("PlanWindowActivity", mock.Anything, mock.Anything).Return(activities.PlanWindowOutput{
		Plan: supply.Plan{BookID: "book-1", Outcome: supply.OutcomeHealthy, Unwatched: 25},
	}, nil)

	env.ExecuteWorkflow(BookTopUpWorkflow, BookTopUpInput{BookID: "book-1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out supply.BookResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, supply.OutcomeHealthy, out.Outcome)
	env.AssertNotCalled(t, "GenerateFragmentsActivity", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "CommitFragmentsActivity", mock.Anything, mock.Anything)
}

func TestBookTopUpWorkflowGenerationTimeoutSkipsBook(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BookTopUpWorkflow)
	registerTopUpActivities(env)

	env.OnActivity("PlanWindowActivity", mock.Anything, mock.Anything).Return(activities.PlanWindowOutput{Plan: readyPlan()}, nil)
	env.OnActivity("GenerateFragmentsActivity", mock.Anything, mock.Anything).Return(activities.GenerateFragmentsOutput{}, errors.New("activity StartToClose timeout")).Once()

	env.ExecuteWorkflow(BookTopUpWorkflow, BookTopUpInput{BookID: "book-1", Timeouts: Timeouts{Generate: time.Second}})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out supply.BookResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, supply.OutcomeGenerationFailed, out.Outcome)
	require.Contains(t, out.Error, "timeout")
	env.AssertNumberOfCalls(t, "GenerateFragmentsActivity", 1)
	env.AssertNotCalled(t, "CommitFragmentsActivity", mock.Anything, mock.Anything)
}

func TestBookTopUpWorkflowReportsCommitConflict(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BookTopUpWorkflow)
	registerTopUpActivities(env)

	env.OnActivity("PlanWindowActivity", mock.Anything, mock.Anything).Return(activities.PlanWindowOutput{Plan: readyPlan()}, nil)
	env.OnActivity("GenerateFragmentsActivity", mock.Anything, mock.Anything).Return(activities.GenerateFragmentsOutput{
		Generation: supply.Generation{Outcome: supply.OutcomeReady, Texts: []string{"a"}},
	}, nil)
	env.OnActivity("CommitFragmentsActivity", mock.Anything, mock.Anything).Return(activities.CommitFragmentsOutput{
		Outcome: supply.OutcomeCommitFailed,
		Error:   "book cursor moved concurrently",
	}, nil)

	env.ExecuteWorkflow(BookTopUpWorkflow, BookTopUpInput{BookID: "book-1"})
	require.NoError(t, env.GetWorkflowError())
	var out supply.BookResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, supply.OutcomeCommitFailed, out.Outcome)
	require.Zero(t, out.Fragments)
}

func TestSupplyPassWorkflowSummarizesBooks(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SupplyPassWorkflow)
	env.RegisterWorkflow(BookTopUpWorkflow)
	registerActivityName(env, "ListActiveBooksActivity", func(context.Context, activities.ListActiveBooksInput) (activities.ListActiveBooksOutput, error) {
		return activities.ListActiveBooksOutput{}, nil
	})

	env.OnActivity("ListActiveBooksActivity", mock.Anything, mock.Anything).Return(activities.ListActiveBooksOutput{BookIDs: []string{"b1", "b2", "b3"}}, nil)
	forBook := func(id string) any {
		return mock.MatchedBy(func(in BookTopUpInput) bool { return in.BookID == id })
	}
	env.OnWorkflow(BookTopUpWorkflow, mock.Anything, forBook("b1")).Return(supply.BookResult{BookID: "b1", Outcome: supply.OutcomeToppedUp, Fragments: 12}, nil)
	env.OnWorkflow(BookTopUpWorkflow, mock.Anything, forBook("b2")).Return(supply.BookResult{BookID: "b2", Outcome: supply.OutcomeExhausted}, nil)
	env.OnWorkflow(BookTopUpWorkflow, mock.Anything, forBook("b3")).Return(supply.BookResult{BookID: "b3", Outcome: supply.OutcomeExtractionFailed, Error: "missing"}, nil)

	env.ExecuteWorkflow(SupplyPassWorkflow, SupplyPassInput{MaxConcurrentBooks: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var summary supply.PassSummary
	require.NoError(t, env.GetWorkflowResult(&summary))
	require.Equal(t, 3, summary.Books)
	require.Equal(t, 12, summary.Fragments)
	require.Equal(t, 1, summary.Outcomes[supply.OutcomeToppedUp])
	require.Equal(t, 1, summary.Outcomes[supply.OutcomeExhausted])
	require.Equal(t, 1, summary.Outcomes[supply.OutcomeExtractionFailed])
	require.Equal(t, []string{"b2"}, summary.Exhausted)
}

func TestSupplyPassWorkflowWithNoBooks(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SupplyPassWorkflow)
	registerActivityName(env, "ListActiveBooksActivity", func(context.Context, activities.ListActiveBooksInput) (activities.ListActiveBooksOutput, error) {
		return activities.ListActiveBooksOutput{}, nil
	})
	env.OnActivity("ListActiveBooksActivity", mock.Anything, mock.Anything).Return(activities.ListActiveBooksOutput{}, nil)

	env.ExecuteWorkflow(SupplyPassWorkflow, SupplyPassInput{})
	require.NoError(t, env.GetWorkflowError())
	var summary supply.PassSummary
	require.NoError(t, env.GetWorkflowResult(&summary))
	require.Zero(t, summary.Books)
}

func TestTopUpWorkflowID(t *testing.T) {
	require.Equal(t, "topup-abc", TopUpWorkflowID("abc"))
}
