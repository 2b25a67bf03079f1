package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"reelflow/internal/supply"
)

// Activities are thin Temporal adapters over supply.Service. Every step is a
// separate activity so that a timeout on one external call only fails that
// step.
type Activities struct {
	svc *supply.Service
}

func New(svc *supply.Service) *Activities {
	return &Activities{svc: svc}
}

func (a *Activities) ListActiveBooksActivity(ctx context.Context, _ ListActiveBooksInput) (ListActiveBooksOutput, error) {
	books, err := a.svc.ActiveBooks(ctx)
	if err != nil {
		return ListActiveBooksOutput{}, fmt.Errorf("list active books: %w", err)
	}
	out := ListActiveBooksOutput{BookIDs: make([]string, 0, len(books))}
	for _, b := range books {
		out.BookIDs = append(out.BookIDs, b.BookID)
	}
	return out, nil
}

func (a *Activities) PlanWindowActivity(ctx context.Context, in PlanWindowInput) (PlanWindowOutput, error) {
	plan, err := a.svc.Plan(ctx, in.BookID)
	out := PlanWindowOutput{Plan: plan}
	if err != nil {
		activity.GetLogger(ctx).Warn("plan window failed", "book_id", in.BookID, "outcome", string(plan.Outcome), "error", err)
		out.Error = err.Error()
	}
	return out, nil
}

func (a *Activities) GenerateFragmentsActivity(ctx context.Context, in GenerateFragmentsInput) (GenerateFragmentsOutput, error) {
	gen, err := a.svc.Generate(ctx, in.Plan)
	out := GenerateFragmentsOutput{Generation: gen}
	if err != nil {
		activity.GetLogger(ctx).Warn("generate fragments failed", "book_id", in.Plan.BookID, "provider", gen.Provider, "error", err)
		out.Error = err.Error()
	}
	return out, nil
}

func (a *Activities) CommitFragmentsActivity(ctx context.Context, in CommitFragmentsInput) (CommitFragmentsOutput, error) {
	n, err := a.svc.Commit(ctx, in.Plan, in.Texts)
	if err != nil {
		activity.GetLogger(ctx).Warn("commit fragments failed", "book_id", in.Plan.BookID, "error", err)
		return CommitFragmentsOutput{Outcome: supply.OutcomeCommitFailed, Error: err.Error()}, nil
	}
	return CommitFragmentsOutput{Outcome: supply.OutcomeToppedUp, Fragments: n}, nil
}
