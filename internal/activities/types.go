package activities

import "reelflow/internal/supply"

type ListActiveBooksInput struct{}

type ListActiveBooksOutput struct {
	BookIDs []string `json:"book_ids"`
}

type PlanWindowInput struct {
	BookID string `json:"book_id"`
}

// PlanWindowOutput carries per-book failures in Error instead of failing the
// activity, so the workflow can count them without inspecting error text.
type PlanWindowOutput struct {
	Plan  supply.Plan `json:"plan"`
	Error string      `json:"error,omitempty"`
}

type GenerateFragmentsInput struct {
	Plan supply.Plan `json:"plan"`
}

type GenerateFragmentsOutput struct {
	Generation supply.Generation `json:"generation"`
	Error      string            `json:"error,omitempty"`
}

type CommitFragmentsInput struct {
	Plan  supply.Plan `json:"plan"`
	Texts []string    `json:"texts"`
}

type CommitFragmentsOutput struct {
	Outcome   supply.Outcome `json:"outcome"`
	Fragments int            `json:"fragments"`
	Error     string         `json:"error,omitempty"`
}
