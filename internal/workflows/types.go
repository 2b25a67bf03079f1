package workflows

import (
	"time"

	"reelflow/internal/config"
)

// Timeouts bound each activity of a book top-up.
type Timeouts struct {
	Extract  time.Duration `json:"extract"`
	Generate time.Duration `json:"generate"`
	Store    time.Duration `json:"store"`
}

type SupplyPassInput struct {
	MaxConcurrentBooks int      `json:"max_concurrent_books"`
	Timeouts           Timeouts `json:"timeouts"`
}

type BookTopUpInput struct {
	BookID   string   `json:"book_id"`
	Timeouts Timeouts `json:"timeouts"`
}

type PassProgress struct {
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	PerBook       map[string]string `json:"per_book_outcome"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}

type BookStatus struct {
	BookID      string            `json:"book_id"`
	CurrentStep string            `json:"current_step"`
	Outcome     string            `json:"outcome,omitempty"`
	Steps       map[string]string `json:"steps"`
}

func SupplyPassInputFromConfig(cfg config.Config) SupplyPassInput {
	return SupplyPassInput{
		MaxConcurrentBooks: cfg.MaxConcurrentBooks,
		Timeouts: Timeouts{
			Extract:  cfg.ExtractTimeout,
			Generate: cfg.GenerateTimeout,
			Store:    cfg.StoreTimeout,
		},
	}
}
