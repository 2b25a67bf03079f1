package workflows

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker) {
	w.RegisterWorkflow(SupplyPassWorkflow)
	w.RegisterWorkflow(BookTopUpWorkflow)
}
