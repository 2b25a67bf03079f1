package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListActiveBooksActivity)
	w.RegisterActivity(a.PlanWindowActivity)
	w.RegisterActivity(a.GenerateFragmentsActivity)
	w.RegisterActivity(a.CommitFragmentsActivity)
}
