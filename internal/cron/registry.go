package cron

import "context"

// Job is one periodic task run by the worker: dispatching due messages or
// sweeping stale PIX charges. Run reports failure; the service decides what
// that means for the cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a worker instance runs, in registration order. The
// order matters: dispatch runs before expiry so a freshly expired charge's
// nudge waits for the next cycle rather than racing this one.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the given jobs, skipping nils so callers
// can register conditionally.
func NewRegistry(jobs ...Job) *Registry {
	reg := &Registry{}
	for _, job := range jobs {
		reg.Register(job)
	}
	return reg
}

// Register appends a job; nil is ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
