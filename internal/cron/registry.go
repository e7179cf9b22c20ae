package cron

import (
	"context"
	"fmt"
)

// Job is one maintenance task run by the cron worker each cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in registration order and rejects duplicate names.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry registers the given jobs, skipping nils.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		_ = registry.Register(job)
	}
	return registry
}

// Register adds a job. A second job with the same name is refused.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if _, dup := r.names[job.Name()]; dup {
		return fmt.Errorf("cron job %q already registered", job.Name())
	}
	r.names[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// Names lists the registered job names in order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Name())
	}
	return out
}
