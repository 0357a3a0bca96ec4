package cron

import (
	"context"
	"fmt"
	"time"
)

// Result summarises one job run.
type Result struct {
	// Processed counts the records the run acted on.
	Processed int64
}

// Job is a task the cron worker runs once per tick.
type Job interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

// Periodic jobs run at most once per Every, however often the worker ticks.
// A failed run is retried on the next tick.
type Periodic interface {
	Every() time.Duration
}

// Registry holds jobs in registration order.
type Registry struct {
	jobs  []Job
	names map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{names: map[string]bool{}}
}

// Register adds a job. Names must be unique since they key metrics and locks.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	if r.names[job.Name()] {
		return fmt.Errorf("job %q already registered", job.Name())
	}
	r.names[job.Name()] = true
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
