package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aatumaykin/nexbotd/internal/logger"
)

// Registry is an ordered, in-memory collection of jobs. It owns no
// goroutines; the daemon loop drives it through RunPending.
type Registry struct {
	mu     sync.RWMutex
	jobs   []*Job
	index  map[string]int
	logger *logger.Logger
}

// NewRegistry creates an empty registry. A nil logger discards output.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Discard()
	}
	return &Registry{
		index:  make(map[string]int),
		logger: log,
	}
}

// Add validates spec, schedules the first run relative to now and appends
// the job. An expression that never matches is accepted with NextRun set to
// never and a warning logged.
func (r *Registry) Add(spec JobSpec, now time.Time) (Job, error) {
	job, err := newJob(spec)
	if err != nil {
		return Job{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[job.ID]; exists {
		return Job{}, fmt.Errorf("%w: %s", ErrAlreadyExists, job.ID)
	}

	r.schedule(&job, now)
	r.index[job.ID] = len(r.jobs)
	r.jobs = append(r.jobs, &job)

	r.logger.Info("cron job added",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "schedule", Value: job.Expression},
		logger.Field{Key: "next_run", Value: job.NextRun})

	return job, nil
}

// Remove deletes a job by id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	r.jobs = append(r.jobs[:pos], r.jobs[pos+1:]...)
	r.reindex()

	r.logger.Info("cron job removed", logger.Field{Key: "job_id", Value: id})
	return nil
}

// Get returns a copy of the job with the given id.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.index[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *r.jobs[pos], nil
}

// List returns copies of all jobs in insertion order.
func (r *Registry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Job, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = *j
	}
	return out
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Enable enables a job and recomputes its next run from now.
func (r *Registry) Enable(id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	job := r.jobs[pos]
	job.Enabled = true
	r.schedule(job, now)
	return nil
}

// Disable disables a job. Its next run becomes never.
func (r *Registry) Disable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	job := r.jobs[pos]
	job.Enabled = false
	job.NextRun = time.Time{}
	return nil
}

// RunPending dispatches every due job, in registry order, one at a time.
// Each dispatched job gets its counters, LastRun and NextRun updated
// regardless of outcome. Dispatch errors and panics are captured in the
// returned results; they never stop evaluation of later jobs.
//
// The registry lock is released while a dispatcher runs.
func (r *Registry) RunPending(ctx context.Context, now time.Time, d Dispatcher) []RunResult {
	r.mu.RLock()
	var due []Job
	for _, j := range r.jobs {
		if ShouldRun(*j, now) {
			due = append(due, *j)
		}
	}
	r.mu.RUnlock()

	results := make([]RunResult, 0, len(due))
	for _, job := range due {
		started := time.Now()
		err := safeDispatch(ctx, d, job)
		res := RunResult{
			JobID:    job.ID,
			Started:  started,
			Duration: time.Since(started),
			Err:      err,
		}
		res.NextRun = r.recordRun(job.ID, now, err)
		results = append(results, res)
	}
	return results
}

func safeDispatch(ctx context.Context, d Dispatcher, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrDispatchFailure, job.ID, rec)
		}
	}()

	if err := d.Dispatch(ctx, job); err != nil {
		if errors.Is(err, ErrDispatchFailure) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrDispatchFailure, job.ID, err)
	}
	return nil
}

func (r *Registry) recordRun(id string, now time.Time, runErr error) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		// Removed while it was running.
		return time.Time{}
	}
	job := r.jobs[pos]
	job.RunCount++
	job.LastRun = now
	if runErr != nil {
		job.FailCount++
		job.LastError = runErr.Error()
		r.logger.Error("cron job failed", runErr,
			logger.Field{Key: "job_id", Value: id},
			logger.Field{Key: "fail_count", Value: job.FailCount})
	} else {
		job.LastError = ""
		r.logger.Info("cron job executed",
			logger.Field{Key: "job_id", Value: id},
			logger.Field{Key: "run_count", Value: job.RunCount})
	}
	r.schedule(job, now)
	return job.NextRun
}

// Sync replaces the job set with specs, keeping specs' order. Jobs whose id
// and expression are unchanged keep their counters, last run and pending
// next run. Invalid
// specs are skipped and reported; the rest are still applied.
func (r *Registry) Sync(specs []JobSpec, now time.Time) []error {
	var errs []error
	next := make([]*Job, 0, len(specs))
	seen := make(map[string]bool, len(specs))

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, spec := range specs {
		job, err := newJob(spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("job %q: %w", spec.ID, err))
			continue
		}
		if seen[job.ID] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrAlreadyExists, job.ID))
			continue
		}
		seen[job.ID] = true

		if pos, ok := r.index[job.ID]; ok {
			old := r.jobs[pos]
			if old.Expression == job.Expression {
				job.LastRun = old.LastRun
				job.RunCount = old.RunCount
				job.FailCount = old.FailCount
				job.LastError = old.LastError
				// A past NextRun is kept so a job due in this tick still fires.
				if job.Enabled && old.Enabled && !old.NextRun.IsZero() {
					job.NextRun = old.NextRun
				}
			}
		}
		if job.Enabled && job.NextRun.IsZero() {
			r.schedule(&job, now)
		}
		next = append(next, &job)
	}

	r.jobs = next
	r.reindex()

	r.logger.Info("cron jobs synchronized",
		logger.Field{Key: "jobs", Value: len(r.jobs)},
		logger.Field{Key: "rejected", Value: len(errs)})
	return errs
}

// schedule recomputes job.NextRun. Must be called with r.mu held.
func (r *Registry) schedule(job *Job, now time.Time) {
	if !job.Enabled {
		job.NextRun = time.Time{}
		return
	}
	next, err := NextRun(job.Fields, now)
	if err != nil {
		job.NextRun = time.Time{}
		r.logger.Warn("cron job will never run",
			logger.Field{Key: "job_id", Value: job.ID},
			logger.Field{Key: "schedule", Value: job.Expression},
			logger.Field{Key: "reason", Value: err.Error()})
		return
	}
	job.NextRun = next
}

func (r *Registry) reindex() {
	r.index = make(map[string]int, len(r.jobs))
	for i, j := range r.jobs {
		r.index[j.ID] = i
	}
}
