package cron

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for operations on an unknown job id.
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyExists is returned when adding a job whose id is taken.
	ErrAlreadyExists = errors.New("job already exists")

	// ErrDispatchFailure wraps a failed or panicking dispatch.
	ErrDispatchFailure = errors.New("job dispatch failed")
)

// JobSpec is the declarative part of a job, as stored on disk or entered
// through the CLI.
type JobSpec struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Schedule    string `json:"schedule" yaml:"schedule"`
	Command     string `json:"command" yaml:"command"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Disabled    bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Job is a scheduled action together with its run bookkeeping.
type Job struct {
	ID          string
	Name        string
	Expression  string
	Command     string
	Description string
	Fields      FieldSet
	Enabled     bool

	LastRun   time.Time
	NextRun   time.Time // zero means never
	RunCount  int
	FailCount int
	LastError string
}

// Spec returns the declarative part of the job.
func (j Job) Spec() JobSpec {
	return JobSpec{
		ID:          j.ID,
		Name:        j.Name,
		Schedule:    j.Expression,
		Command:     j.Command,
		Description: j.Description,
		Disabled:    !j.Enabled,
	}
}

// Dispatcher runs a job in the agent runtime. Implementations are expected
// to enforce their own timeouts: a dispatch that never returns stalls the
// scheduler.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, job Job) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// RunResult reports the outcome of one dispatch.
type RunResult struct {
	JobID    string
	Started  time.Time
	Duration time.Duration
	Err      error
	NextRun  time.Time
}

// GenerateJobID returns a new unique job id in the form job_<uuid>.
func GenerateJobID() string {
	return "job_" + uuid.New().String()
}

func newJob(spec JobSpec) (Job, error) {
	fields, err := Parse(spec.Schedule)
	if err != nil {
		return Job{}, err
	}

	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = GenerateJobID()
	}
	name := spec.Name
	if name == "" {
		name = id
	}

	return Job{
		ID:          id,
		Name:        name,
		Expression:  strings.Join(strings.Fields(spec.Schedule), " "),
		Command:     spec.Command,
		Description: spec.Description,
		Fields:      fields,
		Enabled:     !spec.Disabled,
	}, nil
}
