package queue

import (
	"context"
	"time"
)

// Config controls the job queue.
type Config struct {
	Workers   int
	QueueSize int

	// DefaultTimeout is used when Job.Opt.Timeout is 0. 0 disables timeouts.
	DefaultTimeout time.Duration

	// RetryMax / RetryDelay are the defaults for jobs that do not override
	// them: up to RetryMax retries, a fixed RetryDelay apart.
	RetryMax   int
	RetryDelay time.Duration
}

// Options is the per-job retry/timeout policy.
type Options struct {
	RetryMax   int
	RetryDelay time.Duration
	Timeout    time.Duration
}

func (o Options) withDefaults(cfg Config) Options {
	if o.RetryMax <= 0 {
		o.RetryMax = cfg.RetryMax
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = cfg.RetryDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = cfg.DefaultTimeout
	}
	return o
}

// Job is a unit of work. A zero RunAt (or one in the past) runs as soon as a
// worker is free; a future RunAt arms a one-shot timer first.
type Job struct {
	ID    string
	Name  string
	RunAt time.Time
	Run   func(ctx context.Context) error
	Opt   Options
}

// Event is emitted on the event bus for job lifecycle transitions.
type Event struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Workers  int
	QueueLen int
	QueueCap int
	Pending  int // delayed jobs waiting on their timer
	Done     uint64
	Failed   uint64
	Skipped  uint64
}
