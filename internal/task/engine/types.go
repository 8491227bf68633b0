package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Policy decides what happens to the remaining jobs after one fails.
type Policy int

const (
	// CollectAll logs the failure and keeps going. The trailing jobs of a
	// run (e.g. a finalizer) always execute.
	CollectAll Policy = iota
	// FailFast skips every job after the first failure.
	FailFast
)

func (p Policy) String() string {
	if p == FailFast {
		return "fail_fast"
	}
	return "collect_all"
}

// ParsePolicy accepts "collect_all" (or "") and "fail_fast", case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "", "collect_all", "collectall":
		return CollectAll, nil
	case "fail_fast", "failfast":
		return FailFast, nil
	default:
		return CollectAll, fmt.Errorf("unknown job policy %q", s)
	}
}

// Config controls the driver.
type Config struct {
	Policy Policy

	// DefaultTimeout is used when Job.Timeout is 0. 0 means no timeout.
	DefaultTimeout time.Duration

	// RetryMax is the number of extra attempts for a failing job.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = 20%

	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	if c.RetryJitter <= 0 {
		c.RetryJitter = 0.2
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// Job is a named unit of work. A nil error means ok; a non-nil error is the
// failure cause.
type Job struct {
	Name    string
	Timeout time.Duration
	// Retries overrides Config.RetryMax when > 0. Use NoRetry in Run to stop
	// retrying a specific failure.
	Retries int
	Run     func(ctx context.Context) error
}

// Result is the outcome of one job.
type Result struct {
	Name     string
	Err      error
	Skipped  bool
	Attempts int
	Duration time.Duration
}

func (r Result) OK() bool { return r.Err == nil && !r.Skipped }

// Report summarises a run.
type Report struct {
	RunID    string
	Title    string
	Started  time.Time
	Duration time.Duration
	Results  []Result
	Canceled bool
}

// Counts returns the number of ok, failed and skipped jobs.
func (r Report) Counts() (ok, failed, skipped int) {
	for _, res := range r.Results {
		switch {
		case res.Skipped:
			skipped++
		case res.Err != nil:
			failed++
		default:
			ok++
		}
	}
	return ok, failed, skipped
}

// Err joins the failures of the run, prefixed with the job name. It returns
// ErrCanceled (joined with any failures) for a canceled run.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil && !res.Skipped {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	if r.Canceled {
		errs = append([]error{ErrCanceled}, errs...)
	}
	return errors.Join(errs...)
}

// HistoryItem is kept by the driver for diagnostics.
type HistoryItem struct {
	RunID    string
	Name     string
	Started  time.Time
	Duration time.Duration
	Attempts int
	Error    string
}

// JobEvent is emitted on the event bus for job lifecycle events.
type JobEvent struct {
	RunID    string        `json:"run_id"`
	Title    string        `json:"title"`
	Name     string        `json:"name"`
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
}
