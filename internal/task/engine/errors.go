package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCanceled = errors.New("export run canceled")
	// ErrSkipped is the Result error of a job that never ran.
	ErrSkipped = errors.New("job skipped")
)

// PanicError is the Result error of a job whose Run panicked.
type PanicError struct {
	Job   string
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("job %s panicked: %v", e.Job, e.Value) }

// retryControl carries a retry decision alongside the job error.
type retryControl struct {
	err      error
	final    bool
	after    time.Duration
	hasAfter bool
}

func (e *retryControl) Error() string {
	switch {
	case e.final:
		return "no-retry: " + e.err.Error()
	case e.hasAfter:
		return fmt.Sprintf("retry after %s: %v", e.after, e.err)
	}
	return e.err.Error()
}

func (e *retryControl) Unwrap() error { return e.err }

// NoRetry marks err as permanent: the driver records it without retrying.
//
//	return engine.NoRetry(fmt.Errorf("bad output path: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &retryControl{err: err, final: true}
}

// IsNoRetry reports whether err, or anything it wraps, came from NoRetry.
func IsNoRetry(err error) bool {
	for rc := (*retryControl)(nil); errors.As(err, &rc); err = rc.err {
		if rc.final {
			return true
		}
	}
	return false
}

// unwrapNoRetry strips an outermost NoRetry marker so results carry the
// job's own error.
func unwrapNoRetry(err error) (bool, error) {
	if rc, ok := err.(*retryControl); ok && rc.final {
		return true, rc.err
	}
	return IsNoRetry(err), err
}

// RetryAfter asks the driver to wait about after before the next attempt,
// capped by Config.RetryMaxDelay.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &retryControl{err: err, after: max(after, 0), hasAfter: true}
}

// retryHint returns the delay hint carried by err, if any.
func retryHint(err error) (time.Duration, bool) {
	var rc *retryControl
	for e := err; errors.As(e, &rc); e = rc.err {
		if rc.hasAfter {
			return rc.after, true
		}
	}
	return 0, false
}
