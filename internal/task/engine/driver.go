package engine

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"planexport/internal/eventbus"
	logx "planexport/pkg/logx"

	"github.com/google/uuid"
)

// Driver executes job lists sequentially and reports progress to a Monitor.
//
// Jobs never run concurrently within a run. Concurrent calls to Run are
// allowed and share only the history buffer.
type Driver struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	rngMu sync.Mutex
	rng   *rand.Rand

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Driver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Driver{
		cfg: cfg.withDefaults(),
		log: log.With(logx.String("comp", "driver")),
		bus: bus,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Apply swaps the configuration used by subsequent runs.
func (d *Driver) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg.withDefaults()
	d.mu.Unlock()
}

func (d *Driver) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Run executes jobs in order under title and returns a report with one
// result per job. mon may be nil.
//
// Before each job the driver checks ctx and mon.Canceled(); once either
// signals cancellation the remaining jobs are recorded as skipped. With the
// FailFast policy the jobs after the first failure are skipped as well.
func (d *Driver) Run(ctx context.Context, title string, jobs []Job, mon Monitor) Report {
	if ctx == nil {
		ctx = context.Background()
	}
	if mon == nil {
		mon = NopMonitor{}
	}
	cfg := d.Config()

	rep := Report{RunID: uuid.NewString(), Title: title, Started: time.Now()}
	log := d.log.With(logx.String("run_id", rep.RunID), logx.String("title", title))

	mon.Begin(title, len(jobs))
	defer mon.Done()

	stopReason := ""
	for i, j := range jobs {
		if stopReason == "" {
			if ctx.Err() != nil || mon.Canceled() {
				rep.Canceled = true
				stopReason = "canceled"
				log.Info("run.canceled", logx.Int("at", i), logx.Int("total", len(jobs)))
			}
		}
		if stopReason != "" {
			rep.Results = append(rep.Results, Result{Name: j.Name, Skipped: true, Err: ErrSkipped})
			d.publish(eventbus.JobSkipped, JobEvent{RunID: rep.RunID, Title: title, Name: j.Name, Index: i, Total: len(jobs), Error: stopReason})
			continue
		}

		mon.SubTask(j.Name)
		res := d.execOne(ctx, cfg, log, rep.RunID, title, i, len(jobs), j)
		rep.Results = append(rep.Results, res)
		if res.Err != nil {
			mon.Failed(j.Name, res.Err)
			if cfg.Policy == FailFast {
				stopReason = "fail_fast"
			}
		}
		mon.Worked(1)
	}

	rep.Duration = time.Since(rep.Started)
	ok, failed, skipped := rep.Counts()
	fields := []logx.Field{logx.Int("ok", ok), logx.Int("failed", failed), logx.Int("skipped", skipped), logx.Duration("dur", rep.Duration)}
	if failed > 0 || rep.Canceled {
		log.Warn("run.finished", fields...)
	} else {
		log.Debug("run.finished", fields...)
	}
	return rep
}

func (d *Driver) execOne(ctx context.Context, cfg Config, log logx.Logger, runID, title string, idx, total int, j Job) Result {
	start := time.Now()
	ev := JobEvent{RunID: runID, Title: title, Name: j.Name, Index: idx, Total: total, Started: start}

	log.Debug("job.started", logx.String("job", j.Name))
	d.publish(eventbus.JobStarted, ev)

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	retries := cfg.RetryMax
	if j.Retries > 0 {
		retries = j.Retries
	}

	var err error
	attempts := 0
attemptLoop:
	for attempt := 1; attempt <= 1+retries; attempt++ {
		attempts = attempt
		err = d.attempt(ctx, log, j, timeout)
		if err == nil {
			break
		}
		if final, inner := unwrapNoRetry(err); final {
			err = inner
			break
		}
		if attempt > retries || ctx.Err() != nil {
			break
		}

		delay := d.backoff(cfg, attempt, err)
		log.Debug("job retry scheduled", logx.String("job", j.Name), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		if delay > 0 {
			tmr := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				tmr.Stop()
				err = fmt.Errorf("%w: %w", err, ctx.Err())
				break attemptLoop
			case <-tmr.C:
			}
		}
	}

	dur := time.Since(start)
	ev.Duration = dur
	ev.Attempts = attempts
	item := HistoryItem{RunID: runID, Name: j.Name, Started: start, Duration: dur, Attempts: attempts}
	if err != nil {
		item.Error = err.Error()
		ev.Error = item.Error
		log.Error("job.failed", logx.String("job", j.Name), logx.Err(err), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		d.publish(eventbus.JobFailed, ev)
	} else {
		if dur >= 750*time.Millisecond {
			log.Info("job.completed", logx.String("job", j.Name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		} else {
			log.Debug("job.completed", logx.String("job", j.Name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		}
		d.publish(eventbus.JobFinished, ev)
	}
	d.record(cfg, item)

	return Result{Name: j.Name, Err: err, Attempts: attempts, Duration: dur}
}

// attempt runs j once. A panic becomes a *PanicError so one bad job cannot
// take the run down.
func (d *Driver) attempt(ctx context.Context, log logx.Logger, j Job, timeout time.Duration) (err error) {
	if j.Run == nil {
		return NoRetry(fmt.Errorf("job %s has no run func", j.Name))
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			log.Error("job.panic", logx.String("job", j.Name), logx.Any("panic", r), logx.Stack(stack))
			err = NoRetry(&PanicError{Job: j.Name, Value: r, Stack: stack})
		}
	}()
	return j.Run(runCtx)
}

func (d *Driver) backoff(cfg Config, attempt int, err error) time.Duration {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return backoffDelayWithHint(cfg, attempt, err, d.rng)
}

func (d *Driver) publish(typ string, ev JobEvent) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

func (d *Driver) record(cfg Config, item HistoryItem) {
	d.hmu.Lock()
	d.history = append(d.history, item)
	if len(d.history) > cfg.HistorySize {
		d.history = d.history[len(d.history)-cfg.HistorySize:]
	}
	d.hmu.Unlock()
}

// History returns a copy of the most recent job executions, oldest first.
func (d *Driver) History() []HistoryItem {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	return append([]HistoryItem(nil), d.history...)
}
