package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"planexport/internal/eventbus"
	"planexport/internal/option"
	"planexport/internal/prefs"
	"planexport/internal/storage"
	"planexport/internal/task/engine"
	logx "planexport/pkg/logx"
)

// Deps are the collaborators shared by all exporters.
type Deps struct {
	Log    logx.Logger
	Driver *engine.Driver
	Store  storage.Store // optional: run records
	Bus    eventbus.Bus  // optional
	Now    func() time.Time
}

// JobBuilder produces the format specific jobs of one export. Jobs append
// the files they produce to files.
type JobBuilder interface {
	CreateJobs(output string, files *Files) []engine.Job
}

// Files accumulates produced files across jobs.
type Files struct {
	mu   sync.Mutex
	list []string
}

func (f *Files) Add(path string) {
	f.mu.Lock()
	f.list = append(f.list, path)
	f.mu.Unlock()
}

func (f *Files) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.list...)
}

// Event is published on the bus for export.started/finished/failed.
type Event struct {
	RunID    string   `json:"run_id,omitempty"`
	Exporter string   `json:"exporter"`
	Output   string   `json:"output"`
	Files    []string `json:"files,omitempty"`
	OK       int      `json:"ok"`
	Failed   int      `json:"failed"`
	Skipped  int      `json:"skipped"`
	Canceled bool     `json:"canceled,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Base implements the export range settings, the task filters and the job
// runner shared by concrete exporters. Concrete exporters embed it and call
// init from their constructor.
type Base struct {
	name    string
	title   string
	deps    Deps
	log     logx.Logger
	builder JobBuilder

	mu      sync.Mutex
	monitor engine.Monitor
	chart   Chart
	root    Preferences
	node    Preferences
	start   *option.DateOption
	end     *option.DateOption
	filters []TaskFilter
}

func (b *Base) init(name, title string, deps Deps, builder JobBuilder) {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Driver == nil {
		deps.Driver = engine.New(engine.Config{}, deps.Log, deps.Bus)
	}
	b.name = name
	b.title = title
	b.deps = deps
	b.log = deps.Log.With(logx.String("comp", "export"), logx.String("exporter", name))
	b.builder = builder
}

func (b *Base) Name() string                { return b.name }
func (b *Base) FileTypeDescription() string { return b.title }

// SetMonitor sets the progress monitor used by Run. nil restores the default.
func (b *Base) SetMonitor(m engine.Monitor) {
	b.mu.Lock()
	b.monitor = m
	b.mu.Unlock()
}

// SetContext binds the exporter to a chart and the root preferences. The
// range options and task filters live in the PrefsNodePath node.
func (b *Base) SetContext(chart Chart, root *prefs.Node) {
	b.Configure(chart, root, root.Node(PrefsNodePath))
}

// Configure is SetContext with an explicit export node.
func (b *Base) Configure(chart Chart, root, node Preferences) {
	start := option.NewDateOption(OptionRangeStart, chart.StartDate())
	end := option.NewDateOption(OptionRangeEnd, chart.EndDate())
	b.loadDate(start, node, KeyRangeStart, chart.StartDate())
	b.loadDate(end, node, KeyRangeEnd, chart.EndDate())

	start.SetValidator(func(v time.Time) (bool, string) {
		if e := end.Date(); !e.IsZero() && v.After(e) {
			return false, RangeMessage
		}
		return true, ""
	})
	end.SetValidator(func(v time.Time) (bool, string) {
		if s := start.Date(); !s.IsZero() && v.Before(s) {
			return false, RangeMessage
		}
		return true, ""
	})
	b.persistOnChange(start, node, KeyRangeStart)
	b.persistOnChange(end, node, KeyRangeEnd)

	filters := builtInFilters()
	for _, f := range filters {
		id := f.Option.ID()
		if err := f.Option.LoadPersistentValue(node.Get(id, f.Option.PersistentValue())); err != nil {
			b.log.Warn("filter preference unreadable", logx.String("filter", id), logx.Err(err))
		}
		opt := f.Option
		opt.AddChangeListener(func(option.Change[bool]) {
			if err := node.Put(id, opt.PersistentValue()); err != nil {
				b.log.Warn("filter preference not saved", logx.String("filter", id), logx.Err(err))
			}
		})
	}

	b.mu.Lock()
	b.chart, b.root, b.node = chart, root, node
	b.start, b.end = start, end
	b.filters = filters
	b.mu.Unlock()
}

func (b *Base) loadDate(o *option.DateOption, node Preferences, key string, def time.Time) {
	raw := node.Get(key, "")
	if raw == "" {
		return
	}
	if err := o.LoadPersistentValue(raw); err != nil {
		b.log.Warn("stored export range unreadable", logx.String("key", key), logx.String("value", raw), logx.Time("default", def), logx.Err(err))
	}
}

func (b *Base) persistOnChange(o *option.DateOption, node Preferences, key string) {
	o.AddChangeListener(func(option.Change[time.Time]) {
		if err := node.Put(key, o.PersistentValue()); err != nil {
			b.log.Warn("export range not saved", logx.String("key", key), logx.Err(err))
		}
	})
}

// RangeStart returns the start option, or nil before SetContext.
func (b *Base) RangeStart() *option.DateOption {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start
}

// RangeEnd returns the end option, or nil before SetContext.
func (b *Base) RangeEnd() *option.DateOption {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.end
}

// Filters returns the built-in task filters, or nil before SetContext.
func (b *Base) Filters() []TaskFilter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]TaskFilter(nil), b.filters...)
}

// CreateExportRangeOptionGroup groups the two range options.
func (b *Base) CreateExportRangeOptionGroup() *option.Group {
	return option.NewGroup(RangeGroupID, b.RangeStart(), b.RangeEnd())
}

// CreateFilterOptionGroup groups the task filter options.
func (b *Base) CreateFilterOptionGroup() *option.Group {
	g := option.NewGroup("export.filters")
	for _, f := range b.Filters() {
		g.Options = append(g.Options, f.Option)
	}
	return g
}

// CreateExportSettings builds the settings of one export.
//
// A root "exportRange" value ("START END", ISO-8601) takes precedence over
// the range options. Unparsable bounds are logged and left unset. A start
// after the end is logged as a validation error; the settings are returned
// as they are.
func (b *Base) CreateExportSettings() Settings {
	b.mu.Lock()
	root, start, end := b.root, b.start, b.end
	b.mu.Unlock()

	var s Settings
	if root == nil {
		b.log.Error("export settings requested without context", logx.Err(ErrNoContext))
		return s
	}

	if raw := root.Get(KeyExportRange, ""); raw != "" {
		bounds := strings.Fields(raw)
		s.Start = b.parseBound(bounds, 0, raw)
		s.End = b.parseBound(bounds, 1, raw)
	} else {
		s.Start = start.Date()
		s.End = end.Date()
	}

	s.CommandLine = root.GetBoolean(KeyCommandLine, false)
	s.ExpandResources = root.GetBoolean(KeyExpandResources, false)

	if !s.Start.IsZero() && !s.End.IsZero() && s.Start.After(s.End) {
		err := &option.ValidationError{OptionID: RangeGroupID, Message: RangeMessage}
		b.log.Error("export range invalid",
			logx.String("start", option.FormatDate(s.Start)),
			logx.String("end", option.FormatDate(s.End)),
			logx.Err(err))
	}
	return s
}

func (b *Base) parseBound(bounds []string, i int, raw string) time.Time {
	if i >= len(bounds) {
		b.log.Error("export range bound missing", logx.String(KeyExportRange, raw), logx.Int("index", i))
		return time.Time{}
	}
	t, err := option.ParseDate(bounds[i])
	if err != nil {
		b.log.Error("export range bound unparsable", logx.String(KeyExportRange, raw), logx.Int("index", i), logx.Err(err))
		return time.Time{}
	}
	return t
}

// Run executes the exporter's jobs followed by a Finalizing job that passes
// the produced files to onFinalize. The returned error joins the job
// failures; the report is complete either way.
func (b *Base) Run(ctx context.Context, output string, onFinalize func(files []string)) (engine.Report, error) {
	b.mu.Lock()
	hasCtx := b.root != nil
	mon := b.monitor
	b.mu.Unlock()
	if !hasCtx {
		return engine.Report{}, ErrNoContext
	}
	if mon == nil {
		mon = engine.NewLogMonitor(b.log)
	}

	files := &Files{}
	jobs := b.builder.CreateJobs(output, files)
	jobs = append(jobs, engine.Job{
		Name: FinalizingJob,
		Run: func(context.Context) error {
			if onFinalize != nil {
				onFinalize(files.List())
			}
			return nil
		},
	})

	b.publish(eventbus.ExportStarted, Event{Exporter: b.name, Output: output})
	rep := b.deps.Driver.Run(ctx, b.title, jobs, mon)
	runErr := rep.Err()

	ok, failed, skipped := rep.Counts()
	ev := Event{
		RunID:    rep.RunID,
		Exporter: b.name,
		Output:   output,
		Files:    files.List(),
		OK:       ok,
		Failed:   failed,
		Skipped:  skipped,
		Canceled: rep.Canceled,
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	b.recordRun(ctx, rep, ev)

	if runErr != nil {
		b.publish(eventbus.ExportFailed, ev)
		return rep, fmt.Errorf("export %s: %w", b.name, runErr)
	}
	b.publish(eventbus.ExportFinished, ev)
	return rep, nil
}

func (b *Base) recordRun(ctx context.Context, rep engine.Report, ev Event) {
	if b.deps.Store == nil {
		return
	}
	rec := storage.RunRecord{
		At:       rep.Started,
		RunID:    rep.RunID,
		Exporter: b.name,
		Output:   ev.Output,
		Files:    ev.Files,
		OK:       ev.OK,
		Fail:     ev.Failed,
		Canceled: ev.Canceled,
		Error:    ev.Error,
		TookMS:   rep.Duration.Milliseconds(),
	}
	// The run context may already be canceled; the record is still wanted.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := b.deps.Store.AppendRun(rctx, rec); err != nil && !errors.Is(err, storage.ErrClosed) {
		b.log.Warn("run record not saved", logx.String("run_id", rep.RunID), logx.Err(err))
	}
}

func (b *Base) publish(typ string, ev Event) {
	if b.deps.Bus == nil {
		return
	}
	b.deps.Bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

func (b *Base) now() time.Time { return b.deps.Now() }
