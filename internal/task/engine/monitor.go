package engine

import (
	"sync"
	"sync/atomic"

	logx "planexport/pkg/logx"
)

// Monitor receives progress from the driver. Canceled is polled once per
// job boundary; returning true stops the run before the next job starts.
//
// Calls arrive from the goroutine running Driver.Run.
type Monitor interface {
	Begin(title string, total int)
	SubTask(name string)
	Worked(n int)
	Failed(name string, err error)
	Done()
	Canceled() bool
}

// NopMonitor ignores progress and never cancels.
type NopMonitor struct{}

func (NopMonitor) Begin(string, int)    {}
func (NopMonitor) SubTask(string)       {}
func (NopMonitor) Worked(int)           {}
func (NopMonitor) Failed(string, error) {}
func (NopMonitor) Done()                {}
func (NopMonitor) Canceled() bool       { return false }

// LogMonitor reports progress through a logger. Cancel may be called from
// any goroutine.
type LogMonitor struct {
	log logx.Logger

	mu     sync.Mutex
	title  string
	total  int
	worked int

	canceled atomic.Bool
}

func NewLogMonitor(log logx.Logger) *LogMonitor {
	return &LogMonitor{log: log}
}

func (m *LogMonitor) Begin(title string, total int) {
	m.mu.Lock()
	m.title, m.total, m.worked = title, total, 0
	m.mu.Unlock()
	m.log.Info("progress.begin", logx.String("title", title), logx.Int("total", total))
}

func (m *LogMonitor) SubTask(name string) {
	m.mu.Lock()
	worked, total := m.worked, m.total
	m.mu.Unlock()
	m.log.Info("progress.step", logx.String("job", name), logx.Int("step", worked+1), logx.Int("total", total))
}

func (m *LogMonitor) Worked(n int) {
	m.mu.Lock()
	m.worked += n
	m.mu.Unlock()
}

func (m *LogMonitor) Failed(name string, err error) {
	m.log.Error("progress.failed", logx.String("job", name), logx.Err(err))
}

func (m *LogMonitor) Done() {
	m.mu.Lock()
	title, worked, total := m.title, m.worked, m.total
	m.mu.Unlock()
	m.log.Info("progress.done", logx.String("title", title), logx.Int("worked", worked), logx.Int("total", total))
}

func (m *LogMonitor) Canceled() bool { return m.canceled.Load() }

// Cancel requests that the run stop at the next job boundary.
func (m *LogMonitor) Cancel() { m.canceled.Store(true) }
