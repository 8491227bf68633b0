package progress

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
)

// Monitor drives a bubbletea program from engine.Monitor calls. Start it
// before the run and Wait after Done.
type Monitor struct {
	prog     *tea.Program
	canceled atomic.Bool

	startOnce sync.Once
	done      chan struct{}
	err       error
}

// NewMonitor builds the program. opts are passed to tea.NewProgram
// (e.g. tea.WithOutput).
func NewMonitor(opts ...tea.ProgramOption) *Monitor {
	m := &Monitor{done: make(chan struct{})}
	model := NewModel(func() { m.canceled.Store(true) })
	m.prog = tea.NewProgram(model, opts...)
	return m
}

// Start runs the program in the background. It is idempotent.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		go func() {
			defer close(m.done)
			_, m.err = m.prog.Run()
		}()
	})
}

// Wait blocks until the program exits and returns its error.
func (m *Monitor) Wait() error {
	<-m.done
	return m.err
}

func (m *Monitor) Begin(title string, total int) {
	m.prog.Send(beginMsg{title: title, total: total})
}

func (m *Monitor) SubTask(name string) { m.prog.Send(subTaskMsg{name: name}) }

func (m *Monitor) Worked(n int) { m.prog.Send(workedMsg{n: n}) }

func (m *Monitor) Failed(name string, err error) {
	m.prog.Send(failedMsg{name: name, err: err})
}

// Done tells the program to render the final state and quit.
func (m *Monitor) Done() { m.prog.Send(doneMsg{}) }

// Canceled reports whether the user asked to cancel.
func (m *Monitor) Canceled() bool { return m.canceled.Load() }
