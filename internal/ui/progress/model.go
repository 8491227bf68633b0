// Package progress renders an export run in the terminal with bubbletea and
// exposes it to the driver as an engine.Monitor.
package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	minBarWidth = 20
	maxBarWidth = 60
)

type beginMsg struct {
	title string
	total int
}

type subTaskMsg struct{ name string }

type workedMsg struct{ n int }

type failedMsg struct {
	name string
	err  error
}

type doneMsg struct{}

type failure struct {
	job string
	err string
}

// Model is the bubbletea model of one run.
type Model struct {
	title    string
	total    int
	worked   int
	current  string
	failures []failure
	canceled bool
	finished bool
	bar      progress.Model

	onCancel func()
}

// NewModel returns a model. onCancel is called once when the user asks to
// cancel (ctrl+c, esc or q).
func NewModel(onCancel func()) Model {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40
	return Model{bar: bar, onCancel: onCancel}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if !m.canceled && !m.finished {
				m.canceled = true
				if m.onCancel != nil {
					m.onCancel()
				}
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		w := msg.Width - 8
		if w < minBarWidth {
			w = minBarWidth
		}
		if w > maxBarWidth {
			w = maxBarWidth
		}
		m.bar.Width = w
		return m, nil

	case beginMsg:
		m.title, m.total, m.worked = msg.title, msg.total, 0
		m.current, m.failures, m.finished = "", nil, false
		return m, nil

	case subTaskMsg:
		m.current = msg.name
		return m, nil

	case workedMsg:
		m.worked += msg.n
		if m.total > 0 && m.worked > m.total {
			m.worked = m.total
		}
		return m, nil

	case failedMsg:
		text := ""
		if msg.err != nil {
			text = msg.err.Error()
		}
		m.failures = append(m.failures, failure{job: msg.name, err: text})
		return m, nil

	case doneMsg:
		m.finished = true
		m.current = ""
		return m, tea.Quit
	}
	return m, nil
}

// Percent is the completed share of jobs in [0, 1].
func (m Model) Percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.worked) / float64(m.total)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.Percent()))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d/%d", m.worked, m.total)))
	b.WriteString("\n")

	switch {
	case m.finished && len(m.failures) == 0 && !m.canceled:
		b.WriteString(okStyle.Render("Done"))
	case m.finished:
		b.WriteString(warnStyle.Render("Finished with problems"))
	case m.canceled:
		b.WriteString(warnStyle.Render("Canceling after the current job..."))
	case m.current != "":
		b.WriteString(mutedStyle.Render("> " + m.current))
	}

	for _, f := range m.failures {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("x " + f.job))
		if f.err != "" {
			b.WriteString(mutedStyle.Render(": " + f.err))
		}
	}
	if !m.finished && !m.canceled {
		b.WriteString("\n\n")
		b.WriteString(mutedStyle.Render("esc/ctrl+c: cancel"))
	}
	return panelStyle.Render(b.String()) + "\n"
}
