package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"planexport/internal/eventbus"
	"planexport/internal/export"
	"planexport/internal/notifier"
	"planexport/internal/project"
	"planexport/internal/task/engine"
	"planexport/internal/ui/progress"
	logx "planexport/pkg/logx"

	tea "github.com/charmbracelet/bubbletea"
)

// Progress modes for Request.Progress.
const (
	ProgressTUI  = "tui"
	ProgressLog  = "log"
	ProgressNone = "none"
)

// Request describes one export the way the command line states it.
type Request struct {
	Project string
	// Format is a file extension ("csv", "json", ...). Empty means the
	// extension of Output.
	Format string
	Output string
	// Range is "START END" in ISO-8601; empty clears a stored range.
	Range           string
	CommandLine     bool
	ExpandResources bool
	// Progress is tui, log or none; empty uses export.progress.
	Progress string
}

// Result is a finished export.
type Result struct {
	Report engine.Report
	Files  []string
}

var ErrNoOutput = errors.New("export output path is empty")

// Export runs one export and shows the resulting notifications before
// returning.
func (a *App) Export(ctx context.Context, req Request) (Result, error) {
	events, unsub := a.bus.Subscribe(32)
	defer unsub()

	res, err := a.runExport(ctx, req)

	// Run publishes synchronously, so the events are already buffered.
	for drained := false; !drained; {
		select {
		case ev := <-events:
			a.announce(ev)
		default:
			drained = true
		}
	}
	if ferr := a.Flush(ctx); ferr != nil {
		a.log.Debug("notification flush failed", logx.Err(ferr))
	}
	return res, err
}

func (a *App) runExport(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Output) == "" {
		return Result{}, ErrNoOutput
	}
	cfg := a.Config().Export

	output := req.Output
	if dir := strings.TrimSpace(cfg.OutputDir); dir != "" && !filepath.IsAbs(output) {
		output = filepath.Join(dir, output)
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, err
		}
	}
	format := req.Format
	if strings.TrimSpace(format) == "" {
		format = strings.TrimPrefix(filepath.Ext(output), ".")
	}

	ex, err := a.registry.New(format)
	if err != nil {
		return Result{}, err
	}
	p, err := project.Load(req.Project)
	if err != nil {
		return Result{}, err
	}

	a.exportMu.Lock()
	defer a.exportMu.Unlock()

	if err := a.writeRootPrefs(req); err != nil {
		return Result{}, err
	}
	ex.SetContext(p, a.root)

	mode := strings.ToLower(strings.TrimSpace(req.Progress))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(cfg.Progress))
	}
	var tui *progress.Monitor
	switch mode {
	case ProgressTUI:
		tui = progress.NewMonitor(tea.WithContext(ctx), tea.WithOutput(os.Stderr))
		tui.Start()
		ex.SetMonitor(tui)
	case ProgressNone:
		ex.SetMonitor(engine.NopMonitor{})
	default:
		ex.SetMonitor(nil)
	}

	var files []string
	rep, runErr := ex.Run(ctx, output, func(produced []string) { files = produced })
	if tui != nil {
		if err := tui.Wait(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			a.log.Debug("progress ui exited", logx.Err(err))
		}
	}
	return Result{Report: rep, Files: files}, runErr
}

// writeRootPrefs stores the command line values the export settings read.
func (a *App) writeRootPrefs(req Request) error {
	var err error
	if r := strings.TrimSpace(req.Range); r != "" {
		err = a.root.Put(export.KeyExportRange, r)
	} else {
		err = a.root.Remove(export.KeyExportRange)
	}
	return errors.Join(err,
		a.root.PutBoolean(export.KeyCommandLine, req.CommandLine),
		a.root.PutBoolean(export.KeyExpandResources, req.ExpandResources),
	)
}

// announce turns export results into notifications; other events are ignored.
func (a *App) announce(ev eventbus.Event) {
	data, ok := ev.Data.(export.Event)
	if !ok {
		return
	}
	var it notifier.Item
	switch ev.Type {
	case eventbus.ExportFinished:
		body := "Output: " + data.Output
		if len(data.Files) > 0 {
			body += "\nFiles:\n" + strings.Join(data.Files, "\n")
		}
		it = a.notif.CreateNotification(notifier.ChannelInfo,
			fmt.Sprintf("Export finished (%s)", data.Exporter), body, notifier.DefaultHyperlinkHandler)
	case eventbus.ExportFailed:
		title := fmt.Sprintf("Export failed (%s)", data.Exporter)
		if data.Canceled {
			title = fmt.Sprintf("Export canceled (%s)", data.Exporter)
		}
		body := fmt.Sprintf("Output: %s\nok=%d failed=%d skipped=%d", data.Output, data.OK, data.Failed, data.Skipped)
		if data.Error != "" {
			body += "\n" + data.Error
		}
		it = a.notif.CreateNotification(notifier.ChannelError, title, body, notifier.DefaultHyperlinkHandler)
	default:
		return
	}
	a.notif.AddNotifications([]notifier.Item{it})
}
