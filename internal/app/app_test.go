package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"planexport/internal/config"
	"planexport/internal/eventbus"
	"planexport/internal/export"
	"planexport/internal/notifier"
	"planexport/internal/task/engine"
	logx "planexport/pkg/logx"

	"github.com/stretchr/testify/require"
)

const planYAML = `
name: Relaunch
resources:
  - id: ann
    name: Ann
tasks:
  - id: 1
    name: Design
    start: 2024-01-08
    end: 2024-01-19
    completion: 100
    resources: [ann]
  - id: 2
    name: Build
    start: 2024-01-22
    end: 2024-02-16
    completion: 40
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

type fixture struct {
	app     *App
	dir     string
	plan    string
	console *bytes.Buffer
}

func newFixture(t *testing.T, cfgBody string) fixture {
	t.Helper()
	dir := t.TempDir()
	plan := filepath.Join(dir, "plan.yaml")
	writeFile(t, plan, planYAML)
	cfgPath := filepath.Join(dir, "planexport.yaml")
	writeFile(t, cfgPath, cfgBody)

	console := &bytes.Buffer{}
	a, err := New(cfgPath, Options{
		Console: console,
		Now:     func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return fixture{app: a, dir: dir, plan: plan, console: console}
}

const quietConfig = `
logging:
  level: error
export:
  progress: none
notifier:
  enabled: true
  console: true
  rate_per_sec: 1000
`

func TestExportWritesFileAndNotifies(t *testing.T) {
	f := newFixture(t, quietConfig)
	out := filepath.Join(f.dir, "out", "plan.csv")

	res, err := f.app.Export(context.Background(), Request{
		Project:     f.plan,
		Output:      out,
		CommandLine: true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{out}, res.Files)
	require.NotEmpty(t, res.Report.RunID)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), "ID,Name,"))

	require.True(t, f.app.Prefs().GetBoolean(export.KeyCommandLine, false))
	require.False(t, f.app.Prefs().GetBoolean(export.KeyExpandResources, true))
	require.False(t, f.app.Prefs().Has(export.KeyExportRange))

	var titles []string
	for _, h := range f.app.Notifier().Snapshot() {
		titles = append(titles, h.Title)
	}
	require.Contains(t, titles, "Export finished (csv)")
	require.Contains(t, f.console.String(), "Export finished (csv)")
	require.Empty(t, f.app.Notifier().Pending(notifier.ChannelInfo))
}

func TestExportStoresRangeAndClearsIt(t *testing.T) {
	f := newFixture(t, quietConfig)
	out := filepath.Join(f.dir, "plan.json")

	_, err := f.app.Export(context.Background(), Request{
		Project:         f.plan,
		Output:          out,
		Range:           "2024-01-01 2024-01-31",
		ExpandResources: true,
	})
	require.NoError(t, err)
	require.Equal(t, "2024-01-01 2024-01-31", f.app.Prefs().Get(export.KeyExportRange, ""))
	require.True(t, f.app.Prefs().GetBoolean(export.KeyExpandResources, false))

	_, err = f.app.Export(context.Background(), Request{Project: f.plan, Output: out})
	require.NoError(t, err)
	require.False(t, f.app.Prefs().Has(export.KeyExportRange))
}

func TestExportErrors(t *testing.T) {
	f := newFixture(t, quietConfig)

	_, err := f.app.Export(context.Background(), Request{Project: f.plan})
	require.ErrorIs(t, err, ErrNoOutput)

	_, err = f.app.Export(context.Background(), Request{Project: f.plan, Output: filepath.Join(f.dir, "plan.pdf")})
	require.ErrorIs(t, err, export.ErrUnknownFormat)

	_, err = f.app.Export(context.Background(), Request{Project: filepath.Join(f.dir, "missing.yaml"), Output: filepath.Join(f.dir, "x.csv")})
	require.Error(t, err)
}

func TestExportOutputDir(t *testing.T) {
	f := newFixture(t, quietConfig)
	cfg := *f.app.Config()
	cfg.Export.OutputDir = filepath.Join(f.dir, "exports")
	f.app.setConfig(&cfg)

	res, err := f.app.Export(context.Background(), Request{Project: f.plan, Output: "plan.csv", Format: "csv"})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(f.dir, "exports", "plan.csv")}, res.Files)
}

func TestAnnounceFailure(t *testing.T) {
	f := newFixture(t, quietConfig)
	f.app.announce(eventbus.Event{Type: eventbus.ExportFailed, Data: export.Event{
		Exporter: "csv", Output: "x.csv", Failed: 1, Error: "disk full",
	}})
	f.app.announce(eventbus.Event{Type: eventbus.JobStarted, Data: export.Event{}})

	pending := f.app.Notifier().Pending(notifier.ChannelError)
	require.Len(t, pending, 1)
	require.Equal(t, "Export failed (csv)", pending[0].Title)
	require.Contains(t, pending[0].Body, "disk full")
}

func TestNewRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "planexport.json")
	writeFile(t, cfgPath, `{"export": {"policy": "sometimes"}}`)
	_, err := New(cfgPath)
	require.Error(t, err)
}

func TestMapConfigs(t *testing.T) {
	cfg := &config.Config{
		Storage: &config.StorageConfig{Driver: "SQLite", Path: "db.sqlite"},
		Export:  config.ExportConfig{Policy: "fail-fast", JobTimeout: "3s", RetryMax: 2},
		Notifier: &config.NotifierConfig{
			Enabled:     true,
			DedupWindow: "1m",
		},
	}
	sc, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "sqlite", sc.Driver)
	require.Equal(t, time.Second, sc.BusyTimeout)

	ec, err := mapEngineConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, ec.DefaultTimeout)
	require.Equal(t, 2, ec.RetryMax)
	require.Equal(t, engine.FailFast, ec.Policy)

	nc, err := mapNotifierConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, time.Minute, nc.DedupWindow)

	sinks, err := buildSinks(cfg, logx.Nop(), &bytes.Buffer{})
	require.NoError(t, err)
	require.Len(t, sinks, 1, "console sink needs notifier.console")

	cfg.Notifier.Console = true
	cfg.Telegram = &config.TelegramConfig{Enabled: true, Token: "T", ChatID: 1}
	sinks, err = buildSinks(cfg, logx.Nop(), &bytes.Buffer{})
	require.NoError(t, err)
	var names []string
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	require.Equal(t, []string{"log", "console", "telegram"}, names)

	sc, err = mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	require.Equal(t, "memory", sc.Driver)
}

func TestServeRunsScheduledExportsAndReloads(t *testing.T) {
	dir := t.TempDir()
	plan := filepath.Join(dir, "plan.yaml")
	writeFile(t, plan, planYAML)
	out := filepath.Join(dir, "nightly.csv")
	cfgPath := filepath.Join(dir, "planexport.yaml")
	cfgBody := `
logging:
  level: error
scheduler:
  enabled: true
  exports:
    - name: nightly
      schedule: "0 2 * * *"
      project: ` + plan + `
      format: csv
      output: ` + out + `
`
	writeFile(t, cfgPath, cfgBody)

	a, err := New(cfgPath, Options{Console: &bytes.Buffer{}})
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return len(a.Scheduler().Snapshot().Schedules) == 1 && a.Scheduler().Snapshot().Running
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, a.Scheduler().RunNow(ctx, "nightly"))
	_, err = os.Stat(out)
	require.NoError(t, err)

	// the finished export becomes a shown notification
	require.Eventually(t, func() bool {
		for _, h := range a.Notifier().Snapshot() {
			if h.Title == "Export finished (csv)" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	renamed := strings.Replace(cfgBody, "name: nightly", "name: hourly", 1)
	require.Eventually(t, func() bool {
		// rewrite until the watcher has registered and picked it up
		_ = os.WriteFile(cfgPath, []byte(renamed), 0o644)
		names := a.Scheduler().Names()
		return len(names) == 1 && names[0] == "hourly"
	}, 10*time.Second, 300*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
}
