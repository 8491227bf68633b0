package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"planexport/internal/config"
	"planexport/internal/notifier"
	"planexport/internal/storage"
	"planexport/internal/task/engine"
	logx "planexport/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Forward: logx.ForwardConfig{
			Enabled:    lc.Forward.Enabled,
			MinLevel:   lc.Forward.MinLevel,
			RatePerSec: lc.Forward.RatePerSec,
		},
	}
}

// mapStorageConfig defaults to the in-memory store when the section is
// omitted.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "none", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			path = "./planexport-prefs"
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	ec := cfg.Export
	out := engine.Config{RetryMax: ec.RetryMax, HistorySize: ec.HistorySize}
	var err error
	if strings.TrimSpace(ec.Policy) != "" {
		if out.Policy, err = engine.ParsePolicy(ec.Policy); err != nil {
			return engine.Config{}, fmt.Errorf("export.policy: %w", err)
		}
	}
	if out.DefaultTimeout, err = config.ParseDurationField("export.job_timeout", ec.JobTimeout); err != nil {
		return engine.Config{}, err
	}
	if out.RetryBase, err = config.ParseDurationField("export.retry_base", ec.RetryBase); err != nil {
		return engine.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("export.retry_max_delay", ec.RetryMaxDelay); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

// mapNotifierConfig leaves zero values to the notifier defaults.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{}, nil
	}
	out := notifier.Config{
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		DedupMaxEntries: nc.DedupMaxEntries,
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", nc.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", nc.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

// buildSinks always includes the log sink. Console and Telegram delivery
// need notifier.enabled.
func buildSinks(cfg *config.Config, log logx.Logger, console io.Writer) ([]notifier.Sink, error) {
	sinks := []notifier.Sink{notifier.NewLogSink(log)}
	nc := cfg.Notifier
	if nc == nil || !nc.Enabled {
		return sinks, nil
	}
	if nc.Console && console != nil {
		sinks = append(sinks, notifier.NewConsoleSink(console))
	}
	if tc := cfg.Telegram; tc != nil && tc.Enabled {
		timeout, err := config.ParseDurationField("telegram.timeout", tc.Timeout)
		if err != nil {
			return nil, err
		}
		tg, err := notifier.NewTelegramSink(notifier.TelegramConfig{
			Token:    tc.Token,
			ChatID:   tc.ChatID,
			ThreadID: tc.ThreadID,
			URL:      tc.APIURL,
			Timeout:  timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sinks = append(sinks, tg)
	}
	return sinks, nil
}
