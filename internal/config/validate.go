package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"planexport/internal/option"
	"planexport/internal/task/engine"
	"planexport/internal/task/scheduler"
)

var validLevels = map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate checks the whole config and joins every problem found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !validLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if !validLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Forward.MinLevel))] {
		add(fmt.Errorf("logging.forward.min_level: unknown level %q", cfg.Logging.Forward.MinLevel))
	}

	if sc := cfg.Storage; sc != nil {
		switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
		case "", "none", "memory", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(sc.Path) == "" {
				add(errors.New("storage.path is required when storage.driver=sqlite"))
			}
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", sc.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
		add(err)
	}

	ec := cfg.Export
	if strings.TrimSpace(ec.Policy) != "" {
		if _, err := engine.ParsePolicy(ec.Policy); err != nil {
			add(fmt.Errorf("export.policy: %w", err))
		}
	}
	_, err := ParseDurationField("export.job_timeout", ec.JobTimeout)
	add(err)
	_, err = ParseDurationField("export.retry_base", ec.RetryBase)
	add(err)
	_, err = ParseDurationField("export.retry_max_delay", ec.RetryMaxDelay)
	add(err)
	if ec.RetryMax < 0 {
		add(errors.New("export.retry_max must be >= 0"))
	}
	if ec.HistorySize < 0 {
		add(errors.New("export.history_size must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(ec.Progress)) {
	case "", "tui", "log", "none":
	default:
		add(fmt.Errorf("export.progress: want tui, log or none, got %q", ec.Progress))
	}

	if nc := cfg.Notifier; nc != nil {
		if nc.QueueSize < 0 || nc.RatePerSec < 0 || nc.RetryMax < 0 || nc.DedupMaxEntries < 0 {
			add(errors.New("notifier: queue_size, rate_per_sec, retry_max and dedup_max_entries must be >= 0"))
		}
		for key, raw := range map[string]string{
			"notifier.retry_base":      nc.RetryBase,
			"notifier.retry_max_delay": nc.RetryMaxDelay,
			"notifier.dedup_window":    nc.DedupWindow,
		} {
			_, err := ParseDurationField(key, raw)
			add(err)
		}
	}

	if tc := cfg.Telegram; tc != nil && tc.Enabled {
		if strings.TrimSpace(tc.Token) == "" {
			add(errors.New("telegram.token is required when telegram.enabled"))
		}
		if tc.ChatID == 0 {
			add(errors.New("telegram.chat_id is required when telegram.enabled"))
		}
		_, err := ParseDurationField("telegram.timeout", tc.Timeout)
		add(err)
	}

	add(validateScheduler(cfg.Scheduler))
	return errors.Join(errs...)
}

func validateScheduler(sc SchedulerConfig) error {
	var errs []error
	if tz := strings.TrimSpace(sc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		}
	}
	seen := map[string]bool{}
	for i, ex := range sc.Exports {
		key := fmt.Sprintf("scheduler.exports[%d]", i)
		name := strings.TrimSpace(ex.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("%s.name is required", key))
		case seen[name]:
			errs = append(errs, fmt.Errorf("%s.name: duplicate %q", key, name))
		}
		seen[name] = true

		if _, err := scheduler.ParseSchedule(ex.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s.schedule: %w", key, err))
		}
		if strings.TrimSpace(ex.Project) == "" {
			errs = append(errs, fmt.Errorf("%s.project is required", key))
		}
		if strings.TrimSpace(ex.Output) == "" {
			errs = append(errs, fmt.Errorf("%s.output is required", key))
		}
		if r := strings.TrimSpace(ex.Range); r != "" {
			if err := validateRange(r); err != nil {
				errs = append(errs, fmt.Errorf("%s.range: %w", key, err))
			}
		}
		if _, err := ParseDurationField(key+".timeout", ex.Timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// validateRange checks a "START END" pair of ISO dates. Inverted ranges are
// accepted; exports log them instead.
func validateRange(r string) error {
	parts := strings.Fields(r)
	if len(parts) != 2 {
		return fmt.Errorf("want two dates separated by a space, got %q", r)
	}
	for _, p := range parts {
		if _, err := option.ParseDate(p); err != nil {
			return err
		}
	}
	return nil
}
