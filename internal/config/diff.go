package config

import (
	"reflect"
	"sort"
	"strings"

	logx "planexport/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections plus
// structured fields for logging. Secrets (the Telegram token) are reported
// only as set/unset. The third result lists scheduled exports that were
// added, removed or modified.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.forward_enabled", newCfg.Logging.Forward.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if sc := newCfg.Storage; sc != nil {
			attrs = append(attrs,
				logx.String("storage.driver", sc.Driver),
				logx.String("storage.path", sc.Path),
			)
		}
	}

	if oldCfg.Export != newCfg.Export {
		changed = append(changed, "export")
		attrs = append(attrs,
			logx.String("export.policy", newCfg.Export.Policy),
			logx.String("export.job_timeout", newCfg.Export.JobTimeout),
			logx.Int("export.retry_max", newCfg.Export.RetryMax),
			logx.String("export.progress", newCfg.Export.Progress),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if nc := newCfg.Notifier; nc != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", nc.Enabled),
				logx.Int("notifier.queue_size", nc.QueueSize),
				logx.Int("notifier.rate_per_sec", nc.RatePerSec),
				logx.String("notifier.dedup_window", nc.DedupWindow),
			)
		}
	}

	oldTG, newTG := telegramView(oldCfg.Telegram), telegramView(newCfg.Telegram)
	if oldTG != newTG {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", newTG.enabled),
			logx.Bool("telegram.token_set", newTG.tokenSet),
			logx.Int64("telegram.chat_id", newTG.chatID),
		)
	}

	schedules := changedSchedules(oldCfg.Scheduler.Exports, newCfg.Scheduler.Exports)
	if oldCfg.Scheduler.Enabled != newCfg.Scheduler.Enabled ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		len(schedules) > 0 {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.exports", len(newCfg.Scheduler.Exports)),
		)
		if len(schedules) > 0 {
			attrs = append(attrs, logx.Strings("scheduler.changed", schedules))
		}
	}

	return changed, attrs, schedules
}

type tgView struct {
	enabled  bool
	tokenSet bool
	tokenRaw string
	chatID   int64
	threadID int
	apiURL   string
	timeout  string
}

func telegramView(tc *TelegramConfig) tgView {
	if tc == nil {
		return tgView{}
	}
	tok := strings.TrimSpace(tc.Token)
	return tgView{
		enabled:  tc.Enabled,
		tokenSet: tok != "",
		tokenRaw: tok,
		chatID:   tc.ChatID,
		threadID: tc.ThreadID,
		apiURL:   strings.TrimSpace(tc.APIURL),
		timeout:  strings.TrimSpace(tc.Timeout),
	}
}

func changedSchedules(oldList, newList []ScheduledExport) []string {
	oldByName := make(map[string]ScheduledExport, len(oldList))
	for _, ex := range oldList {
		oldByName[strings.TrimSpace(ex.Name)] = ex
	}
	newByName := make(map[string]ScheduledExport, len(newList))
	for _, ex := range newList {
		newByName[strings.TrimSpace(ex.Name)] = ex
	}

	var out []string
	for name, ex := range newByName {
		if prev, ok := oldByName[name]; !ok || prev != ex {
			out = append(out, name)
		}
	}
	for name := range oldByName {
		if _, ok := newByName[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
