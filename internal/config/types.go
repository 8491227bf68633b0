package config

// Config is the on-disk configuration (JSON, YAML or TOML). Unknown keys are
// rejected.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Export    ExportConfig    `json:"export"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Telegram  *TelegramConfig `json:"telegram,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Forward LoggingForward `json:"forward"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingForward turns warn/error log records into notifications.
type LoggingForward struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls where preferences and the run log are kept.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./planexport.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ExportConfig controls how export jobs are driven.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - policy: "collect-all"
//   - job_timeout: "0s" (disabled)
//   - retry_max: 0
//   - retry_base: "500ms", retry_max_delay: "15s"
//   - history_size: 200
//   - progress: "log"
type ExportConfig struct {
	Policy        string `json:"policy,omitempty"`
	JobTimeout    string `json:"job_timeout,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	HistorySize   int    `json:"history_size,omitempty"`
	Progress      string `json:"progress,omitempty"` // tui | log | none
	OutputDir     string `json:"output_dir,omitempty"`
}

// NotifierConfig controls notification queueing and delivery.
// If the section is omitted, notifications go to the log only.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Console         bool   `json:"console"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
}

// TelegramConfig enables the Telegram notification sink.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// SchedulerConfig controls daemon mode.
type SchedulerConfig struct {
	Enabled  bool              `json:"enabled"`
	Timezone string            `json:"timezone,omitempty"`
	Exports  []ScheduledExport `json:"exports,omitempty"`
}

// ScheduledExport is one export re-run on a schedule.
type ScheduledExport struct {
	Name            string `json:"name"`
	Schedule        string `json:"schedule"`
	Project         string `json:"project"`
	Format          string `json:"format"`
	Output          string `json:"output"`
	Range           string `json:"range,omitempty"` // "START END"
	ExpandResources bool   `json:"expand_resources,omitempty"`
	Timeout         string `json:"timeout,omitempty"`
}
