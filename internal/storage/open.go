package storage

import (
	"context"
	"fmt"
	"strings"

	logx "planexport/pkg/logx"
)

// Store is the minimal persistence API used by prefs and the export pipeline.
type Store interface {
	GetPref(ctx context.Context, key string) (value string, ok bool, err error)
	PutPref(ctx context.Context, key, value string) error
	DeletePref(ctx context.Context, key string) error
	// PrefKeys lists keys starting with prefix, sorted.
	PrefKeys(ctx context.Context, prefix string) ([]string, error)

	AppendRun(ctx context.Context, r RunRecord) error
	// RecentRuns returns up to limit records, oldest first.
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "none", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
