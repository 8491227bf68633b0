package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Config configures storage.
//
// Driver values:
//   - "memory": process-local map (default when Driver is empty or "none")
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord records one export pipeline run.
// Keep it compact and schema-stable.
type RunRecord struct {
	At       time.Time `json:"at"`
	RunID    string    `json:"run_id"`
	Exporter string    `json:"exporter"`
	Output   string    `json:"output"`
	Files    []string  `json:"files,omitempty"`
	OK       int       `json:"ok"`
	Fail     int       `json:"fail"`
	Canceled bool      `json:"canceled,omitempty"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}
