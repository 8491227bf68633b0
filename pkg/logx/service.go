package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	// ConsoleOut receives console output; nil means stderr.
	ConsoleOut io.Writer
	File       FileConfig
	Forward    ForwardConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ForwardConfig sends records at or above MinLevel to the installed
// Forwarder, at most RatePerSec per second.
type ForwardConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// Forwarder receives rendered log records. ForwardLog must not block.
type Forwarder interface {
	ForwardLog(level Level, text string)
}

const defaultLogFile = "./planexport.log"

// Service owns the process log outputs and swaps them on Apply.
type Service struct {
	active atomic.Pointer[zerolog.Logger]

	mu        sync.Mutex
	file      *os.File
	forwarder Forwarder
	limiter   *rate.Limiter
	minLevel  Level
}

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat
}

// New builds the service from cfg and returns it with a live root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.active.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetForwarder installs the forwarding target; it is used once
// Forward.Enabled is applied.
func (s *Service) SetForwarder(f Forwarder) {
	s.mu.Lock()
	s.forwarder = f
	s.mu.Unlock()
}

// Close closes the log file. Later records go to the remaining outputs.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Apply replaces level, outputs and forwarding. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.minLevel = parseLevel(cfg.Forward.MinLevel, LevelWarn)
	rps := max(1, cfg.Forward.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	console := cfg.ConsoleOut
	if console == nil {
		console = os.Stderr
	}

	var outs []io.Writer
	if cfg.Console {
		outs = append(outs, consoleWriter(console))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
			fmt.Fprintf(console, "logx: open log file %q: %v\n", path, err)
		} else {
			s.file = f
			outs = append(outs, zerolog.SyncWriter(f))
		}
	}
	if cfg.Forward.Enabled {
		if s.forwarder == nil {
			fmt.Fprintln(console, "logx: forwarding enabled without a forwarder")
		}
		outs = append(outs, forwardWriter{s})
	}
	if len(outs) == 0 {
		outs = append(outs, consoleWriter(console))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(outs...)).
		Level(parseLevel(cfg.Level, LevelInfo)).
		With().Timestamp().Logger()
	s.active.Store(&zl)
}

// consoleWriter colors output only when w is a file such as stderr.
func consoleWriter(w io.Writer) io.Writer {
	_, isFile := w.(*os.File)
	return zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      !isFile,
		TimeFormat:   timeFormat,
		FormatCaller: func(i any) string { s, _ := i.(string); return s },
	}
}

func parseLevel(s string, def Level) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return def
}
