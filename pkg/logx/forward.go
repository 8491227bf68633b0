package logx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	maxForwardText  = 3500
	maxForwardValue = 600
)

// forwardWriter is a zerolog.LevelWriter feeding the Service forwarder.
type forwardWriter struct{ s *Service }

func (w forwardWriter) Write(p []byte) (int, error) { return w.WriteLevel(zerolog.InfoLevel, p) }

func (w forwardWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	w.s.mu.Lock()
	fw, lim, min := w.s.forwarder, w.s.limiter, w.s.minLevel
	w.s.mu.Unlock()

	if fw == nil || level < min || lim == nil || !lim.Allow() {
		return len(p), nil
	}
	if text := renderRecord(p); text != "" {
		fw.ForwardLog(level, text)
	}
	return len(p), nil
}

// renderRecord turns a JSON record into "[LEVEL] message" followed by one
// "- key=value" line per field, keys sorted. Time and caller are dropped.
func renderRecord(p []byte) string {
	p = bytes.TrimSpace(p)
	var rec map[string]any
	if err := json.Unmarshal(p, &rec); err != nil {
		return clip(string(p), maxForwardText)
	}

	var b strings.Builder
	if lvl, _ := rec[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := rec[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.CallerFieldName:
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(rec[k]), maxForwardValue))
	}
	return clip(b.String(), maxForwardText)
}

// clip shortens s to at most n runes, ending in "..." when cut.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n < 10 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
