package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingForwarder struct {
	mu    sync.Mutex
	texts []string
}

func (f *recordingForwarder) ForwardLog(level Level, text string) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
}

func TestNewJSONWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "test"))

	log.Error("export range invalid", Err(errors.New("boom")), Int("n", 3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "error", rec["level"])
	require.Equal(t, "export range invalid", rec["message"])
	require.Equal(t, "boom", rec["err"])
	require.Equal(t, "test", rec["comp"])
	require.EqualValues(t, 3, rec["n"])
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	require.True(t, l.IsZero())
	l.Info("ignored")
	require.False(t, Nop().IsZero())
}

func TestServiceForwardsAboveMinLevel(t *testing.T) {
	svc, log := New(Config{Level: "debug"})
	fw := &recordingForwarder{}
	svc.SetForwarder(fw)
	svc.Apply(Config{Level: "debug", Forward: ForwardConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("below threshold")
	log.Warn("disk almost full", String("path", "/tmp"))

	fw.mu.Lock()
	defer fw.mu.Unlock()
	require.Len(t, fw.texts, 1)
	require.True(t, strings.HasPrefix(fw.texts[0], "[WARN] disk almost full"))
	require.Contains(t, fw.texts[0], "- path=/tmp")
}

func TestParseLevelDefaults(t *testing.T) {
	require.Equal(t, LevelWarn, parseLevel("warning", LevelInfo))
	require.Equal(t, LevelInfo, parseLevel("bogus", LevelInfo))
}

func TestApplySwapsConsoleOutput(t *testing.T) {
	var first, second bytes.Buffer
	svc, log := New(Config{Level: "info", Console: true, ConsoleOut: &first})
	child := log.With(String("comp", "x"))

	child.Info("one")
	svc.Apply(Config{Level: "info", Console: true, ConsoleOut: &second})
	child.Info("two")
	child.Debug("hidden")

	require.Contains(t, first.String(), "one")
	require.NotContains(t, first.String(), "two")
	require.Contains(t, second.String(), "two")
	require.Contains(t, second.String(), "comp=x")
	require.NotContains(t, second.String(), "hidden")
}

func TestRenderRecordSortsKeys(t *testing.T) {
	text := renderRecord([]byte(`{"level":"error","time":"t","caller":"a.go:1","message":"failed","zeta":1,"alpha":"a"}` + "\n"))
	require.Equal(t, "[ERROR] failed\n- alpha=a\n- zeta=1", text)

	require.Equal(t, "not json", renderRecord([]byte("  not json \n")))
}

func TestClip(t *testing.T) {
	require.Equal(t, "short", clip("short", 10))
	require.Equal(t, "ééééééé...", clip(strings.Repeat("é", 20), 10))
	require.Equal(t, "abc", clip("abcdef", 3))
}
