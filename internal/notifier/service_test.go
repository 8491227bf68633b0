package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"planexport/internal/eventbus"
	logx "planexport/pkg/logx"

	"github.com/stretchr/testify/require"
)

type recordSink struct {
	mu    sync.Mutex
	name  string
	items []Item
	fail  int
}

func (r *recordSink) Name() string { return r.name }

func (r *recordSink) Deliver(_ context.Context, it Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("sink down")
	}
	r.items = append(r.items, it)
	return nil
}

func (r *recordSink) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, it := range r.items {
		out = append(out, it.Title)
	}
	return out
}

func fastConfig() Config {
	return Config{RatePerSec: 1000, RetryBase: time.Millisecond, RetryMaxDelay: time.Millisecond}
}

func TestCreateNotificationExtractsLinks(t *testing.T) {
	t.Parallel()
	s := New(fastConfig(), logx.Nop(), nil)
	it := s.CreateNotification(ChannelNews, "Update", "See https://example.org/notes, or https://example.org/notes.", nil)

	require.NotEmpty(t, it.ID)
	require.Equal(t, ChannelNews, it.Channel)
	require.Equal(t, []string{"https://example.org/notes"}, it.Links)
	require.Empty(t, s.Pending(ChannelNews))
}

func TestExtractLinksKeepsParentheses(t *testing.T) {
	t.Parallel()
	require.Equal(t,
		[]string{"https://en.wikipedia.org/wiki/Go_(programming_language)"},
		extractLinks("see https://en.wikipedia.org/wiki/Go_(programming_language) for details"))
	require.Equal(t,
		[]string{"https://example.com/a?q=(x)"},
		extractLinks("query https://example.com/a?q=(x) twice https://example.com/a?q=(x)"))
	require.Nil(t, extractLinks("no links here"))
}

// Delivery failures must not come back as forwarded warnings, or a broken
// sink would keep feeding itself.
func TestFailedDeliveryIsNotForwarded(t *testing.T) {
	t.Parallel()
	logCfg := logx.Config{Level: "debug", Forward: logx.ForwardConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100}}
	bootCfg := logCfg
	bootCfg.Forward.Enabled = false
	bootCfg.ConsoleOut = io.Discard
	logs, root := logx.New(bootCfg)
	t.Cleanup(func() { _ = logs.Close() })

	sink := &recordSink{name: "down", fail: 1000}
	s := New(fastConfig(), root, nil, sink)
	logs.SetForwarder(s)
	logs.Apply(logCfg)

	s.AddNotifications([]Item{s.CreateNotification(ChannelInfo, "Export finished", "", nil)})
	require.Error(t, s.ShowNotification(context.Background(), ChannelInfo))
	require.Empty(t, s.Pending(ChannelWarning))
	require.Empty(t, s.Pending(ChannelError))
}

func TestQueueDropIsNotForwarded(t *testing.T) {
	t.Parallel()
	logCfg := logx.Config{Level: "debug", Forward: logx.ForwardConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100}}
	bootCfg := logCfg
	bootCfg.Forward.Enabled = false
	bootCfg.ConsoleOut = io.Discard
	logs, root := logx.New(bootCfg)
	t.Cleanup(func() { _ = logs.Close() })

	cfg := fastConfig()
	cfg.QueueSize = 1
	s := New(cfg, root, nil)
	logs.SetForwarder(s)
	logs.Apply(logCfg)

	s.AddNotifications([]Item{
		s.CreateNotification(ChannelWarning, "first", "", nil),
		s.CreateNotification(ChannelWarning, "second", "", nil),
	})
	pending := s.Pending(ChannelWarning)
	require.Len(t, pending, 1)
	require.Equal(t, "second", pending[0].Title)
}

func TestShowNotificationDrainsOnlyItsChannel(t *testing.T) {
	t.Parallel()
	sink := &recordSink{name: "rec"}
	s := New(fastConfig(), logx.Nop(), nil, sink)

	s.AddNotifications([]Item{
		s.CreateNotification(ChannelInfo, "one", "", nil),
		s.CreateNotification(ChannelError, "boom", "", nil),
		s.CreateNotification(ChannelInfo, "two", "", nil),
	})
	require.Len(t, s.Pending(ChannelInfo), 2)

	require.NoError(t, s.ShowNotification(context.Background(), ChannelInfo))
	require.Equal(t, []string{"one", "two"}, sink.titles())
	require.Empty(t, s.Pending(ChannelInfo))
	require.Len(t, s.Pending(ChannelError), 1)
	require.Len(t, s.Snapshot(), 2)
}

func TestQueueDropsOldest(t *testing.T) {
	t.Parallel()
	cfg := fastConfig()
	cfg.QueueSize = 2
	s := New(cfg, logx.Nop(), nil)
	s.AddNotifications([]Item{
		s.CreateNotification(ChannelInfo, "a", "", nil),
		s.CreateNotification(ChannelInfo, "b", "", nil),
		s.CreateNotification(ChannelInfo, "c", "", nil),
	})
	var titles []string
	for _, it := range s.Pending(ChannelInfo) {
		titles = append(titles, it.Title)
	}
	require.Equal(t, []string{"b", "c"}, titles)
}

func TestDedupWithinWindow(t *testing.T) {
	t.Parallel()
	sink := &recordSink{name: "rec"}
	cfg := fastConfig()
	cfg.DedupWindow = time.Minute
	s := New(cfg, logx.Nop(), nil, sink)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	show := func() {
		s.AddNotifications([]Item{s.CreateNotification(ChannelWarning, "disk", "low", nil)})
		require.NoError(t, s.ShowNotification(context.Background(), ChannelWarning))
	}
	show()
	show()
	require.Len(t, sink.titles(), 1)

	now = now.Add(2 * time.Minute)
	show()
	require.Len(t, sink.titles(), 2)
}

func TestDeliveryRetriesThenReports(t *testing.T) {
	t.Parallel()
	flaky := &recordSink{name: "flaky", fail: 1}
	dead := &recordSink{name: "dead", fail: 100}
	cfg := fastConfig()
	cfg.RetryMax = 1
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	defer unsub()
	failed := eventbus.Filter(ch, 8, eventbus.NotificationFailed)

	s := New(cfg, logx.Nop(), bus, flaky, dead)
	s.AddNotifications([]Item{s.CreateNotification(ChannelError, "export failed", "", nil)})
	err := s.ShowNotification(context.Background(), ChannelError)

	require.Error(t, err)
	require.Contains(t, err.Error(), "dead: sink down")
	require.Equal(t, []string{"export failed"}, flaky.titles())

	select {
	case ev := <-failed:
		require.Equal(t, "dead", ev.Data.(NotificationEvent).Sink)
	case <-time.After(time.Second):
		t.Fatal("no failure event")
	}
}

func TestShowNotificationCanceledKeepsItems(t *testing.T) {
	t.Parallel()
	sink := &recordSink{name: "rec"}
	s := New(fastConfig(), logx.Nop(), nil, sink)
	s.AddNotifications([]Item{s.CreateNotification(ChannelInfo, "later", "", nil)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.ShowNotification(ctx, ChannelInfo), context.Canceled)
	require.Empty(t, sink.titles())
	require.Len(t, s.Pending(ChannelInfo), 1)
}

func TestActivateDispatchesToHandler(t *testing.T) {
	t.Parallel()
	var got []HyperlinkEvent
	s := New(fastConfig(), logx.Nop(), nil, &recordSink{name: "rec"})
	it := s.CreateNotification(ChannelNews, "Release", "https://example.org/r", func(ev HyperlinkEvent) error {
		got = append(got, ev)
		return nil
	})
	s.AddNotifications([]Item{it})

	require.NoError(t, s.Activate(it.ID, it.Links[0]))
	require.NoError(t, s.ShowNotification(context.Background(), ChannelNews))
	require.NoError(t, s.Activate(it.ID, it.Links[0]))
	require.Len(t, got, 2)
	require.Equal(t, Activated, got[1].Type)
	require.Equal(t, it.ID, got[1].ItemID)

	require.ErrorIs(t, s.Activate("missing", "x"), ErrUnknownItem)

	plain := s.CreateNotification(ChannelNews, "Plain", "", nil)
	s.AddNotifications([]Item{plain})
	require.ErrorIs(t, s.Activate(plain.ID, ""), ErrNoHandler)
}

// Not parallel: swaps the package-level opener.
func TestDefaultHyperlinkHandlerOpensOnlyActivated(t *testing.T) {
	var opened []string
	prev := openURL
	openURL = func(u string) error { opened = append(opened, u); return nil }
	defer func() { openURL = prev }()

	require.NoError(t, DefaultHyperlinkHandler(HyperlinkEvent{Type: Entered, URL: "https://a"}))
	require.NoError(t, DefaultHyperlinkHandler(HyperlinkEvent{Type: Exited, URL: "https://a"}))
	require.NoError(t, DefaultHyperlinkHandler(HyperlinkEvent{Type: Activated, URL: "https://b"}))
	require.Equal(t, []string{"https://b"}, opened)

	noDisplay := errors.New("xdg-open: not found")
	openURL = func(string) error { return noDisplay }
	require.ErrorIs(t, DefaultHyperlinkHandler(HyperlinkEvent{Type: Activated, URL: "https://c"}), noDisplay)
}

func TestDispatchReturnsAndLogsHandlerError(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := New(fastConfig(), logx.NewJSON(&buf, "debug"), nil)
	noDisplay := errors.New("no display")
	it := s.CreateNotification(ChannelInfo, "Done", "https://example.org/out.csv", func(HyperlinkEvent) error {
		return noDisplay
	})
	s.AddNotifications([]Item{it})

	err := s.Activate(it.ID, it.Links[0])
	require.ErrorIs(t, err, noDisplay)
	require.Contains(t, buf.String(), "hyperlink handler failed")
	require.Contains(t, buf.String(), `"level":"warn"`)
}

func TestForwardLogQueuesByLevel(t *testing.T) {
	t.Parallel()
	s := New(fastConfig(), logx.Nop(), nil)
	s.ForwardLog(logx.LevelError, "[ERROR] export failed\n- err=disk full")
	s.ForwardLog(logx.LevelWarn, "[WARN] slow")

	errs := s.Pending(ChannelError)
	require.Len(t, errs, 1)
	require.Equal(t, "[ERROR] export failed", errs[0].Title)
	require.Equal(t, "- err=disk full", errs[0].Body)
	require.Len(t, s.Pending(ChannelWarning), 1)
}

func TestConsoleSink(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	it := Item{Channel: ChannelInfo, Title: "Export finished", Body: "2 files", Links: []string{"https://example.org"}}
	require.NoError(t, sink.Deliver(context.Background(), it))

	out := buf.String()
	require.Contains(t, out, "[info] Export finished")
	require.Contains(t, out, "2 files")
	require.Contains(t, out, "https://example.org")
}

func TestLogSink(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink := NewLogSink(logx.NewJSON(&buf, "debug"))
	require.NoError(t, sink.Deliver(context.Background(), Item{ID: "n1", Channel: ChannelError, Title: "boom"}))
	require.Contains(t, buf.String(), `"title":"boom"`)
	require.Contains(t, buf.String(), `"level":"info"`)
}

func TestTelegramSinkSends(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		path string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		_ = json.Unmarshal(b, &body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"x"}}`)
	}))
	defer srv.Close()

	sink, err := NewTelegramSink(TelegramConfig{Token: "TOKEN", ChatID: 42, URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, sink.Deliver(context.Background(), Item{Channel: ChannelError, Title: "a < b", Body: "details"}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "/botTOKEN/sendMessage", path)
	text, _ := body["text"].(string)
	require.True(t, strings.Contains(text, "<b>a &lt; b</b>"), text)
	require.Contains(t, text, "details")
}

func TestTelegramSinkValidates(t *testing.T) {
	t.Parallel()
	_, err := NewTelegramSink(TelegramConfig{ChatID: 1})
	require.Error(t, err)
	_, err = NewTelegramSink(TelegramConfig{Token: "x"})
	require.Error(t, err)
}
