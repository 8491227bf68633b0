package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	logx "planexport/pkg/logx"
	"planexport/pkg/tgui"

	"github.com/charmbracelet/lipgloss"
	tele "gopkg.in/telebot.v4"
)

var (
	channelStyles = map[Channel]lipgloss.Style{
		ChannelError:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		ChannelWarning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		ChannelInfo:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		ChannelNews:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
	}
	bodyStyle = lipgloss.NewStyle().PaddingLeft(2)
	linkStyle = lipgloss.NewStyle().PaddingLeft(2).Underline(true).Foreground(lipgloss.Color("245"))
)

// ConsoleSink prints notifications to a terminal.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleSink(w io.Writer) *ConsoleSink { return &ConsoleSink{w: w} }

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Deliver(ctx context.Context, it Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	style, ok := channelStyles[it.Channel]
	if !ok {
		style = lipgloss.NewStyle().Bold(true)
	}

	var b strings.Builder
	b.WriteString(style.Render(fmt.Sprintf("[%s] %s", it.Channel, it.Title)))
	b.WriteString("\n")
	if it.Body != "" {
		b.WriteString(bodyStyle.Render(it.Body))
		b.WriteString("\n")
	}
	for _, l := range it.Links {
		b.WriteString(linkStyle.Render(l))
		b.WriteString("\n")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, b.String())
	return err
}

// LogSink writes notifications to the structured log.
type LogSink struct{ log logx.Logger }

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Deliver(_ context.Context, it Item) error {
	fields := []logx.Field{
		logx.String("id", it.ID),
		logx.String("channel", string(it.Channel)),
		logx.String("title", it.Title),
		logx.String("body", it.Body),
	}
	if len(it.Links) > 0 {
		fields = append(fields, logx.Strings("links", it.Links))
	}
	// Always info: warn and error records are forwarded back into the notifier.
	l.log.Info("notification", fields...)
	return nil
}

// TelegramConfig configures TelegramSink.
type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// URL overrides the Bot API endpoint.
	URL     string
	Timeout time.Duration
}

// TelegramSink sends notifications to one chat through the Bot API. It only
// sends; it never polls for updates.
type TelegramSink struct {
	bot    *tele.Bot
	chat   *tele.Chat
	thread int
}

func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, thread: cfg.ThreadID}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Deliver(ctx context.Context, it Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opt := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              t.thread,
	}
	_, err := t.bot.Send(t.chat, telegramText(it), opt)
	return err
}

// telegramText renders the item as HTML within Telegram's message limit.
func telegramText(it Item) string {
	head := tgui.Raw(channelPrefix(it.Channel)) + tgui.B(it.Title)
	room := tgui.MaxMessageRunes - utf8.RuneCountInString(it.Title) - 8
	return tgui.JoinH("\n", head, tgui.Esc(tgui.TruncRunes(it.Body, room))).String()
}

func channelPrefix(ch Channel) string {
	switch ch {
	case ChannelError:
		return "🚨 "
	case ChannelWarning:
		return "⚠️ "
	case ChannelInfo:
		return "ℹ️ "
	default:
		return ""
	}
}
