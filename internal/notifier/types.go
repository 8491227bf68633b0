package notifier

import (
	"context"
	"time"
)

// Channel groups notifications so they can be queued and shown together.
type Channel string

const (
	ChannelError   Channel = "error"
	ChannelWarning Channel = "warning"
	ChannelInfo    Channel = "info"
	ChannelNews    Channel = "news"
)

// EventType mirrors the states of a hyperlink in a rendered notification.
type EventType int

const (
	Entered EventType = iota
	Exited
	Activated
)

func (t EventType) String() string {
	switch t {
	case Entered:
		return "entered"
	case Exited:
		return "exited"
	case Activated:
		return "activated"
	default:
		return "unknown"
	}
}

// HyperlinkEvent is delivered to an item's handler when one of its links is
// touched.
type HyperlinkEvent struct {
	Type   EventType
	URL    string
	ItemID string
}

// HyperlinkHandler reacts to hyperlink events of one notification. Its error
// is returned from Service.Dispatch.
type HyperlinkHandler func(HyperlinkEvent) error

// Item is one notification. It carries everything a sink needs to render it.
type Item struct {
	ID      string    `json:"id"`
	Channel Channel   `json:"channel"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Links   []string  `json:"links,omitempty"`
	Created time.Time `json:"created"`

	handler HyperlinkHandler
}

// Manager creates, queues and shows categorized notifications.
type Manager interface {
	CreateNotification(ch Channel, title, body string, h HyperlinkHandler) Item
	AddNotifications(items []Item)
	ShowNotification(ctx context.Context, ch Channel) error
}

// Sink displays a notification somewhere (terminal, log, chat).
type Sink interface {
	Name() string
	Deliver(ctx context.Context, it Item) error
}

// Config controls queueing and delivery.
type Config struct {
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	HistorySize     int
}

type HistoryItem struct {
	At      time.Time
	Channel Channel
	Sink    string
	Title   string
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	ItemID  string    `json:"item_id"`
	Channel Channel   `json:"channel"`
	Sink    string    `json:"sink,omitempty"`
	Key     string    `json:"key,omitempty"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}
