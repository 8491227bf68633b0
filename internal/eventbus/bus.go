package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Topics published in this repo. Subscribers match on exact type or on a
// prefix via Filter.
const (
	JobStarted  = "job.started"
	JobFinished = "job.finished"
	JobFailed   = "job.failed"
	JobSkipped  = "job.skipped"

	ExportStarted  = "export.started"
	ExportFinished = "export.finished"
	ExportFailed   = "export.failed"

	NotificationQueued  = "notification.queued"
	NotificationShown   = "notification.shown"
	NotificationDeduped = "notification.deduped"
	NotificationDropped = "notification.dropped"
	NotificationFailed  = "notification.failed"

	ScheduleFired   = "schedule.fired"
	ScheduleSkipped = "schedule.skipped"
	ScheduleFailed  = "schedule.failed"

	ConfigReloaded = "config.reloaded"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//
// Data should be small and ideally JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Filter forwards events whose type starts with one of prefixes until in is
// closed. The returned channel is closed afterwards.
func Filter(in <-chan Event, buffer int, prefixes ...string) <-chan Event {
	if buffer <= 0 {
		buffer = 8
	}
	out := make(chan Event, buffer)
	go func() {
		defer close(out)
		for e := range in {
			if !matches(e.Type, prefixes) {
				continue
			}
			select {
			case out <- e:
			default:
			}
		}
	}()
	return out
}

func matches(typ string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch; recover from send-on-closed.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
