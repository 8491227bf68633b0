package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"planexport/internal/eventbus"
	logx "planexport/pkg/logx"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"mvdan.cc/xurls/v2"
)

var (
	ErrUnknownItem = errors.New("unknown notification")
	ErrNoHandler   = errors.New("notification has no hyperlink handler")
)

var linkPattern = xurls.Strict()

// Service implements Manager:
// per-channel queue + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	sinks []Sink
	now   func() time.Time

	cfg     Config
	limiter *rate.Limiter

	pending map[Channel][]Item
	// shown keeps delivered items reachable for Activate.
	shown      map[string]Item
	shownOrder []string

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

var _ Manager = (*Service)(nil)

func New(cfg Config, log logx.Logger, bus eventbus.Bus, sinks ...Sink) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		sinks:   sinks,
		now:     time.Now,
		pending: map[Channel][]Item{},
		shown:   map[string]Item{},
		dedup:   map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// AddSink registers another sink for subsequent deliveries.
func (s *Service) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// CreateNotification builds an item without queueing or displaying it.
func (s *Service) CreateNotification(ch Channel, title, body string, h HyperlinkHandler) Item {
	return Item{
		ID:      uuid.NewString(),
		Channel: ch,
		Title:   title,
		Body:    body,
		Links:   extractLinks(body),
		Created: s.now(),
		handler: h,
	}
}

// AddNotifications queues items on their channels. When a channel queue is
// full the oldest pending item is dropped.
func (s *Service) AddNotifications(items []Item) {
	var dropped, queued []Item

	s.mu.Lock()
	limit := s.cfg.QueueSize
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		q := append(s.pending[it.Channel], it)
		if len(q) > limit {
			dropped = append(dropped, q[:len(q)-limit]...)
			q = append([]Item(nil), q[len(q)-limit:]...)
		}
		s.pending[it.Channel] = q
		queued = append(queued, it)
	}
	s.mu.Unlock()

	for _, it := range queued {
		s.publish(eventbus.NotificationQueued, it, "", "", nil)
	}
	for _, it := range dropped {
		s.log.Debug("notification dropped (queue full)", logx.String("channel", string(it.Channel)), logx.String("title", it.Title))
		s.publish(eventbus.NotificationDropped, it, "", "", errors.New("queue full"))
	}
}

// Pending returns a copy of the queued items of ch.
func (s *Service) Pending(ch Channel) []Item {
	s.mu.Lock()
	out := append([]Item(nil), s.pending[ch]...)
	s.mu.Unlock()
	return out
}

// ShowNotification delivers every pending item of ch to all sinks and
// empties the channel. Delivery errors are joined; delivery stops early when
// ctx is done and the undelivered items stay queued.
func (s *Service) ShowNotification(ctx context.Context, ch Channel) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	items := s.pending[ch]
	delete(s.pending, ch)
	cfg := s.cfg
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	var errs []error
	for i, it := range items {
		if ctx.Err() != nil {
			s.requeue(ch, items[i:])
			errs = append(errs, ctx.Err())
			break
		}
		key := dedupKey(it)
		if cfg.DedupWindow > 0 && !s.dedupAllow(key, cfg.DedupWindow, cfg.DedupMaxEntries) {
			s.publish(eventbus.NotificationDeduped, it, "", key, nil)
			continue
		}
		s.remember(it, cfg.HistorySize)
		for _, sink := range sinks {
			if err := s.deliver(ctx, cfg, sink, it); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
				s.publish(eventbus.NotificationFailed, it, sink.Name(), key, err)
				// Debug: a forwarded Warn would queue another notification
				// for the same failing sink.
				s.log.Debug("notification delivery failed",
					logx.String("sink", sink.Name()),
					logx.String("channel", string(it.Channel)),
					logx.Err(err),
				)
				continue
			}
			s.appendHistory(it, sink.Name(), cfg.HistorySize)
			s.publish(eventbus.NotificationShown, it, sink.Name(), key, nil)
		}
	}
	return errors.Join(errs...)
}

// Activate dispatches an Activated hyperlink event to the handler of a
// queued or shown item.
func (s *Service) Activate(itemID, url string) error {
	return s.Dispatch(HyperlinkEvent{Type: Activated, URL: url, ItemID: itemID})
}

// Dispatch hands ev to the handler of the item named by ev.ItemID.
func (s *Service) Dispatch(ev HyperlinkEvent) error {
	it, ok := s.lookup(ev.ItemID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, ev.ItemID)
	}
	if it.handler == nil {
		return ErrNoHandler
	}
	if err := it.handler(ev); err != nil {
		s.log.Warn("hyperlink handler failed",
			logx.String("id", it.ID),
			logx.String("event", ev.Type.String()),
			logx.String("url", ev.URL),
			logx.Err(err),
		)
		return fmt.Errorf("hyperlink %s: %w", ev.URL, err)
	}
	return nil
}

func (s *Service) lookup(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.shown[id]; ok {
		return it, true
	}
	for _, q := range s.pending {
		for _, it := range q {
			if it.ID == id {
				return it, true
			}
		}
	}
	return Item{}, false
}

func (s *Service) requeue(ch Channel, items []Item) {
	s.mu.Lock()
	s.pending[ch] = append(append([]Item(nil), items...), s.pending[ch]...)
	s.mu.Unlock()
}

func (s *Service) remember(it Item, max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shown[it.ID]; ok {
		return
	}
	s.shown[it.ID] = it
	s.shownOrder = append(s.shownOrder, it.ID)
	for len(s.shownOrder) > max {
		delete(s.shown, s.shownOrder[0])
		s.shownOrder = s.shownOrder[1:]
	}
}

func (s *Service) deliver(ctx context.Context, cfg Config, sink Sink, it Item) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := sink.Deliver(callCtx, it)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		s.log.Debug("notification send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		delay := retryDelay(cfg, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		}
	}
	return lastErr
}

// Snapshot returns the delivery history, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it Item, sink string, max int) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: s.now(), Channel: it.Channel, Sink: sink, Title: it.Title})
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, it Item, sink, key string, err error) {
	if s.bus == nil {
		return
	}
	now := s.now()
	ev := NotificationEvent{ItemID: it.ID, Channel: it.Channel, Sink: sink, Key: key, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func extractLinks(body string) []string {
	found := linkPattern.FindAllString(body, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(found))
	out := make([]string, 0, len(found))
	for _, l := range found {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func dedupKey(it Item) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(it.Channel))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(it.Title))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(it.Body))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, max int) bool {
	now := s.now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	// Prune expired and cap.
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	for max > 0 && len(s.dedup) > max {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, t := range s.dedup {
			if !set || t.Before(minT) {
				minKey, minT, set = k, t, true
			}
		}
		if !set {
			break
		}
		delete(s.dedup, minKey)
	}
	return true
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
