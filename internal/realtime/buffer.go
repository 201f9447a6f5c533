package realtime

import (
	"math"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PendingEvent is one buffered event waiting for its recipient's next poll.
type PendingEvent struct {
	Type      string  `json:"type"`
	Data      any     `json:"data"`
	Timestamp float64 `json:"timestamp"`
}

// PollResult is returned by an accepted poll. Timestamp is the value to pass as since
// on the next poll.
type PollResult struct {
	Events    []PendingEvent `json:"events"`
	Timestamp float64        `json:"timestamp"`
}

// BufferConfig bounds the fallback buffer.
type BufferConfig struct {
	MaxEvents       int           // per user, oldest evicted first
	Retention       time.Duration // events older than this are pruned on poll
	MinPollInterval time.Duration // minimum gap between accepted polls of one user
	PresenceWindow  time.Duration // a user polling within this window counts as online
}

// DefaultBufferConfig returns the stock limits.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		MaxEvents:       50,
		Retention:       300 * time.Second,
		MinPollInterval: time.Second,
		PresenceWindow:  30 * time.Second,
	}
}

// BufferOption customizes a FallbackBuffer.
type BufferOption func(*FallbackBuffer)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) BufferOption {
	return func(b *FallbackBuffer) { b.now = now }
}

// FallbackBuffer holds per-user pending events for clients that poll instead of keeping
// a live connection.
// One mutex guards all maps; every critical section is a few slice operations.
type FallbackBuffer struct {
	cfg BufferConfig
	now func() time.Time

	mu        sync.Mutex
	events    map[UserID][]PendingEvent
	limiters  map[UserID]*rate.Limiter
	lastPoll  map[UserID]time.Time
	lastStamp float64
}

// NewFallbackBuffer builds an empty buffer.
func NewFallbackBuffer(cfg BufferConfig, opts ...BufferOption) *FallbackBuffer {
	b := &FallbackBuffer{
		cfg:      cfg,
		now:      time.Now,
		events:   make(map[UserID][]PendingEvent),
		limiters: make(map[UserID]*rate.Limiter),
		lastPoll: make(map[UserID]time.Time),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add appends an event for user, evicting the oldest ones beyond MaxEvents.
func (b *FallbackBuffer) Add(user UserID, typ string, data any) PendingEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev := PendingEvent{Type: typ, Data: data, Timestamp: b.stampLocked(b.now())}
	queue := append(b.events[user], ev)
	if over := len(queue) - b.cfg.MaxEvents; over > 0 {
		queue = slices.Clone(queue[over:])
		BufferEvictionsTotal.WithLabelValues("capacity").Add(float64(over))
	}
	b.events[user] = queue
	return ev
}

// Poll returns the events of user newer than since, or all of them when since is nil.
//
// A poll that arrives less than MinPollInterval after the previous accepted one fails
// with *RateLimitError and changes nothing. Accepted polls first prune events older than
// Retention, so expired events are never returned.
func (b *FallbackBuffer) Poll(user UserID, since *float64) (PollResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	lim := b.limiterLocked(user)
	res := lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		// Give the token back so a rejected poll does not push the next window out.
		res.CancelAt(now)
		PollRejectionsTotal.Inc()
		return PollResult{}, &RateLimitError{RetryAfter: delay}
	}
	b.lastPoll[user] = now

	b.pruneLocked(user, now)

	out := make([]PendingEvent, 0, len(b.events[user]))
	for _, ev := range b.events[user] {
		if since == nil || ev.Timestamp > *since {
			out = append(out, ev)
		}
	}

	return PollResult{Events: out, Timestamp: b.stampLocked(now)}, nil
}

// Pending returns how many events are buffered for user.
func (b *FallbackBuffer) Pending(user UserID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events[user])
}

// ConnectedUserIDs returns the users with an accepted poll inside the presence window.
func (b *FallbackBuffer) ConnectedUserIDs() []UserID {
	b.mu.Lock()
	now := b.now()
	ids := make([]UserID, 0, len(b.lastPoll))
	for user, at := range b.lastPoll {
		if now.Sub(at) <= b.cfg.PresenceWindow {
			ids = append(ids, user)
		}
	}
	b.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// IsOnline reports whether user polled inside the presence window.
func (b *FallbackBuffer) IsOnline(user UserID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	at, ok := b.lastPoll[user]
	return ok && b.now().Sub(at) <= b.cfg.PresenceWindow
}

func (b *FallbackBuffer) limiterLocked(user UserID) *rate.Limiter {
	lim, ok := b.limiters[user]
	if !ok {
		lim = rate.NewLimiter(rate.Every(b.cfg.MinPollInterval), 1)
		b.limiters[user] = lim
	}
	return lim
}

func (b *FallbackBuffer) pruneLocked(user UserID, now time.Time) {
	queue, ok := b.events[user]
	if !ok {
		return
	}

	cutoff := epochSeconds(now.Add(-b.cfg.Retention))
	kept := queue[:0]
	for _, ev := range queue {
		if ev.Timestamp >= cutoff {
			kept = append(kept, ev)
		}
	}
	if pruned := len(queue) - len(kept); pruned > 0 {
		BufferEvictionsTotal.WithLabelValues("expired").Add(float64(pruned))
	}

	if len(kept) == 0 {
		delete(b.events, user)
		return
	}
	b.events[user] = kept
}

// stampLocked turns t into epoch seconds, strictly greater than any earlier stamp so a
// client passing the previous response timestamp as since never skips an event.
func (b *FallbackBuffer) stampLocked(t time.Time) float64 {
	ts := epochSeconds(t)
	if ts <= b.lastStamp {
		ts = math.Nextafter(b.lastStamp, math.Inf(1))
	}
	b.lastStamp = ts
	return ts
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
