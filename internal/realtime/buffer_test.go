package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBuffer(clock *fakeClock) *FallbackBuffer {
	return NewFallbackBuffer(DefaultBufferConfig(), WithClock(clock.Now))
}

func TestBufferKeepsMostRecentFifty(t *testing.T) {
	clock := newFakeClock()
	b := newTestBuffer(clock)

	for i := 0; i < 60; i++ {
		b.Add(1, EventNewMessage, i)
		clock.Advance(time.Millisecond)
	}
	assert.Equal(t, 50, b.Pending(1), "cap is enforced on insert")

	res, err := b.Poll(1, nil)
	require.NoError(t, err)
	require.Len(t, res.Events, 50)
	assert.Equal(t, 10, res.Events[0].Data)
	assert.Equal(t, 59, res.Events[49].Data)
}

func TestBufferPrunesExpiredEvents(t *testing.T) {
	clock := newFakeClock()
	b := newTestBuffer(clock)

	b.Add(1, EventNewMessage, "t0")
	clock.Advance(400 * time.Second)
	b.Add(1, EventNewMessage, "t400")

	res, err := b.Poll(1, nil)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "t400", res.Events[0].Data)
	assert.Equal(t, 1, b.Pending(1))
}

func TestBufferPollSince(t *testing.T) {
	clock := newFakeClock()
	b := newTestBuffer(clock)

	first := b.Add(1, EventNewMessage, "a")
	clock.Advance(10 * time.Millisecond)
	b.Add(1, EventMessageUpdated, "b")

	res, err := b.Poll(1, &first.Timestamp)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, EventMessageUpdated, res.Events[0].Type)

	// Events stamped after a poll are strictly newer than its response timestamp,
	// even when the clock has not moved.
	b.Add(1, EventMessageDeleted, "c")
	clock.Advance(2 * time.Second)
	res2, err := b.Poll(1, &res.Timestamp)
	require.NoError(t, err)
	require.Len(t, res2.Events, 1)
	assert.Equal(t, EventMessageDeleted, res2.Events[0].Type)
}

func TestBufferStampsAreStrictlyIncreasing(t *testing.T) {
	clock := newFakeClock()
	b := newTestBuffer(clock)

	prev := b.Add(1, EventNewMessage, 0).Timestamp
	for i := 1; i < 20; i++ {
		ts := b.Add(2, EventNewMessage, i).Timestamp
		assert.Greater(t, ts, prev)
		prev = ts
	}
}

func TestBufferRateLimit(t *testing.T) {
	clock := newFakeClock()
	b := newTestBuffer(clock)

	_, err := b.Poll(1, nil)
	require.NoError(t, err)

	clock.Advance(300 * time.Millisecond)
	_, err = b.Poll(1, nil)
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.InDelta(t, 0.7, rl.RetryAfter.Seconds(), 0.01)

	// The rejected poll did not move the window: 1.1s after the first poll is fine.
	clock.Advance(800 * time.Millisecond)
	_, err = b.Poll(1, nil)
	assert.NoError(t, err)

	// Other users have their own window.
	_, err = b.Poll(2, nil)
	assert.NoError(t, err)
}

func TestBufferRepeatedRejectionsKeepRetryAfter(t *testing.T) {
	clock := newFakeClock()
	b := newTestBuffer(clock)

	_, err := b.Poll(1, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		clock.Advance(200 * time.Millisecond)
		_, err = b.Poll(1, nil)
		var rl *RateLimitError
		require.True(t, errors.As(err, &rl))
		assert.InDelta(t, 1.0-0.2*float64(i+1), rl.RetryAfter.Seconds(), 0.01)
	}
}

func TestBufferPresenceWindow(t *testing.T) {
	clock := newFakeClock()
	b := newTestBuffer(clock)

	_, err := b.Poll(3, nil)
	require.NoError(t, err)
	assert.True(t, b.IsOnline(3))
	assert.Equal(t, []UserID{3}, b.ConnectedUserIDs())

	clock.Advance(31 * time.Second)
	assert.False(t, b.IsOnline(3))
	assert.Empty(t, b.ConnectedUserIDs())
}

func TestPollRouterQueuesParticipants(t *testing.T) {
	clock := newFakeClock()
	b := newTestBuffer(clock)
	router := NewPollRouter(b, zerolog.Nop())

	assert.True(t, router.EmitToUser(4, EventNewMessage, "m"))
	assert.Equal(t, 1, router.EmitToChat(7, EventUpdateChat, "c", ToParticipants(4, 5), ExcludeUser(5)))
	assert.Zero(t, router.EmitToChat(7, EventUserTyping, "typing"), "room signals are not buffered")

	assert.Equal(t, 2, b.Pending(4))
	assert.Equal(t, 0, b.Pending(5))
}

func TestRoutersShareContract(t *testing.T) {
	var _ Router = (*LiveRouter)(nil)
	var _ Router = (*PollRouter)(nil)
}
