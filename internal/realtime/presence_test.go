package realtime

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastStatusSkipsSubject(t *testing.T) {
	sessions := NewSessionRegistry()
	a, b, c := newFakeConn("a"), newFakeConn("b"), newFakeConn("c")
	sessions.Register(1, a)
	sessions.Register(2, b)
	sessions.Register(3, c)

	n := NewPresenceNotifier(sessions, zerolog.Nop()).BroadcastStatus(1, StatusAway)

	assert.Equal(t, 2, n)
	assert.Empty(t, a.all())
	for _, conn := range []*fakeConn{b, c} {
		require.Len(t, conn.all(), 1)
		assert.Equal(t, Event{
			Name: EventUserStatusChanged,
			Data: StatusChange{UserID: 1, Status: StatusAway},
		}, conn.last())
	}
}

func TestBroadcastStatusSurvivesFailingRecipient(t *testing.T) {
	sessions := NewSessionRegistry()
	bad, good := newFakeConn("bad"), newFakeConn("good")
	bad.failWith(errors.New("closed"))
	sessions.Register(2, bad)
	sessions.Register(3, good)

	n := NewPresenceNotifier(sessions, zerolog.Nop()).BroadcastStatus(1, StatusOnline)

	assert.Equal(t, 1, n)
	assert.Len(t, good.all(), 1)
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"online", "away", "busy", "offline"} {
		st, ok := ParseStatus(s)
		assert.True(t, ok)
		assert.Equal(t, Status(s), st)
	}
	_, ok := ParseStatus("invisible")
	assert.False(t, ok)
}
