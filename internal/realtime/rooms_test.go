package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ids(conns []Conn) []ConnID {
	out := make([]ConnID, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}

func TestJoinLeaveMembers(t *testing.T) {
	rooms := NewRoomTracker()
	a, b := newFakeConn("a"), newFakeConn("b")

	rooms.Join(1, b)
	rooms.Join(1, a)
	rooms.Join(1, a)

	assert.Equal(t, []ConnID{"a", "b"}, ids(rooms.Members(1)))
	assert.True(t, rooms.Leave(1, "a"))
	assert.False(t, rooms.Leave(1, "a"), "double leave is a no-op")
	assert.Equal(t, []ConnID{"b"}, ids(rooms.Members(1)))
	assert.False(t, rooms.Leave(42, "b"))
}

func TestRemoveConnCleansEveryRoom(t *testing.T) {
	rooms := NewRoomTracker()
	a, b := newFakeConn("a"), newFakeConn("b")
	rooms.Join(1, a)
	rooms.Join(2, a)
	rooms.Join(2, b)

	assert.Equal(t, []ChatID{1, 2}, rooms.RemoveConn("a"))

	assert.Empty(t, rooms.Members(1))
	assert.Equal(t, []ConnID{"b"}, ids(rooms.Members(2)))
	assert.False(t, rooms.IsMember(2, "a"))
	assert.Empty(t, rooms.RoomsOf("a"))
	assert.Empty(t, rooms.RemoveConn("a"))
}

func TestRoomsOf(t *testing.T) {
	rooms := NewRoomTracker()
	a := newFakeConn("a")
	rooms.Join(9, a)
	rooms.Join(4, a)

	assert.Equal(t, []ChatID{4, 9}, rooms.RoomsOf("a"))
}
