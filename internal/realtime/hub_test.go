package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(opts ...HubOption) *Hub {
	return NewHub(tokenTable{"token-a": 1, "token-b": 2, "token-c": 3}, opts...)
}

func authenticate(t *testing.T, h *Hub, conn *fakeConn, token string) {
	t.Helper()
	h.Connect(conn)
	h.Dispatch(context.Background(), conn, Inbound{Type: InboundAuthenticate, Data: InboundData{Token: token}})
	require.Equal(t, Event{Name: EventAuthenticated, Data: Ack{Status: ackSuccess, UserID: mustUser(t, h, conn)}}, conn.last())
}

func mustUser(t *testing.T, h *Hub, conn Conn) UserID {
	t.Helper()
	user, ok := h.Sessions().UserOf(conn.ID())
	require.True(t, ok)
	return user
}

func ackOf(t *testing.T, ev Event) Ack {
	t.Helper()
	ack, ok := ev.Data.(Ack)
	require.True(t, ok, "payload %T is not an Ack", ev.Data)
	return ack
}

func TestEndToEndDirectMessage(t *testing.T) {
	h := newTestHub()
	ca, cb := newFakeConn("ca"), newFakeConn("cb")
	authenticate(t, h, ca, "token-a")
	authenticate(t, h, cb, "token-b")

	payload := map[string]any{"type": "create", "chat_id": 1, "message": map[string]any{"body": "hi"}}
	assert.True(t, h.Router().EmitToUser(2, EventNewMessage, payload))

	got := cb.named(EventNewMessage)
	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0].Data)

	h.Disconnect("cb")
	assert.NotPanics(t, func() {
		assert.False(t, h.Router().EmitToUser(2, EventNewMessage, payload))
	})
	assert.Len(t, cb.named(EventNewMessage), 1)
	assert.Equal(t, []UserID{1}, h.Sessions().ConnectedUserIDs())
}

func TestAuthenticateBroadcastsPresence(t *testing.T) {
	h := newTestHub()
	ca, cb := newFakeConn("ca"), newFakeConn("cb")
	authenticate(t, h, ca, "token-a")
	authenticate(t, h, cb, "token-b")

	online := ca.named(EventUserStatusChanged)
	require.Len(t, online, 1)
	assert.Equal(t, StatusChange{UserID: 2, Status: StatusOnline}, online[0].Data)
	assert.Empty(t, cb.named(EventUserStatusChanged), "subject does not see its own presence")

	h.Disconnect("cb")
	statuses := ca.named(EventUserStatusChanged)
	require.Len(t, statuses, 2)
	assert.Equal(t, StatusChange{UserID: 2, Status: StatusOffline}, statuses[1].Data)
}

func TestAuthenticateFailures(t *testing.T) {
	h := newTestHub()

	for name, token := range map[string]string{"missing": "", "invalid": "nope"} {
		t.Run(name, func(t *testing.T) {
			conn := newFakeConn("c-" + name)
			h.Connect(conn)
			h.Dispatch(context.Background(), conn, Inbound{Type: InboundAuthenticate, Data: InboundData{Token: token}})

			ev := conn.last()
			assert.Equal(t, EventAuthenticated, ev.Name)
			assert.Equal(t, ackError, ackOf(t, ev).Status)
			assert.NotEmpty(t, ackOf(t, ev).Message)
			_, ok := h.Sessions().UserOf(conn.ID())
			assert.False(t, ok)
		})
	}
	assert.Zero(t, h.Sessions().Count())
}

func TestJoinRequiresAuthenticationAndChatID(t *testing.T) {
	h := newTestHub()
	conn := newFakeConn("c1")
	h.Connect(conn)

	h.Dispatch(context.Background(), conn, Inbound{Type: InboundJoinChat, Data: InboundData{ChatID: 4}})
	assert.Equal(t, ackError, ackOf(t, conn.last()).Status)
	assert.Empty(t, h.Rooms().Members(4))

	authenticate(t, h, conn, "token-a")
	h.Dispatch(context.Background(), conn, Inbound{Type: InboundJoinChat})
	assert.Equal(t, Event{Name: EventJoinedChat, Data: Ack{Status: ackError, Message: ErrMissingChatID.Error()}}, conn.last())

	h.Dispatch(context.Background(), conn, Inbound{Type: InboundJoinChat, Data: InboundData{ChatID: 4}})
	assert.Equal(t, Event{Name: EventJoinedChat, Data: Ack{Status: ackSuccess, ChatID: 4}}, conn.last())
	assert.True(t, h.Rooms().IsMember(4, "c1"))
}

func TestJoinChecksChatAccess(t *testing.T) {
	h := newTestHub(WithChatAccess(chatTable{4: {1, 2}}, time.Second))
	ca, cc := newFakeConn("ca"), newFakeConn("cc")
	authenticate(t, h, ca, "token-a")
	authenticate(t, h, cc, "token-c")

	assert.NoError(t, h.JoinChat(context.Background(), ca, 4))
	assert.ErrorIs(t, h.JoinChat(context.Background(), cc, 4), ErrChatForbidden)
	assert.False(t, h.Rooms().IsMember(4, "cc"))
}

func TestLeaveChatIsIdempotent(t *testing.T) {
	h := newTestHub()
	conn := newFakeConn("c1")
	authenticate(t, h, conn, "token-a")
	require.NoError(t, h.JoinChat(context.Background(), conn, 4))

	for i := 0; i < 2; i++ {
		h.Dispatch(context.Background(), conn, Inbound{Type: InboundLeaveChat, Data: InboundData{ChatID: 4}})
		assert.Equal(t, Event{Name: EventLeftChat, Data: Ack{Status: ackSuccess, ChatID: 4}}, conn.last())
	}
	assert.False(t, h.Rooms().IsMember(4, "c1"))
}

func TestTypingReachesOtherRoomMembersOnly(t *testing.T) {
	h := newTestHub()
	ca, cb, cc := newFakeConn("ca"), newFakeConn("cb"), newFakeConn("cc")
	authenticate(t, h, ca, "token-a")
	authenticate(t, h, cb, "token-b")
	authenticate(t, h, cc, "token-c")
	require.NoError(t, h.JoinChat(context.Background(), ca, 4))
	require.NoError(t, h.JoinChat(context.Background(), cb, 4))

	h.Dispatch(context.Background(), ca, Inbound{Type: InboundTypingStart, Data: InboundData{ChatID: 4}})
	h.Dispatch(context.Background(), ca, Inbound{Type: InboundTypingStop, Data: InboundData{ChatID: 4}})

	typing := cb.named(EventUserTyping)
	require.Len(t, typing, 2)
	assert.Equal(t, TypingSignal{ChatID: 4, UserID: 1, Typing: true}, typing[0].Data)
	assert.Equal(t, TypingSignal{ChatID: 4, UserID: 1, Typing: false}, typing[1].Data)
	assert.Empty(t, ca.named(EventUserTyping))
	assert.Empty(t, cc.named(EventUserTyping), "not joined, not notified")
}

func TestTypingWithoutChatIDReportsError(t *testing.T) {
	h := newTestHub()
	conn := newFakeConn("c1")
	authenticate(t, h, conn, "token-a")

	h.Dispatch(context.Background(), conn, Inbound{Type: InboundTypingStart})
	assert.Equal(t, EventError, conn.last().Name)
}

func TestUpdateStatus(t *testing.T) {
	h := newTestHub()
	ca, cb := newFakeConn("ca"), newFakeConn("cb")
	authenticate(t, h, ca, "token-a")
	authenticate(t, h, cb, "token-b")

	h.Dispatch(context.Background(), ca, Inbound{Type: InboundUpdateStatus, Data: InboundData{Status: "busy"}})
	assert.Equal(t, Event{Name: EventStatusUpdated, Data: Ack{Status: ackSuccess, Presence: StatusBusy}}, ca.last())
	assert.Equal(t, StatusBusy, h.Sessions().Status(1))
	assert.Equal(t, Event{Name: EventUserStatusChanged, Data: StatusChange{UserID: 1, Status: StatusBusy}}, cb.last())

	h.Dispatch(context.Background(), ca, Inbound{Type: InboundUpdateStatus, Data: InboundData{Status: "sleeping"}})
	assert.Equal(t, ackError, ackOf(t, ca.last()).Status)
	assert.Equal(t, StatusBusy, h.Sessions().Status(1))
}

func TestDisconnectCleansRooms(t *testing.T) {
	h := newTestHub()
	conn := newFakeConn("c1")
	authenticate(t, h, conn, "token-a")
	require.NoError(t, h.JoinChat(context.Background(), conn, 1))
	require.NoError(t, h.JoinChat(context.Background(), conn, 2))

	h.Disconnect("c1")
	h.Disconnect("c1")

	assert.Empty(t, h.Rooms().Members(1))
	assert.Empty(t, h.Rooms().Members(2))
	assert.False(t, h.Sessions().IsOnline(1))
}

func TestSupersededConnectionDisconnectKeepsUserOnline(t *testing.T) {
	h := newTestHub()
	observer := newFakeConn("obs")
	authenticate(t, h, observer, "token-b")

	first, second := newFakeConn("first"), newFakeConn("second")
	authenticate(t, h, first, "token-a")
	authenticate(t, h, second, "token-a")

	h.Disconnect("first")

	conn, ok := h.Sessions().Lookup(1)
	require.True(t, ok)
	assert.Equal(t, ConnID("second"), conn.ID())
	for _, ev := range observer.named(EventUserStatusChanged) {
		assert.NotEqual(t, StatusOffline, ev.Data.(StatusChange).Status)
	}
}

func TestReauthenticatingAsAnotherUserDropsOldIdentity(t *testing.T) {
	h := newTestHub(WithChatAccess(chatTable{7: {1, 3}}, time.Second))
	watcher, conn := newFakeConn("watcher"), newFakeConn("c")
	authenticate(t, h, watcher, "token-c")
	authenticate(t, h, conn, "token-a")
	require.NoError(t, h.JoinChat(context.Background(), watcher, 7))
	require.NoError(t, h.JoinChat(context.Background(), conn, 7))

	h.Dispatch(context.Background(), conn, Inbound{Type: InboundAuthenticate, Data: InboundData{Token: "token-b"}})
	require.Equal(t, Event{Name: EventAuthenticated, Data: Ack{Status: ackSuccess, UserID: 2}}, conn.last())

	var seen []StatusChange
	for _, ev := range watcher.named(EventUserStatusChanged) {
		seen = append(seen, ev.Data.(StatusChange))
	}
	assert.Equal(t, []StatusChange{
		{UserID: 1, Status: StatusOnline},
		{UserID: 1, Status: StatusOffline},
		{UserID: 2, Status: StatusOnline},
	}, seen)
	assert.False(t, h.Sessions().IsOnline(1))

	assert.Empty(t, h.Rooms().RoomsOf("c"))
	h.Dispatch(context.Background(), watcher, Inbound{Type: InboundTypingStart, Data: InboundData{ChatID: 7}})
	assert.Empty(t, conn.named(EventUserTyping), "rooms joined as user 1 do not carry over")
}

func TestStaleConnectionCannotJoin(t *testing.T) {
	h := newTestHub()
	first, second := newFakeConn("first"), newFakeConn("second")
	authenticate(t, h, first, "token-a")
	authenticate(t, h, second, "token-a")

	assert.ErrorIs(t, h.JoinChat(context.Background(), first, 4), ErrNotAuthenticated)
}

func TestPingAndUnknownEvent(t *testing.T) {
	h := newTestHub()
	conn := newFakeConn("c1")
	h.Connect(conn)

	h.Dispatch(context.Background(), conn, Inbound{Type: InboundPing})
	assert.Equal(t, EventPong, conn.last().Name)

	h.Dispatch(context.Background(), conn, Inbound{Type: "teleport"})
	assert.Equal(t, EventError, conn.last().Name)
	assert.Contains(t, ackOf(t, conn.last()).Message, "teleport")
}

func TestDispatchTableCoversEveryInboundType(t *testing.T) {
	for _, typ := range InboundTypes {
		_, ok := handlers[typ]
		assert.True(t, ok, "no handler for %s", typ)
	}
	assert.Len(t, handlers, len(InboundTypes))
}
