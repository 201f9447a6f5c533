package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// InboundType names an operation a client can request over its connection.
type InboundType string

const (
	InboundAuthenticate InboundType = "authenticate"
	InboundJoinChat     InboundType = "join_chat"
	InboundLeaveChat    InboundType = "leave_chat"
	InboundTypingStart  InboundType = "typing_start"
	InboundTypingStop   InboundType = "typing_stop"
	InboundUpdateStatus InboundType = "update_status"
	InboundPing         InboundType = "ping"
)

// InboundTypes lists every operation the Hub dispatches.
var InboundTypes = []InboundType{
	InboundAuthenticate,
	InboundJoinChat,
	InboundLeaveChat,
	InboundTypingStart,
	InboundTypingStop,
	InboundUpdateStatus,
	InboundPing,
}

// Inbound is one decoded client frame.
type Inbound struct {
	Type InboundType `json:"event"`
	Data InboundData `json:"data"`
}

// InboundData carries the fields any inbound operation may use. Zero values mean absent.
type InboundData struct {
	Token  string `json:"token,omitempty"`
	ChatID ChatID `json:"chat_id,omitempty"`
	Status string `json:"status,omitempty"`
}

// Ack is the reply payload sent back to the originating connection.
type Ack struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	ChatID   ChatID `json:"chat_id,omitempty"`
	UserID   UserID `json:"user_id,omitempty"`
	Presence Status `json:"presence,omitempty"`
}

// TypingSignal is the payload of EventUserTyping.
type TypingSignal struct {
	ChatID ChatID `json:"chat_id"`
	UserID UserID `json:"user_id"`
	Typing bool   `json:"typing"`
}

const (
	ackSuccess = "success"
	ackError   = "error"
)

var (
	// ErrMissingCredential is returned when authenticate carries no token.
	ErrMissingCredential = errors.New("token required")
	// ErrMissingChatID is returned by room operations without a chat id.
	ErrMissingChatID = errors.New("chat_id required")
	// ErrInvalidStatus is returned for a presence status outside Statuses.
	ErrInvalidStatus = errors.New("status must be one of online, away, busy, offline")
	// ErrChatForbidden is returned when the user may not join the chat.
	ErrChatForbidden = errors.New("chat not found or not accessible")
	// ErrUnknownEvent is returned for an inbound type with no handler.
	ErrUnknownEvent = errors.New("unknown event")
)

// IdentityResolver turns a bearer credential into a user id.
type IdentityResolver interface {
	ResolveToken(ctx context.Context, token string) (UserID, error)
}

// ChatAccess decides whether a user may join a chat's room.
type ChatAccess interface {
	CanAccessChat(ctx context.Context, user UserID, chat ChatID) (bool, error)
}

// inboundHandler runs one inbound operation and reports its outcome to the client.
type inboundHandler func(ctx context.Context, h *Hub, conn Conn, data InboundData)

// handlers is the dispatch table; its keys are exactly InboundTypes.
var handlers = map[InboundType]inboundHandler{
	InboundAuthenticate: func(ctx context.Context, h *Hub, conn Conn, d InboundData) {
		user, err := h.Authenticate(ctx, conn, d.Token)
		if err != nil {
			h.reply(conn, EventAuthenticated, fail(err))
			return
		}
		h.reply(conn, EventAuthenticated, Ack{Status: ackSuccess, UserID: user})
	},
	InboundJoinChat: func(ctx context.Context, h *Hub, conn Conn, d InboundData) {
		if err := h.JoinChat(ctx, conn, d.ChatID); err != nil {
			h.reply(conn, EventJoinedChat, fail(err))
			return
		}
		h.reply(conn, EventJoinedChat, Ack{Status: ackSuccess, ChatID: d.ChatID})
	},
	InboundLeaveChat: func(_ context.Context, h *Hub, conn Conn, d InboundData) {
		if err := h.LeaveChat(conn, d.ChatID); err != nil {
			h.reply(conn, EventLeftChat, fail(err))
			return
		}
		h.reply(conn, EventLeftChat, Ack{Status: ackSuccess, ChatID: d.ChatID})
	},
	InboundTypingStart: func(_ context.Context, h *Hub, conn Conn, d InboundData) {
		if _, err := h.Typing(conn, d.ChatID, true); err != nil {
			h.reply(conn, EventError, fail(err))
		}
	},
	InboundTypingStop: func(_ context.Context, h *Hub, conn Conn, d InboundData) {
		if _, err := h.Typing(conn, d.ChatID, false); err != nil {
			h.reply(conn, EventError, fail(err))
		}
	},
	InboundUpdateStatus: func(_ context.Context, h *Hub, conn Conn, d InboundData) {
		status, err := h.UpdateStatus(conn, d.Status)
		if err != nil {
			h.reply(conn, EventStatusUpdated, fail(err))
			return
		}
		h.reply(conn, EventStatusUpdated, Ack{Status: ackSuccess, Presence: status})
	},
	InboundPing: func(_ context.Context, h *Hub, conn Conn, _ InboundData) {
		h.reply(conn, EventPong, nil)
	},
}

func fail(err error) Ack {
	return Ack{Status: ackError, Message: err.Error()}
}

// ErrorEvent builds the generic error reply for failures outside any one operation,
// such as a frame the transport could not decode.
func ErrorEvent(err error) Event {
	return Event{Name: EventError, Data: fail(err)}
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithChatAccess makes join_chat check participation before joining.
func WithChatAccess(access ChatAccess, timeout time.Duration) HubOption {
	return func(h *Hub) {
		h.access = access
		h.accessTimeout = timeout
	}
}

// WithLogger sets the hub's logger.
func WithLogger(log zerolog.Logger) HubOption {
	return func(h *Hub) { h.log = log }
}

// Hub owns the live-mode state and runs inbound operations against it.
//
// Every operation is a short, non-blocking unit of work over in-memory state, so the
// transport may call the Hub directly from each connection's read loop.
type Hub struct {
	sessions *SessionRegistry
	rooms    *RoomTracker
	presence *PresenceNotifier
	router   *LiveRouter

	identity      IdentityResolver
	access        ChatAccess
	accessTimeout time.Duration
	log           zerolog.Logger
}

// NewHub builds a Hub with fresh registry, room tracker, notifier and router.
func NewHub(identity IdentityResolver, opts ...HubOption) *Hub {
	h := &Hub{
		identity:      identity,
		accessTimeout: 2 * time.Second,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.sessions = NewSessionRegistry()
	h.rooms = NewRoomTracker()
	h.presence = NewPresenceNotifier(h.sessions, h.log)
	h.router = NewLiveRouter(h.sessions, h.rooms, h.log)
	return h
}

// Sessions returns the hub's session registry.
func (h *Hub) Sessions() *SessionRegistry { return h.sessions }

// Rooms returns the hub's room tracker.
func (h *Hub) Rooms() *RoomTracker { return h.rooms }

// Router returns the live router that delivers over this hub's connections.
func (h *Hub) Router() *LiveRouter { return h.router }

// Presence returns the hub's presence notifier.
func (h *Hub) Presence() *PresenceNotifier { return h.presence }

// Connect is called when a transport connection opens. The connection stays
// unregistered until it authenticates.
func (h *Hub) Connect(conn Conn) {
	h.log.Debug().Str("conn_id", string(conn.ID())).Msg("client connected")
}

// Disconnect removes every trace of the connection. Calling it twice is a no-op.
func (h *Hub) Disconnect(id ConnID) {
	left := h.rooms.RemoveConn(id)

	user, ok := h.sessions.Unregister(id)
	if !ok {
		h.log.Debug().Str("conn_id", string(id)).Int("rooms_left", len(left)).Msg("unregistered client disconnected")
		return
	}
	ConnectedUsers.Set(float64(h.sessions.Count()))

	h.log.Info().Uint("user_id", uint(user)).Str("conn_id", string(id)).Int("rooms_left", len(left)).Msg("user disconnected")
	h.presence.BroadcastStatus(user, StatusOffline)
}

// Dispatch runs one inbound frame. Failures become reply events on conn.
func (h *Hub) Dispatch(ctx context.Context, conn Conn, in Inbound) {
	handle, ok := handlers[in.Type]
	if !ok {
		h.reply(conn, EventError, fail(fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)))
		return
	}
	handle(ctx, h, conn, in.Data)
}

// Authenticate resolves token and registers conn as the user's connection of record.
// On failure the connection stays open and unregistered.
func (h *Hub) Authenticate(ctx context.Context, conn Conn, token string) (UserID, error) {
	if token == "" {
		return 0, ErrMissingCredential
	}
	user, err := h.identity.ResolveToken(ctx, token)
	if err != nil {
		h.log.Info().Err(err).Str("conn_id", string(conn.ID())).Msg("authentication rejected")
		return 0, fmt.Errorf("authentication failed: %w", err)
	}

	reg := h.sessions.Register(user, conn)
	if reg.Replaced != nil {
		h.log.Info().
			Uint("user_id", uint(user)).
			Str("conn_id", string(conn.ID())).
			Str("replaced_conn_id", string(reg.Replaced.ID())).
			Msg("newer connection supersedes previous one")
	}
	if reg.Switched {
		// Rooms were joined under the old identity and its access checks
		left := h.rooms.RemoveConn(conn.ID())
		h.log.Info().
			Uint("user_id", uint(user)).
			Uint("previous_user_id", uint(reg.Displaced)).
			Str("conn_id", string(conn.ID())).
			Int("rooms_left", len(left)).
			Msg("connection switched identity")
		h.presence.BroadcastStatus(reg.Displaced, StatusOffline)
	}
	ConnectedUsers.Set(float64(h.sessions.Count()))

	h.log.Info().Uint("user_id", uint(user)).Str("conn_id", string(conn.ID())).Msg("user authenticated")
	h.presence.BroadcastStatus(user, StatusOnline)
	return user, nil
}

// JoinChat adds conn to a chat room. The connection must be of record for some user.
func (h *Hub) JoinChat(ctx context.Context, conn Conn, chat ChatID) error {
	if chat == 0 {
		return ErrMissingChatID
	}
	user, ok := h.sessions.UserOf(conn.ID())
	if !ok {
		return ErrNotAuthenticated
	}

	if h.access != nil {
		ctx, cancel := context.WithTimeout(ctx, h.accessTimeout)
		defer cancel()

		allowed, err := h.access.CanAccessChat(ctx, user, chat)
		if err != nil {
			h.log.Warn().Err(err).Uint("user_id", uint(user)).Uint("chat_id", uint(chat)).Msg("chat access check failed")
			return ErrChatForbidden
		}
		if !allowed {
			return ErrChatForbidden
		}
	}

	h.rooms.Join(chat, conn)
	h.log.Debug().Uint("user_id", uint(user)).Uint("chat_id", uint(chat)).Msg("joined chat room")
	return nil
}

// LeaveChat removes conn from a chat room. Leaving a room twice is fine.
func (h *Hub) LeaveChat(conn Conn, chat ChatID) error {
	if chat == 0 {
		return ErrMissingChatID
	}
	h.rooms.Leave(chat, conn.ID())
	return nil
}

// Typing relays a typing indicator to the other members of the chat room. Nothing is
// queued: members that are not joined right now never see it.
func (h *Hub) Typing(conn Conn, chat ChatID, typing bool) (int, error) {
	if chat == 0 {
		return 0, ErrMissingChatID
	}
	user, ok := h.sessions.UserOf(conn.ID())
	if !ok {
		return 0, ErrNotAuthenticated
	}

	signal := TypingSignal{ChatID: chat, UserID: user, Typing: typing}
	return h.router.EmitToChat(chat, EventUserTyping, signal, ExcludeConn(conn.ID()), ExcludeUser(user)), nil
}

// UpdateStatus stores and broadcasts a presence change requested by conn's user.
func (h *Hub) UpdateStatus(conn Conn, raw string) (Status, error) {
	status, ok := ParseStatus(raw)
	if !ok {
		return "", ErrInvalidStatus
	}
	user, ok := h.sessions.UserOf(conn.ID())
	if !ok {
		return "", ErrNotAuthenticated
	}

	h.sessions.SetStatus(user, status)
	h.presence.BroadcastStatus(user, status)
	return status, nil
}

func (h *Hub) reply(conn Conn, name string, payload any) {
	if err := conn.Send(Event{Name: name, Data: payload}); err != nil {
		h.log.Debug().Err(err).Str("conn_id", string(conn.ID())).Str("event", name).Msg("reply not delivered")
	}
}
