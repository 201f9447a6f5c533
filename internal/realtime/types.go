// Package realtime is the delivery and presence layer of the chat relay.
//
// It tracks which users hold a live transport connection, which connections have joined
// which chat rooms, and routes message lifecycle events to the connected recipients.
// Delivery is best-effort and at-most-once: an event for a user without a connection is
// dropped, and clients catch up by re-fetching after they reconnect. When no persistent
// transport is available, the same Router contract is served by a per-user, bounded,
// time-pruned buffer that clients drain by polling.
//
// All state is in memory and owned by explicitly constructed objects; nothing here is a
// package-level singleton apart from the prometheus collectors.
package realtime

import (
	"errors"
	"fmt"
	"time"
)

// UserID is the stable identity owned by the account system.
type UserID uint

// ChatID identifies one conversation.
type ChatID uint

// ConnID identifies one live transport session.
type ConnID string

// Event is one outbound frame: a name and its payload.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Conn is the sending half of one transport connection.
//
// Send must not block: implementations queue the event and return ErrSendQueueFull when
// the queue is full or ErrConnClosed when the connection is gone. Events handed to Send
// on one Conn must be written to the wire in the order Send was called.
type Conn interface {
	ID() ConnID
	Send(Event) error
}

var (
	// ErrNotAuthenticated is returned for operations on a connection that is not the
	// connection of record for any user.
	ErrNotAuthenticated = errors.New("connection is not authenticated")
	// ErrSendQueueFull is returned by Conn.Send when the outbound queue has no room.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrConnClosed is returned by Conn.Send after the connection has been closed.
	ErrConnClosed = errors.New("connection closed")
)

// Status is a user's presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Statuses lists the accepted presence states in display order.
var Statuses = []Status{StatusOnline, StatusAway, StatusBusy, StatusOffline}

// ParseStatus validates a client supplied status string.
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// RateLimitError rejects a poll that arrived too soon after the previous accepted poll.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry after %.2fs", e.RetryAfter.Seconds())
}

// Outbound event names produced by this package.
const (
	EventAuthenticated     = "authenticated"
	EventJoinedChat        = "joined_chat"
	EventLeftChat          = "left_chat"
	EventStatusUpdated     = "status_updated"
	EventUserTyping        = "user_typing"
	EventUserStatusChanged = "user_status_changed"
	EventPong              = "pong"
	EventError             = "error"
)

// Application event names emitted by the write path.
const (
	EventNewMessage     = "new_message"
	EventMessageUpdated = "message_updated"
	EventMessageDeleted = "message_deleted"
	EventMessageRead    = "message_read"
	EventUpdateChat     = "update_chat"
)
