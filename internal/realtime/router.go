package realtime

import (
	"github.com/rs/zerolog"
)

// Router is the single delivery contract the application write path talks to.
//
// Both implementations are at-most-once and never block: LiveRouter hands events to the
// recipient's live connection or drops them when there is none, PollRouter appends them
// to the recipient's pending buffer. Neither reorders or batches, so events for one
// recipient arrive in the order the Emit calls were made.
type Router interface {
	// EmitToUser delivers one event to user and reports whether it was accepted.
	// An offline user is not an error.
	EmitToUser(user UserID, name string, payload any) bool
	// EmitToChat delivers one event to a chat's audience and returns the number of
	// recipients that accepted it.
	EmitToChat(chat ChatID, name string, payload any, opts ...EmitOption) int
}

// EmitOption narrows the audience of EmitToChat.
type EmitOption func(*emitOptions)

type emitOptions struct {
	excludeUser  UserID
	hasExclude   bool
	excludeConn  ConnID
	participants []UserID
}

// ExcludeUser skips user, even when it is connected.
func ExcludeUser(user UserID) EmitOption {
	return func(o *emitOptions) {
		o.excludeUser = user
		o.hasExclude = true
	}
}

// ExcludeConn skips one connection, typically the sender of a typing signal.
func ExcludeConn(id ConnID) EmitOption {
	return func(o *emitOptions) { o.excludeConn = id }
}

// ToParticipants addresses the chat's participants directly instead of the connections
// that joined its room. This is the pattern for persisted message events; the room
// pattern is kept for ephemeral signals scoped by an active join.
func ToParticipants(users ...UserID) EmitOption {
	return func(o *emitOptions) { o.participants = append(o.participants, users...) }
}

func collectOptions(opts []EmitOption) emitOptions {
	var o emitOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LiveRouter delivers events over registered live connections.
type LiveRouter struct {
	sessions *SessionRegistry
	rooms    *RoomTracker
	log      zerolog.Logger
}

// NewLiveRouter builds a router over the given registry and room tracker.
func NewLiveRouter(sessions *SessionRegistry, rooms *RoomTracker, log zerolog.Logger) *LiveRouter {
	return &LiveRouter{sessions: sessions, rooms: rooms, log: log}
}

// EmitToUser implements Router.
func (r *LiveRouter) EmitToUser(user UserID, name string, payload any) bool {
	conn, ok := r.sessions.Lookup(user)
	if !ok {
		EventsTotal.WithLabelValues(name, outcomeOffline).Inc()
		r.log.Debug().Uint("user_id", uint(user)).Str("event", name).Msg("recipient offline, event dropped")
		return false
	}
	return r.send(conn, user, Event{Name: name, Data: payload})
}

// EmitToChat implements Router.
func (r *LiveRouter) EmitToChat(chat ChatID, name string, payload any, opts ...EmitOption) int {
	o := collectOptions(opts)

	if len(o.participants) > 0 {
		delivered := 0
		for _, user := range o.participants {
			if o.hasExclude && user == o.excludeUser {
				continue
			}
			if r.EmitToUser(user, name, payload) {
				delivered++
			}
		}
		return delivered
	}

	ev := Event{Name: name, Data: payload}
	delivered := 0
	for _, conn := range r.rooms.Members(chat) {
		if conn.ID() == o.excludeConn {
			continue
		}
		// Connections that were superseded by a newer login still sit in rooms until
		// they disconnect; only connections of record receive room traffic.
		user, ok := r.sessions.UserOf(conn.ID())
		if !ok || (o.hasExclude && user == o.excludeUser) {
			continue
		}
		if r.send(conn, user, ev) {
			delivered++
		}
	}

	r.log.Debug().Uint("chat_id", uint(chat)).Str("event", name).Int("recipients", delivered).Msg("room broadcast")
	return delivered
}

func (r *LiveRouter) send(conn Conn, user UserID, ev Event) bool {
	if err := conn.Send(ev); err != nil {
		EventsTotal.WithLabelValues(ev.Name, outcomeFailed).Inc()
		r.log.Warn().Err(err).
			Uint("user_id", uint(user)).
			Str("conn_id", string(conn.ID())).
			Str("event", ev.Name).
			Msg("event delivery failed")
		return false
	}
	EventsTotal.WithLabelValues(ev.Name, outcomeDelivered).Inc()
	return true
}
