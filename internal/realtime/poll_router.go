package realtime

import (
	"github.com/rs/zerolog"
)

// PollRouter serves the Router contract by buffering events for polling clients.
//
// Only participant-addressed events are buffered. Room traffic has no audience without
// live connections, so room broadcasts are dropped, which matches the no-buffering rule
// for typing indicators.
type PollRouter struct {
	buffer *FallbackBuffer
	log    zerolog.Logger
}

// NewPollRouter builds a router that enqueues into buffer.
func NewPollRouter(buffer *FallbackBuffer, log zerolog.Logger) *PollRouter {
	return &PollRouter{buffer: buffer, log: log}
}

// EmitToUser implements Router. It always accepts.
func (r *PollRouter) EmitToUser(user UserID, name string, payload any) bool {
	r.buffer.Add(user, name, payload)
	EventsTotal.WithLabelValues(name, outcomeQueued).Inc()
	return true
}

// EmitToChat implements Router.
func (r *PollRouter) EmitToChat(chat ChatID, name string, payload any, opts ...EmitOption) int {
	o := collectOptions(opts)
	if len(o.participants) == 0 {
		r.log.Debug().Uint("chat_id", uint(chat)).Str("event", name).Msg("room broadcast skipped in poll mode")
		return 0
	}

	queued := 0
	for _, user := range o.participants {
		if o.hasExclude && user == o.excludeUser {
			continue
		}
		if r.EmitToUser(user, name, payload) {
			queued++
		}
	}
	return queued
}
