package realtime

import (
	"github.com/rs/zerolog"
)

// StatusChange is the payload of EventUserStatusChanged.
type StatusChange struct {
	UserID UserID `json:"user_id"`
	Status Status `json:"status"`
}

// PresenceNotifier fans a user's presence out to every other connected session.
type PresenceNotifier struct {
	sessions *SessionRegistry
	log      zerolog.Logger
}

// NewPresenceNotifier builds a notifier over the given registry.
func NewPresenceNotifier(sessions *SessionRegistry, log zerolog.Logger) *PresenceNotifier {
	return &PresenceNotifier{sessions: sessions, log: log}
}

// BroadcastStatus sends a status change for user to every other registered connection
// and returns how many accepted it. A failing recipient is logged and skipped.
func (p *PresenceNotifier) BroadcastStatus(user UserID, status Status) int {
	ev := Event{Name: EventUserStatusChanged, Data: StatusChange{UserID: user, Status: status}}

	delivered := 0
	for _, peer := range p.sessions.snapshot(user) {
		if err := peer.conn.Send(ev); err != nil {
			EventsTotal.WithLabelValues(ev.Name, outcomeFailed).Inc()
			p.log.Warn().Err(err).
				Uint("user_id", uint(peer.user)).
				Str("conn_id", string(peer.conn.ID())).
				Msg("presence fan-out failed for recipient")
			continue
		}
		EventsTotal.WithLabelValues(ev.Name, outcomeDelivered).Inc()
		delivered++
	}

	p.log.Debug().
		Uint("user_id", uint(user)).
		Str("status", string(status)).
		Int("recipients", delivered).
		Msg("presence broadcast")
	return delivered
}
