package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes recorded on EventsTotal.
const (
	outcomeDelivered = "delivered"
	outcomeOffline   = "offline"
	outcomeFailed    = "failed"
	outcomeQueued    = "queued"
)

var (
	// ConnectedUsers is the number of users with a connection of record.
	ConnectedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "realtime",
		Name:      "connected_users",
		Help:      "Users currently holding a registered realtime connection",
	})

	// EventsTotal counts routed events by name and outcome.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "realtime",
		Name:      "events_total",
		Help:      "Events routed to recipients, by event name and outcome",
	}, []string{"event", "outcome"})

	// PollRejectionsTotal counts polls rejected by the per-user rate limit.
	PollRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "realtime",
		Name:      "poll_rejections_total",
		Help:      "Poll requests rejected because they arrived too soon",
	})

	// BufferEvictionsTotal counts pending events dropped by the size cap or retention.
	BufferEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "realtime",
		Name:      "buffer_evictions_total",
		Help:      "Pending poll-mode events discarded, by reason",
	}, []string{"reason"})
)
