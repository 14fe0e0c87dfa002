// Package metrics provides Prometheus metrics for the chat service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts persisted messages by verification tier at send time.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of messages persisted through send",
		},
		[]string{"tier"},
	)

	// SigningFailures counts swallowed signing attempts.
	SigningFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_signing_failures_total",
			Help: "Total number of signing attempts that produced no proof",
		},
	)

	// PersistenceFailures counts send/load/create calls that failed at the store.
	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_persistence_failures_total",
			Help: "Total number of failed store operations",
		},
		[]string{"operation"},
	)

	// ProofsConfirmed counts confirmation outcomes.
	ProofsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_proofs_confirmed_total",
			Help: "Total number of chain proof confirmation results",
		},
		[]string{"result"},
	)

	// FeedEvents counts change events fanned out by the hub.
	FeedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_feed_events_total",
			Help: "Total number of change feed events received",
		},
		[]string{"op"},
	)

	// FeedDrops counts upstream feed disconnects.
	FeedDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_feed_drops_total",
			Help: "Total number of times the upstream change feed ended",
		},
	)

	// ActiveSessions tracks live websocket sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_sessions",
			Help: "Number of currently attached websocket sessions",
		},
	)
)
