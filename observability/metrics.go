package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_live_connections",
			Help: "Live transport connections",
		},
	)

	ConnectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_connection_events_total",
			Help: "Connection registrations and removals",
		},
		[]string{"type"}, // "connected", "disconnected", "rejected"
	)

	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_presence_transitions_total",
			Help: "Presence status changes",
		},
		[]string{"status"},
	)

	// Routing metrics
	MessagesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_messages_submitted_total",
			Help: "Messages accepted by the router",
		},
		[]string{"kind"}, // "session" or "room"
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_messages_rejected_total",
			Help: "Messages refused by router validation",
		},
		[]string{"code"},
	)

	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_pushes_total",
			Help: "Per-connection push attempts",
		},
		[]string{"outcome"}, // "delivered", "failed", "dropped"
	)

	PushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "support_chat_push_duration_seconds",
			Help:    "Time spent writing a message to a transport",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	Replays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_replays_total",
			Help: "Replay requests served",
		},
	)

	RetainedMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_retained_messages",
			Help: "Messages held for replay across all conversations",
		},
	)

	EvictedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_evicted_messages_total",
			Help: "Messages dropped by the retention sweep",
		},
	)

	// Session metrics
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_session_transitions_total",
			Help: "Session state changes",
		},
		[]string{"state"},
	)

	WaitingSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_waiting_sessions",
			Help: "Sessions queued for an agent",
		},
	)

	AvailableAgents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_agents_in_pool",
			Help: "Agents currently in the assignment pool",
		},
	)

	// Persistence metrics
	PersistDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_persist_dropped_total",
			Help: "Messages not handed to history because the buffer was full",
		},
	)

	// Infrastructure metrics
	ProcessRSS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_process_rss_bytes",
			Help: "Resident memory of the server process",
		},
	)

	ProcessCPU = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_process_cpu_percent",
			Help: "CPU usage of the server process",
		},
	)
)
