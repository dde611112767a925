package session

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionJoins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_session_joins_total",
			Help: "Total room joins handled, room switches included.",
		},
	)
	sessionLeaves = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_session_leaves_total",
			Help: "Total explicit room leaves handled.",
		},
	)
	sessionExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_session_expired_total",
			Help: "Connections closed by the heartbeat sweep.",
		},
	)
	sessionRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_session_frames_rejected_total",
			Help: "Inbound frames rejected as malformed.",
		},
	)
)

func init() {
	prometheus.MustRegister(sessionJoins, sessionLeaves, sessionExpired, sessionRejected)
}
