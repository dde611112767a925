package stomp

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_ws_connections",
			Help: "Current number of active websocket connections.",
		},
	)
	wsMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_ws_messages_delivered_total",
			Help: "Total MESSAGE frames queued for delivery to clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsMessagesDelivered)
}

func incConnections() {
	wsConnections.Inc()
}

func decConnections() {
	wsConnections.Dec()
}

func incDelivered() {
	wsMessagesDelivered.Inc()
}
