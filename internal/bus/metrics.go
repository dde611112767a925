package bus

import "github.com/prometheus/client_golang/prometheus"

var (
	busDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_bus_messages_delivered_total",
			Help: "Total messages delivered to bus subscribers.",
		},
	)
	busEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_bus_subscribers_evicted_total",
			Help: "Subscribers evicted for failing delivery.",
		},
	)
)

func init() {
	prometheus.MustRegister(busDelivered, busEvicted)
}

func addDelivered(count int) {
	busDelivered.Add(float64(count))
}

func incEvicted() {
	busEvicted.Inc()
}
