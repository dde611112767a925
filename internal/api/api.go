package api

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"presence-backend/internal/presence"
	"presence-backend/internal/stomp"
)

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

// APIServer is the process's HTTP surface: the websocket upgrade endpoint,
// Prometheus metrics, health, and the read-only presence endpoints added by
// registrars.
type APIServer struct {
	listenAddr      string
	ws              *stomp.Handler
	stats           *presence.Aggregator
	directory       *presence.Directory
	routeRegistrars []RouteRegistrar
	metrics         *metrics
}

func NewAPIServer(
	listenAddr string,
	ws *stomp.Handler,
	stats *presence.Aggregator,
	directory *presence.Directory,
	registrars ...RouteRegistrar,
) *APIServer {
	return &APIServer{
		listenAddr:      listenAddr,
		ws:              ws,
		stats:           stats,
		directory:       directory,
		routeRegistrars: registrars,
		metrics:         newMetrics(prometheus.DefaultRegisterer, listenAddr),
	}
}

func (s *APIServer) Run() {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.HandleFunc("/ws", s.ws.ServeWS)
	mux.Handle("/metrics", s.metrics.metricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	fmt.Printf("Server listening on http://localhost%s\n", s.listenAddr)

	if err := http.ListenAndServe(s.listenAddr, s.metrics.instrument(mux)); err != nil {
		fmt.Printf("server stopped: %v\n", err)
	}
}

func (s *APIServer) Stats() *presence.Aggregator {
	return s.stats
}

func (s *APIServer) Directory() *presence.Directory {
	return s.directory
}
