package api

import (
	"encoding/json"
	"net/http"
)

type roomRes struct {
	ID        string `json:"id"`
	UserCount int    `json:"userCount"`
}

// PresenceRoutes registers the read-only REST views over the live presence
// state, for dashboards and debugging alongside the STOMP stream.
func PresenceRoutes(prefix string) RouteRegistrar {
	return func(mux *http.ServeMux, s *APIServer) {
		mux.HandleFunc(prefix+"/rooms", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			rooms := make([]roomRes, 0)
			for _, id := range s.Directory().RoomIDs() {
				rooms = append(rooms, roomRes{
					ID:        id,
					UserCount: len(s.Directory().Members(id)),
				})
			}
			writeJSON(w, rooms)
		})

		mux.HandleFunc(prefix+"/stats", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			writeJSON(w, s.Stats().Stats())
		})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
