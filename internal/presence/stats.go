package presence

import (
	"time"

	"presence-backend/internal/model"
)

// Aggregator derives read-only statistics from the registry and directory.
// Nothing is cached: every call recomputes from current state, which is
// O(connections + rooms) and fine at this scale.
type Aggregator struct {
	registry  *Registry
	directory *Directory
	now       func() time.Time
}

func NewAggregator(registry *Registry, directory *Directory) *Aggregator {
	return &Aggregator{
		registry:  registry,
		directory: directory,
		now:       time.Now,
	}
}

// Stats reports system-wide counts. totalUsers is the lifetime count of
// distinct identities seen by this process, see Registry.LifetimeUsers.
func (a *Aggregator) Stats() model.SystemStats {
	return model.SystemStats{
		TotalUsers:     a.registry.LifetimeUsers(),
		OnlineUsers:    a.registry.OnlineUsers(),
		ActiveRooms:    a.directory.ActiveRooms(),
		ActiveSessions: a.registry.ActiveSessions(),
		Timestamp:      a.now().Unix(),
	}
}

// Online lists the distinct identities currently connected.
func (a *Aggregator) Online() model.OnlineUsers {
	users := a.registry.OnlinePresence()
	return model.OnlineUsers{Count: len(users), Users: users}
}
