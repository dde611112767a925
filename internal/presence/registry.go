package presence

import (
	"sync"
	"time"

	"presence-backend/internal/model"
)

// Connection is the registry's record of one live transport session. The
// claimed identity is client-supplied and not verified; several connections
// may claim the same userId.
type Connection struct {
	ID       string
	UserID   string
	Username string
	RoomID   string
	LastSeen time.Time
	Online   bool
}

// Registry owns all connection state. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	// seen maps every userId this process has ever observed to its most
	// recent username. It is append-only and backs the lifetime totalUsers
	// stat.
	seen map[string]string
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		seen:  make(map[string]string),
		now:   time.Now,
	}
}

// Register creates the entry for a fresh transport connection. Registering an
// id that already exists resets it, which only happens if a transport reuses
// ids.
func (r *Registry) Register(connID string) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn := &Connection{
		ID:       connID,
		LastSeen: r.now(),
		Online:   true,
	}
	r.conns[connID] = conn
	return *conn
}

// Identify binds the claimed identity to a connection. It is idempotent;
// re-identifying with a different username updates the display name only.
// Returns false if the connection is unknown (already closed).
func (r *Registry) Identify(connID, userID, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	conn.UserID = userID
	if username != "" {
		conn.Username = username
	}
	r.seen[userID] = conn.Username
	return true
}

// Touch refreshes lastSeen. Called for every inbound frame.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[connID]; ok {
		conn.LastSeen = r.now()
	}
}

func (r *Registry) SetRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[connID]; ok {
		conn.RoomID = roomID
	}
}

// Get returns a copy of the connection state.
func (r *Registry) Get(connID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// Unregister purges the connection and returns its last known state so the
// caller can clean up room membership. Unknown connections are a no-op, since
// disconnect cleanup races with the idle sweep.
func (r *Registry) Unregister(connID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	delete(r.conns, connID)
	last := *conn
	last.Online = false
	return last, true
}

// Username returns the display name last bound to a userId, falling back to
// the id itself for identities only known from room membership.
func (r *Registry) Username(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.seen[userID]; ok && name != "" {
		return name
	}
	return userID
}

func (r *Registry) UserOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.conns {
		if conn.UserID == userID && conn.Online {
			return true
		}
	}
	return false
}

// OnlinePresence lists the distinct identities with at least one live
// connection.
func (r *Registry) OnlinePresence() []model.PresenceUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byUser := make(map[string]struct{})
	users := make([]model.PresenceUser, 0)
	for _, conn := range r.conns {
		if !conn.Online || conn.UserID == "" {
			continue
		}
		if _, dup := byUser[conn.UserID]; dup {
			continue
		}
		byUser[conn.UserID] = struct{}{}
		users = append(users, model.PresenceUser{
			UserID:   conn.UserID,
			Username: conn.Username,
			Online:   true,
		})
	}
	return users
}

func (r *Registry) OnlineUsers() int {
	return len(r.OnlinePresence())
}

// ActiveSessions counts registry entries, identified or not.
func (r *Registry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// LifetimeUsers counts distinct identities ever seen by this process. The
// counter is monotonic; disconnects do not decrement it.
func (r *Registry) LifetimeUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seen)
}

// Expired returns the connections whose lastSeen is older than interval.
func (r *Registry) Expired(interval time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := r.now().Add(-interval)
	var ids []string
	for id, conn := range r.conns {
		if conn.LastSeen.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
