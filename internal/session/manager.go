package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"presence-backend/internal/bus"
	"presence-backend/internal/model"
	"presence-backend/internal/presence"
	"presence-backend/internal/store"
)

const storeTimeout = 5 * time.Second

// Manager drives the per-connection lifecycle: CONNECTED, JOINED, and the
// terminal CLOSED state reached on disconnect or heartbeat timeout. All state
// lives in the registry and directory; the manager sequences mutations and
// stages broadcasts so nothing is published while a state lock is held.
type Manager struct {
	registry  *presence.Registry
	directory *presence.Directory
	stats     *presence.Aggregator
	publisher bus.Publisher
	store     store.PresenceStore
	interval  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	closers map[string]func()
}

// NewManager wires the lifecycle manager. store may be nil, in which case
// last-seen persistence is skipped.
func NewManager(
	registry *presence.Registry,
	directory *presence.Directory,
	stats *presence.Aggregator,
	publisher bus.Publisher,
	ps store.PresenceStore,
	interval time.Duration,
) *Manager {
	return &Manager{
		registry:  registry,
		directory: directory,
		stats:     stats,
		publisher: publisher,
		store:     ps,
		interval:  interval,
		now:       time.Now,
		closers:   make(map[string]func()),
	}
}

// Connect registers a fresh transport connection. closer is invoked when the
// manager decides the connection must go away (heartbeat timeout); it may be
// nil in tests.
func (m *Manager) Connect(connID string, closer func()) {
	m.registry.Register(connID)
	m.mu.Lock()
	m.closers[connID] = closer
	m.mu.Unlock()
	log.Printf("session: connection %s established", connID)
}

// Disconnect moves the connection to its terminal state: the registry entry
// is purged, room membership is reversed and broadcast, and the transport is
// closed. Safe to call more than once and safe to race with in-flight frames;
// once the registry entry is gone, stale frames are rejected.
func (m *Manager) Disconnect(connID, reason string) {
	m.mu.Lock()
	closer := m.closers[connID]
	delete(m.closers, connID)
	m.mu.Unlock()

	last, ok := m.registry.Unregister(connID)
	if ok {
		if last.RoomID != "" && last.UserID != "" {
			if view, left := m.directory.Leave(last.RoomID, last.UserID); left {
				m.broadcastRoom(view, fmt.Sprintf("%s left %s", displayName(last.Username, last.UserID), last.RoomID))
			}
		}
		if last.UserID != "" {
			m.persist(last, "")
		}
		log.Printf("session: connection %s closed (%s)", connID, reason)
	}

	if closer != nil {
		closer()
	}
}

// HandleMessage dispatches one inbound frame. The returned error is for
// transport-side logging; protocol errors have already been answered with a
// SYSTEM reply and do not close the connection.
func (m *Manager) HandleMessage(connID, destination string, msg *model.WireMessage) error {
	conn, ok := m.registry.Get(connID)
	if !ok {
		return newError(ErrorCodeUnknownConnection, "connection is closed", nil)
	}
	m.registry.Touch(connID)

	if msg == nil || msg.UserID == "" {
		return m.reject(connID, "message missing userId")
	}
	m.registry.Identify(connID, msg.UserID, msg.Username)

	switch destination {
	case model.DestJoin:
		return m.handleJoin(connID, conn.RoomID, msg)
	case model.DestLeave:
		m.handleLeave(connID, msg)
		return nil
	case model.DestPing:
		// Touch above already refreshed lastSeen; nothing to broadcast.
		return nil
	case model.DestRoomPresence:
		return m.handleRoomPresence(connID, msg)
	case model.DestOnlineUsers:
		m.reply(connID, model.QueueOnlineUsers, &model.WireMessage{
			Type:      model.MessageOnlineUsers,
			Data:      m.stats.Online(),
			Timestamp: m.now().Unix(),
		})
		return nil
	case model.DestSystemStats:
		m.reply(connID, model.QueueSystemStats, &model.WireMessage{
			Type:      model.MessageSystem,
			Data:      m.stats.Stats(),
			Timestamp: m.now().Unix(),
		})
		return nil
	default:
		return m.reject(connID, "unknown destination "+destination)
	}
}

// handleJoin performs the join, switching rooms implicitly when the
// connection is already joined elsewhere. The old and new room views are
// captured in one directory critical section and broadcast afterwards.
func (m *Manager) handleJoin(connID, prevRoom string, msg *model.WireMessage) error {
	if msg.RoomID == "" {
		return m.reject(connID, "join requires roomId")
	}

	left, joined := m.directory.Move(prevRoom, msg.RoomID, msg.UserID)
	m.registry.SetRoom(connID, msg.RoomID)

	// Cleanup may have raced us; CLOSED is terminal and wins over a stale
	// join, so undo the membership we just created.
	conn, ok := m.registry.Get(connID)
	if !ok {
		m.directory.Leave(msg.RoomID, msg.UserID)
		return newError(ErrorCodeUnknownConnection, "connection closed during join", nil)
	}
	m.persist(presence.Connection{
		UserID:   msg.UserID,
		Username: conn.Username,
		LastSeen: conn.LastSeen,
		Online:   true,
	}, msg.RoomID)

	name := displayName(msg.Username, msg.UserID)
	if left != nil {
		m.broadcastRoom(*left, fmt.Sprintf("%s left %s", name, left.RoomID))
	}
	m.broadcastRoom(joined, fmt.Sprintf("%s joined %s", name, joined.RoomID))
	sessionJoins.Inc()
	return nil
}

// handleLeave is a no-op when the connection is not in a room.
func (m *Manager) handleLeave(connID string, msg *model.WireMessage) {
	conn, ok := m.registry.Get(connID)
	if !ok || conn.RoomID == "" {
		return
	}
	m.registry.SetRoom(connID, "")

	view, left := m.directory.Leave(conn.RoomID, msg.UserID)
	if left {
		m.broadcastRoom(view, fmt.Sprintf("%s left %s", displayName(msg.Username, msg.UserID), conn.RoomID))
	}
	m.persist(presence.Connection{
		UserID:   msg.UserID,
		Username: conn.Username,
		LastSeen: conn.LastSeen,
		Online:   true,
	}, "")
	sessionLeaves.Inc()
}

func (m *Manager) handleRoomPresence(connID string, msg *model.WireMessage) error {
	if msg.RoomID == "" {
		return m.reject(connID, "presence request requires roomId")
	}
	m.reply(connID, model.QueueRoomPresence, &model.WireMessage{
		Type:      model.MessageRoomPresence,
		RoomID:    msg.RoomID,
		Data:      presence.Snapshot(m.registry, m.directory, msg.RoomID),
		Timestamp: m.now().Unix(),
	})
	return nil
}

// Run sweeps for silent connections until ctx is cancelled. A connection with
// no inbound frame for a full heartbeat interval is forced through the same
// path as an explicit leave plus disconnect.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	for _, connID := range m.registry.Expired(m.interval) {
		log.Printf("session: connection %s missed heartbeat, closing", connID)
		sessionExpired.Inc()
		m.Disconnect(connID, "heartbeat timeout")
	}
}

// broadcastRoom publishes the room's updated presence to its topic. The view
// was captured inside the directory critical section; the snapshot enrichment
// and publish happen outside any lock.
func (m *Manager) broadcastRoom(view presence.RoomView, content string) {
	snap := presence.SnapshotOf(m.registry, view)
	m.publisher.Publish(model.RoomTopic(view.RoomID), &model.WireMessage{
		Type:      model.MessageRoomPresence,
		RoomID:    view.RoomID,
		Content:   content,
		Data:      snap,
		Timestamp: m.now().Unix(),
	})
}

func (m *Manager) reply(connID, queue string, msg *model.WireMessage) {
	m.publisher.Publish(model.UserQueue(connID, queue), msg)
}

// reject answers a malformed frame with a SYSTEM error on the system queue
// and keeps the connection open.
func (m *Manager) reject(connID, problem string) error {
	sessionRejected.Inc()
	m.reply(connID, model.QueueSystemStats, &model.WireMessage{
		Type:      model.MessageSystem,
		Content:   problem,
		Timestamp: m.now().Unix(),
	})
	return newError(ErrorCodeProtocol, problem, nil)
}

func (m *Manager) persist(conn presence.Connection, roomID string) {
	if m.store == nil || conn.UserID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	rec := model.PresenceRecord{
		UserID:   conn.UserID,
		Username: conn.Username,
		RoomID:   roomID,
		LastSeen: conn.LastSeen.UTC().Format(time.RFC3339),
		Online:   conn.Online,
	}
	if err := m.store.SavePresence(ctx, rec); err != nil {
		log.Printf("session: persist presence for %s: %v", conn.UserID, err)
	}
}

func displayName(username, userID string) string {
	if username != "" {
		return username
	}
	return userID
}
