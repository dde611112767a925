package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"presence-backend/internal/model"
	"presence-backend/internal/presence"
)

type published struct {
	topic string
	msg   *model.WireMessage
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(topic string, msg *model.WireMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, msg: msg})
}

func (p *fakePublisher) onTopic(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePublisher) last(topic string) *model.WireMessage {
	msgs := p.onTopic(topic)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1].msg
}

type memStore struct {
	mu   sync.Mutex
	recs []model.PresenceRecord
}

func (s *memStore) SavePresence(ctx context.Context, rec model.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memStore) lastFor(userID string) (model.PresenceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.recs) - 1; i >= 0; i-- {
		if s.recs[i].UserID == userID {
			return s.recs[i], true
		}
	}
	return model.PresenceRecord{}, false
}

type fixture struct {
	registry  *presence.Registry
	directory *presence.Directory
	publisher *fakePublisher
	store     *memStore
	manager   *Manager
}

func newFixture(interval time.Duration) *fixture {
	registry := presence.NewRegistry()
	directory := presence.NewDirectory()
	publisher := &fakePublisher{}
	st := &memStore{}
	manager := NewManager(registry, directory, presence.NewAggregator(registry, directory), publisher, st, interval)
	return &fixture{
		registry:  registry,
		directory: directory,
		publisher: publisher,
		store:     st,
		manager:   manager,
	}
}

func join(t *testing.T, f *fixture, connID, userID, username, roomID string) {
	t.Helper()
	err := f.manager.HandleMessage(connID, model.DestJoin, &model.WireMessage{
		Type:     model.MessageJoin,
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
	})
	if err != nil {
		t.Fatalf("join %s -> %s: %v", userID, roomID, err)
	}
}

func snapshotData(t *testing.T, msg *model.WireMessage) model.PresenceSnapshot {
	t.Helper()
	if msg == nil {
		t.Fatal("no message published")
	}
	snap, ok := msg.Data.(model.PresenceSnapshot)
	if !ok {
		t.Fatalf("message data is %T, want PresenceSnapshot", msg.Data)
	}
	return snap
}

func TestJoinBroadcastsRoomPresence(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("c1", nil)
	join(t, f, "c1", "alice", "Alice", "ops")

	msg := f.publisher.last(model.RoomTopic("ops"))
	if msg == nil {
		t.Fatal("no broadcast on room topic")
	}
	if msg.Type != model.MessageRoomPresence {
		t.Fatalf("broadcast type = %s", msg.Type)
	}
	snap := snapshotData(t, msg)
	if snap.UserCount != 1 || snap.Users[0].UserID != "alice" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if msg.Content == "" {
		t.Fatal("broadcast should carry a human-readable line")
	}
}

func TestTwoUsersJoinAndLeave(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("a", nil)
	f.manager.Connect("b", nil)
	join(t, f, "a", "alice", "Alice", "ops")
	join(t, f, "b", "bob", "Bob", "ops")

	snap := snapshotData(t, f.publisher.last(model.RoomTopic("ops")))
	if snap.UserCount != 2 {
		t.Fatalf("user count = %d, want 2", snap.UserCount)
	}

	err := f.manager.HandleMessage("a", model.DestLeave, &model.WireMessage{
		Type: model.MessageLeave, UserID: "alice", Username: "Alice",
	})
	if err != nil {
		t.Fatalf("leave: %v", err)
	}

	snap = snapshotData(t, f.publisher.last(model.RoomTopic("ops")))
	if snap.UserCount != 1 || snap.Users[0].UserID != "bob" {
		t.Fatalf("snapshot after leave = %+v", snap)
	}
}

func TestJoinSwitchesRoomImplicitly(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("c1", nil)
	join(t, f, "c1", "alice", "Alice", "ops")
	join(t, f, "c1", "alice", "Alice", "eng")

	if members := f.directory.Members("ops"); len(members) != 0 {
		t.Fatalf("ops still lists %v after switch", members)
	}
	if members := f.directory.Members("eng"); len(members) != 1 || members[0] != "alice" {
		t.Fatalf("eng members = %v", members)
	}

	// The vacated room got a broadcast too.
	opsMsgs := f.publisher.onTopic(model.RoomTopic("ops"))
	if len(opsMsgs) < 2 {
		t.Fatalf("expected leave broadcast on ops, got %d messages", len(opsMsgs))
	}
	snap := snapshotData(t, opsMsgs[len(opsMsgs)-1].msg)
	if snap.UserCount != 0 {
		t.Fatalf("ops snapshot after switch = %+v", snap)
	}
}

func TestLeaveWithoutJoinIsNoop(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("c1", nil)

	err := f.manager.HandleMessage("c1", model.DestLeave, &model.WireMessage{
		Type: model.MessageLeave, UserID: "alice",
	})
	if err != nil {
		t.Fatalf("leave without join should not error, got %v", err)
	}
	if len(f.publisher.msgs) != 0 {
		t.Fatalf("leave without join published %d messages", len(f.publisher.msgs))
	}
}

func TestPingWithoutJoin(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("c1", nil)

	err := f.manager.HandleMessage("c1", model.DestPing, &model.WireMessage{
		Type: model.MessagePing, UserID: "alice",
	})
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if f.directory.ActiveRooms() != 0 {
		t.Fatal("ping must not create room membership")
	}
	if len(f.publisher.msgs) != 0 {
		t.Fatal("ping must not broadcast")
	}
}

func TestMissingUserIDRejected(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("c1", nil)

	err := f.manager.HandleMessage("c1", model.DestJoin, &model.WireMessage{
		Type: model.MessageJoin, RoomID: "ops",
	})
	var serr *Error
	if !errors.As(err, &serr) || serr.Code != ErrorCodeProtocol {
		t.Fatalf("expected protocol error, got %v", err)
	}

	reply := f.publisher.last(model.UserQueue("c1", model.QueueSystemStats))
	if reply == nil || reply.Type != model.MessageSystem || reply.Content == "" {
		t.Fatalf("expected SYSTEM error reply, got %+v", reply)
	}

	// The fault is not fatal: the connection keeps working.
	join(t, f, "c1", "alice", "Alice", "ops")
}

func TestDisconnectRemovesFromRoom(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("a", nil)
	f.manager.Connect("b", nil)
	join(t, f, "a", "alice", "Alice", "mission-control")
	join(t, f, "b", "bob", "Bob", "mission-control")

	f.manager.Disconnect("a", "transport closed")

	snap := snapshotData(t, f.publisher.last(model.RoomTopic("mission-control")))
	if snap.UserCount != 1 {
		t.Fatalf("user count = %d, want 1 after disconnect", snap.UserCount)
	}
	if snap.Users[0].UserID != "bob" {
		t.Fatalf("remaining user = %+v", snap.Users[0])
	}

	// Stale frames from the closed connection are dropped.
	err := f.manager.HandleMessage("a", model.DestJoin, &model.WireMessage{
		Type: model.MessageJoin, RoomID: "ops", UserID: "alice",
	})
	var serr *Error
	if !errors.As(err, &serr) || serr.Code != ErrorCodeUnknownConnection {
		t.Fatalf("expected unknown connection error, got %v", err)
	}
	if f.directory.ActiveRooms() != 1 {
		t.Fatalf("stale join mutated the directory, rooms = %d", f.directory.ActiveRooms())
	}
}

func TestHeartbeatTimeoutMatchesExplicitLeave(t *testing.T) {
	f := newFixture(40 * time.Millisecond)
	closed := false
	f.manager.Connect("c1", func() { closed = true })
	join(t, f, "c1", "alice", "Alice", "ops")

	time.Sleep(80 * time.Millisecond)
	f.manager.sweep()

	if !closed {
		t.Fatal("transport closer not invoked on timeout")
	}
	if f.directory.ActiveRooms() != 0 {
		t.Fatal("room membership survived heartbeat timeout")
	}
	if f.registry.ActiveSessions() != 0 {
		t.Fatal("registry entry survived heartbeat timeout")
	}
	snap := snapshotData(t, f.publisher.last(model.RoomTopic("ops")))
	if snap.UserCount != 0 {
		t.Fatalf("final broadcast = %+v, want empty room", snap)
	}
}

func TestPingDefersHeartbeatTimeout(t *testing.T) {
	f := newFixture(80 * time.Millisecond)
	f.manager.Connect("c1", nil)
	join(t, f, "c1", "alice", "Alice", "ops")

	time.Sleep(50 * time.Millisecond)
	if err := f.manager.HandleMessage("c1", model.DestPing, &model.WireMessage{
		Type: model.MessagePing, UserID: "alice",
	}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	f.manager.sweep()

	if f.registry.ActiveSessions() != 1 {
		t.Fatal("pinged connection was swept")
	}
}

func TestPresenceRequestReply(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("a", nil)
	f.manager.Connect("b", nil)
	join(t, f, "a", "alice", "Alice", "ops")

	err := f.manager.HandleMessage("b", model.DestRoomPresence, &model.WireMessage{
		Type: model.MessageRoomPresence, RoomID: "ops", UserID: "bob",
	})
	if err != nil {
		t.Fatalf("presence request: %v", err)
	}

	reply := f.publisher.last(model.UserQueue("b", model.QueueRoomPresence))
	snap := snapshotData(t, reply)
	if snap.RoomID != "ops" || snap.UserCount != 1 {
		t.Fatalf("reply snapshot = %+v", snap)
	}
}

func TestStatsRequestReply(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("c1", nil)
	join(t, f, "c1", "alice", "Alice", "ops")

	err := f.manager.HandleMessage("c1", model.DestSystemStats, &model.WireMessage{
		Type: model.MessageSystem, UserID: "alice",
	})
	if err != nil {
		t.Fatalf("stats request: %v", err)
	}

	reply := f.publisher.last(model.UserQueue("c1", model.QueueSystemStats))
	if reply == nil {
		t.Fatal("no stats reply")
	}
	stats, ok := reply.Data.(model.SystemStats)
	if !ok {
		t.Fatalf("reply data is %T", reply.Data)
	}
	if stats.OnlineUsers != 1 || stats.ActiveRooms != 1 || stats.ActiveSessions != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestOnlineUsersRequestReply(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("c1", nil)
	join(t, f, "c1", "alice", "Alice", "ops")

	err := f.manager.HandleMessage("c1", model.DestOnlineUsers, &model.WireMessage{
		Type: model.MessageOnlineUsers, UserID: "alice",
	})
	if err != nil {
		t.Fatalf("online users request: %v", err)
	}

	reply := f.publisher.last(model.UserQueue("c1", model.QueueOnlineUsers))
	if reply == nil {
		t.Fatal("no online users reply")
	}
	online, ok := reply.Data.(model.OnlineUsers)
	if !ok {
		t.Fatalf("reply data is %T", reply.Data)
	}
	if online.Count != 1 || online.Users[0].UserID != "alice" {
		t.Fatalf("online = %+v", online)
	}
}

func TestPresencePersistedOnJoinAndDisconnect(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("c1", nil)
	join(t, f, "c1", "alice", "Alice", "ops")

	rec, ok := f.store.lastFor("alice")
	if !ok {
		t.Fatal("no record persisted on join")
	}
	if !rec.Online || rec.RoomID != "ops" {
		t.Fatalf("record after join = %+v", rec)
	}

	f.manager.Disconnect("c1", "transport closed")

	rec, ok = f.store.lastFor("alice")
	if !ok {
		t.Fatal("no record persisted on disconnect")
	}
	if rec.Online || rec.RoomID != "" {
		t.Fatalf("record after disconnect = %+v", rec)
	}
	if rec.LastSeen == "" {
		t.Fatal("lastSeen not recorded")
	}
}

func TestUnknownDestinationRejected(t *testing.T) {
	f := newFixture(time.Minute)
	f.manager.Connect("c1", nil)

	err := f.manager.HandleMessage("c1", "/app/frobnicate", &model.WireMessage{
		Type: model.MessagePing, UserID: "alice",
	})
	var serr *Error
	if !errors.As(err, &serr) || serr.Code != ErrorCodeProtocol {
		t.Fatalf("expected protocol error, got %v", err)
	}
}
