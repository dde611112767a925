package presence

import (
	"sort"
	"sync"
)

// RoomView is the directory's own view of a room: just the member ids. The
// enriched PresenceSnapshot is built from a view plus registry state, see
// Snapshot.
type RoomView struct {
	RoomID  string
	Members []string
}

// Directory maps room ids to membership sets. Rooms are created lazily on
// first join and deleted as soon as the last member leaves, so a room that
// exists always has at least one member.
//
// A single directory-wide mutex guards all mutations. That keeps a room
// switch (leave old, join new) one critical section with no lock ordering
// concerns; at presence-system scale the contention is irrelevant.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]map[string]struct{})}
}

func (d *Directory) Join(roomID, userID string) RoomView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.join(roomID, userID)
}

// Leave removes the user and reports the updated view. The second return is
// false when the room does not exist; leaving a room the user never joined is
// idempotent, not an error.
func (d *Directory) Leave(roomID, userID string) (RoomView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leave(roomID, userID)
}

// Move switches a user between rooms in one critical section, so no reader
// ever observes the user in both rooms or in neither. An empty from means a
// plain join; left is nil when there was nothing to leave.
func (d *Directory) Move(from, to, userID string) (left *RoomView, joined RoomView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if from != "" && from != to {
		if view, ok := d.leave(from, userID); ok {
			left = &view
		}
	}
	return left, d.join(to, userID)
}

func (d *Directory) join(roomID, userID string) RoomView {
	members, ok := d.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		d.rooms[roomID] = members
	}
	members[userID] = struct{}{}
	return d.view(roomID, members)
}

func (d *Directory) leave(roomID, userID string) (RoomView, bool) {
	members, ok := d.rooms[roomID]
	if !ok {
		return RoomView{}, false
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(d.rooms, roomID)
		return RoomView{RoomID: roomID, Members: []string{}}, true
	}
	return d.view(roomID, members), true
}

func (d *Directory) view(roomID string, members map[string]struct{}) RoomView {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return RoomView{RoomID: roomID, Members: ids}
}

// Members is a pure read; a nonexistent room yields an empty slice.
func (d *Directory) Members(roomID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.rooms[roomID]
	if !ok {
		return []string{}
	}
	return d.view(roomID, members).Members
}

func (d *Directory) ActiveRooms() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func (d *Directory) RoomIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.rooms))
	for id := range d.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
