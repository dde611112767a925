package presence

import "presence-backend/internal/model"

// Snapshot builds the client-facing presence view for a room, resolving
// member ids against the registry for display names and online status. A
// nonexistent room yields an empty snapshot, never an error.
func Snapshot(registry *Registry, directory *Directory, roomID string) model.PresenceSnapshot {
	members := directory.Members(roomID)
	return enrich(registry, roomID, members)
}

// SnapshotOf builds the same view from an already-taken RoomView, for callers
// that captured the view inside a mutation and must not re-read the
// directory.
func SnapshotOf(registry *Registry, view RoomView) model.PresenceSnapshot {
	return enrich(registry, view.RoomID, view.Members)
}

func enrich(registry *Registry, roomID string, members []string) model.PresenceSnapshot {
	users := make([]model.PresenceUser, 0, len(members))
	for _, userID := range members {
		users = append(users, model.PresenceUser{
			UserID:   userID,
			Username: registry.Username(userID),
			Online:   registry.UserOnline(userID),
		})
	}
	return model.PresenceSnapshot{
		RoomID:    roomID,
		UserCount: len(users),
		Users:     users,
	}
}
