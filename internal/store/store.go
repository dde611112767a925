package store

import (
	"context"

	"presence-backend/internal/model"
)

// PresenceStore persists the last-seen state per user. Implementations only
// keep current state; there is no history.
type PresenceStore interface {
	SavePresence(ctx context.Context, rec model.PresenceRecord) error
}
