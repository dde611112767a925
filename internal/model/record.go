package model

const PresenceTable = "Presence"

// PresenceRecord is the last-seen state persisted per user. Only the current
// state is stored; the table is keyed by userId and overwritten in place.
type PresenceRecord struct {
	UserID   string `dynamodbav:"userId"`
	Username string `dynamodbav:"username"`
	RoomID   string `dynamodbav:"roomId,omitempty"`
	LastSeen string `dynamodbav:"lastSeen"`
	Online   bool   `dynamodbav:"online"`
}
