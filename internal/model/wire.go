package model

import "strings"

type MessageType string

const (
	MessageJoin         MessageType = "JOIN"
	MessageLeave        MessageType = "LEAVE"
	MessagePing         MessageType = "PING"
	MessageSystem       MessageType = "SYSTEM"
	MessageRoomPresence MessageType = "ROOM_PRESENCE"
	MessageOnlineUsers  MessageType = "ONLINE_USERS"
)

// WireMessage is the JSON envelope exchanged with clients in both directions.
// Every inbound message must carry a userId; frames without one are rejected.
type WireMessage struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"roomId,omitempty"`
	UserID    string      `json:"userId,omitempty"`
	Username  string      `json:"username,omitempty"`
	Content   string      `json:"content,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

type PresenceUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// PresenceSnapshot is recomputed from registry and directory state on every
// read; it is never cached.
type PresenceSnapshot struct {
	RoomID    string         `json:"roomId"`
	UserCount int            `json:"userCount"`
	Users     []PresenceUser `json:"users"`
}

type OnlineUsers struct {
	Count int            `json:"count"`
	Users []PresenceUser `json:"users"`
}

type SystemStats struct {
	TotalUsers     int   `json:"totalUsers"`
	OnlineUsers    int   `json:"onlineUsers"`
	ActiveRooms    int   `json:"activeRooms"`
	ActiveSessions int   `json:"activeSessions"`
	Timestamp      int64 `json:"timestamp"`
}

// Client SEND destinations.
const (
	DestJoin         = "/app/join"
	DestLeave        = "/app/leave"
	DestPing         = "/app/ping"
	DestRoomPresence = "/app/room/presence"
	DestOnlineUsers  = "/app/users/online"
	DestSystemStats  = "/app/system/stats"
)

// Per-connection reply queues as the client subscribes to them. The transport
// rewrites these to connection-scoped topics, see UserQueue.
const (
	QueueRoomPresence = "/user/queue/room-presence"
	QueueOnlineUsers  = "/user/queue/online-users"
	QueueSystemStats  = "/user/queue/system-stats"
)

const (
	roomTopicPrefix = "/topic/room/"
	userTopicPrefix = "/user/"
)

func RoomTopic(roomID string) string {
	return roomTopicPrefix + roomID
}

// RoomFromTopic returns the room id for a room broadcast topic, or "" if the
// topic is not room-scoped.
func RoomFromTopic(topic string) string {
	if !strings.HasPrefix(topic, roomTopicPrefix) {
		return ""
	}
	return strings.TrimPrefix(topic, roomTopicPrefix)
}

// UserQueue maps a client-facing /user/queue/... destination to the
// connection-scoped topic the bus actually routes on.
func UserQueue(connID, queue string) string {
	return userTopicPrefix + connID + strings.TrimPrefix(queue, "/user")
}
