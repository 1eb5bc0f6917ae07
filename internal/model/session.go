package model

import "time"

// CollabSession identifies one live collaborator connection inside a
// seating room.  Sessions are ephemeral: they exist only while the
// underlying transport connection is open and are never persisted.
//
// Fields:
//  ConnectionID – unique id of the transport connection.
//  UserID       – authenticated user behind the connection.
//  EventID      – event (room) the session is joined to.
//  JoinedAt     – when the session was admitted.
type CollabSession struct {
    ConnectionID string    `json:"connection_id"`
    UserID       uint64    `json:"user_id"`
    EventID      uint64    `json:"event_id"`
    JoinedAt     time.Time `json:"joined_at"`
}
