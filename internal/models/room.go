package models

// Channel registers a sub-channel name under a room. Only used by the
// durable store; the in-memory store keeps sub-channels inline.
type Channel struct {
	ID     uint   `gorm:"primaryKey" json:"-"`
	RoomID string `gorm:"not null;uniqueIndex:idx_room_name" json:"roomId"`
	Name   string `gorm:"not null;uniqueIndex:idx_room_name" json:"name"`
}
