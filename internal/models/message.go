package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryState tracks where a message is in its lifecycle. A message is
// created as Immediate or PendingDelivery and transitions at most once, to
// Delivered. Messages are never deleted.
type DeliveryState string

const (
	StateImmediate DeliveryState = "immediate"
	StatePending   DeliveryState = "pending"
	StateDelivered DeliveryState = "delivered"
)

// DefaultSubChannel exists in every room.
const DefaultSubChannel = "default"

// Message is the central entity. ID is assigned exactly once, at creation,
// and survives the pending -> delivered transition unchanged. OriginID is
// the back-reference from a delivered scheduled message to the pending
// placeholder it fulfills; the server mutates in place, so it equals ID.
type Message struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID      string        `gorm:"not null;index:idx_room_channel" json:"roomId"`
	SubChannel  string        `gorm:"not null;index:idx_room_channel" json:"subChannel"`
	Author      string        `gorm:"not null" json:"author"`
	Body        string        `gorm:"not null" json:"body"`
	CreatedAt   time.Time     `json:"createdAt"`
	DeliverAt   *time.Time    `json:"deliverAt,omitempty"`
	DeliveredAt *time.Time    `gorm:"index" json:"deliveredAt,omitempty"`
	State       DeliveryState `gorm:"not null" json:"state"`
	OriginID    uuid.UUID     `gorm:"type:uuid" json:"originId,omitempty"`
}

// EffectiveTime is the instant a message actually landed in the room:
// DeliveredAt when set, CreatedAt otherwise. Display ordering sorts by it.
func (m *Message) EffectiveTime() time.Time {
	if m.DeliveredAt != nil {
		return *m.DeliveredAt
	}
	return m.CreatedAt
}

// IsFinal reports whether the message has reached the whole room, as opposed
// to being a pending placeholder visible only to its author.
func (m *Message) IsFinal() bool {
	return m.State == StateImmediate || m.State == StateDelivered
}
