package websocket

import (
	"encoding/json"
	"time"
)

// EventType names a wire event.
type EventType string

const (
	// Client -> server
	EventJoin             EventType = "join"
	EventSendMessage      EventType = "sendMessage"
	EventScheduleMessage  EventType = "scheduleMessage"
	EventCreateSubChannel EventType = "createSubChannel"

	// Server -> client
	EventHistory              EventType = "history"
	EventSubChannelList       EventType = "subChannelList"
	EventSubChannelCreated    EventType = "subChannelCreated"
	EventMessageDelivered     EventType = "messageDelivered"
	EventScheduleAcknowledged EventType = "scheduleAcknowledged"

	// Keepalive
	EventPing EventType = "ping"
	EventPong EventType = "pong"
)

// Event is the wire envelope for both directions.
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
