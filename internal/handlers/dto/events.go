package dto

import "github.com/velimir/roomcast/internal/models"

// JoinPayload enters a room/sub-channel session.
type JoinPayload struct {
	RoomID     string `json:"roomId"`
	SubChannel string `json:"subChannel,omitempty"`
	Nickname   string `json:"nickname,omitempty"`
}

// SendMessagePayload is an immediate send.
type SendMessagePayload struct {
	RoomID     string `json:"roomId"`
	SubChannel string `json:"subChannel,omitempty"`
	Text       string `json:"text"`
	Nickname   string `json:"nickname,omitempty"`
}

// ScheduleMessagePayload is a delayed send.
type ScheduleMessagePayload struct {
	RoomID     string `json:"roomId"`
	SubChannel string `json:"subChannel,omitempty"`
	Text       string `json:"text"`
	DelayMs    int64  `json:"delayMs"`
	Nickname   string `json:"nickname,omitempty"`
}

// CreateSubChannelPayload registers a new sub-channel.
type CreateSubChannelPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

// ScheduleAck is the private acknowledgment sent to the scheduling
// connection the moment a schedule request is accepted.
type ScheduleAck struct {
	Message    *models.Message `json:"message"`
	DelayMs    int64           `json:"delayMs"`
	SubChannel string          `json:"subChannel"`
}
