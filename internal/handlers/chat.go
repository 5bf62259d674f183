package handlers

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/velimir/roomcast/internal/handlers/dto"
	"github.com/velimir/roomcast/internal/models"
	"github.com/velimir/roomcast/internal/scheduler"
	"github.com/velimir/roomcast/internal/store"
	ws "github.com/velimir/roomcast/internal/websocket"
)

// ChatHandler dispatches inbound session events to the store, the
// scheduler, and the hub. Validation failures drop the event and keep the
// connection alive.
type ChatHandler struct {
	store     store.RoomStore
	scheduler *scheduler.Scheduler
	hub       *ws.Hub
	logger    *zap.Logger
}

func NewChatHandler(st store.RoomStore, sched *scheduler.Scheduler, hub *ws.Hub, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		store:     st,
		scheduler: sched,
		hub:       hub,
		logger:    logger,
	}
}

func (h *ChatHandler) HandleEvent(client *ws.Client, evt *ws.Event) error {
	switch evt.Type {
	case ws.EventJoin:
		return h.handleJoin(client, evt)

	case ws.EventSendMessage:
		return h.handleSend(client, evt)

	case ws.EventScheduleMessage:
		return h.handleSchedule(client, evt)

	case ws.EventCreateSubChannel:
		return h.handleCreateSubChannel(client, evt)

	default:
		h.logger.Debug("unknown event type", zap.String("type", string(evt.Type)))
		return nil
	}
}

// handleJoin moves the connection into the room and replays, in order, the
// delivered history for the active sub-channel and the sub-channel list.
func (h *ChatHandler) handleJoin(client *ws.Client, evt *ws.Event) error {
	var payload dto.JoinPayload
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return err
	}
	if payload.RoomID == "" {
		return ws.ErrInvalidEvent
	}

	subChannel := normalizeSubChannel(payload.SubChannel)
	nickname := payload.Nickname
	if nickname == "" {
		nickname = fmt.Sprintf("User%d", rand.Intn(1000))
	}

	if err := h.store.EnsureRoom(payload.RoomID); err != nil {
		return err
	}
	h.hub.Join(client, payload.RoomID, subChannel, nickname)

	history, err := h.store.History(payload.RoomID, subChannel)
	if err != nil {
		return err
	}
	if history == nil {
		history = []models.Message{}
	}
	if err := client.SendEvent(ws.EventHistory, history); err != nil {
		return err
	}

	channels, err := h.store.ListSubChannels(payload.RoomID)
	if err != nil {
		return err
	}
	return client.SendEvent(ws.EventSubChannelList, channels)
}

// handleSend creates an immediate message and fans it out room-wide, the
// sender included; the sender reconciles by identity like everyone else.
func (h *ChatHandler) handleSend(client *ws.Client, evt *ws.Event) error {
	var payload dto.SendMessagePayload
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return err
	}

	roomID, subChannel, author, err := h.resolveSession(client, payload.RoomID, payload.SubChannel, payload.Nickname)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return ws.ErrInvalidEvent
	}

	msg, err := h.scheduler.SendNow(roomID, subChannel, author, text)
	if err != nil {
		return err
	}

	h.hub.BroadcastDelivered(msg)
	return nil
}

// handleSchedule accepts a delayed send: the scheduling connection gets a
// private acknowledgment immediately, the room sees nothing until the
// delay elapses.
func (h *ChatHandler) handleSchedule(client *ws.Client, evt *ws.Event) error {
	var payload dto.ScheduleMessagePayload
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return err
	}

	roomID, subChannel, author, err := h.resolveSession(client, payload.RoomID, payload.SubChannel, payload.Nickname)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" || payload.DelayMs < 0 {
		return ws.ErrInvalidEvent
	}

	delay := time.Duration(payload.DelayMs) * time.Millisecond
	msg, err := h.scheduler.Schedule(roomID, subChannel, author, text, delay)
	if err != nil {
		return err
	}

	ack := dto.ScheduleAck{
		Message:    msg,
		DelayMs:    msg.DeliverAt.Sub(msg.CreatedAt).Milliseconds(),
		SubChannel: subChannel,
	}
	return client.SendEvent(ws.EventScheduleAcknowledged, ack)
}

// handleCreateSubChannel registers a sub-channel and broadcasts the
// creation room-wide. Re-registering an existing name does not
// re-broadcast.
func (h *ChatHandler) handleCreateSubChannel(client *ws.Client, evt *ws.Event) error {
	var payload dto.CreateSubChannelPayload
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return err
	}
	if payload.RoomID == "" || payload.Name == "" {
		return ws.ErrInvalidEvent
	}

	created, err := h.store.CreateSubChannel(payload.RoomID, payload.Name)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	h.hub.BroadcastToRoom(payload.RoomID, ws.EventSubChannelCreated, payload.Name)
	return nil
}

// resolveSession fills event fields from the connection's session when the
// payload omits them. Room id must come from one of the two.
func (h *ChatHandler) resolveSession(client *ws.Client, roomID, subChannel, nickname string) (string, string, string, error) {
	sessionRoom, sessionChannel, sessionNick := client.Session()

	if roomID == "" {
		roomID = sessionRoom
	}
	if roomID == "" {
		return "", "", "", ws.ErrNotJoined
	}

	if subChannel == "" {
		subChannel = sessionChannel
	}
	subChannel = normalizeSubChannel(subChannel)

	if nickname == "" {
		nickname = sessionNick
	}
	if nickname == "" {
		return "", "", "", ws.ErrInvalidEvent
	}

	return roomID, subChannel, nickname, nil
}

func normalizeSubChannel(name string) string {
	if name == "" {
		return models.DefaultSubChannel
	}
	return name
}
