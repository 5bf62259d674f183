package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velimir/roomcast/internal/models"
)

// Hub tracks live connections and their room membership and fans events out
// to them. Rooms here are transport-level groups only; message and
// sub-channel state lives in the room store and outlives every connection.
type Hub struct {
	clients map[uuid.UUID]*Client
	rooms   map[string]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	logger *zap.Logger

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		rooms:      make(map[string]map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run serializes connection registration until the hub is stopped.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop closes every connection and ends the Run loop.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
		client.Conn.Close()
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.rooms = make(map[string]map[uuid.UUID]*Client)
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.logger.Debug("client connected", zap.String("client", client.ID.String()))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	h.leaveRoomLocked(client)
	delete(h.clients, client.ID)
	close(client.Send)

	h.logger.Debug("client disconnected", zap.String("client", client.ID.String()))
}

// Join moves a connection into a room session. A connection is in at most
// one room at a time; re-joining switches rooms. Disconnecting removes the
// connection from the hub but tears down no room state.
func (h *Hub) Join(client *Client, roomID, subChannel, nickname string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveRoomLocked(client)

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[uuid.UUID]*Client)
	}
	h.rooms[roomID][client.ID] = client
	client.setSession(roomID, subChannel, nickname)

	h.logger.Info("joined room",
		zap.String("room", roomID),
		zap.String("subChannel", subChannel),
		zap.String("nickname", nickname))
}

func (h *Hub) leaveRoomLocked(client *Client) {
	roomID, _, _ := client.Session()
	if roomID == "" {
		return
	}
	if room, ok := h.rooms[roomID]; ok {
		delete(room, client.ID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	client.clearSession()
}

// BroadcastDelivered fans a final message out to every connection in its
// room, the sender included; clients reconcile their own copies by
// identity. This is the scheduler's broadcast sink, so fan-out order
// matches the room log's append order.
func (h *Hub) BroadcastDelivered(msg *models.Message) {
	h.BroadcastToRoom(msg.RoomID, EventMessageDelivered, msg)
}

// BroadcastToRoom sends one event to every connection joined to the room.
func (h *Hub) BroadcastToRoom(roomID string, eventType EventType, data any) {
	payload, err := marshalEvent(eventType, data)
	if err != nil {
		h.logger.Error("marshal broadcast failed", zap.String("type", string(eventType)), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.rooms[roomID] {
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("client send queue full, dropping event",
				zap.String("client", client.ID.String()),
				zap.String("type", string(eventType)))
		}
	}
}

// RoomSize reports how many connections are joined to a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) ping() {
	payload, err := marshalEvent(EventPing, nil)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func marshalEvent(eventType EventType, data any) ([]byte, error) {
	evt := Event{Type: eventType, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		evt.Data = raw
	}
	return json.Marshal(evt)
}
