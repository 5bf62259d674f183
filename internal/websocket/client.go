package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second

	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxEventSize = 64 * 1024
)

// EventHandler processes inbound events for a connection.
type EventHandler interface {
	HandleEvent(client *Client, evt *Event) error
}

// Client is one websocket connection and its session state. The session is
// empty until the connection joins a room.
type Client struct {
	ID   uuid.UUID
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub

	mu         sync.RWMutex
	roomID     string
	subChannel string
	nickname   string

	logger *zap.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		ID:     uuid.New(),
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Hub:    hub,
		logger: logger,
	}
}

// Session returns the joined room, sub-channel, and nickname. All empty
// while disconnected from any room.
func (c *Client) Session() (roomID, subChannel, nickname string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.subChannel, c.nickname
}

func (c *Client) setSession(roomID, subChannel, nickname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.subChannel = subChannel
	c.nickname = nickname
}

func (c *Client) clearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = ""
	c.subChannel = ""
	c.nickname = ""
}

// ReadPump reads events from the connection until it drops. Handler errors
// are logged and the connection stays up; a malformed inbound event never
// crashes the session.
func (c *Client) ReadPump(handler EventHandler) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxEventSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var evt Event
		if err := c.Conn.ReadJSON(&evt); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			break
		}

		if evt.Type == EventPong || evt.Type == EventPing {
			continue
		}

		if handler == nil {
			continue
		}
		if err := handler.HandleEvent(c, &evt); err != nil {
			c.logger.Warn("event dropped",
				zap.String("type", string(evt.Type)),
				zap.Error(err))
		}
	}
}

// WritePump drains the send queue to the connection and keeps it alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendEvent queues one event to this connection only.
func (c *Client) SendEvent(eventType EventType, data any) error {
	payload, err := marshalEvent(eventType, data)
	if err != nil {
		return err
	}

	select {
	case c.Send <- payload:
		return nil
	default:
		return ErrClientQueueFull
	}
}
