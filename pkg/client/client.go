// Package client implements the consumer half of the relay protocol: a
// websocket session that joins rooms and reconciles every server event into
// a per-sub-channel view, so a scheduled message's private placeholder and
// its eventual room-wide broadcast converge to one entry.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/velimir/roomcast/internal/handlers/dto"
	"github.com/velimir/roomcast/internal/merge"
	"github.com/velimir/roomcast/internal/models"
	ws "github.com/velimir/roomcast/internal/websocket"
)

// Client is one connection-oriented chat session.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu          sync.RWMutex
	roomID      string
	subChannel  string
	nickname    string
	views       map[string]*merge.View
	subChannels []string

	updates chan struct{}
}

// Dial connects to a relay server's /ws endpoint and starts the read loop.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:    conn,
		views:   make(map[string]*merge.View),
		updates: make(chan struct{}, 16),
	}
	go c.readLoop()
	return c, nil
}

// Close tears the connection down. No room or message state is lost on the
// server side.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Join enters a room/sub-channel. The server responds with the delivered
// history and the sub-channel list, which the read loop folds into the view.
func (c *Client) Join(roomID, subChannel, nickname string) error {
	if subChannel == "" {
		subChannel = models.DefaultSubChannel
	}

	c.mu.Lock()
	c.roomID = roomID
	c.subChannel = subChannel
	c.nickname = nickname
	c.mu.Unlock()

	return c.sendEvent(ws.EventJoin, dto.JoinPayload{
		RoomID:     roomID,
		SubChannel: subChannel,
		Nickname:   nickname,
	})
}

// Send posts an immediate message to the joined sub-channel. The local view
// is not updated optimistically; the room-wide broadcast is the first copy.
func (c *Client) Send(text string) error {
	roomID, subChannel, nickname := c.session()
	return c.sendEvent(ws.EventSendMessage, dto.SendMessagePayload{
		RoomID:     roomID,
		SubChannel: subChannel,
		Text:       text,
		Nickname:   nickname,
	})
}

// Schedule requests a delayed send. The private acknowledgment inserts a
// pending placeholder into the view under its final identity; the delivery
// broadcast later merges into the same entry.
func (c *Client) Schedule(text string, delay time.Duration) error {
	roomID, subChannel, nickname := c.session()
	return c.sendEvent(ws.EventScheduleMessage, dto.ScheduleMessagePayload{
		RoomID:     roomID,
		SubChannel: subChannel,
		Text:       text,
		DelayMs:    delay.Milliseconds(),
		Nickname:   nickname,
	})
}

// CreateSubChannel registers a new sub-channel in the joined room.
func (c *Client) CreateSubChannel(name string) error {
	roomID, _, _ := c.session()
	return c.sendEvent(ws.EventCreateSubChannel, dto.CreateSubChannelPayload{
		RoomID: roomID,
		Name:   name,
	})
}

// Messages returns the reconciled, display-ordered view of one sub-channel.
func (c *Client) Messages(subChannel string) []merge.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	view, ok := c.views[subChannel]
	if !ok {
		return nil
	}
	return view.Messages()
}

// SubChannels returns the known sub-channel names.
func (c *Client) SubChannels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.subChannels))
	copy(out, c.subChannels)
	return out
}

// Updates signals whenever a server event changed the view. Notifications
// are coalesced; consumers re-read the view on each tick.
func (c *Client) Updates() <-chan struct{} {
	return c.updates
}

func (c *Client) session() (roomID, subChannel, nickname string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.subChannel, c.nickname
}

func (c *Client) sendEvent(eventType ws.EventType, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	evt := ws.Event{Type: eventType, Data: raw, Timestamp: time.Now()}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(&evt)
}

func (c *Client) readLoop() {
	for {
		var evt ws.Event
		if err := c.conn.ReadJSON(&evt); err != nil {
			return
		}
		c.apply(&evt)
	}
}

func (c *Client) apply(evt *ws.Event) {
	switch evt.Type {
	case ws.EventHistory:
		var history []models.Message
		if err := json.Unmarshal(evt.Data, &history); err != nil {
			return
		}
		c.mu.Lock()
		for i := range history {
			c.viewFor(history[i].SubChannel).Apply(history[i])
		}
		c.mu.Unlock()

	case ws.EventMessageDelivered:
		var msg models.Message
		if err := json.Unmarshal(evt.Data, &msg); err != nil {
			return
		}
		c.mu.Lock()
		c.viewFor(msg.SubChannel).Apply(msg)
		c.mu.Unlock()

	case ws.EventScheduleAcknowledged:
		var ack dto.ScheduleAck
		if err := json.Unmarshal(evt.Data, &ack); err != nil || ack.Message == nil {
			return
		}
		c.mu.Lock()
		c.viewFor(ack.Message.SubChannel).Apply(*ack.Message)
		c.mu.Unlock()

	case ws.EventSubChannelList:
		var channels []string
		if err := json.Unmarshal(evt.Data, &channels); err != nil {
			return
		}
		c.mu.Lock()
		c.subChannels = channels
		c.mu.Unlock()

	case ws.EventSubChannelCreated:
		var name string
		if err := json.Unmarshal(evt.Data, &name); err != nil {
			return
		}
		c.mu.Lock()
		c.addSubChannel(name)
		c.mu.Unlock()

	default:
		return
	}

	select {
	case c.updates <- struct{}{}:
	default:
	}
}

func (c *Client) viewFor(subChannel string) *merge.View {
	if subChannel == "" {
		subChannel = models.DefaultSubChannel
	}
	view, ok := c.views[subChannel]
	if !ok {
		view = merge.NewView()
		c.views[subChannel] = view
	}
	return view
}

func (c *Client) addSubChannel(name string) {
	for _, existing := range c.subChannels {
		if existing == name {
			return
		}
	}
	c.subChannels = append(c.subChannels, name)
}
