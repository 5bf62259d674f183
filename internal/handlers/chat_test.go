package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velimir/roomcast/internal/handlers/dto"
	"github.com/velimir/roomcast/internal/models"
	"github.com/velimir/roomcast/internal/scheduler"
	"github.com/velimir/roomcast/internal/store"
	ws "github.com/velimir/roomcast/internal/websocket"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	roomStore := store.NewMemoryStore()
	hub := ws.NewHub(logger)
	sched := scheduler.New(roomStore, hub, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run()
	go sched.Run(ctx)

	chatH := NewChatHandler(roomStore, sched, hub, logger)
	wsH := NewWebSocketHandler(hub, chatH, logger)

	router := gin.New()
	router.GET("/ws", wsH.HandleWebSocket)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		hub.Stop()
	})
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// testConn is a raw protocol connection for asserting exact event flow.
type testConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialConn(t *testing.T, srv *httptest.Server) *testConn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn}
}

func (tc *testConn) send(eventType ws.EventType, payload any) {
	tc.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(tc.t, err)
	require.NoError(tc.t, tc.conn.WriteJSON(&ws.Event{
		Type:      eventType,
		Data:      raw,
		Timestamp: time.Now(),
	}))
}

// next reads one event, failing the test if none arrives in time.
func (tc *testConn) next(timeout time.Duration) *ws.Event {
	tc.t.Helper()
	tc.conn.SetReadDeadline(time.Now().Add(timeout))
	var evt ws.Event
	require.NoError(tc.t, tc.conn.ReadJSON(&evt))
	return &evt
}

// collect drains every event that arrives within the window.
func (tc *testConn) collect(window time.Duration) []ws.Event {
	tc.t.Helper()
	var out []ws.Event
	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return out
		}
		tc.conn.SetReadDeadline(time.Now().Add(remaining))
		var evt ws.Event
		if err := tc.conn.ReadJSON(&evt); err != nil {
			return out
		}
		out = append(out, evt)
	}
}

func (tc *testConn) join(roomID, subChannel, nickname string) (history []models.Message, channels []string) {
	tc.t.Helper()
	tc.send(ws.EventJoin, dto.JoinPayload{RoomID: roomID, SubChannel: subChannel, Nickname: nickname})

	evt := tc.next(2 * time.Second)
	require.Equal(tc.t, ws.EventHistory, evt.Type)
	require.NoError(tc.t, json.Unmarshal(evt.Data, &history))

	evt = tc.next(2 * time.Second)
	require.Equal(tc.t, ws.EventSubChannelList, evt.Type)
	require.NoError(tc.t, json.Unmarshal(evt.Data, &channels))
	return history, channels
}

func countEvents(events []ws.Event, eventType ws.EventType) int {
	n := 0
	for _, evt := range events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

func TestJoinRepliesHistoryThenSubChannelList(t *testing.T) {
	srv := newTestServer(t)

	conn := dialConn(t, srv)
	history, channels := conn.join("r1", "", "alice")

	assert.Empty(t, history)
	assert.Equal(t, []string{models.DefaultSubChannel}, channels)
}

func TestImmediateSendReachesRoomWithoutDuplicates(t *testing.T) {
	// Scenario B: A sends "hi"; a later joiner sees exactly one copy in
	// history, and A sees exactly one copy total.
	srv := newTestServer(t)

	a := dialConn(t, srv)
	a.join("r1", "", "alice")

	a.send(ws.EventSendMessage, dto.SendMessagePayload{RoomID: "r1", Text: "hi"})

	events := a.collect(300 * time.Millisecond)
	require.Equal(t, 1, countEvents(events, ws.EventMessageDelivered), "sender must see exactly one copy")

	var delivered models.Message
	require.NoError(t, json.Unmarshal(events[0].Data, &delivered))
	assert.Equal(t, "hi", delivered.Body)
	assert.Equal(t, "alice", delivered.Author)
	assert.Equal(t, models.StateImmediate, delivered.State)
	assert.Equal(t, delivered.ID, delivered.OriginID)

	b := dialConn(t, srv)
	history, _ := b.join("r1", "", "bob")
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Body)
	assert.Equal(t, delivered.ID, history[0].ID)
}

func TestScheduledMessageLifecycle(t *testing.T) {
	// Scenario A, compressed: the sender gets a private ack immediately,
	// the room gets exactly one delivery after the delay, sender included.
	srv := newTestServer(t)

	a := dialConn(t, srv)
	a.join("r1", "", "alice")
	b := dialConn(t, srv)
	b.join("r1", "", "bob")

	before := time.Now()
	a.send(ws.EventScheduleMessage, dto.ScheduleMessagePayload{
		RoomID:  "r1",
		Text:    "hello",
		DelayMs: 150,
	})

	ackEvt := a.next(2 * time.Second)
	require.Equal(t, ws.EventScheduleAcknowledged, ackEvt.Type)
	var ack dto.ScheduleAck
	require.NoError(t, json.Unmarshal(ackEvt.Data, &ack))
	require.NotNil(t, ack.Message)
	assert.Equal(t, models.StatePending, ack.Message.State)
	assert.Equal(t, int64(150), ack.DelayMs)
	assert.Equal(t, models.DefaultSubChannel, ack.SubChannel)
	require.NotNil(t, ack.Message.DeliverAt)
	assert.WithinDuration(t, before.Add(150*time.Millisecond), *ack.Message.DeliverAt, time.Second)

	// Both room members, sender included, observe exactly one delivery.
	aEvents := a.collect(600 * time.Millisecond)
	bEvents := b.collect(100 * time.Millisecond)
	require.Equal(t, 1, countEvents(aEvents, ws.EventMessageDelivered))
	require.Equal(t, 1, countEvents(bEvents, ws.EventMessageDelivered))

	var delivered models.Message
	for _, evt := range bEvents {
		if evt.Type == ws.EventMessageDelivered {
			require.NoError(t, json.Unmarshal(evt.Data, &delivered))
		}
	}
	assert.Equal(t, "hello", delivered.Body)
	assert.Equal(t, models.StateDelivered, delivered.State)
	assert.Equal(t, ack.Message.ID, delivered.ID, "identity must survive delivery")
	assert.Equal(t, ack.Message.ID, delivered.OriginID)
}

func TestHistoryNeverContainsPendingMessages(t *testing.T) {
	srv := newTestServer(t)

	a := dialConn(t, srv)
	a.join("r1", "", "alice")
	a.send(ws.EventScheduleMessage, dto.ScheduleMessagePayload{
		RoomID:  "r1",
		Text:    "not yet",
		DelayMs: 60_000,
	})
	ackEvt := a.next(2 * time.Second)
	require.Equal(t, ws.EventScheduleAcknowledged, ackEvt.Type)

	b := dialConn(t, srv)
	history, _ := b.join("r1", "", "bob")
	assert.Empty(t, history, "pending scheduled messages must not leak into history")
}

func TestSubChannelCreationFanOut(t *testing.T) {
	// Scenario C: creator and an existing member each see the creation
	// exactly once; a later joiner sees it in the initial list.
	srv := newTestServer(t)

	a := dialConn(t, srv)
	a.join("r1", "", "alice")
	b := dialConn(t, srv)
	b.join("r1", "", "bob")

	a.send(ws.EventCreateSubChannel, dto.CreateSubChannelPayload{RoomID: "r1", Name: "food"})

	aEvents := a.collect(300 * time.Millisecond)
	bEvents := b.collect(100 * time.Millisecond)
	require.Equal(t, 1, countEvents(aEvents, ws.EventSubChannelCreated))
	require.Equal(t, 1, countEvents(bEvents, ws.EventSubChannelCreated))

	var name string
	for _, evt := range aEvents {
		if evt.Type == ws.EventSubChannelCreated {
			require.NoError(t, json.Unmarshal(evt.Data, &name))
		}
	}
	assert.Equal(t, "food", name)

	c := dialConn(t, srv)
	_, channels := c.join("r1", "", "carol")
	assert.Equal(t, []string{models.DefaultSubChannel, "food"}, channels)
}

func TestDuplicateSubChannelCreationDoesNotRebroadcast(t *testing.T) {
	// Scenario D.
	srv := newTestServer(t)

	a := dialConn(t, srv)
	a.join("r1", "", "alice")

	a.send(ws.EventCreateSubChannel, dto.CreateSubChannelPayload{RoomID: "r1", Name: "food"})
	a.send(ws.EventCreateSubChannel, dto.CreateSubChannelPayload{RoomID: "r1", Name: "food"})

	events := a.collect(300 * time.Millisecond)
	assert.Equal(t, 1, countEvents(events, ws.EventSubChannelCreated))

	b := dialConn(t, srv)
	_, channels := b.join("r1", "", "bob")
	assert.Equal(t, []string{models.DefaultSubChannel, "food"}, channels)
}

func TestInvalidEventsAreDroppedWithoutClosingConnection(t *testing.T) {
	srv := newTestServer(t)

	a := dialConn(t, srv)
	a.join("r1", "", "alice")

	// Missing text, missing room, unknown type: all dropped.
	a.send(ws.EventSendMessage, dto.SendMessagePayload{RoomID: "r1", Text: "   "})
	a.send(ws.EventCreateSubChannel, dto.CreateSubChannelPayload{Name: "food"})
	a.send(ws.EventType("bogus"), map[string]string{"x": "y"})

	// The connection still works.
	a.send(ws.EventSendMessage, dto.SendMessagePayload{RoomID: "r1", Text: "still alive"})
	events := a.collect(300 * time.Millisecond)
	require.Equal(t, 1, countEvents(events, ws.EventMessageDelivered))
	assert.Equal(t, 0, countEvents(events, ws.EventSubChannelCreated))
}

func TestSendBeforeJoinUsesPayloadRoom(t *testing.T) {
	// The original relay accepted sends addressed by payload alone; the
	// room is lazily created.
	srv := newTestServer(t)

	a := dialConn(t, srv)
	a.send(ws.EventSendMessage, dto.SendMessagePayload{
		RoomID:   "fresh",
		Text:     "first contact",
		Nickname: "alice",
	})

	// The send is processed on the server's read pump; give it a moment
	// before the second connection replays history.
	time.Sleep(200 * time.Millisecond)

	b := dialConn(t, srv)
	history, _ := b.join("fresh", "", "bob")
	require.Len(t, history, 1)
	assert.Equal(t, "first contact", history[0].Body)
}
