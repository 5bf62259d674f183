package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velimir/roomcast/internal/handlers"
	"github.com/velimir/roomcast/internal/models"
	"github.com/velimir/roomcast/internal/scheduler"
	"github.com/velimir/roomcast/internal/store"
	ws "github.com/velimir/roomcast/internal/websocket"
)

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	roomStore := store.NewMemoryStore()
	hub := ws.NewHub(logger)
	sched := scheduler.New(roomStore, hub, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run()
	go sched.Run(ctx)

	chatH := handlers.NewChatHandler(roomStore, sched, hub, logger)
	wsH := handlers.NewWebSocketHandler(hub, chatH, logger)

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

func dialRelay(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, err := Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientJoinReplaysHistoryAndChannels(t *testing.T) {
	srv := newRelayServer(t)

	a := dialRelay(t, srv)
	require.NoError(t, a.Join("r1", "", "alice"))
	require.NoError(t, a.Send("hi"))

	require.Eventually(t, func() bool {
		return len(a.Messages(models.DefaultSubChannel)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	b := dialRelay(t, srv)
	require.NoError(t, b.Join("r1", "", "bob"))

	require.Eventually(t, func() bool {
		return len(b.Messages(models.DefaultSubChannel)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msgs := b.Messages(models.DefaultSubChannel)
	assert.Equal(t, "hi", msgs[0].Body)
	assert.Equal(t, "alice", msgs[0].Author)

	require.Eventually(t, func() bool {
		channels := b.SubChannels()
		return len(channels) == 1 && channels[0] == models.DefaultSubChannel
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduledMessageConvergesToSingleEntry(t *testing.T) {
	// The sender's private pending placeholder and the room-wide delivery
	// broadcast must end up as one view entry under the same identity.
	srv := newRelayServer(t)

	a := dialRelay(t, srv)
	require.NoError(t, a.Join("r1", "", "alice"))
	b := dialRelay(t, srv)
	require.NoError(t, b.Join("r1", "", "bob"))

	require.NoError(t, a.Schedule("hello", 400*time.Millisecond))

	// Sender sees the pending placeholder before anyone else sees anything.
	require.Eventually(t, func() bool {
		msgs := a.Messages(models.DefaultSubChannel)
		return len(msgs) == 1 && msgs[0].State == models.StatePending
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, b.Messages(models.DefaultSubChannel))

	pendingID := a.Messages(models.DefaultSubChannel)[0].ID

	// After delivery both sides hold exactly one entry, delivered.
	require.Eventually(t, func() bool {
		msgs := a.Messages(models.DefaultSubChannel)
		return len(msgs) == 1 && msgs[0].State == models.StateDelivered
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(b.Messages(models.DefaultSubChannel)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	senderCopy := a.Messages(models.DefaultSubChannel)[0]
	roomCopy := b.Messages(models.DefaultSubChannel)[0]

	assert.Equal(t, pendingID, senderCopy.ID, "identity must be stable across delivery")
	assert.Equal(t, pendingID, roomCopy.ID)
	assert.True(t, senderCopy.WasScheduled, "sender's merged entry must remember its scheduled origin")
	assert.Equal(t, "hello", roomCopy.Body)
	assert.Equal(t, models.StateDelivered, roomCopy.State)
	require.NotNil(t, roomCopy.DeliveredAt)
}

func TestClientTracksSubChannelCreation(t *testing.T) {
	srv := newRelayServer(t)

	a := dialRelay(t, srv)
	require.NoError(t, a.Join("r1", "", "alice"))
	b := dialRelay(t, srv)
	require.NoError(t, b.Join("r1", "", "bob"))

	require.NoError(t, a.CreateSubChannel("food"))

	for _, c := range []*Client{a, b} {
		require.Eventually(t, func() bool {
			for _, name := range c.SubChannels() {
				if name == "food" {
					return true
				}
			}
			return false
		}, 2*time.Second, 10*time.Millisecond)
	}
}
