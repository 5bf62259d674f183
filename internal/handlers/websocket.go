package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	ws "github.com/velimir/roomcast/internal/websocket"
)

// WebSocketHandler upgrades HTTP requests into chat sessions.
type WebSocketHandler struct {
	hub         *ws.Hub
	chatHandler *ChatHandler
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, chatHandler *ChatHandler, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		chatHandler: chatHandler,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.chatHandler)
}
