package main

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/velimir/roomcast/internal/handlers"
)

func APIEndpoints(r *gin.Engine, wsH *handlers.WebSocketHandler) {
	r.GET("/ws", wsH.HandleWebSocket)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Client bundle, when one is deployed alongside the server.
	if staticDir := os.Getenv("STATIC_DIR"); staticDir != "" {
		r.Static("/app", staticDir)
	}
}
