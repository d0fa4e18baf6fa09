package handler

import (
	"github.com/Baaaki/parley/internal/realtime"
	"github.com/gin-gonic/gin"
)

type WebSocketHandler struct {
	gateway *realtime.Gateway
}

func NewWebSocketHandler(gateway *realtime.Gateway) *WebSocketHandler {
	return &WebSocketHandler{gateway: gateway}
}

// GET /ws/conversation/:id?token=<jwt>
//
// Authentication and membership are checked before the upgrade, so a
// rejected caller gets a plain HTTP status instead of a websocket.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	h.gateway.Serve(c.Writer, c.Request, c.Param("id"))
}
