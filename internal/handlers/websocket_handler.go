// WebSocket Handler - live event stream for ops dashboards
package handlers

import (
	"github.com/necko-moe/necko3-core/internal/services"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler attaches dashboard connections to the push hub.
type WebSocketHandler struct {
	pushService *services.WebSocketPushService
}

// NewWebSocketHandler creates a new WebSocketHandler instance
func NewWebSocketHandler(pushService *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{
		pushService: pushService,
	}
}

// HandleConnection upgrades the request and streams gateway events.
// An optional ?chain= query narrows the subscription to one chain.
// GET /ws
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	chain := c.Query("chain")
	h.pushService.HandleWebSocket(c.Writer, c.Request, chain)
}
