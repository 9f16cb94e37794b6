package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/auth"
	"audit-portal/portal-backend/internal/realtime"
)

// Handler exposes the realtime change stream
type Handler struct {
	hub    *Hub
	logger *zap.Logger
}

// NewHandler creates a new realtime handler
func NewHandler(hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// RegisterRoutes registers the realtime endpoint
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/realtime", h.subscribe)
}

// subscribe handles GET /api/v1/realtime?table=events&filter=task_id=eq.<id>
func (h *Handler) subscribe(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}

	filter, err := realtime.ParseFilter(c.Query("table"), c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// the upgrader writes its own error response
	if _, err := h.hub.Serve(c.Writer, c.Request, user.ID.String(), filter); err != nil {
		h.logger.Warn("Realtime upgrade failed", zap.Error(err))
	}
}
