package search

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/pkg/apperr"
)

// Handler serves event search
type Handler struct {
	indexer *Indexer
	logger  *zap.Logger
}

func NewHandler(indexer *Indexer, logger *zap.Logger) *Handler {
	return &Handler{indexer: indexer, logger: logger}
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/projects/:id/events/search", h.search)
}

// search handles GET /api/v1/projects/:id/events/search?q=&limit=
func (h *Handler) search(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	hits, err := h.indexer.Search(c.Request.Context(), projectID, c.Query("q"), limit)
	if err != nil {
		status := apperr.Status(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Event search failed", zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hits)
}
