package weeks

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/auth"
	"audit-portal/portal-backend/pkg/apperr"
	"audit-portal/portal-backend/pkg/dates"
)

// Handler handles HTTP requests for stages and their plans
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new weeks handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers stage and plan routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/projects/:id/weeks", h.listWeeks)
	router.POST("/projects/:id/weeks", h.createWeek)

	weeks := router.Group("/weeks")
	{
		weeks.GET("/:id", h.getWeek)
		weeks.PATCH("/:id", h.updateWeek)
		weeks.DELETE("/:id", h.deleteWeek)
		weeks.POST("/:id/status", h.changeStatus)

		weeks.POST("/:id/days", h.addDay)
		weeks.DELETE("/:id/days/:date", h.deleteDay)
		weeks.POST("/:id/items", h.addItem)
		weeks.PUT("/:id/items/:itemId", h.updateItem)
		weeks.DELETE("/:id/days/:date/items/:itemId", h.deleteItem)
	}
}

// listWeeks handles GET /api/v1/projects/:id/weeks
func (h *Handler) listWeeks(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	weeks, err := h.service.ListWeeks(c.Request.Context(), projectID)
	if err != nil {
		h.respondError(c, "Failed to list weeks", err)
		return
	}
	c.JSON(http.StatusOK, weeks)
}

// createWeek handles POST /api/v1/projects/:id/weeks
func (h *Handler) createWeek(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	projectID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req CreateWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	week, err := h.service.CreateWeek(c.Request.Context(), user.ID, projectID, &req)
	if err != nil {
		h.respondError(c, "Failed to create week", err)
		return
	}
	c.JSON(http.StatusCreated, week)
}

// getWeek handles GET /api/v1/weeks/:id
func (h *Handler) getWeek(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	view, err := h.service.GetStageView(c.Request.Context(), user.ID, id)
	if err != nil {
		h.respondError(c, "Failed to get week", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// updateWeek handles PATCH /api/v1/weeks/:id
func (h *Handler) updateWeek(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req UpdateWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	week, err := h.service.UpdateWeek(c.Request.Context(), user.ID, id, &req)
	if err != nil {
		h.respondError(c, "Failed to update week", err)
		return
	}
	c.JSON(http.StatusOK, week)
}

// deleteWeek handles DELETE /api/v1/weeks/:id
func (h *Handler) deleteWeek(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteWeek(c.Request.Context(), user.ID, id); err != nil {
		h.respondError(c, "Failed to delete week", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// changeStatus handles POST /api/v1/weeks/:id/status
func (h *Handler) changeStatus(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req StatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	week, err := h.service.ChangeStatus(c.Request.Context(), user.ID, id, &req)
	if err != nil {
		h.respondError(c, "Failed to change week status", err)
		return
	}
	c.JSON(http.StatusOK, week)
}

// addDay handles POST /api/v1/weeks/:id/days
func (h *Handler) addDay(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req DayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	week, outcome, err := h.service.AddDay(c.Request.Context(), user.ID, id, &req, req.Version)
	if err != nil {
		h.respondError(c, "Failed to add day", err)
		return
	}

	resp := PlanMutationResponse{Outcome: outcome, Week: week}
	if outcome == DayAlreadyExists {
		resp.Warning = "day " + req.Date.String() + " already exists"
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// deleteDay handles DELETE /api/v1/weeks/:id/days/:date
func (h *Handler) deleteDay(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	day, ok := h.dateParam(c)
	if !ok {
		return
	}
	version, ok := h.versionQuery(c)
	if !ok {
		return
	}

	week, outcome, err := h.service.DeleteDay(c.Request.Context(), user.ID, id, day, version)
	if err != nil {
		h.respondError(c, "Failed to delete day", err)
		return
	}
	if outcome == DayNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "day not found"})
		return
	}
	c.JSON(http.StatusOK, PlanMutationResponse{Outcome: outcome, Week: week})
}

// addItem handles POST /api/v1/weeks/:id/items
func (h *Handler) addItem(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	week, item, err := h.service.AddItem(c.Request.Context(), user.ID, id, &req, req.Version)
	if err != nil {
		h.respondError(c, "Failed to add item", err)
		return
	}
	c.JSON(http.StatusCreated, PlanMutationResponse{Outcome: ItemAdded, Item: item, Week: week})
}

// updateItem handles PUT /api/v1/weeks/:id/items/:itemId
func (h *Handler) updateItem(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Item.ID = c.Param("itemId")

	week, outcome, err := h.service.UpdateItem(c.Request.Context(), user.ID, id, req.Item, req.Version)
	if err != nil {
		h.respondError(c, "Failed to update item", err)
		return
	}
	if outcome == ItemNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, PlanMutationResponse{Outcome: outcome, Week: week})
}

// deleteItem handles DELETE /api/v1/weeks/:id/days/:date/items/:itemId
func (h *Handler) deleteItem(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	day, ok := h.dateParam(c)
	if !ok {
		return
	}
	version, ok := h.versionQuery(c)
	if !ok {
		return
	}

	week, outcome, err := h.service.DeleteItem(c.Request.Context(), user.ID, id, day, c.Param("itemId"), version)
	if err != nil {
		h.respondError(c, "Failed to delete item", err)
		return
	}
	if outcome == ItemNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, PlanMutationResponse{Outcome: outcome, Week: week})
}

// =====================================================
// Helper Methods
// =====================================================

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) dateParam(c *gin.Context) (dates.Date, bool) {
	d, err := dates.Parse(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return dates.Date{}, false
	}
	return d, true
}

func (h *Handler) versionQuery(c *gin.Context) (*int, bool) {
	raw := c.Query("version")
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return nil, false
	}
	return &v, true
}
