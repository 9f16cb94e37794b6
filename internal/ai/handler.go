package ai

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"audit-portal/portal-backend/pkg/apperr"
)

// Handler exposes the conversational helpers that are not tied to a stored record
type Handler struct {
	assistant *Assistant
	logger    *zap.Logger
}

// NewHandler creates a new AI handler
func NewHandler(assistant *Assistant, logger *zap.Logger) *Handler {
	return &Handler{assistant: assistant, logger: logger}
}

// DescribeStageRequest is one turn of the stage description chat
type DescribeStageRequest struct {
	History []Turn `json:"history"`
	Message string `json:"message" binding:"required"`
}

// RegisterRoutes registers AI routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/ai/describe-stage", h.describeStage)
}

// describeStage handles POST /api/v1/ai/describe-stage
func (h *Handler) describeStage(c *gin.Context) {
	var req DescribeStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.assistant.DescribeStage(c.Request.Context(), req.History, req.Message)
	if err != nil {
		status := apperr.Status(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to describe stage", zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reply":   reply,
		"history": append(req.History, Turn{Role: RoleUser, Text: req.Message}, Turn{Role: RoleModel, Text: reply}),
	})
}
