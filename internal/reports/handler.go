package reports

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/pkg/apperr"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler handles report HTTP requests
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new reports handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers report routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	weeks := router.Group("/weeks")
	{
		weeks.GET("/:id/report", h.getReport)
		weeks.GET("/:id/plan.xlsx", h.exportPlan)
		weeks.GET("/:id/events.csv", h.exportEvents)
	}
	router.GET("/reports/cache", h.cacheStats)
}

// getReport handles GET /api/v1/weeks/:id/report?format=json|markdown|pdf&refresh=true
func (h *Handler) getReport(c *gin.Context) {
	weekID, ok := h.weekID(c)
	if !ok {
		return
	}
	refresh := c.Query("refresh") == "true"
	ctx := c.Request.Context()

	switch format := c.DefaultQuery("format", FormatJSON); format {
	case FormatJSON:
		report, err := h.service.WeekReport(ctx, weekID, refresh)
		if err != nil {
			h.respondError(c, "Failed to generate report", err)
			return
		}
		c.JSON(http.StatusOK, report)
	case FormatMarkdown:
		report, err := h.service.WeekReport(ctx, weekID, refresh)
		if err != nil {
			h.respondError(c, "Failed to generate report", err)
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown))
	case FormatPDF:
		var buf bytes.Buffer
		if err := h.service.WriteReportPDF(ctx, &buf, weekID, refresh); err != nil {
			h.respondError(c, "Failed to render report", err)
			return
		}
		h.attachment(c, fmt.Sprintf("report-%s.pdf", weekID), "application/pdf", buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported format: " + format})
	}
}

// exportPlan handles GET /api/v1/weeks/:id/plan.xlsx
func (h *Handler) exportPlan(c *gin.Context) {
	weekID, ok := h.weekID(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.service.WritePlanWorkbook(c.Request.Context(), &buf, weekID); err != nil {
		h.respondError(c, "Failed to export plan", err)
		return
	}
	h.attachment(c, fmt.Sprintf("plan-%s.xlsx", weekID), xlsxContentType, buf.Bytes())
}

// exportEvents handles GET /api/v1/weeks/:id/events.csv
func (h *Handler) exportEvents(c *gin.Context) {
	weekID, ok := h.weekID(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.service.WriteEventsCSV(c.Request.Context(), &buf, weekID); err != nil {
		h.respondError(c, "Failed to export events", err)
		return
	}
	h.attachment(c, fmt.Sprintf("events-%s.csv", weekID), "text/csv; charset=utf-8", buf.Bytes())
}

// cacheStats handles GET /api/v1/reports/cache
func (h *Handler) cacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.CacheStats())
}

func (h *Handler) attachment(c *gin.Context, name, contentType string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, contentType, body)
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) weekID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week id"})
		return uuid.Nil, false
	}
	return id, true
}
