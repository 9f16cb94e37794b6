package events

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/auth"
	"audit-portal/portal-backend/pkg/apperr"
)

const maxImageBytes = 10 << 20

// Handler handles HTTP requests for the event log
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new events handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers event routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/weeks/:id/events", h.listWeekEvents)

	events := router.Group("/events")
	{
		events.GET("", h.listEvents)
		events.POST("", h.appendEvent)
		events.DELETE("/:id", h.deleteEvent)
		events.POST("/recognize", h.recognizeNotes)
		events.POST("/analyze-interview", h.analyzeInterview)
	}
}

// listEvents handles GET /api/v1/events?task_id=
func (h *Handler) listEvents(c *gin.Context) {
	events, err := h.service.List(c.Request.Context(), c.Query("task_id"))
	if err != nil {
		h.respondError(c, "Failed to list events", err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// listWeekEvents handles GET /api/v1/weeks/:id/events
func (h *Handler) listWeekEvents(c *gin.Context) {
	weekID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week id"})
		return
	}
	events, err := h.service.ListByWeek(c.Request.Context(), weekID)
	if err != nil {
		h.respondError(c, "Failed to list week events", err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// appendEvent handles POST /api/v1/events as JSON or multipart with files
func (h *Handler) appendEvent(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}

	var req AppendRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		closers, err := h.bindMultipart(c, &req)
		defer func() {
			for _, cl := range closers {
				cl.Close()
			}
		}()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.service.Append(c.Request.Context(), Author{UserID: user.ID, Email: user.Email}, &req)
	if err != nil {
		h.respondError(c, "Failed to append event", err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *Handler) bindMultipart(c *gin.Context, req *AppendRequest) ([]io.Closer, error) {
	if err := c.ShouldBind(req); err != nil {
		return nil, err
	}
	target, err := targetFromForm(c)
	if err != nil {
		return nil, err
	}
	req.ProjectID, req.WeekID = target.ProjectID, target.WeekID
	if raw := c.PostForm("parent_event_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperr.Validation("invalid parent_event_id")
		}
		req.ParentEventID = &id
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	var closers []io.Closer
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return closers, err
		}
		closers = append(closers, f)
		req.Files = append(req.Files, Upload{
			Name:        fh.Filename,
			ContentType: contentType(fh),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return closers, nil
}

// deleteEvent handles DELETE /api/v1/events/:id
func (h *Handler) deleteEvent(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	if err := h.service.Delete(c.Request.Context(), user.ID, id); err != nil {
		h.respondError(c, "Failed to delete event", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// recognizeNotes handles POST /api/v1/events/recognize (multipart "image")
func (h *Handler) recognizeNotes(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}

	target, err := targetFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is required"})
		return
	}
	if fh.Size > maxImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is larger than " + strconv.Itoa(maxImageBytes>>20) + " MB"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	image, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.service.RecognizeNotes(c.Request.Context(), Author{UserID: user.ID, Email: user.Email}, target, image, contentType(fh))
	if err != nil {
		h.respondError(c, "Failed to recognize notes", err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// analyzeInterview handles POST /api/v1/events/analyze-interview
func (h *Handler) analyzeInterview(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	var req InterviewAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := h.service.AnalyzeInterview(c.Request.Context(), Author{UserID: user.ID, Email: user.Email}, &req)
	if err != nil {
		h.respondError(c, "Failed to analyze interview", err)
		return
	}
	c.JSON(http.StatusCreated, event)
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

func targetFromForm(c *gin.Context) (Target, error) {
	// the project is taken from the week when omitted
	var projectID uuid.UUID
	if raw := c.PostForm("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Target{}, apperr.Validation("invalid project_id")
		}
		projectID = id
	}
	weekID, err := uuid.Parse(c.PostForm("week_id"))
	if err != nil {
		return Target{}, apperr.Validation("invalid week_id")
	}
	taskID := c.PostForm("task_id")
	if taskID == "" {
		return Target{}, apperr.Validation("task_id is required")
	}
	return Target{ProjectID: projectID, WeekID: weekID, TaskID: taskID}, nil
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
