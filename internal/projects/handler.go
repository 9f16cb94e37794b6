package projects

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/auth"
	"audit-portal/portal-backend/pkg/apperr"
)

// Handler handles HTTP requests for projects
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new project handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers project routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	projects := router.Group("/projects")
	{
		projects.GET("", h.listProjects)
		projects.POST("", h.createProject)
		projects.GET("/:id", h.getProject)
		projects.PATCH("/:id", h.updateProject)
		projects.DELETE("/:id", h.deleteProject)
		projects.POST("/:id/regenerate", h.regeneratePlan)
		projects.GET("/:id/share", h.shareLink)
	}
}

// listProjects handles GET /api/v1/projects
func (h *Handler) listProjects(c *gin.Context) {
	projects, err := h.service.ListProjects(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list projects", err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// createProject handles POST /api/v1/projects
func (h *Handler) createProject(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detail, err := h.service.CreateProject(c.Request.Context(), user.ID, &req)
	if err != nil {
		h.respondError(c, "Failed to create project", err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

// getProject handles GET /api/v1/projects/:id
func (h *Handler) getProject(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	detail, err := h.service.GetProjectDetail(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get project", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// updateProject handles PATCH /api/v1/projects/:id
func (h *Handler) updateProject(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.service.UpdateProject(c.Request.Context(), user.ID, id, &req)
	if err != nil {
		h.respondError(c, "Failed to update project", err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// deleteProject handles DELETE /api/v1/projects/:id
func (h *Handler) deleteProject(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteProject(c.Request.Context(), user.ID, id); err != nil {
		h.respondError(c, "Failed to delete project", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// regeneratePlan handles POST /api/v1/projects/:id/regenerate
func (h *Handler) regeneratePlan(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	detail, err := h.service.RegeneratePlan(c.Request.Context(), user.ID, id)
	if err != nil {
		h.respondError(c, "Failed to regenerate plan", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// shareLink handles GET /api/v1/projects/:id/share
func (h *Handler) shareLink(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	link, err := h.service.ShareLink(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to build share link", err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) projectID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return uuid.Nil, false
	}
	return id, true
}
