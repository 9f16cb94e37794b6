package settings

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/auth"
	"audit-portal/portal-backend/pkg/apperr"
)

// Handler handles profile and company profile requests
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/profile", h.getProfile)
	r.PUT("/profile", h.updateProfile)
	r.GET("/profiles/:id", h.getPublicProfile)

	r.GET("/projects/:id/company-profile", h.getCompanyProfile)
	r.PUT("/projects/:id/company-profile", h.updateCompanyProfile)
}

// getProfile handles GET /api/v1/profile
func (h *Handler) getProfile(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	profile, err := h.service.GetProfile(c.Request.Context(), user.ID, user.Email)
	if err != nil {
		h.respondError(c, "Failed to get profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// updateProfile handles PUT /api/v1/profile
func (h *Handler) updateProfile(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := h.service.UpdateProfile(c.Request.Context(), user.ID, user.Email, &req)
	if err != nil {
		h.respondError(c, "Failed to update profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// getPublicProfile handles GET /api/v1/profiles/:id
func (h *Handler) getPublicProfile(c *gin.Context) {
	id, ok := uuidParam(c)
	if !ok {
		return
	}
	profile, err := h.service.GetPublicProfile(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// getCompanyProfile handles GET /api/v1/projects/:id/company-profile
func (h *Handler) getCompanyProfile(c *gin.Context) {
	projectID, ok := uuidParam(c)
	if !ok {
		return
	}
	profile, err := h.service.GetCompanyProfile(c.Request.Context(), projectID)
	if err != nil {
		h.respondError(c, "Failed to get company profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// updateCompanyProfile handles PUT /api/v1/projects/:id/company-profile
func (h *Handler) updateCompanyProfile(c *gin.Context) {
	user, ok := auth.MustUser(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c)
	if !ok {
		return
	}
	var req UpdateCompanyProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := h.service.UpdateCompanyProfile(c.Request.Context(), user.ID, projectID, &req)
	if err != nil {
		h.respondError(c, "Failed to update company profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func uuidParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}
