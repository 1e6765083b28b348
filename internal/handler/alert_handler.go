package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/tracking-backend-go/internal/middleware"
	"github.com/jengzang/tracking-backend-go/internal/models"
	"github.com/jengzang/tracking-backend-go/internal/service"
	"github.com/jengzang/tracking-backend-go/pkg/response"
)

// AlertHandler handles HTTP requests for alerts
type AlertHandler struct {
	service *service.AlertService
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(service *service.AlertService) *AlertHandler {
	return &AlertHandler{service: service}
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

// SOS handles POST /api/v1/alerts/sos
func (h *AlertHandler) SOS(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var in service.SOSInput
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if in.OrganizationID == "" {
		in.OrganizationID = claims.OrganizationID
	}
	if in.OrganizationID != claims.OrganizationID {
		response.Forbidden(c, "organization access denied")
		return
	}

	alert, err := h.service.SOS(c.Request.Context(), claims.UserID(), in)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Created(c, alert)
}

// List handles GET /api/v1/organizations/:orgId/alerts
func (h *AlertHandler) List(c *gin.Context) {
	var filter models.AlertFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	page, err := h.service.List(c.Request.Context(), c.Param("orgId"), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, page)
}

// Acknowledge handles POST /api/v1/alerts/:id/acknowledge
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	h.update(c, func(id, userID string) (*models.Alert, error) {
		return h.service.Acknowledge(c.Request.Context(), id, userID)
	})
}

// Resolve handles POST /api/v1/alerts/:id/resolve
func (h *AlertHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	h.update(c, func(id, userID string) (*models.Alert, error) {
		return h.service.Resolve(c.Request.Context(), id, userID, req.Resolution)
	})
}

// Dismiss handles POST /api/v1/alerts/:id/dismiss
func (h *AlertHandler) Dismiss(c *gin.Context) {
	h.update(c, func(id, userID string) (*models.Alert, error) {
		return h.service.Dismiss(c.Request.Context(), id, userID)
	})
}

func (h *AlertHandler) update(c *gin.Context, apply func(id, userID string) (*models.Alert, error)) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	alert, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	if alert.OrganizationID != claims.OrganizationID {
		response.Forbidden(c, "organization access denied")
		return
	}

	updated, err := apply(alert.ID, claims.UserID())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, updated)
}
