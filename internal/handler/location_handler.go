package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/tracking-backend-go/internal/auth"
	"github.com/jengzang/tracking-backend-go/internal/middleware"
	"github.com/jengzang/tracking-backend-go/internal/models"
	"github.com/jengzang/tracking-backend-go/internal/service"
	"github.com/jengzang/tracking-backend-go/pkg/response"
)

// LocationHandler handles HTTP requests for location ingestion and queries
type LocationHandler struct {
	service *service.LocationService
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(service *service.LocationService) *LocationHandler {
	return &LocationHandler{service: service}
}

type batchRequest struct {
	Locations []models.LocationSample `json:"locations"`
}

// Ingest handles POST /api/v1/locations
func (h *LocationHandler) Ingest(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var sample models.LocationSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if !scopeSample(c, claims, &sample) {
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), claims.UserID(), sample)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Created(c, result)
}

// IngestBatch handles POST /api/v1/locations/batch
func (h *LocationHandler) IngestBatch(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	for i := range req.Locations {
		if !scopeSample(c, claims, &req.Locations[i]) {
			return
		}
	}

	result, err := h.service.IngestBatch(c.Request.Context(), claims.UserID(), req.Locations)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Created(c, result)
}

// Live handles GET /api/v1/organizations/:orgId/locations/live
func (h *LocationHandler) Live(c *gin.Context) {
	snapshots, err := h.service.LiveLocations(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, snapshots)
}

// History handles GET /api/v1/organizations/:orgId/users/:userId/locations.
// Members may only read their own history.
func (h *LocationHandler) History(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	userID := c.Param("userId")
	if userID != claims.UserID() && !claims.HasRole(auth.RoleOwner, auth.RoleAdmin, auth.RoleManager) {
		response.Forbidden(c, "cannot read another member's history")
		return
	}

	var filter models.LocationHistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	filter.UserID = userID
	filter.OrganizationID = c.Param("orgId")

	locations, err := h.service.History(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, locations)
}

// scopeSample fills in the caller's organization and rejects samples for another one
func scopeSample(c *gin.Context, claims *auth.Claims, sample *models.LocationSample) bool {
	if sample.OrganizationID == "" {
		sample.OrganizationID = claims.OrganizationID
	}
	if sample.OrganizationID != claims.OrganizationID {
		response.Forbidden(c, "organization access denied")
		return false
	}
	return true
}
