package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/tracking-backend-go/internal/middleware"
	"github.com/jengzang/tracking-backend-go/internal/models"
	"github.com/jengzang/tracking-backend-go/internal/service"
	"github.com/jengzang/tracking-backend-go/pkg/response"
)

// TransitionCache is the engine's administrative reset
type TransitionCache interface {
	ClearTransitionCache()
}

// GeofenceHandler handles HTTP requests for geofences
type GeofenceHandler struct {
	service *service.GeofenceService
	cache   TransitionCache
}

// NewGeofenceHandler creates a new geofence handler
func NewGeofenceHandler(service *service.GeofenceService, cache TransitionCache) *GeofenceHandler {
	return &GeofenceHandler{service: service, cache: cache}
}

// Create handles POST /api/v1/geofences
func (h *GeofenceHandler) Create(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var in models.GeofenceInput
	if err := c.ShouldBindJSON(&in); err != nil {
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

	g, err := h.service.Create(c.Request.Context(), claims.UserID(), in)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Created(c, g)
}

// List handles GET /api/v1/organizations/:orgId/geofences
func (h *GeofenceHandler) List(c *gin.Context) {
	var filter models.GeofenceFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	filter.OrganizationID = c.Param("orgId")

	geofences, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, geofences)
}

// Get handles GET /api/v1/geofences/:id
func (h *GeofenceHandler) Get(c *gin.Context) {
	g, ok := h.load(c)
	if !ok {
		return
	}
	response.Success(c, g)
}

// Update handles PATCH /api/v1/geofences/:id
func (h *GeofenceHandler) Update(c *gin.Context) {
	g, ok := h.load(c)
	if !ok {
		return
	}

	var upd models.GeofenceUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	updated, err := h.service.Update(c.Request.Context(), g.ID, upd)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, updated)
}

// Delete handles DELETE /api/v1/geofences/:id
func (h *GeofenceHandler) Delete(c *gin.Context) {
	g, ok := h.load(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), g.ID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"id": g.ID, "deleted": true})
}

// Check handles GET /api/v1/geofences/check?lat=&lon=
func (h *GeofenceHandler) Check(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		response.BadRequest(c, "lat and lon must be numbers")
		return
	}

	orgID := c.DefaultQuery("organizationId", claims.OrganizationID)
	if orgID != claims.OrganizationID {
		response.Forbidden(c, "organization access denied")
		return
	}

	geofences, err := h.service.FindContaining(c.Request.Context(), orgID, lat, lon)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"inside":    len(geofences) > 0,
		"geofences": geofences,
	})
}

// ClearCache handles POST /api/v1/geofences/cache/clear.
// The tracker is process-wide, so this resets every organization's state.
func (h *GeofenceHandler) ClearCache(c *gin.Context) {
	h.cache.ClearTransitionCache()
	response.Success(c, gin.H{"cleared": true})
}

// load fetches the :id geofence and checks it belongs to the caller's organization
func (h *GeofenceHandler) load(c *gin.Context) (*models.Geofence, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return nil, false
	}

	g, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return nil, false
	}
	if g.OrganizationID != claims.OrganizationID {
		response.Forbidden(c, "organization access denied")
		return nil, false
	}
	return g, true
}
