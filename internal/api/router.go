package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jengzang/tracking-backend-go/internal/auth"
	"github.com/jengzang/tracking-backend-go/internal/handler"
	"github.com/jengzang/tracking-backend-go/internal/metrics"
	"github.com/jengzang/tracking-backend-go/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by SetupRouter
type Handlers struct {
	Geofences *handler.GeofenceHandler
	Locations *handler.LocationHandler
	Alerts    *handler.AlertHandler
	Stream    *handler.StreamHandler
}

// Options configures the router's middleware
type Options struct {
	Logger   *slog.Logger
	Tokens   middleware.TokenParser
	Limiter  *middleware.RateLimiter // nil disables rate limiting
	Gatherer prometheus.Gatherer     // nil disables /metrics
}

// SetupRouter 设置路由
func SetupRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logger(opts.Logger), gin.Recovery())

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Tracking Backend API is running",
		})
	})

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(opts.Gatherer)))
	}

	managers := middleware.RequireRole(auth.RoleOwner, auth.RoleAdmin, auth.RoleManager)
	admins := middleware.RequireRole(auth.RoleOwner, auth.RoleAdmin)

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(middleware.Auth(opts.Tokens))
	if opts.Limiter != nil {
		api.Use(middleware.RateLimit(opts.Limiter))
	}
	{
		geofences := api.Group("/geofences")
		{
			geofences.POST("", managers, h.Geofences.Create)
			geofences.GET("/check", h.Geofences.Check)
			geofences.POST("/cache/clear", admins, h.Geofences.ClearCache)
			geofences.GET("/:id", h.Geofences.Get)
			geofences.PATCH("/:id", managers, h.Geofences.Update)
			geofences.DELETE("/:id", managers, h.Geofences.Delete)
		}

		locations := api.Group("/locations")
		{
			locations.POST("", h.Locations.Ingest)
			locations.POST("/batch", h.Locations.IngestBatch)
		}

		alerts := api.Group("/alerts")
		{
			alerts.POST("/sos", h.Alerts.SOS)
			alerts.POST("/:id/acknowledge", managers, h.Alerts.Acknowledge)
			alerts.POST("/:id/resolve", managers, h.Alerts.Resolve)
			alerts.POST("/:id/dismiss", managers, h.Alerts.Dismiss)
		}

		orgs := api.Group("/organizations/:orgId")
		orgs.Use(middleware.RequireOrganization("orgId"))
		{
			orgs.GET("/geofences", h.Geofences.List)
			orgs.GET("/locations/live", h.Locations.Live)
			orgs.GET("/users/:userId/locations", h.Locations.History)
			orgs.GET("/alerts", h.Alerts.List)
			if h.Stream != nil {
				orgs.GET("/stream", h.Stream.Stream)
			}
		}
	}

	return r
}
