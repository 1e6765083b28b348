package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/tracking-backend-go/internal/realtime"
)

// StreamHandler serves an organization's live events as server-sent events
type StreamHandler struct {
	hub       *realtime.Hub
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(hub *realtime.Hub, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StreamHandler{hub: hub, heartbeat: heartbeat}
}

// Stream handles GET /api/v1/organizations/:orgId/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	sub := h.hub.Subscribe(c.Param("orgId"))
	defer sub.Close()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.SSEvent("ready", gin.H{"organizationId": c.Param("orgId")})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-sub.Messages():
			if !ok {
				return false
			}
			c.SSEvent(string(msg.Type), msg)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", t.UTC().Unix())
			return true
		}
	})
}
