package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tutorhub/internal/telemetry"
)

// HubStats is a point-in-time view of the hub's in-memory state.
type HubStats struct {
	Connections int `json:"connections"`
	CallRooms   int `json:"callRooms"`
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, stats func() HubStats, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug")
	debug.GET("/hub", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats())
	})
	debug.POST("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c),
			map[string]any{"path": c.FullPath()})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
