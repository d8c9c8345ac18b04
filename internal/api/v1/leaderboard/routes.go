package leaderboard

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the public boards on public and the per-user views on authorized.
func RegisterRoutes(public, authorized *gin.RouterGroup, h *Handler) {
	lb := public.Group("/leaderboard")
	lb.GET("/global", h.Global)
	lb.GET("/weekly", h.Weekly)
	lb.GET("/monthly", h.Monthly)
	lb.GET("/top", h.Top)
	lb.GET("/stats", h.Stats)
	lb.GET("/stream", h.Stream)

	me := authorized.Group("/leaderboard")
	me.GET("/position", h.Position)
	me.GET("/nearby", h.Nearby)
}
