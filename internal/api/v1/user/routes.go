package user

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup, h *Handler) {
	me := router.Group("/users/me")
	me.GET("", h.CurrentUser)
	me.PATCH("", h.UpdateProfile)
	me.GET("/stream", h.Stream)
}
