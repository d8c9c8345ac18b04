package payment

import "github.com/gin-gonic/gin"

func RegisterRoutes(public, authorized *gin.RouterGroup, h *Handler) {
	public.POST("/payments/webhook", h.Webhook)

	payments := authorized.Group("/payments")
	payments.POST("", h.ProcessPayment)
	payments.GET("/history", h.History)
}
