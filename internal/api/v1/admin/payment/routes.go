package payment

import "github.com/gin-gonic/gin"

func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	paymentGroup := r.Group("/payments")
	{
		paymentGroup.POST("/:id/refund", h.RefundPayment)
		paymentGroup.POST("/confirm", h.ConfirmPayment)
		paymentGroup.POST("/fail", h.FailPayment)
	}
}
