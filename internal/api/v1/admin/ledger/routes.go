package ledger

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.RouterGroup, h *Handler) {
	router.GET("/ledger", h.ListEntries)
	router.GET("/ledger/export", h.ExportEntries)
	router.GET("/ledger/verify", h.VerifyEntries)
}
