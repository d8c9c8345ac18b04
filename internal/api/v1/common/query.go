// Package common holds request helpers shared by the v1 handlers.
package common

import (
	"net/http"
	"strconv"

	"payrank-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// Pagination reads page and limit, writing a 400 response and returning ok=false when either is
// not a positive integer. Oversized limits are clamped by the services.
func Pagination(c *gin.Context) (page, limit int, ok bool) {
	page, ok = PositiveInt(c, "page", 1)
	if !ok {
		return 0, 0, false
	}
	limit, ok = PositiveInt(c, "limit", 20)
	if !ok {
		return 0, 0, false
	}
	return page, limit, true
}

// PositiveInt reads an optional integer query parameter that must be >= 1.
func PositiveInt(c *gin.Context, key string, def int) (int, bool) {
	return intQuery(c, key, def, 1)
}

// NonNegativeInt reads an optional integer query parameter that must be >= 0.
func NonNegativeInt(c *gin.Context, key string, def int) (int, bool) {
	return intQuery(c, key, def, 0)
}

func intQuery(c *gin.Context, key string, def, min int) (int, bool) {
	raw, exists := c.GetQuery(key)
	if !exists || raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		c.AbortWithStatusJSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid "+key))
		return 0, false
	}
	return n, true
}

// UintParam reads a positive integer path parameter.
func UintParam(c *gin.Context, key string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(key), 10, 64)
	if err != nil || n == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid "+key))
		return 0, false
	}
	return uint(n), true
}
