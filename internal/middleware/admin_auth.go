package middleware

import (
	"fmt"
	"net/http"

	"payrank-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ContextOperator = "operator"

// AdminAuthMiddleware validates that the user has admin privileges. Admins are recognised by
// the role claim; the account itself is loaded when it exists to name the operator.
func AdminAuthMiddleware(secret string, users UserLoader, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := utils.ExtractToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, err.Error()))
			return
		}

		claims, err := utils.ValidateToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, utils.NewErrorResponse(http.StatusForbidden, "Invalid or expired token"))
			return
		}

		userID, _ := utils.ClaimsUserID(claims)
		if utils.ClaimsRole(claims) != utils.RoleAdmin {
			log.Warn("unauthorized admin access attempt",
				zap.Uint("user_id", userID),
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusForbidden, utils.NewErrorResponse(http.StatusForbidden, "Forbidden: Admins only"))
			return
		}

		operator := fmt.Sprintf("admin:%d", userID)
		if users != nil && userID != 0 {
			if user, err := users.FindUser(c.Request.Context(), userID); err == nil {
				c.Set(ContextUser, user)
				operator = user.Username
			}
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextRole, utils.RoleAdmin)
		c.Set(ContextOperator, operator)
		c.Next()
	}
}
