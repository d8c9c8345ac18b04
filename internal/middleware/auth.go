package middleware

import (
	"context"
	"errors"
	"net/http"

	"payrank-backend/internal/models"
	"payrank-backend/internal/services"
	"payrank-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

const (
	ContextUser   = "user"
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// UserLoader resolves the account behind a token.
type UserLoader interface {
	FindUser(ctx context.Context, userID uint) (*models.User, error)
}

func AuthMiddleware(secret string, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := utils.ExtractToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, err.Error()))
			return
		}

		claims, err := utils.ValidateToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Invalid or expired token"))
			return
		}

		userID, err := utils.ClaimsUserID(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Invalid user ID in token"))
			return
		}

		user, err := users.FindUser(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "User not found"))
				return
			}
			utils.RespondError(c, err)
			return
		}

		c.Set(ContextUser, user)
		c.Set(ContextUserID, user.ID)
		c.Set(ContextRole, utils.ClaimsRole(claims))
		c.Next()
	}
}

// CurrentUser returns the account set by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
