package user

import (
	"net/http"
	"time"

	"payrank-backend/internal/api/v1/stream"
	"payrank-backend/internal/middleware"
	"payrank-backend/internal/models"
	"payrank-backend/internal/notify"
	"payrank-backend/internal/services"
	"payrank-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	users     *services.UserService
	hub       *notify.Hub
	heartbeat time.Duration
}

func NewHandler(users *services.UserService, hub *notify.Hub, heartbeat time.Duration) *Handler {
	return &Handler{users: users, hub: hub, heartbeat: heartbeat}
}

func (h *Handler) respond(c *gin.Context, message string, u *models.User) {
	ctx := c.Request.Context()
	badges, err := h.users.Badges(ctx, u.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	current, err := h.users.Rank(ctx, u)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse(message, UserResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		Avatar:       u.AvatarOrDefault(),
		TotalSpent:   u.CumulativeSpend,
		CurrentRank:  current,
		Badges:       badges,
		ProfileTheme: u.ThemeOrDefault(),
		IsAnonymous:  u.IsAnonymous,
		CreatedAt:    u.CreatedAt,
	}))
}

// CurrentUser godoc
// @Summary Get current user
// @Description Get current user's profile, spend, live global rank and badges
// @Tags user
// @Produce  json
// @Security Bearer
// @Success 200 {object} utils.Response{data=user.UserResponse}
// @Failure 401 {object} utils.Response
// @Router /users/me [get]
func (h *Handler) CurrentUser(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}
	h.respond(c, "User information retrieved successfully", u)
}

// UpdateProfile godoc
// @Summary Update display fields of the current user
// @Tags user
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body UpdateProfileRequest true "Fields to change"
// @Success 200 {object} utils.Response{data=user.UserResponse}
// @Failure 400 {object} utils.Response
// @Router /users/me [patch]
func (h *Handler) UpdateProfile(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	update := models.ProfileUpdate{
		DisplayName:  req.DisplayName,
		Avatar:       req.Avatar,
		IsAnonymous:  req.IsAnonymous,
		ProfileTheme: req.ProfileTheme,
	}
	if update.Empty() {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "No fields to update"))
		return
	}

	updated, err := h.users.UpdateProfile(c.Request.Context(), u.ID, update)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	h.respond(c, "Profile updated successfully", updated)
}

// Stream godoc
// @Summary Live leaderboard updates plus the user's own rank_change events
// @Tags user
// @Produce text/event-stream
// @Security Bearer
// @Router /users/me/stream [get]
func (h *Handler) Stream(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}
	stream.Serve(c, h.hub, h.heartbeat, notify.TopicLeaderboard, notify.UserTopic(u.ID))
}
