package leaderboard

import (
	"net/http"
	"time"

	"payrank-backend/internal/api/v1/common"
	"payrank-backend/internal/api/v1/stream"
	"payrank-backend/internal/middleware"
	"payrank-backend/internal/notify"
	"payrank-backend/internal/rank"
	"payrank-backend/internal/services"
	"payrank-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	leaderboard *services.LeaderboardService
	hub         *notify.Hub
	heartbeat   time.Duration
}

func NewHandler(lb *services.LeaderboardService, hub *notify.Hub, heartbeat time.Duration) *Handler {
	return &Handler{leaderboard: lb, hub: hub, heartbeat: heartbeat}
}

// Global godoc
// @Summary Global leaderboard
// @Description Users ordered by cumulative spend. Tied users share a rank.
// @Tags leaderboard
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} utils.Response{data=services.Board}
// @Failure 400 {object} utils.Response
// @Router /leaderboard/global [get]
func (h *Handler) Global(c *gin.Context) {
	h.board(c, rank.WindowGlobal)
}

// Weekly godoc
// @Summary Weekly leaderboard
// @Description Sum of completed payments since Monday 00:00.
// @Tags leaderboard
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} utils.Response{data=services.Board}
// @Router /leaderboard/weekly [get]
func (h *Handler) Weekly(c *gin.Context) {
	h.board(c, rank.WindowWeekly)
}

// Monthly godoc
// @Summary Monthly leaderboard
// @Tags leaderboard
// @Produce json
// @Success 200 {object} utils.Response{data=services.Board}
// @Router /leaderboard/monthly [get]
func (h *Handler) Monthly(c *gin.Context) {
	h.board(c, rank.WindowMonthly)
}

func (h *Handler) board(c *gin.Context, w rank.Window) {
	page, limit, ok := common.Pagination(c)
	if !ok {
		return
	}
	board, err := h.leaderboard.WindowedLeaderboard(c.Request.Context(), w, page, limit)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Leaderboard retrieved successfully", board))
}

// Top godoc
// @Summary Top spenders
// @Tags leaderboard
// @Produce json
// @Param limit query int false "Number of users, at most 100" default(10)
// @Success 200 {object} utils.Response{data=TopResponse}
// @Router /leaderboard/top [get]
func (h *Handler) Top(c *gin.Context) {
	n, ok := common.PositiveInt(c, "limit", services.DefaultTop)
	if !ok {
		return
	}
	entries, err := h.leaderboard.Top(c.Request.Context(), n)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Top users retrieved successfully", TopResponse{Users: entries}))
}

// Stats godoc
// @Summary Payment totals for all time, this week and this month
// @Tags leaderboard
// @Produce json
// @Success 200 {object} utils.Response{data=services.Stats}
// @Router /leaderboard/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.leaderboard.PaymentStats(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Statistics retrieved successfully", stats))
}

// Position godoc
// @Summary Current user's rank on every board
// @Tags leaderboard
// @Produce json
// @Security Bearer
// @Success 200 {object} utils.Response{data=services.Position}
// @Failure 401 {object} utils.Response
// @Router /leaderboard/position [get]
func (h *Handler) Position(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}
	pos, err := h.leaderboard.UserPosition(c.Request.Context(), user.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Position retrieved successfully", pos))
}

// Nearby godoc
// @Summary Competitors just above and below the current user
// @Tags leaderboard
// @Produce json
// @Security Bearer
// @Param above query int false "Users above" default(3)
// @Param below query int false "Users below" default(3)
// @Success 200 {object} utils.Response{data=services.Nearby}
// @Failure 401 {object} utils.Response
// @Router /leaderboard/nearby [get]
func (h *Handler) Nearby(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}
	above, ok := common.NonNegativeInt(c, "above", services.DefaultNearby)
	if !ok {
		return
	}
	below, ok := common.NonNegativeInt(c, "below", services.DefaultNearby)
	if !ok {
		return
	}
	nearby, err := h.leaderboard.NearbyCompetitors(c.Request.Context(), user.ID, above, below)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Competitors retrieved successfully", nearby))
}

// Stream godoc
// @Summary Live leaderboard updates
// @Description Server-sent events; every settlement emits leaderboard_update.
// @Tags leaderboard
// @Produce text/event-stream
// @Router /leaderboard/stream [get]
func (h *Handler) Stream(c *gin.Context) {
	stream.Serve(c, h.hub, h.heartbeat, notify.TopicLeaderboard)
}
