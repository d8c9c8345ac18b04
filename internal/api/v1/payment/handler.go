package payment

import (
	"errors"
	"io"
	"net/http"

	"payrank-backend/internal/api/v1/common"
	"payrank-backend/internal/middleware"
	"payrank-backend/internal/models"
	gateway "payrank-backend/internal/payment"
	"payrank-backend/internal/services"
	"payrank-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// Signature headers checked in order; the first non-empty one is passed to the driver.
var signatureHeaders = []string{"Stripe-Signature", "X-Payrank-Signature"}

type Handler struct {
	settlement  *services.SettlementService
	leaderboard *services.LeaderboardService
	driver      gateway.Driver
}

func NewHandler(settlement *services.SettlementService, lb *services.LeaderboardService, driver gateway.Driver) *Handler {
	return &Handler{settlement: settlement, leaderboard: lb, driver: driver}
}

// ProcessPayment godoc
// @Summary Pay to climb the leaderboard
// @Description Charges the gateway and settles the payment. A charge still awaiting confirmation returns 202.
// @Tags payment
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body ProcessPaymentRequest true "Payment"
// @Success 200 {object} utils.Response{data=services.SettlementResult}
// @Success 202 {object} utils.Response{data=services.SettlementResult}
// @Failure 400 {object} utils.Response
// @Failure 402 {object} utils.Response
// @Router /payments [post]
func (h *Handler) ProcessPayment(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	var req ProcessPaymentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	res, err := h.settlement.ProcessPayment(c.Request.Context(), services.ProcessRequest{
		UserID:        user.ID,
		Username:      user.Username,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	if res.Status != models.PaymentStatusCompleted {
		c.JSON(http.StatusAccepted, utils.NewResponse(http.StatusAccepted, "Payment is awaiting confirmation", res))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Payment processed successfully", res))
}

// History godoc
// @Summary Current user's payments, newest first
// @Tags payment
// @Produce json
// @Security Bearer
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} utils.Response{data=services.PaymentPage}
// @Router /payments/history [get]
func (h *Handler) History(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}
	page, limit, ok := common.Pagination(c)
	if !ok {
		return
	}
	history, err := h.leaderboard.PaymentHistory(c.Request.Context(), user.ID, page, limit)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Payment history retrieved successfully", history))
}

// Webhook handles the gateway callback. Replayed confirmations are acknowledged without effect.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Unreadable body"))
		return
	}

	var signature string
	for _, name := range signatureHeaders {
		if signature = c.GetHeader(name); signature != "" {
			break
		}
	}

	ev, err := h.driver.ParseWebhook(payload, signature)
	switch {
	case errors.Is(err, gateway.ErrIgnoredEvent):
		c.JSON(http.StatusOK, utils.NewSuccessResponse("Event ignored", WebhookResponse{Received: true}))
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, err.Error()))
		return
	}

	ctx := c.Request.Context()
	switch ev.Type {
	case gateway.EventConfirmed:
		_, err = h.settlement.OnGatewayConfirmed(ctx, *ev)
	case gateway.EventFailed:
		err = h.settlement.OnGatewayFailed(ctx, ev.Reference, ev.Reason)
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("success", WebhookResponse{Received: true, Event: string(ev.Type)}))
}
