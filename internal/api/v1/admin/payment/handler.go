package payment

import (
	"net/http"

	"payrank-backend/internal/api/v1/common"
	"payrank-backend/internal/middleware"
	"payrank-backend/internal/services"
	"payrank-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	settlement *services.SettlementService
}

func NewHandler(settlement *services.SettlementService) *Handler {
	return &Handler{settlement: settlement}
}

// RefundPayment godoc
// @Summary Refund a completed payment
// @Description Lowers the user's spend by the payment amount, never below zero. Badges are kept.
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path int true "Payment ID"
// @Success 200 {object} utils.Response{data=services.RefundResult}
// @Failure 404 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /admin/payments/{id}/refund [post]
func (h *Handler) RefundPayment(c *gin.Context) {
	id, ok := common.UintParam(c, "id")
	if !ok {
		return
	}
	res, err := h.settlement.RefundPayment(c.Request.Context(), id, c.GetString(middleware.ContextOperator))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	message := "Payment refunded successfully"
	if res.Duplicate {
		message = "Payment was already refunded"
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse(message, res))
}

// ConfirmPayment godoc
// @Summary Settle a payment by hand
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body ConfirmPaymentRequest true "Confirmation"
// @Success 200 {object} utils.Response{data=services.SettlementResult}
// @Router /admin/payments/confirm [post]
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	res, err := h.settlement.SettlePayment(c.Request.Context(), services.SettleRequest{
		UserID:    req.UserID,
		Amount:    req.Amount,
		Reference: req.Reference,
		Currency:  req.Currency,
		Operator:  c.GetString(middleware.ContextOperator),
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	message := "Payment settled successfully"
	if res.Duplicate {
		message = "Payment was already settled"
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse(message, res))
}

// FailPayment marks a pending payment failed.
func (h *Handler) FailPayment(c *gin.Context) {
	var req FailPaymentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if err := h.settlement.OnGatewayFailed(c.Request.Context(), req.Reference, req.Reason); err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Payment marked as failed", nil))
}
