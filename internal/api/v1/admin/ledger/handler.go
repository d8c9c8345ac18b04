package ledger

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"payrank-backend/internal/api/v1/common"
	"payrank-backend/internal/models"
	"payrank-backend/internal/services"
	"payrank-backend/internal/store"
	"payrank-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	ledger *services.LedgerService
}

func NewHandler(ledger *services.LedgerService) *Handler {
	return &Handler{ledger: ledger}
}

// parseFilter reads the shared ledger filters. It writes a 400 and returns false on bad input.
func parseFilter(c *gin.Context) (store.LedgerFilter, bool) {
	var filter store.LedgerFilter

	if userIDStr, exists := c.GetQuery("user_id"); exists {
		userID, err := strconv.ParseUint(userIDStr, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid user_id"))
			return filter, false
		}
		uid := uint(userID)
		filter.UserID = &uid
	}

	if typeStr, exists := c.GetQuery("type"); exists {
		t := models.LedgerEntryType(typeStr)
		if t != models.LedgerEntrySettlement && t != models.LedgerEntryRefund {
			c.AbortWithStatusJSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid type"))
			return filter, false
		}
		filter.Type = &t
	}

	if startTimeStr, exists := c.GetQuery("start_time"); exists {
		startTime, err := time.Parse(time.RFC3339, startTimeStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid start_time format"))
			return filter, false
		}
		filter.StartTime = &startTime
	}

	if endTimeStr, exists := c.GetQuery("end_time"); exists {
		endTime, err := time.Parse(time.RFC3339, endTimeStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid end_time format"))
			return filter, false
		}
		filter.EndTime = &endTime
	}

	return filter, true
}

// ListEntries godoc
// @Summary List ledger entries
// @Description Get a paginated list of ledger entries with filtering. Admin only.
// @Tags admin
// @Produce json
// @Security Bearer
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param user_id query int false "Filter by user ID"
// @Param type query string false "Filter by entry type (settlement, refund)"
// @Param start_time query string false "Filter by start time (RFC3339)"
// @Param end_time query string false "Filter by end time (RFC3339)"
// @Success 200 {object} utils.Response{data=LedgerListResponse}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /admin/ledger [get]
func (h *Handler) ListEntries(c *gin.Context) {
	page, limit, ok := common.Pagination(c)
	if !ok {
		return
	}
	filter, ok := parseFilter(c)
	if !ok {
		return
	}
	filter.Page, filter.Limit = page, limit

	entries, total, err := h.ledger.FindLedgerEntries(c.Request.Context(), filter)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	items := make([]LedgerListItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, LedgerListItem{
			ID:          e.ID,
			CreatedAt:   e.CreatedAt,
			UserID:      e.UserID,
			PaymentID:   e.PaymentID,
			Type:        e.Type,
			Amount:      e.Amount,
			SpendBefore: e.SpendBefore,
			SpendAfter:  e.SpendAfter,
			RankBefore:  e.RankBefore,
			RankAfter:   e.RankAfter,
			Operator:    e.Operator,
			Hash:        e.Hash,
		})
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Ledger entries retrieved successfully", LedgerListResponse{
		Entries: items,
		Total:   total,
		Page:    page,
		Limit:   limit,
	}))
}

// ExportEntries godoc
// @Summary Export ledger entries
// @Description Export every matching ledger entry to CSV. Admin only.
// @Tags admin
// @Produce text/csv
// @Security Bearer
// @Param user_id query int false "Filter by user ID"
// @Param type query string false "Filter by entry type"
// @Param start_time query string false "Filter by start time (RFC3339)"
// @Param end_time query string false "Filter by end time (RFC3339)"
// @Success 200 {string} string "CSV content"
// @Failure 400 {object} utils.Response
// @Router /admin/ledger/export [get]
func (h *Handler) ExportEntries(c *gin.Context) {
	filter, ok := parseFilter(c)
	if !ok {
		return
	}

	csvContent, err := h.ledger.ExportCSV(c.Request.Context(), filter)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	filename := fmt.Sprintf("ledger_%s.csv", time.Now().UTC().Format("20060102150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv", csvContent)
}

// VerifyEntries lists entries whose hash no longer matches their content.
func (h *Handler) VerifyEntries(c *gin.Context) {
	filter, ok := parseFilter(c)
	if !ok {
		return
	}
	ids, err := h.ledger.Tampered(c.Request.Context(), filter)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Ledger verified", VerifyResponse{Tampered: ids}))
}
