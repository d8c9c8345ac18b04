package ledger

import (
	"time"

	"payrank-backend/internal/models"

	"github.com/shopspring/decimal"
)

type LedgerListItem struct {
	ID          uint                   `json:"id"`
	CreatedAt   time.Time              `json:"created_at"`
	UserID      uint                   `json:"user_id"`
	PaymentID   uint                   `json:"payment_id"`
	Type        models.LedgerEntryType `json:"type"`
	Amount      decimal.Decimal        `json:"amount"`
	SpendBefore decimal.Decimal        `json:"spend_before"`
	SpendAfter  decimal.Decimal        `json:"spend_after"`
	RankBefore  int                    `json:"rank_before"`
	RankAfter   int                    `json:"rank_after"`
	Operator    string                 `json:"operator"`
	Hash        string                 `json:"hash"`
}

type LedgerListResponse struct {
	Entries []LedgerListItem `json:"entries"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
}

type VerifyResponse struct {
	Tampered []uint `json:"tampered"`
}
