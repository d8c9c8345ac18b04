package payment

import "github.com/shopspring/decimal"

// ConfirmPaymentRequest records a payment confirmed outside the webhook, e.g. by support.
type ConfirmPaymentRequest struct {
	Reference string          `json:"reference" binding:"required,max=100"`
	UserID    uint            `json:"userId" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Currency  string          `json:"currency" binding:"omitempty,iso4217"`
}

type FailPaymentRequest struct {
	Reference string `json:"reference" binding:"required,max=100"`
	Reason    string `json:"reason" binding:"max=500"`
}
