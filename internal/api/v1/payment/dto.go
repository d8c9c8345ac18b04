package payment

import "github.com/shopspring/decimal"

type ProcessPaymentRequest struct {
	// Amount accepts a JSON number or a decimal string.
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Currency      string          `json:"currency" binding:"omitempty,iso4217"`
	PaymentMethod string          `json:"paymentMethod" binding:"max=100"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Event    string `json:"event"`
}
