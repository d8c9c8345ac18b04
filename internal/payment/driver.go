package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrIgnoredEvent marks a well-formed webhook the service does not act on.
	ErrIgnoredEvent = errors.New("webhook event ignored")
)

type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargePending   ChargeStatus = "pending"
	ChargeFailed    ChargeStatus = "failed"
)

type ChargeRequest struct {
	UserID        uint
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	// IdempotencyKey is forwarded so a retried charge is not billed twice.
	IdempotencyKey string
	Description    string
}

type ChargeResult struct {
	Reference string
	Status    ChargeStatus
	Reason    string
	Metadata  map[string]interface{}
}

type EventType string

const (
	EventConfirmed EventType = "confirmed"
	EventFailed    EventType = "failed"
)

// Event is a gateway callback reduced to what settlement needs.
type Event struct {
	Type      EventType
	Reference string
	UserID    uint
	Amount    decimal.Decimal
	Currency  string
	Reason    string
}

// Driver is the interface that all payment gateways must implement
type Driver interface {
	Name() string

	// Charge asks the gateway to collect req.Amount. A declined charge is reported through
	// ChargeResult.Status, transport and API failures through a *GatewayError.
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)

	// ParseWebhook verifies the callback signature and decodes the event.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// GatewayError wraps a failure returned by a payment gateway.
type GatewayError struct {
	Gateway string
	Err     error
}

func NewGatewayError(gateway string, err error) *GatewayError {
	return &GatewayError{Gateway: gateway, Err: err}
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s error: %v", e.Gateway, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ToMinorUnits converts an amount with at most two decimals to cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
