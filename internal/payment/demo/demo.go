// Package demo is a gateway that approves every charge. It backs DEMO_MODE and local development.
package demo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"payrank-backend/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const Name = "demo"

// DeclineMethod makes Charge report a declined card.
const DeclineMethod = "demo_decline"

// DefaultSecret signs webhooks when no secret is configured.
const DefaultSecret = "payrank-demo-webhook"

type Driver struct {
	// Secret signs webhook bodies. A driver with no secret rejects every webhook.
	Secret string
}

func NewDriver(secret string) *Driver {
	if secret == "" {
		secret = DefaultSecret
	}
	return &Driver{Secret: secret}
}

func (d *Driver) Name() string {
	return Name
}

func (d *Driver) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, payment.NewGatewayError(Name, err)
	}

	ref := req.IdempotencyKey
	if ref == "" {
		ref = uuid.NewString()
	}
	if !strings.HasPrefix(ref, "demo_") {
		ref = "demo_" + ref
	}

	res := &payment.ChargeResult{
		Reference: ref,
		Status:    payment.ChargeSucceeded,
		Metadata: map[string]interface{}{
			"gateway": Name,
			"userId":  req.UserID,
		},
	}
	if req.PaymentMethod == DeclineMethod {
		res.Status = payment.ChargeFailed
		res.Reason = "card declined"
	}
	return res, nil
}

type webhookBody struct {
	Type      string `json:"type"`
	Reference string `json:"reference"`
	UserID    uint   `json:"userId"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reason    string `json:"reason"`
}

// Sign returns the signature ParseWebhook expects for payload.
func (d *Driver) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(d.Secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (d *Driver) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if d.Secret == "" || signature == "" || !hmac.Equal([]byte(signature), []byte(d.Sign(payload))) {
		return nil, payment.ErrInvalidSignature
	}

	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode demo webhook: %w", err)
	}
	if body.Reference == "" {
		return nil, errors.New("demo webhook: missing reference")
	}

	ev := &payment.Event{
		Reference: body.Reference,
		UserID:    body.UserID,
		Currency:  body.Currency,
		Reason:    body.Reason,
	}
	switch body.Type {
	case string(payment.EventConfirmed):
		amount, err := decimal.NewFromString(body.Amount)
		if err != nil {
			return nil, fmt.Errorf("demo webhook: invalid amount %q: %w", body.Amount, err)
		}
		ev.Type = payment.EventConfirmed
		ev.Amount = amount
	case string(payment.EventFailed):
		ev.Type = payment.EventFailed
	default:
		return nil, payment.ErrIgnoredEvent
	}
	return ev, nil
}
