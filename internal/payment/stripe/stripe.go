// Package stripe charges cards through Stripe payment intents.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"payrank-backend/internal/payment"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
)

const Name = "stripe"

const (
	eventSucceeded = "payment_intent.succeeded"
	eventFailed    = "payment_intent.payment_failed"
)

type Driver struct {
	api           *client.API
	webhookSecret string
}

// Backends routes every Stripe API family through httpClient.
func Backends(httpClient *http.Client) *stripeapi.Backends {
	cfg := func() *stripeapi.BackendConfig {
		return &stripeapi.BackendConfig{HTTPClient: httpClient}
	}
	return &stripeapi.Backends{
		API:     stripeapi.GetBackendWithConfig(stripeapi.APIBackend, cfg()),
		Connect: stripeapi.GetBackendWithConfig(stripeapi.ConnectBackend, cfg()),
		Uploads: stripeapi.GetBackendWithConfig(stripeapi.UploadsBackend, cfg()),
	}
}

// NewDriver builds a driver. backends may be nil to talk to the real Stripe API.
func NewDriver(secretKey, webhookSecret string, backends *stripeapi.Backends) *Driver {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Driver{api: api, webhookSecret: webhookSecret}
}

func (d *Driver) Name() string {
	return Name
}

func (d *Driver) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:             stripeapi.Int64(payment.ToMinorUnits(req.Amount)),
		Currency:           stripeapi.String(strings.ToLower(req.Currency)),
		Confirm:            stripeapi.Bool(true),
		PaymentMethodTypes: []*string{stripeapi.String("card")},
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripeapi.String(req.PaymentMethod)
	}
	if req.Description != "" {
		params.Description = stripeapi.String(req.Description)
	}
	params.Context = ctx
	params.AddMetadata("userId", strconv.FormatUint(uint64(req.UserID), 10))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := d.api.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripeapi.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripeapi.ErrorTypeCard {
			// Declines come back as card errors; they are a result, not an outage.
			return &payment.ChargeResult{
				Status: payment.ChargeFailed,
				Reason: stripeErr.Msg,
				Metadata: map[string]interface{}{
					"gateway":      Name,
					"decline_code": string(stripeErr.DeclineCode),
				},
			}, nil
		}
		return nil, payment.NewGatewayError(Name, err)
	}

	return &payment.ChargeResult{
		Reference: pi.ID,
		Status:    chargeStatus(pi.Status),
		Metadata: map[string]interface{}{
			"gateway":        Name,
			"payment_intent": pi.ID,
			"stripe_status":  string(pi.Status),
		},
	}, nil
}

func chargeStatus(s stripeapi.PaymentIntentStatus) payment.ChargeStatus {
	switch s {
	case stripeapi.PaymentIntentStatusSucceeded:
		return payment.ChargeSucceeded
	case stripeapi.PaymentIntentStatusCanceled, stripeapi.PaymentIntentStatusRequiresPaymentMethod:
		return payment.ChargeFailed
	default:
		return payment.ChargePending
	}
}

func (d *Driver) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if err := webhook.ValidatePayload(payload, signature, d.webhookSecret); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}

	var event stripeapi.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode stripe event: %w", err)
	}
	if event.Type != eventSucceeded && event.Type != eventFailed {
		return nil, payment.ErrIgnoredEvent
	}
	if event.Data == nil {
		return nil, errors.New("stripe event has no data")
	}

	var pi stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}

	userID, err := strconv.ParseUint(pi.Metadata["userId"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("payment intent %s: invalid userId metadata: %w", pi.ID, err)
	}

	ev := &payment.Event{
		Type:      payment.EventConfirmed,
		Reference: pi.ID,
		UserID:    uint(userID),
		Amount:    payment.FromMinorUnits(pi.Amount),
		Currency:  strings.ToUpper(string(pi.Currency)),
	}
	if event.Type == eventFailed {
		ev.Type = payment.EventFailed
		if pi.LastPaymentError != nil {
			ev.Reason = pi.LastPaymentError.Msg
		}
	}
	return ev, nil
}
