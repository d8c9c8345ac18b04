package demo

import (
	"context"
	"testing"

	"payrank-backend/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharge(t *testing.T) {
	d := NewDriver("")

	res, err := d.Charge(context.Background(), payment.ChargeRequest{UserID: 7, Amount: decimal.NewFromInt(10), IdempotencyKey: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "demo_abc", res.Reference)
	assert.Equal(t, payment.ChargeSucceeded, res.Status)

	res, err = d.Charge(context.Background(), payment.ChargeRequest{UserID: 7, Amount: decimal.NewFromInt(10), PaymentMethod: DeclineMethod})
	require.NoError(t, err)
	assert.Equal(t, payment.ChargeFailed, res.Status)
	assert.NotEmpty(t, res.Reason)
}

func TestChargeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDriver("").Charge(ctx, payment.ChargeRequest{})
	var gwErr *payment.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, Name, gwErr.Gateway)
}

func TestParseWebhook(t *testing.T) {
	d := NewDriver("s3cret")
	body := []byte(`{"type":"confirmed","reference":"pay_123","userId":3,"amount":"100.50","currency":"USD"}`)

	ev, err := d.ParseWebhook(body, d.Sign(body))
	require.NoError(t, err)
	assert.Equal(t, payment.EventConfirmed, ev.Type)
	assert.Equal(t, "pay_123", ev.Reference)
	assert.Equal(t, uint(3), ev.UserID)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("100.5")))

	_, err = d.ParseWebhook(body, "bogus")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	other := []byte(`{"type":"charge.updated","reference":"pay_123"}`)
	_, err = d.ParseWebhook(other, d.Sign(other))
	assert.ErrorIs(t, err, payment.ErrIgnoredEvent)
}

func TestParseWebhookRequiresSignature(t *testing.T) {
	body := []byte(`{"type":"confirmed","reference":"forged_1","userId":1,"amount":"1000000"}`)

	d := NewDriver("")
	assert.Equal(t, DefaultSecret, d.Secret)

	_, err := d.ParseWebhook(body, "")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = (&Driver{}).ParseWebhook(body, "")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = NewDriver("other").ParseWebhook(body, d.Sign(body))
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	ev, err := d.ParseWebhook(body, d.Sign(body))
	require.NoError(t, err)
	assert.Equal(t, "forged_1", ev.Reference)
}
