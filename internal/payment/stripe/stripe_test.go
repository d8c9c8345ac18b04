package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payrank-backend/internal/payment"

	"github.com/shopspring/decimal"
	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func newTestDriver(t *testing.T, handler http.HandlerFunc) *Driver {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
		URL:               stripeapi.String(srv.URL),
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     &stripeapi.LeveledLogger{Level: stripeapi.LevelNull},
	})
	return NewDriver("sk_test_123", testWebhookSecret, &stripeapi.Backends{API: backend, Connect: backend, Uploads: backend})
}

func sign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestChargeSucceeded(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "pay_key", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "10050", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "7", r.PostForm.Get("metadata[userId]"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_123","object":"payment_intent","amount":10050,"currency":"usd","status":"succeeded","metadata":{"userId":"7"}}`)
	})

	res, err := d.Charge(context.Background(), payment.ChargeRequest{
		UserID:         7,
		Amount:         decimal.RequireFromString("100.50"),
		Currency:       "USD",
		PaymentMethod:  "pm_card_visa",
		IdempotencyKey: "pay_key",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", res.Reference)
	assert.Equal(t, payment.ChargeSucceeded, res.Status)
}

func TestChargeDeclined(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"type":"card_error","code":"card_declined","decline_code":"generic_decline","message":"Your card was declined."}}`)
	})

	res, err := d.Charge(context.Background(), payment.ChargeRequest{UserID: 1, Amount: decimal.NewFromInt(5), Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, payment.ChargeFailed, res.Status)
	assert.Equal(t, "Your card was declined.", res.Reason)
}

func TestChargeGatewayError(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"type":"api_error","message":"boom"}}`)
	})

	_, err := d.Charge(context.Background(), payment.ChargeRequest{UserID: 1, Amount: decimal.NewFromInt(5), Currency: "USD"})
	var gwErr *payment.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, Name, gwErr.Gateway)
}

func TestParseWebhook(t *testing.T) {
	d := NewDriver("sk_test_123", testWebhookSecret, nil)

	succeeded := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_9","object":"payment_intent","amount":2500,"currency":"usd","status":"succeeded","metadata":{"userId":"42"}}}}`)
	ev, err := d.ParseWebhook(succeeded, sign(succeeded, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, payment.EventConfirmed, ev.Type)
	assert.Equal(t, "pi_9", ev.Reference)
	assert.Equal(t, uint(42), ev.UserID)
	assert.True(t, ev.Amount.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, "USD", ev.Currency)

	failed := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_10","object":"payment_intent","amount":100,"currency":"usd","status":"requires_payment_method","metadata":{"userId":"42"},"last_payment_error":{"message":"insufficient funds"}}}}`)
	ev, err = d.ParseWebhook(failed, sign(failed, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, payment.EventFailed, ev.Type)
	assert.Equal(t, "insufficient funds", ev.Reason)

	_, err = d.ParseWebhook(succeeded, sign(succeeded, "whsec_other"))
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	ignored := []byte(`{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	_, err = d.ParseWebhook(ignored, sign(ignored, testWebhookSecret))
	assert.ErrorIs(t, err, payment.ErrIgnoredEvent)
}
