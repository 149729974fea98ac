package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestParseWebhook(t *testing.T) {
	payload := []byte(`{
		"id": "evt_123",
		"type": "charge.refunded",
		"data": {"reservation_id": "res_abc", "amount_refunded": 500, "amount_total": 1000}
	}`)
	secret := "whsec_test"

	event, err := ParseWebhook(payload, sign(payload, secret), secret)
	require.NoError(t, err)

	assert.Equal(t, "evt_123", event.ID)
	assert.Equal(t, EventChargeRefunded, event.Type)
	assert.Equal(t, "res_abc", event.Data.ReservationID)
	assert.True(t, event.Partial())
}

func TestParseWebhookBadSignature(t *testing.T) {
	payload := []byte(`{"id": "evt_123"}`)

	_, err := ParseWebhook(payload, sign(payload, "wrong_secret"), "whsec_test")
	assert.Error(t, err)

	_, err = ParseWebhook(payload, "", "whsec_test")
	assert.Error(t, err)
}

func TestParseWebhookBadJSON(t *testing.T) {
	payload := []byte(`not json`)
	secret := "whsec_test"

	_, err := ParseWebhook(payload, sign(payload, secret), secret)
	assert.Error(t, err)
}

func TestWebhookEventPartial(t *testing.T) {
	full := &WebhookEvent{}
	full.Data.AmountRefunded = 1000
	full.Data.AmountTotal = 1000
	assert.False(t, full.Partial())

	partial := &WebhookEvent{}
	partial.Data.AmountRefunded = 250
	partial.Data.AmountTotal = 1000
	assert.True(t, partial.Partial())

	zero := &WebhookEvent{}
	zero.Data.AmountTotal = 1000
	assert.False(t, zero.Partial())
}
