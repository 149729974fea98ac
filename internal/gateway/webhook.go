package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Webhook event types the checkout core reacts to.
const (
	EventChargeRefunded       = "charge.refunded"
	EventChargeDisputeCreated = "charge.dispute.created"
)

// WebhookEvent is a signed asynchronous event from the provider, matched
// back to an order by ReservationID.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ReservationID  string `json:"reservation_id"`
		AmountRefunded int64  `json:"amount_refunded"`
		AmountTotal    int64  `json:"amount_total"`
		Reason         string `json:"reason"`
	} `json:"data"`
}

// Partial reports whether a refund event covers less than the full charge.
func (e *WebhookEvent) Partial() bool {
	return e.Data.AmountRefunded > 0 && e.Data.AmountRefunded < e.Data.AmountTotal
}

// VerifySignature checks the provider's HMAC-SHA256 hex signature over the
// raw payload.
func VerifySignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook verifies the signature and decodes the event.
func ParseWebhook(payload []byte, signature, secret string) (*WebhookEvent, error) {
	if !VerifySignature(payload, signature, secret) {
		return nil, fmt.Errorf("invalid webhook signature")
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook event: %w", err)
	}
	return &event, nil
}
