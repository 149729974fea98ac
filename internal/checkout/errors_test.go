package checkout

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("bad_input", "nope")))
	assert.Equal(t, KindBusinessRule, KindOf(BusinessRule("coupon_expired", "nope")))
	assert.Equal(t, KindStale, KindOf(Stale(ReasonCartChanged, "nope")))
	assert.Equal(t, KindPaymentMismatch, KindOf(PaymentMismatch("amount_mismatch", "nope")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain error")))
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("handler: %w", Stale(ReasonSessionExpired, "expired"))
	assert.Equal(t, KindStale, KindOf(err))
	assert.Equal(t, ReasonSessionExpired, ReasonOf(err))
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, "cart_empty", ReasonOf(Validation(ReasonCartEmpty, "cart is empty")))
	assert.Equal(t, "internal", ReasonOf(errors.New("plain error")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Stale(ReasonCartChanged, "cart changed").Retryable())
	assert.False(t, Validation("bad_input", "nope").Retryable())
	assert.False(t, InventoryConflict("Widget", 1, 2).Retryable())
}

func TestInventoryConflict(t *testing.T) {
	err := InventoryConflict("Widget", 1, 3)
	assert.Equal(t, KindInventoryConflict, err.Kind)
	assert.Equal(t, "insufficient_stock", err.Reason)
	assert.Contains(t, err.Error(), "Widget")
	assert.Contains(t, err.Error(), "1 available")
	assert.Contains(t, err.Error(), "3 requested")
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("gateway verification failed", cause)
	assert.Equal(t, KindInternal, err.Kind)
	assert.ErrorIs(t, err, cause)
}
