// Package checkout defines the typed error taxonomy shared by the checkout
// pipeline. Callers branch on Kind instead of matching message strings, so
// "retry" is distinguishable from "fatal" and from "fix your input".
package checkout

import (
	"errors"
	"fmt"
)

// Kind classifies a checkout failure.
type Kind int

const (
	// KindValidation: malformed input; nothing was mutated.
	KindValidation Kind = iota
	// KindBusinessRule: input is well-formed but rejected by policy
	// (coupon ineligible, order ceiling reached); nothing was mutated.
	KindBusinessRule
	// KindStale: the price snapshot is missing, mismatched, or expired;
	// the caller should re-run price reservation.
	KindStale
	// KindInventoryConflict: locked stock was insufficient at commit time;
	// the transaction rolled back and the caller goes back to the cart.
	KindInventoryConflict
	// KindPaymentMismatch: gateway status or captured amount disagreed with
	// the snapshot; no transaction was opened.
	KindPaymentMismatch
	// KindInternal: invariant violation or infrastructure failure.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindStale:
		return "stale"
	case KindInventoryConflict:
		return "inventory_conflict"
	case KindPaymentMismatch:
		return "payment_mismatch"
	default:
		return "internal"
	}
}

// Error is a classified checkout failure with a stable reason code.
type Error struct {
	Kind   Kind
	Reason string
	msg    string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether re-running price reservation may succeed.
func (e *Error) Retryable() bool { return e.Kind == KindStale }

func newError(kind Kind, reason, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: reason, msg: fmt.Sprintf(format, args...)}
}

// Validation builds a KindValidation error.
func Validation(reason, format string, args ...interface{}) *Error {
	return newError(KindValidation, reason, format, args...)
}

// BusinessRule builds a KindBusinessRule error.
func BusinessRule(reason, format string, args ...interface{}) *Error {
	return newError(KindBusinessRule, reason, format, args...)
}

// Stale builds a KindStale error.
func Stale(reason, format string, args ...interface{}) *Error {
	return newError(KindStale, reason, format, args...)
}

// InventoryConflict builds a KindInventoryConflict error naming the short line.
func InventoryConflict(productName string, available, requested int) *Error {
	return newError(KindInventoryConflict, "insufficient_stock",
		"insufficient stock for %q: %d available, %d requested", productName, available, requested)
}

// PaymentMismatch builds a KindPaymentMismatch error.
func PaymentMismatch(reason, format string, args ...interface{}) *Error {
	return newError(KindPaymentMismatch, reason, format, args...)
}

// Internal wraps err as a KindInternal error.
func Internal(reason string, err error) *Error {
	return &Error{Kind: KindInternal, Reason: reason, msg: reason, cause: err}
}

// KindOf extracts the Kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// ReasonOf extracts the stable reason code from err.
func ReasonOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return "internal"
}

// Common rejection reasons shared across components.
const (
	ReasonCartEmpty        = "cart_empty"
	ReasonCartChanged      = "cart_changed"
	ReasonSessionExpired   = "payment_session_expired"
	ReasonCeilingReached   = "monthly_order_limit_reached"
	ReasonNoShippingMethod = "shipping_method_unavailable"
	ReasonCannotCombine    = "cannot_combine_discounts"
)
