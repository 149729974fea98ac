// Package gateway wraps the external payment provider. The checkout core
// only reserves an amount before capture and re-reads the charge at commit;
// capture itself happens on the client against the provider.
package gateway

import "context"

// Charge statuses reported by the provider.
const (
	ChargeStatusSucceeded = "succeeded"
	ChargeStatusPending   = "pending"
	ChargeStatusFailed    = "failed"
)

// Reservation is the provider's handle for a reserved amount.
type Reservation struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// Charge is the provider's view of a reservation at retrieval time.
type Charge struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	CapturedAmount int64  `json:"captured_amount"`
}

// Gateway is the payment provider surface consumed by the checkout core.
type Gateway interface {
	// Reserve opens a reservation for amountMinor minor units and returns
	// its id and the client secret used to capture it.
	Reserve(ctx context.Context, amountMinor int64, metadata map[string]string) (*Reservation, error)
	// Retrieve re-reads the reservation's charge state.
	Retrieve(ctx context.Context, reservationID string) (*Charge, error)
}
