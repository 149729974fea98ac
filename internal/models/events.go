package models

import "time"

// Event types
const (
	EventTypeOrderCommitted = "ORDER_COMMITTED"
	EventTypeOrderRefunded  = "ORDER_REFUNDED"
	EventTypeOrderDisputed  = "ORDER_DISPUTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCommittedEvent is published after the locked commit transaction; the
// fulfillment worker consumes it to run post-commit side effects off the
// request path.
type OrderCommittedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Email       string          `json:"email"`
	TotalMinor  int64           `json:"total_minor"`
	Items       []OrderItemData `json:"items"`
}

// OrderRefundedEvent is published when a gateway refund webhook transitions
// an order.
type OrderRefundedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Partial     bool   `json:"partial"`
}

// OrderDisputedEvent is published when a gateway dispute webhook transitions
// an order.
type OrderDisputedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason"`
}

// OrderItemData carries the frozen item fields needed by fulfillment.
type OrderItemData struct {
	OrderItemID int64 `json:"order_item_id"`
	ProductID   int64 `json:"product_id"`
	Quantity    int   `json:"quantity"`
	IsDigital   bool  `json:"is_digital"`
	IsLicense   bool  `json:"is_license"`
}
