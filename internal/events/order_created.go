package events

import "time"

const (
	EventTypeOrderCreated = "OrderCreated"
	orderCreatedSchema    = "contracts/events/order/OrderCreated.v1.payload.schema.json"
)

type OrderCreatedPayload struct {
	OrderID       string      `json:"orderId"`
	UserID        string      `json:"userId"`
	Items         []OrderItem `json:"items"`
	TotalAmount   float64     `json:"totalAmount"`
	Status        string      `json:"status"`
	StockWarnings int         `json:"stockWarnings,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// LegacyOrderCreated is the flat form published when envelopes are disabled.
type LegacyOrderCreated struct {
	EventType string `json:"eventType"`
	OrderCreatedPayload
}

// OrderItem matches the cart/order item contract used across services.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
}
