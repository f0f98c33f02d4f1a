package events

import "time"

const (
	EventTypeOrderCancelled = "OrderCancelled"
	orderCancelledSchema    = "contracts/events/order/OrderCancelled.v1.payload.schema.json"
)

type OrderCancelledPayload struct {
	OrderID   string      `json:"orderId"`
	UserID    string      `json:"userId"`
	Reason    string      `json:"reason"`
	Items     []OrderItem `json:"items"`
	Timestamp time.Time   `json:"timestamp"`
}

type LegacyOrderCancelled struct {
	EventType string `json:"eventType"`
	OrderCancelledPayload
}
