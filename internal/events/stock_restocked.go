package events

import "time"

const EventTypeStockRestocked = "StockRestocked"

// StockRestocked is published by the warehouse when goods are received.
// Inventory consumes it and adds the quantities to stock.
type StockRestocked struct {
	EventType  string      `json:"eventType,omitempty"`
	ShipmentID string      `json:"shipmentId"`
	Items      []StockLine `json:"items"`
	Timestamp  time.Time   `json:"timestamp"`
}

type StockLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}
