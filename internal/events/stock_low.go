package events

import "time"

const (
	EventTypeStockLow = "StockLow"
	stockLowSchema    = "contracts/events/inventory/StockLow.v1.payload.schema.json"
	// stockLowPartition orders all low-stock alerts in one sequence.
	stockLowPartition = "stock.low"
)

type StockLowPayload struct {
	Threshold int            `json:"threshold"`
	Products  []LowStockLine `json:"products"`
	Timestamp time.Time      `json:"timestamp"`
}

type LowStockLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Stock     int    `json:"stock"`
}

type LegacyStockLow struct {
	EventType string `json:"eventType"`
	StockLowPayload
}
