package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/inventory"
)

const Collection = "orders"

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrInvalidRequest    = errors.New("order: invalid request")
	ErrNotCancellable    = errors.New("order: cannot be cancelled")
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

// StockConflictError is returned when validation finds items that cannot be served.
type StockConflictError struct {
	Unavailable []inventory.Unavailable
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("order: %d item(s) out of stock", len(e.Unavailable))
}

// next lists the forward transitions. Cancellation is handled separately.
var next = map[Status]Status{
	StatusPending:    StatusConfirmed,
	StatusConfirmed:  StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether stock may still be restored for an order in s.
func (s Status) Cancellable() bool {
	switch s {
	case StatusDelivered, StatusShipped, StatusCancelled:
		return false
	}
	return true
}

func (s Status) CanTransitionTo(to Status) bool {
	return next[s] == to
}

type Item struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Address struct {
	Name       string `json:"name,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type Order struct {
	ID              string              `json:"orderId"`
	UserID          string              `json:"userId"`
	Items           []Item              `json:"items"`
	ShippingAddress *Address            `json:"shippingAddress,omitempty"`
	TotalAmount     float64             `json:"totalAmount"`
	Status          Status              `json:"status"`
	PaymentOrderID  string              `json:"paymentOrderId,omitempty"`
	StockWarnings   []inventory.Failure `json:"stockWarnings,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	CancelledAt     *time.Time          `json:"cancelledAt,omitempty"`
	CancelReason    string              `json:"cancelReason,omitempty"`
}

// StockItems returns the order lines in the shape the stock core takes.
func (o Order) StockItems() []inventory.Item {
	out := make([]inventory.Item, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, inventory.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
