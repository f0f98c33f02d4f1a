package inventory

import (
	"errors"
	"fmt"
	"time"
)

const (
	ProductsCollection = "products"
	LedgerCollection   = "stock_ledger"

	DefaultLowStockThreshold = 5

	ReasonOrderCreated   = "Order created"
	ReasonOrderCancelled = "Order cancelled"
	ReasonProductCreated = "Product created"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrProductExists     = errors.New("inventory: product already exists")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInvalidProduct    = errors.New("inventory: invalid product")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrStore marks infrastructure failures, as opposed to business outcomes.
	ErrStore = errors.New("inventory: store unavailable")
)

// InsufficientStockError reports the stock observed when a mutation was refused.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type Product struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Price            float64   `json:"price"`
	Category         string    `json:"category,omitempty"`
	Stock            int       `json:"stock"`
	LastUpdated      time.Time `json:"lastUpdated"`
	LastUpdateReason string    `json:"lastUpdateReason,omitempty"`
}

// Item is one requested order line.
type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Unavailable struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type ValidationResult struct {
	Valid            bool          `json:"valid"`
	UnavailableItems []Unavailable `json:"unavailableItems"`
}

type OperationType string

const (
	OperationDecrement OperationType = "decrement"
	OperationIncrement OperationType = "increment"
)

// StockOperation describes one committed stock change.
type StockOperation struct {
	ProductID  string        `json:"productId"`
	Quantity   int           `json:"quantity"`
	Type       OperationType `json:"type"`
	Reason     string        `json:"reason"`
	OrderID    string        `json:"orderId,omitempty"`
	StockAfter int           `json:"stockAfter"`
}

type FailureKind string

const (
	KindNotFound          FailureKind = "not_found"
	KindInsufficientStock FailureKind = "insufficient_stock"
	KindInvalidQuantity   FailureKind = "invalid_quantity"
	KindStoreError        FailureKind = "store_error"
)

// Failure is a per-item outcome that was not committed.
type Failure struct {
	ProductID string      `json:"productId"`
	Kind      FailureKind `json:"kind"`
	Reason    string      `json:"reason"`
	Requested int         `json:"requested,omitempty"`
	Available int         `json:"available"`
}

type DecrementResult struct {
	Success bool `json:"success"`
	// Duplicate is set when the order was already decremented and nothing ran.
	Duplicate   bool             `json:"duplicate,omitempty"`
	Decremented []StockOperation `json:"decremented"`
	Failed      []Failure        `json:"failed"`
}

type RestoreResult struct {
	Success   bool             `json:"success"`
	Duplicate bool             `json:"duplicate,omitempty"`
	Restored  []StockOperation `json:"restored"`
	Failed    []Failure        `json:"failed"`
}

type LowStockProduct struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
}

type SweepResult struct {
	Threshold            int               `json:"threshold"`
	ProductsWithLowStock []LowStockProduct `json:"productsWithLowStock"`
	AlertsSent           bool              `json:"alertsSent"`
}

// LedgerEntry is an append-only record of a committed stock change.
type LedgerEntry struct {
	ID         string        `json:"id"`
	ProductID  string        `json:"productId"`
	Delta      int           `json:"delta"`
	Type       OperationType `json:"type"`
	Reason     string        `json:"reason"`
	OrderID    string        `json:"orderId,omitempty"`
	StockAfter int           `json:"stockAfter"`
	CreatedAt  time.Time     `json:"createdAt"`
}
