package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/inventory"
)

// Inventory is the stock core as seen by the HTTP layer.
type Inventory interface {
	CreateProduct(ctx context.Context, p inventory.Product) (inventory.Product, error)
	GetProduct(ctx context.Context, productID string) (inventory.Product, error)
	ValidateStockAvailability(ctx context.Context, items []inventory.Item) (inventory.ValidationResult, error)
	AdjustStock(ctx context.Context, productID string, delta int, reason string) (inventory.StockOperation, error)
	CheckAndAlertLowStock(ctx context.Context, threshold int) (inventory.SweepResult, error)
	Ledger(ctx context.Context, productID string) ([]inventory.LedgerEntry, error)
}

type InventoryHandler struct {
	svc Inventory
}

func NewInventoryHandler(svc Inventory) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

func (h *InventoryHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type createProductRequest struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
	Stock    int     `json:"stock"`
}

func (h *InventoryHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.svc.CreateProduct(r.Context(), inventory.Product{
		ID:       req.ID,
		Name:     req.Name,
		Price:    req.Price,
		Category: req.Category,
		Stock:    req.Stock,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *InventoryHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProduct(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type validateRequest struct {
	Items []inventory.Item `json:"items"`
}

func (h *InventoryHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.ValidateStockAvailability(r.Context(), req.Items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type adjustRequest struct {
	ProductID string `json:"productId"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
}

func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	op, err := h.svc.AdjustStock(r.Context(), req.ProductID, req.Delta, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// LowStock runs the sweep. Without ?threshold the default threshold applies.
func (h *InventoryHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold := -1
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "threshold must be a non-negative integer")
			return
		}
		threshold = n
	}

	res, err := h.svc.CheckAndAlertLowStock(r.Context(), threshold)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InventoryHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Ledger(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []inventory.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
