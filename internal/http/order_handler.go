package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/order"
)

// Orders is the order workflow as seen by the HTTP layer.
type Orders interface {
	Create(ctx context.Context, req order.CreateRequest) (order.Order, error)
	Get(ctx context.Context, orderID string) (order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (order.Order, inventory.RestoreResult, error)
	UpdateStatus(ctx context.Context, orderID string, to order.Status) (order.Order, error)
}

type OrderHandler struct {
	orders Orders
}

func NewOrderHandler(orders Orders) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type stockConflictResponse struct {
	Error            string                  `json:"error"`
	UnavailableItems []inventory.Unavailable `json:"unavailableItems"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		if conflict, ok := order.IsConflict(err); ok {
			writeJSON(w, http.StatusConflict, stockConflictResponse{
				Error:            "insufficient stock",
				UnavailableItems: conflict.Unavailable,
			})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) ListOrdersByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type cancelResponse struct {
	Order order.Order             `json:"order"`
	Stock inventory.RestoreResult `json:"stock"`
}

// CancelOrder accepts an optional {"reason": "..."} body.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, restored, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "orderId"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Order: o, Stock: restored})
}

type statusRequest struct {
	Status order.Status `json:"status"`
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
