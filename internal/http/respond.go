package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/order"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var insufficient *inventory.InsufficientStockError
	switch {
	case errors.Is(err, inventory.ErrNotFound), errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidProduct),
		errors.Is(err, order.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &insufficient),
		errors.Is(err, inventory.ErrProductExists),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrInvalidTransition):
		return http.StatusConflict
	default:
		if _, ok := order.IsConflict(err); ok {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with its mapped status. Unexpected errors are
// reported without internal detail.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
