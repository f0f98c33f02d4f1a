package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// Save writes the mutable fields of an existing order.
	Save(ctx context.Context, o *Order) error
}

type repo struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) Repository {
	return &repo{store: store}
}

func (r *repo) Create(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	fields, err := orderFields(o)
	if err != nil {
		return err
	}
	fields["userId"] = o.UserID
	fields["createdAt"] = o.CreatedAt
	if err := r.store.Insert(ctx, Collection, o.ID, fields); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *repo) GetByID(ctx context.Context, orderID string) (*Order, error) {
	doc, err := r.store.Get(ctx, Collection, orderID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return orderFromDocument(doc)
}

func (r *repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	docs, err := r.store.Query(ctx, Collection, docstore.Filter{Field: "userId", Op: docstore.OpEQ, Value: userID})
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	orders := make([]Order, 0, len(docs))
	for _, doc := range docs {
		o, err := orderFromDocument(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (r *repo) Save(ctx context.Context, o *Order) error {
	fields, err := orderFields(o)
	if err != nil {
		return err
	}
	if err := r.store.Update(ctx, Collection, o.ID, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

// orderFields encodes everything but the immutable id, owner and creation time.
// Nested values are stored as plain maps and slices so every backend can hold them.
func orderFields(o *Order) (docstore.Fields, error) {
	items, err := plain(o.Items)
	if err != nil {
		return nil, err
	}
	fields := docstore.Fields{
		"items":          items,
		"totalAmount":    o.TotalAmount,
		"status":         string(o.Status),
		"paymentOrderId": o.PaymentOrderID,
		"updatedAt":      o.UpdatedAt,
		"cancelReason":   o.CancelReason,
	}
	if o.ShippingAddress != nil {
		if fields["shippingAddress"], err = plain(o.ShippingAddress); err != nil {
			return nil, err
		}
	}
	if len(o.StockWarnings) > 0 {
		if fields["stockWarnings"], err = plain(o.StockWarnings); err != nil {
			return nil, err
		}
	}
	if o.CancelledAt != nil {
		fields["cancelledAt"] = *o.CancelledAt
	}
	return fields, nil
}

func plain(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode order field: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encode order field: %w", err)
	}
	return out, nil
}

func orderFromDocument(doc docstore.Document) (*Order, error) {
	f := doc.Fields
	o := &Order{
		ID:             doc.ID,
		UserID:         f.String("userId"),
		Status:         Status(f.String("status")),
		PaymentOrderID: f.String("paymentOrderId"),
		CancelReason:   f.String("cancelReason"),
	}
	o.TotalAmount, _ = f.Float("totalAmount")
	o.CreatedAt, _ = f.Time("createdAt")
	o.UpdatedAt, _ = f.Time("updatedAt")
	if t, ok := f.Time("cancelledAt"); ok {
		o.CancelledAt = &t
	}
	if err := f.Decode("items", &o.Items); err != nil {
		return nil, err
	}
	if err := f.Decode("stockWarnings", &o.StockWarnings); err != nil {
		return nil, err
	}
	if _, ok := f["shippingAddress"]; ok {
		o.ShippingAddress = &Address{}
		if err := f.Decode("shippingAddress", o.ShippingAddress); err != nil {
			return nil, err
		}
	}
	return o, nil
}
