package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore"
)

// Repository is the persistence boundary of the stock core.
type Repository interface {
	Get(ctx context.Context, productID string) (Product, error)
	Create(ctx context.Context, p Product) error
	// AdjustStock applies delta atomically and refuses to take stock below zero.
	// Refusals return *InsufficientStockError.
	AdjustStock(ctx context.Context, productID string, delta int, reason string) (int, error)
	ListLowStock(ctx context.Context, threshold int) ([]Product, error)
	AppendLedger(ctx context.Context, entry LedgerEntry) error
	Ledger(ctx context.Context, productID string) ([]LedgerEntry, error)
	OrderLedger(ctx context.Context, orderID string) ([]LedgerEntry, error)
}

type DocumentRepository struct {
	store docstore.Store
	now   func() time.Time
}

func NewDocumentRepository(store docstore.Store) *DocumentRepository {
	return &DocumentRepository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DocumentRepository) Get(ctx context.Context, productID string) (Product, error) {
	doc, err := r.store.Get(ctx, ProductsCollection, productID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("%w: get product %s: %v", ErrStore, productID, err)
	}
	return productFromDocument(doc), nil
}

func (r *DocumentRepository) Create(ctx context.Context, p Product) error {
	fields := docstore.Fields{
		"name":             p.Name,
		"price":            p.Price,
		"stock":            p.Stock,
		"lastUpdated":      p.LastUpdated,
		"lastUpdateReason": p.LastUpdateReason,
	}
	if p.Category != "" {
		fields["category"] = p.Category
	}
	if err := r.store.Insert(ctx, ProductsCollection, p.ID, fields); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrProductExists
		}
		return fmt.Errorf("%w: create product %s: %v", ErrStore, p.ID, err)
	}
	return nil
}

func (r *DocumentRepository) AdjustStock(ctx context.Context, productID string, delta int, reason string) (int, error) {
	adj := docstore.Adjustment{
		Field: "stock",
		Delta: delta,
		Set: docstore.Fields{
			"lastUpdated":      r.now(),
			"lastUpdateReason": reason,
		},
	}
	// Only removals are guarded; additions always commit.
	if delta < 0 {
		adj.Floor = docstore.Floor(0)
	}
	stock, err := r.store.Adjust(ctx, ProductsCollection, productID, adj)
	if err != nil {
		var below *docstore.BelowFloorError
		switch {
		case errors.As(err, &below):
			return below.Current, &InsufficientStockError{ProductID: productID, Requested: -delta, Available: below.Current}
		case errors.Is(err, docstore.ErrNotFound):
			return 0, ErrNotFound
		default:
			return 0, fmt.Errorf("%w: adjust stock %s: %v", ErrStore, productID, err)
		}
	}
	return stock, nil
}

func (r *DocumentRepository) ListLowStock(ctx context.Context, threshold int) ([]Product, error) {
	docs, err := r.store.Query(ctx, ProductsCollection, docstore.Filter{Field: "stock", Op: docstore.OpLTE, Value: threshold})
	if err != nil {
		return nil, fmt.Errorf("%w: query low stock: %v", ErrStore, err)
	}
	out := make([]Product, 0, len(docs))
	for _, doc := range docs {
		out = append(out, productFromDocument(doc))
	}
	return out, nil
}

func (r *DocumentRepository) AppendLedger(ctx context.Context, entry LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	fields := docstore.Fields{
		"productId":  entry.ProductID,
		"delta":      entry.Delta,
		"type":       string(entry.Type),
		"reason":     entry.Reason,
		"stockAfter": entry.StockAfter,
		"createdAt":  entry.CreatedAt,
	}
	if entry.OrderID != "" {
		fields["orderId"] = entry.OrderID
	}
	if err := r.store.Insert(ctx, LedgerCollection, entry.ID, fields); err != nil {
		return fmt.Errorf("%w: append ledger %s: %v", ErrStore, entry.ProductID, err)
	}
	return nil
}

// Ledger returns the entries for one product, oldest first.
func (r *DocumentRepository) Ledger(ctx context.Context, productID string) ([]LedgerEntry, error) {
	return r.queryLedger(ctx, "productId", productID)
}

// OrderLedger returns the entries written on behalf of one order, oldest first.
func (r *DocumentRepository) OrderLedger(ctx context.Context, orderID string) ([]LedgerEntry, error) {
	return r.queryLedger(ctx, "orderId", orderID)
}

func (r *DocumentRepository) queryLedger(ctx context.Context, field, value string) ([]LedgerEntry, error) {
	docs, err := r.store.Query(ctx, LedgerCollection, docstore.Filter{Field: field, Op: docstore.OpEQ, Value: value})
	if err != nil {
		return nil, fmt.Errorf("%w: query ledger by %s %s: %v", ErrStore, field, value, err)
	}
	out := make([]LedgerEntry, 0, len(docs))
	for _, doc := range docs {
		f := doc.Fields
		delta, _ := f.Int("delta")
		after, _ := f.Int("stockAfter")
		created, _ := f.Time("createdAt")
		out = append(out, LedgerEntry{
			ID:         doc.ID,
			ProductID:  f.String("productId"),
			Delta:      delta,
			Type:       OperationType(f.String("type")),
			Reason:     f.String("reason"),
			OrderID:    f.String("orderId"),
			StockAfter: after,
			CreatedAt:  created,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func productFromDocument(doc docstore.Document) Product {
	f := doc.Fields
	stock, _ := f.Int("stock")
	price, _ := f.Float("price")
	updated, _ := f.Time("lastUpdated")
	name := f.String("name")
	if name == "" {
		name = f.String("title")
	}
	return Product{
		ID:               doc.ID,
		Name:             name,
		Price:            price,
		Category:         f.String("category"),
		Stock:            stock,
		LastUpdated:      updated,
		LastUpdateReason: f.String("lastUpdateReason"),
	}
}
