package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/logging"
)

// CreateProduct stores a new product. An empty id gets a generated one.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Name == "":
		return Product{}, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.Price < 0:
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case p.Stock < 0:
		return Product{}, fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.LastUpdated = time.Now().UTC()
	p.LastUpdateReason = ReasonProductCreated

	if err := s.repo.Create(ctx, p); err != nil {
		return Product{}, err
	}
	if p.Stock > 0 {
		entry := LedgerEntry{
			ProductID:  p.ID,
			Delta:      p.Stock,
			Type:       OperationIncrement,
			Reason:     ReasonProductCreated,
			StockAfter: p.Stock,
			CreatedAt:  p.LastUpdated,
		}
		if err := s.repo.AppendLedger(ctx, entry); err != nil {
			logging.FromContext(ctx, s.logger).Warn("ledger append failed", zap.String("productId", p.ID), zap.Error(err))
		}
	}
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (Product, error) {
	return s.repo.Get(ctx, productID)
}

// AdjustStock applies a manual signed correction. Negative deltas are refused
// with *InsufficientStockError when they would take stock below zero.
func (s *Service) AdjustStock(ctx context.Context, productID string, delta int, reason string) (StockOperation, error) {
	if delta == 0 {
		return StockOperation{}, ErrInvalidQuantity
	}
	if reason == "" {
		reason = "Manual adjustment"
	}
	ctx, span := tracer.Start(ctx, "inventory.AdjustStock",
		trace.WithAttributes(attribute.String("product.id", productID), attribute.Int("delta", delta)))
	defer span.End()
	defer s.observe("adjust", time.Now())

	typ, qty := OperationIncrement, delta
	if delta < 0 {
		typ, qty = OperationDecrement, -delta
	}
	stock, err := s.repo.AdjustStock(ctx, productID, delta, reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "adjust refused")
		s.metrics.StockItem("adjust", string(failureFor(Item{ProductID: productID, Quantity: qty}, err).Kind))
		return StockOperation{}, err
	}
	s.metrics.StockItem("adjust", "committed")

	entry := LedgerEntry{
		ProductID:  productID,
		Delta:      delta,
		Type:       typ,
		Reason:     reason,
		StockAfter: stock,
	}
	if err := s.repo.AppendLedger(ctx, entry); err != nil {
		logging.FromContext(ctx, s.logger).Warn("ledger append failed", zap.String("productId", productID), zap.Error(err))
	}
	return StockOperation{ProductID: productID, Quantity: qty, Type: typ, Reason: reason, StockAfter: stock}, nil
}

// Ledger lists the committed stock changes of a product, oldest first.
func (s *Service) Ledger(ctx context.Context, productID string) ([]LedgerEntry, error) {
	if _, err := s.repo.Get(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.Ledger(ctx, productID)
}

// OrderDecrements reports what an order actually took out of stock, per
// product in the order first taken, as recorded by the ledger.
func (s *Service) OrderDecrements(ctx context.Context, orderID string) ([]Item, error) {
	if orderID == "" {
		return []Item{}, nil
	}
	entries, err := s.repo.OrderLedger(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		if e.Type != OperationDecrement {
			continue
		}
		if i, ok := index[e.ProductID]; ok {
			out[i].Quantity -= e.Delta
			continue
		}
		index[e.ProductID] = len(out)
		out = append(out, Item{ProductID: e.ProductID, Quantity: -e.Delta})
	}
	return out, nil
}
