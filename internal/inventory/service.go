package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/metrics"
)

var tracer = otel.Tracer("github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/inventory")

// Notifier receives low-stock alerts. The event publisher implements it.
type Notifier interface {
	NotifyLowStock(ctx context.Context, threshold int, products []LowStockProduct) error
}

// Service runs the stock operations of an order on top of the Repository.
// Duplicate decrements or restores for the same order id are suppressed through
// the Claimer so an order can never be decremented or restored twice.
type Service struct {
	repo     Repository
	claims   idempotency.Claimer
	claimTTL time.Duration
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

type Option func(*Service)

func WithClaimer(c idempotency.Claimer, ttl time.Duration) Option {
	return func(s *Service) {
		s.claims = c
		if ttl > 0 {
			s.claimTTL = ttl
		}
	}
}

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		claims:   idempotency.NewMemoryClaimer(),
		claimTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateStockAvailability is read-only. Missing products count as available=0.
// A store failure yields valid=false, no items and an error wrapping ErrStore.
func (s *Service) ValidateStockAvailability(ctx context.Context, items []Item) (ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "inventory.ValidateStockAvailability",
		trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()
	defer s.observe("validate", time.Now())

	res := ValidationResult{Valid: true, UnavailableItems: []Unavailable{}}
	for _, it := range items {
		if it.Quantity <= 0 {
			return ValidationResult{UnavailableItems: []Unavailable{}}, fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
		}
		available := 0
		p, err := s.repo.Get(ctx, it.ProductID)
		switch {
		case err == nil:
			available = p.Stock
		case errors.Is(err, ErrNotFound):
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "store error")
			return ValidationResult{UnavailableItems: []Unavailable{}}, err
		}
		if available < it.Quantity {
			res.Valid = false
			res.UnavailableItems = append(res.UnavailableItems, Unavailable{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: available,
			})
		}
	}
	span.SetAttributes(attribute.Bool("valid", res.Valid))
	return res, nil
}

// DecrementOrderStock takes each item's quantity out of stock independently.
// Items that cannot be decremented are reported in Failed; the others stay committed.
func (s *Service) DecrementOrderStock(ctx context.Context, orderID string, items []Item) DecrementResult {
	ctx, span := tracer.Start(ctx, "inventory.DecrementOrderStock",
		trace.WithAttributes(attribute.String("order.id", orderID), attribute.Int("items", len(items))))
	defer span.End()
	defer s.observe("decrement", time.Now())
	log := logging.FromContext(ctx, s.logger).With(zap.String("orderId", orderID))

	res := DecrementResult{Decremented: []StockOperation{}, Failed: []Failure{}}

	key := "decrement:" + orderID
	claimed, duplicate := s.claim(ctx, log, orderID, key)
	if duplicate {
		log.Info("order already decremented, skipping")
		span.SetAttributes(attribute.Bool("duplicate", true))
		return DecrementResult{Success: true, Duplicate: true, Decremented: []StockOperation{}, Failed: []Failure{}}
	}

	for _, it := range items {
		op, fail := s.apply(ctx, log, orderID, it, OperationDecrement, ReasonOrderCreated)
		if fail != nil {
			res.Failed = append(res.Failed, *fail)
			continue
		}
		res.Decremented = append(res.Decremented, op)
	}
	res.Success = len(res.Failed) == 0

	if claimed && len(res.Decremented) == 0 {
		s.release(ctx, log, key)
	}
	if !res.Success {
		span.SetStatus(codes.Error, "partial decrement")
		log.Warn("stock decrement incomplete",
			zap.Int("decremented", len(res.Decremented)), zap.Int("failed", len(res.Failed)))
	}
	return res
}

// RestoreOrderStock puts each item's quantity back. There is no upper bound, so
// only missing products or store errors fail. An empty reason means ReasonOrderCancelled.
func (s *Service) RestoreOrderStock(ctx context.Context, orderID string, items []Item, reason string) RestoreResult {
	if reason == "" {
		reason = ReasonOrderCancelled
	}
	ctx, span := tracer.Start(ctx, "inventory.RestoreOrderStock",
		trace.WithAttributes(attribute.String("order.id", orderID), attribute.Int("items", len(items))))
	defer span.End()
	defer s.observe("restore", time.Now())
	log := logging.FromContext(ctx, s.logger).With(zap.String("orderId", orderID))

	res := RestoreResult{Restored: []StockOperation{}, Failed: []Failure{}}

	key := "restore:" + orderID
	claimed, duplicate := s.claim(ctx, log, orderID, key)
	if duplicate {
		log.Info("order already restored, skipping")
		span.SetAttributes(attribute.Bool("duplicate", true))
		return RestoreResult{Success: true, Duplicate: true, Restored: []StockOperation{}, Failed: []Failure{}}
	}

	for _, it := range items {
		op, fail := s.apply(ctx, log, orderID, it, OperationIncrement, reason)
		if fail != nil {
			res.Failed = append(res.Failed, *fail)
			continue
		}
		res.Restored = append(res.Restored, op)
	}
	res.Success = len(res.Failed) == 0

	if claimed && len(res.Restored) == 0 {
		s.release(ctx, log, key)
	}
	if !res.Success {
		span.SetStatus(codes.Error, "partial restore")
		log.Warn("stock restore incomplete",
			zap.Int("restored", len(res.Restored)), zap.Int("failed", len(res.Failed)))
	}
	return res
}

// CheckAndAlertLowStock finds products with stock <= threshold and hands them to
// the notifier. A negative threshold means DefaultLowStockThreshold.
func (s *Service) CheckAndAlertLowStock(ctx context.Context, threshold int) (SweepResult, error) {
	if threshold < 0 {
		threshold = DefaultLowStockThreshold
	}
	ctx, span := tracer.Start(ctx, "inventory.CheckAndAlertLowStock",
		trace.WithAttributes(attribute.Int("threshold", threshold)))
	defer span.End()
	defer s.observe("low_stock_sweep", time.Now())
	log := logging.FromContext(ctx, s.logger)

	res := SweepResult{Threshold: threshold, ProductsWithLowStock: []LowStockProduct{}}
	products, err := s.repo.ListLowStock(ctx, threshold)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return res, err
	}
	for _, p := range products {
		res.ProductsWithLowStock = append(res.ProductsWithLowStock, LowStockProduct{
			ProductID: p.ID,
			Name:      p.Name,
			Stock:     p.Stock,
		})
	}
	s.metrics.LowStock(len(res.ProductsWithLowStock))
	span.SetAttributes(attribute.Int("low_stock", len(res.ProductsWithLowStock)))

	if len(res.ProductsWithLowStock) == 0 {
		return res, nil
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyLowStock(ctx, threshold, res.ProductsWithLowStock); err != nil {
			log.Warn("low stock alert not delivered", zap.Error(err))
			return res, nil
		}
	}
	log.Info("low stock detected",
		zap.Int("threshold", threshold), zap.Int("products", len(res.ProductsWithLowStock)))
	res.AlertsSent = true
	return res, nil
}

// apply commits a single item and appends the ledger entry.
func (s *Service) apply(ctx context.Context, log *zap.Logger, orderID string, it Item, typ OperationType, reason string) (StockOperation, *Failure) {
	operation := string(typ)
	if it.ProductID == "" {
		s.metrics.StockItem(operation, string(KindNotFound))
		return StockOperation{}, &Failure{Kind: KindNotFound, Reason: "Product not found"}
	}
	if it.Quantity <= 0 {
		s.metrics.StockItem(operation, string(KindInvalidQuantity))
		return StockOperation{}, &Failure{
			ProductID: it.ProductID,
			Kind:      KindInvalidQuantity,
			Reason:    fmt.Sprintf("Invalid quantity %d", it.Quantity),
			Requested: it.Quantity,
		}
	}

	delta := it.Quantity
	if typ == OperationDecrement {
		delta = -it.Quantity
	}
	stock, err := s.repo.AdjustStock(ctx, it.ProductID, delta, reason)
	if err != nil {
		fail := failureFor(it, err)
		s.metrics.StockItem(operation, string(fail.Kind))
		if fail.Kind == KindStoreError {
			log.Error("stock adjustment failed", zap.String("productId", it.ProductID), zap.Error(err))
		}
		return StockOperation{}, &fail
	}
	s.metrics.StockItem(operation, "committed")

	op := StockOperation{
		ProductID:  it.ProductID,
		Quantity:   it.Quantity,
		Type:       typ,
		Reason:     reason,
		OrderID:    orderID,
		StockAfter: stock,
	}
	entry := LedgerEntry{
		ProductID:  it.ProductID,
		Delta:      delta,
		Type:       typ,
		Reason:     reason,
		OrderID:    orderID,
		StockAfter: stock,
	}
	if err := s.repo.AppendLedger(ctx, entry); err != nil {
		log.Warn("ledger append failed", zap.String("productId", it.ProductID), zap.Error(err))
	}
	return op, nil
}

func failureFor(it Item, err error) Failure {
	var short *InsufficientStockError
	switch {
	case errors.As(err, &short):
		return Failure{
			ProductID: it.ProductID,
			Kind:      KindInsufficientStock,
			Reason:    fmt.Sprintf("Insufficient stock: requested %d, available %d", it.Quantity, short.Available),
			Requested: it.Quantity,
			Available: short.Available,
		}
	case errors.Is(err, ErrNotFound):
		return Failure{ProductID: it.ProductID, Kind: KindNotFound, Reason: "Product not found", Requested: it.Quantity}
	default:
		return Failure{ProductID: it.ProductID, Kind: KindStoreError, Reason: err.Error(), Requested: it.Quantity}
	}
}

// claim returns (claimed, duplicate). Calls without an order id are never
// deduplicated. A claimer failure is logged and the call proceeds unclaimed.
func (s *Service) claim(ctx context.Context, log *zap.Logger, orderID, key string) (bool, bool) {
	if orderID == "" || s.claims == nil {
		return false, false
	}
	ok, err := s.claims.Claim(ctx, key, s.claimTTL)
	if err != nil {
		log.Warn("idempotency claim failed, proceeding", zap.String("key", key), zap.Error(err))
		return false, false
	}
	return ok, !ok
}

func (s *Service) release(ctx context.Context, log *zap.Logger, key string) {
	if err := s.claims.Release(ctx, key); err != nil {
		log.Warn("idempotency release failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) observe(operation string, start time.Time) {
	s.metrics.Operation(operation, time.Since(start))
}
