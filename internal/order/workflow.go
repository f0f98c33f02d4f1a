package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/logging"
)

var tracer = otel.Tracer("github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/order")

// settleTimeout bounds the writes that follow persisting a new order. They run
// detached from the request so a client timeout cannot stop them halfway.
const settleTimeout = 30 * time.Second

// Stock is the part of the stock core the workflow drives.
type Stock interface {
	GetProduct(ctx context.Context, productID string) (inventory.Product, error)
	ValidateStockAvailability(ctx context.Context, items []inventory.Item) (inventory.ValidationResult, error)
	DecrementOrderStock(ctx context.Context, orderID string, items []inventory.Item) inventory.DecrementResult
	RestoreOrderStock(ctx context.Context, orderID string, items []inventory.Item, reason string) inventory.RestoreResult
	CheckAndAlertLowStock(ctx context.Context, threshold int) (inventory.SweepResult, error)
	OrderDecrements(ctx context.Context, orderID string) ([]inventory.Item, error)
}

// EventPublisher announces order lifecycle changes. Delivery is best-effort.
type EventPublisher interface {
	OrderCreated(ctx context.Context, o Order) error
	OrderCancelled(ctx context.Context, o Order) error
}

// PaymentGateway opens a payment order for a freshly created order and returns its id.
type PaymentGateway interface {
	CreatePaymentOrder(ctx context.Context, o Order) (string, error)
}

type CreateRequest struct {
	UserID          string           `json:"userId"`
	Items           []inventory.Item `json:"items"`
	ShippingAddress *Address         `json:"shippingAddress,omitempty"`
}

type Workflow struct {
	repo              Repository
	stock             Stock
	events            EventPublisher
	payments          PaymentGateway
	lowStockThreshold int
	logger            *zap.Logger
	now               func() time.Time
}

type Option func(*Workflow)

func WithEvents(p EventPublisher) Option { return func(w *Workflow) { w.events = p } }

func WithPayments(g PaymentGateway) Option { return func(w *Workflow) { w.payments = g } }

func WithLowStockThreshold(n int) Option { return func(w *Workflow) { w.lowStockThreshold = n } }

func WithLogger(l *zap.Logger) Option { return func(w *Workflow) { w.logger = l } }

func NewWorkflow(repo Repository, stock Stock, opts ...Option) *Workflow {
	w := &Workflow{
		repo:              repo,
		stock:             stock,
		lowStockThreshold: inventory.DefaultLowStockThreshold,
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create validates stock, persists a pending order, then decrements stock.
// A decrement shortfall does not fail the order; it is recorded in StockWarnings.
// Lines naming the same product are merged before validation.
func (w *Workflow) Create(ctx context.Context, req CreateRequest) (o Order, err error) {
	ctx, span := tracer.Start(ctx, "order.Create", trace.WithAttributes(attribute.Int("items", len(req.Items))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "order not created")
		}
		span.End()
	}()
	log := logging.FromContext(ctx, w.logger)

	if err := validateCreate(req); err != nil {
		return Order{}, err
	}
	items := mergeItems(req.Items)

	validation, err := w.stock.ValidateStockAvailability(ctx, items)
	if err != nil {
		return Order{}, fmt.Errorf("validate stock: %w", err)
	}
	if !validation.Valid {
		return Order{}, &StockConflictError{Unavailable: validation.UnavailableItems}
	}

	o = Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		Status:          StatusPending,
		CreatedAt:       w.now(),
	}
	o.UpdatedAt = o.CreatedAt
	for _, it := range items {
		p, err := w.stock.GetProduct(ctx, it.ProductID)
		if err != nil {
			return Order{}, fmt.Errorf("load product %s: %w", it.ProductID, err)
		}
		o.Items = append(o.Items, Item{ProductID: p.ID, Name: p.Name, Quantity: it.Quantity, Price: p.Price})
		o.TotalAmount += p.Price * float64(it.Quantity)
	}

	if err := w.repo.Create(ctx, &o); err != nil {
		return Order{}, err
	}
	log = log.With(zap.String("orderId", o.ID))
	span.SetAttributes(attribute.String("order.id", o.ID))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	dec := w.stock.DecrementOrderStock(ctx, o.ID, o.StockItems())
	if !dec.Success {
		o.StockWarnings = dec.Failed
		log.Warn("order created with stock shortfall", zap.Any("failed", dec.Failed))
		if err := w.repo.Save(ctx, &o); err != nil {
			log.Error("save stock warnings", zap.Error(err))
		}
	}

	if w.events != nil {
		if err := w.events.OrderCreated(ctx, o); err != nil {
			log.Warn("publish order created", zap.Error(err))
		}
	}

	if _, err := w.stock.CheckAndAlertLowStock(ctx, w.lowStockThreshold); err != nil {
		log.Warn("low stock sweep failed", zap.Error(err))
	}

	if w.payments != nil {
		paymentID, err := w.payments.CreatePaymentOrder(ctx, o)
		if err != nil {
			log.Warn("create payment order", zap.Error(err))
		} else {
			o.PaymentOrderID = paymentID
			if err := w.repo.Save(ctx, &o); err != nil {
				log.Error("save payment order id", zap.Error(err))
			}
		}
	}

	log.Info("order created", zap.Int("items", len(o.Items)), zap.Float64("total", o.TotalAmount))
	return o, nil
}

// Cancel restores the stock taken for the order and marks it cancelled. The
// order is cancelled even when part of the restoration fails.
func (w *Workflow) Cancel(ctx context.Context, orderID, reason string) (Order, inventory.RestoreResult, error) {
	ctx, span := tracer.Start(ctx, "order.Cancel", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()
	log := logging.FromContext(ctx, w.logger).With(zap.String("orderId", orderID))

	o, err := w.repo.GetByID(ctx, orderID)
	if err != nil {
		return Order{}, inventory.RestoreResult{}, err
	}
	if !o.Status.Cancellable() {
		return Order{}, inventory.RestoreResult{}, fmt.Errorf("%w: order is %s", ErrNotCancellable, o.Status)
	}
	if strings.TrimSpace(reason) == "" {
		reason = inventory.ReasonOrderCancelled
	}

	// The ledger, not the order document, records what was actually taken.
	taken, err := w.stock.OrderDecrements(ctx, o.ID)
	if err != nil {
		return Order{}, inventory.RestoreResult{}, fmt.Errorf("load stock taken for order %s: %w", o.ID, err)
	}
	restored := w.stock.RestoreOrderStock(ctx, o.ID, taken, reason)
	if !restored.Success {
		log.Warn("stock restore incomplete on cancel", zap.Any("failed", restored.Failed))
	}

	at := w.now()
	o.Status = StatusCancelled
	o.CancelledAt = &at
	o.CancelReason = reason
	o.UpdatedAt = at
	if err := w.repo.Save(ctx, o); err != nil {
		return Order{}, restored, err
	}

	if w.events != nil {
		if err := w.events.OrderCancelled(ctx, *o); err != nil {
			log.Warn("publish order cancelled", zap.Error(err))
		}
	}
	log.Info("order cancelled", zap.String("reason", reason), zap.Int("restored", len(restored.Restored)))
	return *o, restored, nil
}

// UpdateStatus moves an order one step forward. Cancelling goes through Cancel.
func (w *Workflow) UpdateStatus(ctx context.Context, orderID string, to Status) (Order, error) {
	if !to.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, to)
	}
	o, err := w.repo.GetByID(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !o.Status.CanTransitionTo(to) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = w.now()
	if err := w.repo.Save(ctx, o); err != nil {
		return Order{}, err
	}
	logging.FromContext(ctx, w.logger).Info("order status updated",
		zap.String("orderId", orderID), zap.String("status", string(to)))
	return *o, nil
}

func (w *Workflow) Get(ctx context.Context, orderID string) (Order, error) {
	o, err := w.repo.GetByID(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return *o, nil
}

func (w *Workflow) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	return w.repo.ListByUser(ctx, userID)
}

func validateCreate(req CreateRequest) error {
	var problems []string
	if strings.TrimSpace(req.UserID) == "" {
		problems = append(problems, "userId is required")
	}
	if len(req.Items) == 0 {
		problems = append(problems, "items must not be empty")
	}
	for i, it := range req.Items {
		if it.ProductID == "" {
			problems = append(problems, fmt.Sprintf("items[%d].productId is required", i))
		}
		if it.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be greater than zero", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// mergeItems sums the quantities of lines naming the same product, keeping the
// order in which products first appear.
func mergeItems(items []inventory.Item) []inventory.Item {
	out := make([]inventory.Item, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// IsConflict reports whether err is a stock conflict and returns it.
func IsConflict(err error) (*StockConflictError, bool) {
	var conflict *StockConflictError
	ok := errors.As(err, &conflict)
	return conflict, ok
}
