package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore/memstore"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/idempotency"
)

func newTestService(t *testing.T, stock map[string]int, opts ...Option) (*Service, *DocumentRepository) {
	t.Helper()
	repo := NewDocumentRepository(memstore.New())
	ctx := context.Background()
	for id, n := range stock {
		if err := repo.Create(ctx, Product{ID: id, Name: "product " + id, Price: 10, Stock: n}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return NewService(repo, opts...), repo
}

func stockOf(t *testing.T, repo Repository, id string) int {
	t.Helper()
	p, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return p.Stock
}

// brokenStore fails every call.
type brokenStore struct{}

var errBroken = errors.New("connection refused")

func (brokenStore) Get(context.Context, string, string) (docstore.Document, error) {
	return docstore.Document{}, errBroken
}
func (brokenStore) Insert(context.Context, string, string, docstore.Fields) error { return errBroken }
func (brokenStore) Update(context.Context, string, string, docstore.Fields) error { return errBroken }
func (brokenStore) Query(context.Context, string, docstore.Filter) ([]docstore.Document, error) {
	return nil, errBroken
}
func (brokenStore) Adjust(context.Context, string, string, docstore.Adjustment) (int, error) {
	return 0, errBroken
}

func TestValidateStockAvailability(t *testing.T) {
	tests := map[string]struct {
		stock     map[string]int
		items     []Item
		wantValid bool
		wantUnav  []Unavailable
	}{
		"enough stock": {
			stock:     map[string]int{"p": 10},
			items:     []Item{{ProductID: "p", Quantity: 5}},
			wantValid: true,
			wantUnav:  []Unavailable{},
		},
		"short": {
			stock:    map[string]int{"p": 3},
			items:    []Item{{ProductID: "p", Quantity: 5}},
			wantUnav: []Unavailable{{ProductID: "p", Requested: 5, Available: 3}},
		},
		"missing product counts as zero": {
			stock:    map[string]int{"p": 3},
			items:    []Item{{ProductID: "p", Quantity: 1}, {ProductID: "ghost", Quantity: 2}},
			wantUnav: []Unavailable{{ProductID: "ghost", Requested: 2, Available: 0}},
		},
		"exact stock is available": {
			stock:     map[string]int{"p": 4},
			items:     []Item{{ProductID: "p", Quantity: 4}},
			wantValid: true,
			wantUnav:  []Unavailable{},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			svc, repo := newTestService(t, tt.stock)
			res, err := svc.ValidateStockAvailability(context.Background(), tt.items)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Valid != tt.wantValid {
				t.Fatalf("valid = %v, want %v", res.Valid, tt.wantValid)
			}
			if !reflect.DeepEqual(res.UnavailableItems, tt.wantUnav) {
				t.Fatalf("unavailable mismatch\ngot  %+v\nwant %+v", res.UnavailableItems, tt.wantUnav)
			}
			for id, n := range tt.stock {
				if got := stockOf(t, repo, id); got != n {
					t.Fatalf("validation mutated %s: %d -> %d", id, n, got)
				}
			}
		})
	}
}

func TestValidateStockAvailabilityStoreError(t *testing.T) {
	svc := NewService(NewDocumentRepository(brokenStore{}))
	res, err := svc.ValidateStockAvailability(context.Background(), []Item{{ProductID: "p", Quantity: 1}})
	if !errors.Is(err, ErrStore) {
		t.Fatalf("err = %v, want ErrStore", err)
	}
	if res.Valid || len(res.UnavailableItems) != 0 {
		t.Fatalf("store failure must be valid=false with no items, got %+v", res)
	}
}

func TestValidateStockAvailabilityInvalidQuantity(t *testing.T) {
	svc, _ := newTestService(t, map[string]int{"p": 3})
	_, err := svc.ValidateStockAvailability(context.Background(), []Item{{ProductID: "p", Quantity: 0}})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("err = %v, want ErrInvalidQuantity", err)
	}
}

func TestDecrementOrderStock(t *testing.T) {
	tests := map[string]struct {
		stock       map[string]int
		items       []Item
		wantSuccess bool
		wantOps     []StockOperation
		wantFailed  []Failure
		wantStock   map[string]int
	}{
		"single item": {
			stock:       map[string]int{"p": 10},
			items:       []Item{{ProductID: "p", Quantity: 5}},
			wantSuccess: true,
			wantOps: []StockOperation{
				{ProductID: "p", Quantity: 5, Type: OperationDecrement, Reason: ReasonOrderCreated, OrderID: "o1", StockAfter: 5},
			},
			wantFailed: []Failure{},
			wantStock:  map[string]int{"p": 5},
		},
		"missing product": {
			stock:   map[string]int{},
			items:   []Item{{ProductID: "p", Quantity: 1}},
			wantOps: []StockOperation{},
			wantFailed: []Failure{
				{ProductID: "p", Kind: KindNotFound, Reason: "Product not found", Requested: 1},
			},
		},
		"partial failure keeps committed items": {
			stock: map[string]int{"a": 1, "b": 4},
			items: []Item{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 3}},
			wantOps: []StockOperation{
				{ProductID: "b", Quantity: 3, Type: OperationDecrement, Reason: ReasonOrderCreated, OrderID: "o1", StockAfter: 1},
			},
			wantFailed: []Failure{{
				ProductID: "a",
				Kind:      KindInsufficientStock,
				Reason:    "Insufficient stock: requested 2, available 1",
				Requested: 2,
				Available: 1,
			}},
			wantStock: map[string]int{"a": 1, "b": 1},
		},
		"zero quantity rejected": {
			stock:   map[string]int{"p": 3},
			items:   []Item{{ProductID: "p", Quantity: 0}},
			wantOps: []StockOperation{},
			wantFailed: []Failure{
				{ProductID: "p", Kind: KindInvalidQuantity, Reason: "Invalid quantity 0"},
			},
			wantStock: map[string]int{"p": 3},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			svc, repo := newTestService(t, tt.stock)
			res := svc.DecrementOrderStock(context.Background(), "o1", tt.items)

			if res.Success != tt.wantSuccess {
				t.Fatalf("success = %v, want %v", res.Success, tt.wantSuccess)
			}
			if !reflect.DeepEqual(res.Decremented, tt.wantOps) {
				t.Fatalf("decremented mismatch\ngot  %+v\nwant %+v", res.Decremented, tt.wantOps)
			}
			if !reflect.DeepEqual(res.Failed, tt.wantFailed) {
				t.Fatalf("failed mismatch\ngot  %+v\nwant %+v", res.Failed, tt.wantFailed)
			}
			for id, want := range tt.wantStock {
				if got := stockOf(t, repo, id); got != want {
					t.Fatalf("stock %s = %d, want %d", id, got, want)
				}
			}
		})
	}
}

func TestDecrementSetsAuditFields(t *testing.T) {
	svc, repo := newTestService(t, map[string]int{"p": 10})
	before := time.Now().UTC().Add(-time.Second)

	svc.DecrementOrderStock(context.Background(), "o1", []Item{{ProductID: "p", Quantity: 2}})

	p, err := repo.Get(context.Background(), "p")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.LastUpdateReason != ReasonOrderCreated {
		t.Fatalf("lastUpdateReason = %q", p.LastUpdateReason)
	}
	if p.LastUpdated.Before(before) {
		t.Fatalf("lastUpdated not refreshed: %v", p.LastUpdated)
	}
}

func TestDecrementIsIdempotentPerOrder(t *testing.T) {
	svc, repo := newTestService(t, map[string]int{"p": 10})
	ctx := context.Background()
	items := []Item{{ProductID: "p", Quantity: 3}}

	first := svc.DecrementOrderStock(ctx, "o1", items)
	second := svc.DecrementOrderStock(ctx, "o1", items)

	if !first.Success || first.Duplicate {
		t.Fatalf("first call: %+v", first)
	}
	if !second.Duplicate || len(second.Decremented) != 0 {
		t.Fatalf("second call should be a no-op duplicate: %+v", second)
	}
	if got := stockOf(t, repo, "p"); got != 7 {
		t.Fatalf("stock = %d, want 7", got)
	}
}

func TestDecrementReleasesClaimWhenNothingCommitted(t *testing.T) {
	svc, repo := newTestService(t, map[string]int{"p": 1})
	ctx := context.Background()
	items := []Item{{ProductID: "p", Quantity: 2}}

	if res := svc.DecrementOrderStock(ctx, "o1", items); res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if _, err := svc.AdjustStock(ctx, "p", 5, "restock"); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	res := svc.DecrementOrderStock(ctx, "o1", items)
	if !res.Success || res.Duplicate {
		t.Fatalf("retry should run: %+v", res)
	}
	if got := stockOf(t, repo, "p"); got != 4 {
		t.Fatalf("stock = %d, want 4", got)
	}
}

func TestRestoreOrderStock(t *testing.T) {
	svc, repo := newTestService(t, map[string]int{"p": 5})
	ctx := context.Background()
	items := []Item{{ProductID: "p", Quantity: 5}}

	dec := svc.DecrementOrderStock(ctx, "o1", items)
	if !dec.Success {
		t.Fatalf("decrement: %+v", dec)
	}
	if got := stockOf(t, repo, "p"); got != 0 {
		t.Fatalf("stock after decrement = %d, want 0", got)
	}

	res := svc.RestoreOrderStock(ctx, "o1", items, "")
	want := []StockOperation{
		{ProductID: "p", Quantity: 5, Type: OperationIncrement, Reason: ReasonOrderCancelled, OrderID: "o1", StockAfter: 5},
	}
	if !res.Success || !reflect.DeepEqual(res.Restored, want) {
		t.Fatalf("restore mismatch\ngot  %+v\nwant %+v", res.Restored, want)
	}
	if got := stockOf(t, repo, "p"); got != 5 {
		t.Fatalf("stock after restore = %d, want 5", got)
	}

	again := svc.RestoreOrderStock(ctx, "o1", items, "")
	if !again.Duplicate {
		t.Fatalf("second restore should be suppressed: %+v", again)
	}
	if got := stockOf(t, repo, "p"); got != 5 {
		t.Fatalf("double restore changed stock to %d", got)
	}
}

func TestRestoreHasNoCeilingAndReportsMissing(t *testing.T) {
	svc, repo := newTestService(t, map[string]int{"p": 100})
	res := svc.RestoreOrderStock(context.Background(), "o2",
		[]Item{{ProductID: "p", Quantity: 50}, {ProductID: "ghost", Quantity: 1}}, "Returned")

	if res.Success {
		t.Fatalf("missing product must fail the call")
	}
	if len(res.Restored) != 1 || res.Restored[0].Reason != "Returned" {
		t.Fatalf("restored = %+v", res.Restored)
	}
	if len(res.Failed) != 1 || res.Failed[0].Kind != KindNotFound || res.Failed[0].Reason != "Product not found" {
		t.Fatalf("failed = %+v", res.Failed)
	}
	if got := stockOf(t, repo, "p"); got != 150 {
		t.Fatalf("stock = %d, want 150", got)
	}
}

func TestRestoreCommitsBelowZeroStock(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	if err := store.Insert(ctx, ProductsCollection, "p", docstore.Fields{"name": "legacy", "stock": -2}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	repo := NewDocumentRepository(store)
	svc := NewService(repo)

	res := svc.RestoreOrderStock(ctx, "o1", []Item{{ProductID: "p", Quantity: 1}}, "")
	if !res.Success || len(res.Failed) != 0 {
		t.Fatalf("restore refused: %+v", res)
	}
	if len(res.Restored) != 1 || res.Restored[0].StockAfter != -1 {
		t.Fatalf("restored = %+v", res.Restored)
	}
	if got := stockOf(t, repo, "p"); got != -1 {
		t.Fatalf("stock = %d, want -1", got)
	}

	dec := svc.DecrementOrderStock(ctx, "o2", []Item{{ProductID: "p", Quantity: 1}})
	if dec.Success || len(dec.Failed) != 1 || dec.Failed[0].Kind != KindInsufficientStock {
		t.Fatalf("decrement below zero must still be refused: %+v", dec)
	}
}

func TestOrderDecrements(t *testing.T) {
	svc, _ := newTestService(t, map[string]int{"a": 5, "b": 1, "c": 4})
	ctx := context.Background()

	svc.DecrementOrderStock(ctx, "o1", []Item{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 3}})
	svc.DecrementOrderStock(ctx, "o2", []Item{{ProductID: "c", Quantity: 1}})
	svc.RestoreOrderStock(ctx, "o1", []Item{{ProductID: "a", Quantity: 2}}, "")

	got, err := svc.OrderDecrements(ctx, "o1")
	if err != nil {
		t.Fatalf("order decrements: %v", err)
	}
	want := []Item{{ProductID: "a", Quantity: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	none, err := svc.OrderDecrements(ctx, "unknown")
	if err != nil || len(none) != 0 {
		t.Fatalf("unknown order: %+v, %v", none, err)
	}
}

func TestSoldOutFailureEncodesZeroAvailable(t *testing.T) {
	svc, _ := newTestService(t, map[string]int{"p": 0})
	res := svc.DecrementOrderStock(context.Background(), "o1", []Item{{ProductID: "p", Quantity: 1}})
	if res.Success || len(res.Failed) != 1 {
		t.Fatalf("want one failure, got %+v", res)
	}
	body, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"requested":1,"available":0`) {
		t.Fatalf("available: 0 missing from %s", body)
	}
}

func TestStoreErrorsAreReportedPerItem(t *testing.T) {
	svc := NewService(NewDocumentRepository(brokenStore{}))
	res := svc.DecrementOrderStock(context.Background(), "o1", []Item{{ProductID: "p", Quantity: 1}})
	if res.Success || len(res.Failed) != 1 || res.Failed[0].Kind != KindStoreError {
		t.Fatalf("want one store_error failure, got %+v", res)
	}
}

func TestDecrementRestoreRoundTrip(t *testing.T) {
	svc, repo := newTestService(t, map[string]int{"a": 7, "b": 2, "c": 9})
	ctx := context.Background()
	items := []Item{{ProductID: "a", Quantity: 3}, {ProductID: "b", Quantity: 5}, {ProductID: "c", Quantity: 9}}

	dec := svc.DecrementOrderStock(ctx, "o1", items)
	restore := make([]Item, 0, len(dec.Decremented))
	for _, op := range dec.Decremented {
		restore = append(restore, Item{ProductID: op.ProductID, Quantity: op.Quantity})
	}
	svc.RestoreOrderStock(ctx, "o1", restore, "")

	for id, want := range map[string]int{"a": 7, "b": 2, "c": 9} {
		if got := stockOf(t, repo, id); got != want {
			t.Fatalf("stock %s = %d, want %d", id, got, want)
		}
	}
}

func TestConcurrentDecrementNeverOversells(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc, repo := newTestService(t, map[string]int{"p": 1})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]DecrementResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.DecrementOrderStock(ctx, []string{"o1", "o2"}[i], []Item{{ProductID: "p", Quantity: 1}})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
			continue
		}
		if len(r.Failed) != 1 || r.Failed[0].Kind != KindInsufficientStock || r.Failed[0].Available != 0 {
			t.Fatalf("loser should report insufficient stock with available 0: %+v", r.Failed)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d decrements succeeded, want exactly 1", succeeded)
	}
	if got := stockOf(t, repo, "p"); got != 0 {
		t.Fatalf("stock = %d, want 0", got)
	}
}

func TestConcurrentDecrementManyOrders(t *testing.T) {
	defer goleak.VerifyNone(t)

	const stock, orders = 25, 60
	svc, repo := newTestService(t, map[string]int{"p": stock})
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := svc.DecrementOrderStock(ctx, fmt.Sprintf("order-%d", i), []Item{{ProductID: "p", Quantity: 1}})
			mu.Lock()
			committed += len(res.Decremented)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if committed != stock {
		t.Fatalf("committed %d decrements, want %d", committed, stock)
	}
	if got := stockOf(t, repo, "p"); got != 0 {
		t.Fatalf("stock = %d, want 0", got)
	}
}

type recordingNotifier struct {
	calls    int
	products []LowStockProduct
	err      error
}

func (n *recordingNotifier) NotifyLowStock(_ context.Context, _ int, products []LowStockProduct) error {
	n.calls++
	n.products = products
	return n.err
}

func TestCheckAndAlertLowStock(t *testing.T) {
	stock := map[string]int{"a": 0, "b": 3, "c": 5, "d": 6, "e": 10}

	tests := map[string]struct {
		notifier   *recordingNotifier
		threshold  int
		wantIDs    []string
		wantAlerts bool
	}{
		"default threshold": {
			threshold:  DefaultLowStockThreshold,
			wantIDs:    []string{"a", "b", "c"},
			wantAlerts: true,
		},
		"notifier called": {
			notifier:   &recordingNotifier{},
			threshold:  5,
			wantIDs:    []string{"a", "b", "c"},
			wantAlerts: true,
		},
		"notifier failure": {
			notifier:  &recordingNotifier{err: errors.New("broker down")},
			threshold: 5,
			wantIDs:   []string{"a", "b", "c"},
		},
		"negative threshold uses default": {
			notifier:   &recordingNotifier{},
			threshold:  -1,
			wantIDs:    []string{"a", "b", "c"},
			wantAlerts: true,
		},
		"zero threshold": {
			notifier:   &recordingNotifier{},
			threshold:  0,
			wantIDs:    []string{"a"},
			wantAlerts: true,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			var opts []Option
			if tt.notifier != nil {
				opts = append(opts, WithNotifier(tt.notifier))
			}
			svc, _ := newTestService(t, stock, opts...)

			res, err := svc.CheckAndAlertLowStock(context.Background(), tt.threshold)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var ids []string
			for _, p := range res.ProductsWithLowStock {
				ids = append(ids, p.ProductID)
				if p.Name == "" {
					t.Fatalf("missing name for %s", p.ProductID)
				}
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Fatalf("ids = %v, want %v", ids, tt.wantIDs)
			}
			if res.AlertsSent != tt.wantAlerts {
				t.Fatalf("alertsSent = %v, want %v", res.AlertsSent, tt.wantAlerts)
			}
			if tt.notifier != nil && tt.notifier.calls != 1 {
				t.Fatalf("notifier called %d times", tt.notifier.calls)
			}
		})
	}
}

func TestCheckAndAlertLowStockEmpty(t *testing.T) {
	n := &recordingNotifier{}
	svc, _ := newTestService(t, map[string]int{"p": 50}, WithNotifier(n))

	res, err := svc.CheckAndAlertLowStock(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AlertsSent || len(res.ProductsWithLowStock) != 0 || n.calls != 0 {
		t.Fatalf("nothing to alert: %+v (calls %d)", res, n.calls)
	}
}

func TestCheckAndAlertLowStockStoreError(t *testing.T) {
	svc := NewService(NewDocumentRepository(brokenStore{}))
	if _, err := svc.CheckAndAlertLowStock(context.Background(), 5); !errors.Is(err, ErrStore) {
		t.Fatalf("err = %v, want ErrStore", err)
	}
}

// failingClaimer simulates an unreachable Redis.
type failingClaimer struct{}

func (failingClaimer) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}
func (failingClaimer) Release(context.Context, string) error { return nil }

var _ idempotency.Claimer = failingClaimer{}

func TestClaimerFailureDoesNotBlockDecrement(t *testing.T) {
	svc, repo := newTestService(t, map[string]int{"p": 2}, WithClaimer(failingClaimer{}, time.Minute))
	res := svc.DecrementOrderStock(context.Background(), "o1", []Item{{ProductID: "p", Quantity: 1}})
	if !res.Success {
		t.Fatalf("decrement should proceed without a claim: %+v", res)
	}
	if got := stockOf(t, repo, "p"); got != 1 {
		t.Fatalf("stock = %d, want 1", got)
	}
}
