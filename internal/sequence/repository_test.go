package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore/memstore"
)

func TestNextSequence(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memstore.New())

	for want := int64(1); want <= 3; want++ {
		got, err := repo.NextSequence(ctx, "order-1")
		if err != nil {
			t.Fatalf("next sequence: %v", err)
		}
		if got != want {
			t.Fatalf("sequence = %d, want %d", got, want)
		}
	}

	got, err := repo.NextSequence(ctx, "order-2")
	if err != nil || got != 1 {
		t.Fatalf("new partition = %d, %v; want 1", got, err)
	}
}

func TestNextSequenceConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memstore.New())

	const n = 40
	seen := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := repo.NextSequence(ctx, "p")
			if err != nil {
				t.Errorf("next sequence: %v", err)
				return
			}
			seen <- seq
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for s := range seen {
		if unique[s] {
			t.Fatalf("duplicate sequence %d", s)
		}
		unique[s] = true
	}
	if len(unique) != n {
		t.Fatalf("got %d sequences, want %d", len(unique), n)
	}
}
