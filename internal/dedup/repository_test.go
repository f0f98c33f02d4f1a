package dedup

import (
	"context"
	"testing"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore/memstore"
)

func TestCheckpointIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memstore.New())

	if _, ok, err := repo.GetLastSequence(ctx, "restock", "p1"); err != nil || ok {
		t.Fatalf("fresh checkpoint: ok=%v err=%v", ok, err)
	}

	steps := []struct {
		seq  int64
		want int64
	}{
		{seq: 3, want: 3},
		{seq: 5, want: 5},
		{seq: 4, want: 5},
		{seq: 6, want: 6},
	}
	for _, st := range steps {
		if err := repo.UpsertLastSequence(ctx, "restock", "p1", st.seq); err != nil {
			t.Fatalf("upsert %d: %v", st.seq, err)
		}
		got, ok, err := repo.GetLastSequence(ctx, "restock", "p1")
		if err != nil || !ok {
			t.Fatalf("get after %d: ok=%v err=%v", st.seq, ok, err)
		}
		if got != st.want {
			t.Fatalf("after upsert %d last=%d, want %d", st.seq, got, st.want)
		}
	}

	if _, ok, _ := repo.GetLastSequence(ctx, "other", "p1"); ok {
		t.Fatalf("checkpoints must be per consumer")
	}
}
