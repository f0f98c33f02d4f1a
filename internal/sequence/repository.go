package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore"
)

const Collection = "event_sequence"

const maxAttempts = 3

type Repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// NextSequence atomically increments and returns the next sequence for a partition.
// The first call for a partition creates its counter at 1.
func (r *Repository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		seq, err := r.store.Adjust(ctx, Collection, partitionKey, docstore.Adjustment{Field: "lastSequence", Delta: 1})
		if err == nil {
			return int64(seq), nil
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return 0, fmt.Errorf("next sequence: %w", err)
		}
		err = r.store.Insert(ctx, Collection, partitionKey, docstore.Fields{"lastSequence": 1})
		if err == nil {
			return 1, nil
		}
		// Lost the race to create the counter; increment the winner's.
		if !errors.Is(err, docstore.ErrAlreadyExists) {
			return 0, fmt.Errorf("next sequence: %w", err)
		}
	}
	return 0, fmt.Errorf("next sequence: partition %s: too much contention", partitionKey)
}
