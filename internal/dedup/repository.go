package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore"
)

const Collection = "event_dedup_checkpoint"

type Repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

func checkpointID(consumerName, partitionKey string) string {
	return consumerName + "/" + partitionKey
}

// GetLastSequence returns the last processed sequence for a consumer/partition.
// The boolean indicates whether a checkpoint existed.
func (r *Repository) GetLastSequence(ctx context.Context, consumerName, partitionKey string) (int64, bool, error) {
	doc, err := r.store.Get(ctx, Collection, checkpointID(consumerName, partitionKey))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get checkpoint: %w", err)
	}
	last, _ := doc.Fields.Int("lastSequence")
	return int64(last), true, nil
}

// UpsertLastSequence advances the checkpoint. It never moves backwards; a
// consumer handles one delivery at a time, so read-then-write is sufficient.
func (r *Repository) UpsertLastSequence(ctx context.Context, consumerName, partitionKey string, newSeq int64) error {
	id := checkpointID(consumerName, partitionKey)
	last, ok, err := r.GetLastSequence(ctx, consumerName, partitionKey)
	if err != nil {
		return err
	}
	fields := docstore.Fields{
		"consumerName": consumerName,
		"partitionKey": partitionKey,
		"lastSequence": newSeq,
	}
	if !ok {
		err = r.store.Insert(ctx, Collection, id, fields)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrAlreadyExists) {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
		if last, _, err = r.GetLastSequence(ctx, consumerName, partitionKey); err != nil {
			return err
		}
	}
	if newSeq <= last {
		return nil
	}
	if err := r.store.Update(ctx, Collection, id, fields); err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	return nil
}
