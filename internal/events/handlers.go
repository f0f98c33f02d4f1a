package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/dedup"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/inventory"
)

// Restocker adds received goods to stock.
type Restocker interface {
	AdjustStock(ctx context.Context, productID string, delta int, reason string) (inventory.StockOperation, error)
}

const RestockConsumerName = "inventory-stock-restocked"

// restockClaimTTL outlives any realistic dead-letter replay.
const restockClaimTTL = 7 * 24 * time.Hour

// StockRestockedHandler adds each received line to stock. Enveloped messages are
// deduplicated by their per-partition sequence; unknown products are skipped.
// Each line is claimed before it is applied, so a message rejected halfway to the
// dead-letter queue only applies its remaining lines when replayed.
// Returning an error rejects the message to the dead-letter queue.
func StockRestockedHandler(stock Restocker, checkpoints *dedup.Repository, claims idempotency.Claimer, logger *zap.Logger, consumerName string) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		ev, env, err := parseStockRestocked(body)
		if err != nil {
			return err
		}
		if ev.ShipmentID == "" {
			return fmt.Errorf("missing shipmentId")
		}

		log := logger.With(zap.String("shipmentId", ev.ShipmentID))

		var partitionKey string
		var incomingSeq int64
		if env != nil {
			partitionKey = env.PartitionKey
			incomingSeq = env.Sequence
		}

		if env != nil && incomingSeq != 0 {
			lastSeq, ok, err := checkpoints.GetLastSequence(ctx, consumerName, partitionKey)
			if err != nil {
				return err
			}
			if ok {
				if incomingSeq <= lastSeq {
					log.Info("skip duplicate", zap.String("partition", partitionKey), zap.Int64("seq", incomingSeq), zap.Int64("last", lastSeq))
					return nil
				}
				if incomingSeq > lastSeq+1 {
					log.Warn("sequence gap", zap.String("partition", partitionKey), zap.Int64("seq", incomingSeq), zap.Int64("last", lastSeq))
				}
			}
		}

		reason := "Restock " + ev.ShipmentID
		applied := 0
		for i, line := range ev.Items {
			if line.ProductID == "" || line.Quantity <= 0 {
				log.Warn("ignoring invalid restock line", zap.String("productId", line.ProductID), zap.Int("quantity", line.Quantity))
				continue
			}
			key := restockLineKey(ev.ShipmentID, i, line.ProductID)
			claimed, err := claims.Claim(ctx, key, restockClaimTTL)
			if err != nil {
				log.Warn("restock line claim failed, proceeding", zap.String("key", key), zap.Error(err))
			} else if !claimed {
				log.Info("restock line already applied", zap.String("productId", line.ProductID))
				continue
			}
			if _, err := stock.AdjustStock(ctx, line.ProductID, line.Quantity, reason); err != nil {
				if claimed {
					if rerr := claims.Release(ctx, key); rerr != nil {
						log.Warn("restock line release failed", zap.String("key", key), zap.Error(rerr))
					}
				}
				if errors.Is(err, inventory.ErrNotFound) {
					log.Warn("restock for unknown product", zap.String("productId", line.ProductID))
					continue
				}
				return fmt.Errorf("restock %s: %w", line.ProductID, err)
			}
			applied++
		}

		if env != nil && incomingSeq != 0 {
			if err := checkpoints.UpsertLastSequence(ctx, consumerName, partitionKey, incomingSeq); err != nil {
				return err
			}
		}

		log.Info("stock restocked", zap.Int("lines", applied))
		return nil
	}
}

func restockLineKey(shipmentID string, line int, productID string) string {
	return "restock:" + shipmentID + ":" + strconv.Itoa(line) + ":" + productID
}

func parseStockRestocked(body []byte) (StockRestocked, *EventEnvelope, error) {
	var ev StockRestocked
	if !isEnveloped(body) {
		if err := json.Unmarshal(body, &ev); err != nil {
			return StockRestocked{}, nil, fmt.Errorf("unmarshal StockRestocked: %w", err)
		}
		return ev, nil, nil
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return StockRestocked{}, nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.Validate(EventTypeStockRestocked, 1); err != nil {
		return StockRestocked{}, nil, err
	}
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return StockRestocked{}, nil, fmt.Errorf("unmarshal StockRestocked payload: %w", err)
	}
	return ev, &env, nil
}
