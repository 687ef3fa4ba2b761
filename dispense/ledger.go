package dispense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"ration-kiosk/common/constant"
	"ration-kiosk/outbound/store"

	"github.com/redis/go-redis/v9"
)

var (
	ErrUnknownItem       = errors.New("unknown inventory item")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// StockLedger guards the logical stock count. Reserve decrements
// optimistically before the hardware runs; Release is the compensating
// action when the hardware does not confirm.
type StockLedger interface {
	Reserve(ctx context.Context, item string, quantity int32) error
	Release(ctx context.Context, item string, quantity int32) error
}

// Ledger backs reservations with a single conditional UPDATE, so two
// concurrent reservations can never oversell an item. The redis mirror
// only feeds the inventory read path and is reconciled by the cron.
type Ledger struct {
	Querier *store.Queries
	Cache   *redis.Client
}

func (l *Ledger) Reserve(ctx context.Context, item string, quantity int32) error {
	affected, err := l.Querier.ReserveInventoryQuantity(ctx, store.ReserveInventoryQuantityParams{
		Quantity: quantity,
		Name:     item,
	})
	if err != nil {
		return fmt.Errorf("reserve inventory: %w", err)
	}

	if affected == 0 {
		exists, err := l.Querier.InventoryItemExists(ctx, item)
		if err != nil {
			return fmt.Errorf("probe inventory item: %w", err)
		}
		if !exists {
			return ErrUnknownItem
		}
		return ErrInsufficientStock
	}

	l.mirror(ctx, item, -int64(quantity))
	return nil
}

func (l *Ledger) Release(ctx context.Context, item string, quantity int32) error {
	err := l.Querier.RestoreInventoryQuantity(ctx, store.RestoreInventoryQuantityParams{
		Quantity: quantity,
		Name:     item,
	})
	if err != nil {
		return fmt.Errorf("restore inventory: %w", err)
	}

	l.mirror(ctx, item, int64(quantity))
	return nil
}

// mirror keeps the cached quantity close to the ledger row. Best
// effort: the database row is authoritative.
func (l *Ledger) mirror(ctx context.Context, item string, delta int64) {
	if l.Cache == nil {
		return
	}

	err := l.Cache.IncrBy(ctx, fmt.Sprintf(constant.EachItemQuantityKey, item), delta).Err()
	if err != nil {
		slog.ErrorContext(ctx, "failed to mirror stock quantity to cache",
			slog.String("item", item),
			slog.Any(constant.LogFieldErr, err),
		)
	}
}
