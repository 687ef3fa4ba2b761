package cron

import (
	"context"
	"fmt"
	"log/slog"
	"ration-kiosk/common"
	"ration-kiosk/common/constant"
	"ration-kiosk/common/vars"
	"ration-kiosk/model"
	"ration-kiosk/outbound/store"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

type InventoryCron struct {
	Cfg     *viper.Viper
	Cache   *redis.Client
	Querier *store.Queries
}

func (in InventoryCron) Start(ctx context.Context) {
	refreshTicker := time.NewTicker(in.Cfg.GetDuration("cron.inventory.refresh.interval"))
	defer refreshTicker.Stop()

	// Run initial refresh
	in.refresh(ctx)

	slog.Info("inventory cron started")

	for {
		select {
		case <-refreshTicker.C:
			in.refresh(ctx)
		case <-ctx.Done():
			slog.Info("inventory cron stopped")
			return
		}
	}
}

func (in InventoryCron) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, in.Cfg.GetDuration("cron.inventory.refresh.timeout"))
	defer cancel()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	slog.DebugContext(ctx, "refreshing inventory snapshot", traceIdAttr)

	items, err := in.Querier.FindAllInventoryItems(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find inventory items", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return
	}

	if len(items) == 0 {
		vars.SetInventory(nil)
		return
	}

	quantityCacheKeys := make([]string, 0, len(items))
	for _, item := range items {
		quantityCacheKeys = append(quantityCacheKeys, fmt.Sprintf(constant.EachItemQuantityKey, item.Name))
	}

	quantities, err := in.Cache.MGet(ctx, quantityCacheKeys...).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to get quantities from cache", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return
	}

	snapshot := make([]model.InventoryItemResponse, 0, len(items))
	for i, item := range items {
		quantity := item.Quantity
		if raw, ok := quantities[i].(string); ok {
			if cached, err := strconv.Atoi(raw); err == nil {
				quantity = int32(cached)
			}
		}

		snapshot = append(snapshot, model.InventoryItemResponse{
			Name:     item.Name,
			Quantity: quantity,
			Unit:     item.Unit,
		})
	}

	vars.SetInventory(snapshot)

	slog.DebugContext(ctx, "inventory snapshot refreshed successfully", traceIdAttr)
}

func (in InventoryCron) InitQuantityCache(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	items, err := in.Querier.FindAllInventoryItems(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find inventory items", slog.Any(constant.LogFieldErr, err))
		return fmt.Errorf("find inventory items: %w", err)
	}

	if len(items) == 0 {
		slog.InfoContext(ctx, "no inventory items found to initialize")
		return nil
	}

	pipe := in.Cache.TxPipeline()
	for _, item := range items {
		pipe.SetNX(ctx, fmt.Sprintf(constant.EachItemQuantityKey, item.Name), item.Quantity, 0)
	}

	if _, err = pipe.Exec(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to initialize inventory quantities in cache", slog.Any(constant.LogFieldErr, err))
		return fmt.Errorf("execute pipeline: %w", err)
	}

	slog.InfoContext(ctx, "inventory quantities initialized successfully")
	return nil
}
