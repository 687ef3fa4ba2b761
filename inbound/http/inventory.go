package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"ration-kiosk/common"
	"ration-kiosk/common/constant"
	"ration-kiosk/common/errs"
	"ration-kiosk/common/otel"
	"ration-kiosk/common/vars"
	"ration-kiosk/model"
	"ration-kiosk/outbound/store"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

type InventoryHttp struct {
	Querier  *store.Queries
	Cache    *redis.Client
	Validate *validator.Validate
}

func RegisterInventoryHttp(
	mux *http.ServeMux,
	querier *store.Queries,
	cache *redis.Client,
	validate *validator.Validate,
) *InventoryHttp {
	in := &InventoryHttp{Querier: querier, Cache: cache, Validate: validate}

	mux.HandleFunc("GET /api/inventory", in.list)
	mux.HandleFunc("POST /api/inventory/restock", in.restock)

	return in
}

func (in *InventoryHttp) list(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, vars.GetInventory())
}

func (in *InventoryHttp) restock(w http.ResponseWriter, r *http.Request) {
	var req model.RestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "InventoryHttp.restock")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "restock receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	err := in.Querier.UpsertInventoryQuantity(ctx, store.UpsertInventoryQuantityParams{
		Name:     req.Item,
		Quantity: req.Quantity,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to restock inventory", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	cacheErr := in.Cache.IncrBy(ctx, fmt.Sprintf(constant.EachItemQuantityKey, req.Item), int64(req.Quantity)).Err()
	if cacheErr != nil {
		slog.ErrorContext(ctx, "failed to mirror restock to cache", traceIdAttr, slog.Any(constant.LogFieldErr, cacheErr))
	}

	slog.InfoContext(ctx, "restock success", traceIdAttr)

	writeJSONResponse(w, http.StatusOK, nil)
}
