package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"ration-kiosk/common"
	"ration-kiosk/common/constant"
	"ration-kiosk/common/errs"
	"ration-kiosk/common/otel"
	"ration-kiosk/dispense"
	"ration-kiosk/model"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Dispenser is the coordinator surface the handler needs.
type Dispenser interface {
	Dispense(ctx context.Context, req model.DispenseRequest) model.DispenseOutcome
}

type DispenseHttp struct {
	Coordinator Dispenser
	Cache       *redis.Client
	Validate    *validator.Validate
}

func RegisterDispenseHttp(
	mux *http.ServeMux,
	coordinator Dispenser,
	cache *redis.Client,
	validate *validator.Validate,
) *DispenseHttp {
	in := &DispenseHttp{
		Coordinator: coordinator,
		Cache:       cache,
		Validate:    validate,
	}

	mux.HandleFunc("POST /api/dispense", in.create)

	return in
}

func (in DispenseHttp) create(w http.ResponseWriter, r *http.Request) {
	var req model.DispenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "DispenseHttp.create")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "dispense receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	req.RequestId = ulid.Make().String()

	lockKey := fmt.Sprintf(constant.MemberDispenseLock, req.FamilyId, req.MemberId)
	memberLock, err := in.Cache.SetNX(ctx, lockKey, true, constant.MemberDispenseLockDefaultTTL).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to set member dispense lock", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !memberLock {
		slog.DebugContext(ctx, "member dispense already in progress", traceIdAttr)
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusConflict, Message: "Dispense already in progress for member"})
		return
	}

	defer func() {
		if delErr := in.Cache.Del(context.WithoutCancel(ctx), lockKey).Err(); delErr != nil {
			slog.ErrorContext(ctx, "failed to clear member dispense lock", traceIdAttr, slog.Any(constant.LogFieldErr, delErr))
		}
	}()

	outcome := in.Coordinator.Dispense(ctx, req)

	switch outcome.Status {
	case model.DispenseStatusCommitted:
		slog.InfoContext(ctx, "dispense success", traceIdAttr, slog.Any(constant.LogFieldResponse, outcome))
		writeJSONResponse(w, http.StatusOK, model.DispenseResponse{
			RequestId:     outcome.RequestId,
			Status:        outcome.Status,
			TransactionId: outcome.TransactionId,
		})
	case model.DispenseStatusRejected:
		writeErrorResponse(w, &errs.HttpError{
			Code:    rejectionStatusCode(outcome.Reason),
			Message: outcome.Reason,
			Data:    map[string]any{"request_id": outcome.RequestId},
		})
	default:
		writeErrorResponse(w, &errs.HttpError{
			Code:    http.StatusBadGateway,
			Message: outcome.Reason,
			Data:    map[string]any{"request_id": outcome.RequestId},
		})
	}
}

func rejectionStatusCode(reason string) int {
	switch reason {
	case dispense.ReasonUnknownItem:
		return http.StatusNotFound
	case dispense.ReasonLinkUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}
