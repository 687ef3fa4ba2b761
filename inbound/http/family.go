package http

import (
	"log/slog"
	"net/http"
	"ration-kiosk/common"
	"ration-kiosk/common/constant"
	"ration-kiosk/common/errs"
	"ration-kiosk/model"
	"ration-kiosk/outbound/store"
	"strconv"

	"github.com/jackc/pgx/v5"
)

type FamilyHttp struct {
	Querier *store.Queries
}

func RegisterFamilyHttp(mux *http.ServeMux, querier *store.Queries) *FamilyHttp {
	in := &FamilyHttp{Querier: querier}

	mux.HandleFunc("GET /api/families/{id}", in.find)

	return in
}

func (in *FamilyHttp) find(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 32)
	if err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid family id"})
		return
	}

	ctx := r.Context()
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	family, err := in.Querier.FindFamilyById(ctx, int32(id))
	if err == pgx.ErrNoRows {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusNotFound, Message: "Family not found"})
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to find family", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	members, err := in.Querier.FindFamilyMembers(ctx, family.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find family members", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	allocations, err := in.Querier.FindFamilyAllocations(ctx, family.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find family allocations", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	resp := model.FamilyResponse{
		Id:          family.ID,
		Name:        family.Name,
		CardNumber:  family.CardNumber,
		Members:     make([]model.FamilyMemberResponse, 0, len(members)),
		Allocations: make([]model.FamilyAllocationResponse, 0, len(allocations)),
	}

	for _, m := range members {
		resp.Members = append(resp.Members, model.FamilyMemberResponse{
			Id:       m.ID,
			Name:     m.Name,
			Relation: m.Relation,
			Age:      m.Age,
		})
	}

	for _, a := range allocations {
		resp.Allocations = append(resp.Allocations, model.FamilyAllocationResponse{
			Item:     a.ItemName,
			Quantity: a.Quantity,
		})
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
