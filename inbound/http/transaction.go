package http

import (
	"log/slog"
	"net/http"
	"ration-kiosk/common"
	"ration-kiosk/common/constant"
	"ration-kiosk/model"
	"ration-kiosk/outbound/store"
	"time"

	"github.com/spf13/viper"
)

type TransactionHttp struct {
	Querier *store.Queries

	listLimit int32
}

func RegisterTransactionHttp(mux *http.ServeMux, cfg *viper.Viper, querier *store.Queries) *TransactionHttp {
	in := &TransactionHttp{
		Querier:   querier,
		listLimit: cfg.GetInt32("transaction.list_limit"),
	}

	if in.listLimit <= 0 {
		in.listLimit = 100
	}

	mux.HandleFunc("GET /api/transactions", in.list)

	return in
}

func (in *TransactionHttp) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	rows, err := in.Querier.FindRecentTransactions(ctx, in.listLimit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find transactions", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	resp := make([]model.TransactionResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, model.TransactionResponse{
			Id:        row.ID,
			FamilyId:  row.FamilyID,
			MemberId:  row.MemberID,
			Item:      row.ItemName,
			Quantity:  row.Quantity,
			CreatedAt: row.CreatedAt.Time.Format(time.RFC3339),
		})
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
