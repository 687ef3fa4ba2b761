package dispense

import (
	"context"
	"ration-kiosk/outbound/store"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// TransactionRecord is appended once per committed dispense, never for
// rejected or failed ones.
type TransactionRecord struct {
	FamilyId  int32
	MemberId  int32
	Item      string
	Quantity  int32
	CreatedAt time.Time
}

type TransactionLog interface {
	Append(ctx context.Context, rec TransactionRecord) (int64, error)
}

type StoreTransactionLog struct {
	Querier *store.Queries
}

func (t StoreTransactionLog) Append(ctx context.Context, rec TransactionRecord) (int64, error) {
	return t.Querier.InsertTransaction(ctx, store.InsertTransactionParams{
		FamilyID:  rec.FamilyId,
		MemberID:  rec.MemberId,
		ItemName:  rec.Item,
		Quantity:  rec.Quantity,
		CreatedAt: pgtype.Timestamp{Time: rec.CreatedAt, Valid: true},
	})
}
