package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertTransaction = `
INSERT INTO transactions (family_id, member_id, item_name, quantity, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`

type InsertTransactionParams struct {
	FamilyID  int32
	MemberID  int32
	ItemName  string
	Quantity  int32
	CreatedAt pgtype.Timestamp
}

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertTransaction,
		arg.FamilyID,
		arg.MemberID,
		arg.ItemName,
		arg.Quantity,
		arg.CreatedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const findRecentTransactions = `
SELECT id, family_id, member_id, item_name, quantity, created_at FROM transactions
ORDER BY created_at DESC
LIMIT $1
`

func (q *Queries) FindRecentTransactions(ctx context.Context, limit int32) ([]Transaction, error) {
	rows, err := q.db.Query(ctx, findRecentTransactions, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var i Transaction
		if err := rows.Scan(&i.ID, &i.FamilyID, &i.MemberID, &i.ItemName, &i.Quantity, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
