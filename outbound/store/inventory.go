package store

import (
	"context"
)

const reserveInventoryQuantity = `
UPDATE inventory SET quantity = quantity - $1 WHERE name = $2 AND quantity >= $1
`

type ReserveInventoryQuantityParams struct {
	Quantity int32
	Name     string
}

// ReserveInventoryQuantity conditionally decrements stock in a single
// statement. Zero rows affected means the item is missing or short.
func (q *Queries) ReserveInventoryQuantity(ctx context.Context, arg ReserveInventoryQuantityParams) (int64, error) {
	result, err := q.db.Exec(ctx, reserveInventoryQuantity, arg.Quantity, arg.Name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const restoreInventoryQuantity = `
UPDATE inventory SET quantity = quantity + $1 WHERE name = $2
`

type RestoreInventoryQuantityParams struct {
	Quantity int32
	Name     string
}

func (q *Queries) RestoreInventoryQuantity(ctx context.Context, arg RestoreInventoryQuantityParams) error {
	_, err := q.db.Exec(ctx, restoreInventoryQuantity, arg.Quantity, arg.Name)
	return err
}

const upsertInventoryQuantity = `
INSERT INTO inventory (name, quantity) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity
`

type UpsertInventoryQuantityParams struct {
	Name     string
	Quantity int32
}

func (q *Queries) UpsertInventoryQuantity(ctx context.Context, arg UpsertInventoryQuantityParams) error {
	_, err := q.db.Exec(ctx, upsertInventoryQuantity, arg.Name, arg.Quantity)
	return err
}

const inventoryItemExists = `
SELECT EXISTS (SELECT 1 FROM inventory WHERE name = $1) AS "exists"
`

func (q *Queries) InventoryItemExists(ctx context.Context, name string) (bool, error) {
	row := q.db.QueryRow(ctx, inventoryItemExists, name)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const findAllInventoryItems = `
SELECT name, quantity, unit FROM inventory ORDER BY name
`

func (q *Queries) FindAllInventoryItems(ctx context.Context) ([]InventoryItem, error) {
	rows, err := q.db.Query(ctx, findAllInventoryItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InventoryItem
	for rows.Next() {
		var i InventoryItem
		if err := rows.Scan(&i.Name, &i.Quantity, &i.Unit); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
