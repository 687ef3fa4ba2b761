package store

import (
	"context"
)

const findFamilyById = `
SELECT id, name, card_number FROM families WHERE id = $1
`

func (q *Queries) FindFamilyById(ctx context.Context, id int32) (Family, error) {
	row := q.db.QueryRow(ctx, findFamilyById, id)
	var i Family
	err := row.Scan(&i.ID, &i.Name, &i.CardNumber)
	return i, err
}

const findFamilyMembers = `
SELECT id, family_id, name, relation, age FROM family_members WHERE family_id = $1 ORDER BY id
`

func (q *Queries) FindFamilyMembers(ctx context.Context, familyID int32) ([]FamilyMember, error) {
	rows, err := q.db.Query(ctx, findFamilyMembers, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FamilyMember
	for rows.Next() {
		var i FamilyMember
		if err := rows.Scan(&i.ID, &i.FamilyID, &i.Name, &i.Relation, &i.Age); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const findFamilyAllocations = `
SELECT family_id, item_name, quantity FROM family_allocations WHERE family_id = $1 ORDER BY item_name
`

func (q *Queries) FindFamilyAllocations(ctx context.Context, familyID int32) ([]FamilyAllocation, error) {
	rows, err := q.db.Query(ctx, findFamilyAllocations, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FamilyAllocation
	for rows.Next() {
		var i FamilyAllocation
		if err := rows.Scan(&i.FamilyID, &i.ItemName, &i.Quantity); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
