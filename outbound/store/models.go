package store

import "github.com/jackc/pgx/v5/pgtype"

type InventoryItem struct {
	Name     string
	Quantity int32
	Unit     string
}

type Family struct {
	ID         int32
	Name       string
	CardNumber string
}

type FamilyMember struct {
	ID       int32
	FamilyID int32
	Name     string
	Relation string
	Age      int32
}

type FamilyAllocation struct {
	FamilyID int32
	ItemName string
	Quantity int32
}

type Transaction struct {
	ID        int64
	FamilyID  int32
	MemberID  int32
	ItemName  string
	Quantity  int32
	CreatedAt pgtype.Timestamp
}
