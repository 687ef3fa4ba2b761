package model

type FamilyMemberResponse struct {
	Id       int32  `json:"id"`
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Age      int32  `json:"age"`
}

type FamilyAllocationResponse struct {
	Item     string `json:"item"`
	Quantity int32  `json:"quantity"`
}

type FamilyResponse struct {
	Id          int32                      `json:"id"`
	Name        string                     `json:"name"`
	CardNumber  string                     `json:"card_number"`
	Members     []FamilyMemberResponse     `json:"members"`
	Allocations []FamilyAllocationResponse `json:"allocations"`
}
