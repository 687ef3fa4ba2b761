package model

type TransactionResponse struct {
	Id        int64  `json:"id"`
	FamilyId  int32  `json:"family_id"`
	MemberId  int32  `json:"member_id"`
	Item      string `json:"item"`
	Quantity  int32  `json:"quantity"`
	CreatedAt string `json:"created_at"`
}
