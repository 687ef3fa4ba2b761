package model

type InventoryItemResponse struct {
	Name     string `json:"name"`
	Quantity int32  `json:"quantity"`
	Unit     string `json:"unit"`
}

type RestockRequest struct {
	Item     string `json:"item" validate:"required,max=50"`
	Quantity int32  `json:"quantity" validate:"required,gt=0"`
}
